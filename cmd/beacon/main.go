package main

import (
	"errors"
	"fmt"
	"log"
	"os"

	"ghostbeacon/internal/beacon/config"
	"ghostbeacon/internal/beacon/engine"
)

func main() {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		var cfgErr *config.ConfigError
		if errors.As(err, &cfgErr) {
			config.Usage(os.Stderr, os.Args[0])
		}
		os.Exit(1)
	}

	e, err := engine.New(cfg)
	if err != nil {
		log.Fatalf("[-] Failed to initialize beacon: %v", err)
	}

	os.Exit(e.Run())
}
