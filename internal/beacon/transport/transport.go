package transport

import (
	"bufio"
	"bytes"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"ghostbeacon/internal/beacon/config"
)

// ErrorKind identifies the phase of the exchange that failed.
type ErrorKind int

const (
	KindResolve ErrorKind = iota
	KindConnect
	KindWrite
	KindRead
	KindStatus
)

func (k ErrorKind) String() string {
	switch k {
	case KindResolve:
		return "resolve"
	case KindConnect:
		return "connect"
	case KindWrite:
		return "write"
	case KindRead:
		return "read"
	case KindStatus:
		return "status"
	}
	return "unknown"
}

// Error is a transport-level failure. Status is set for KindStatus errors.
type Error struct {
	Kind   ErrorKind
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Kind == KindStatus {
		return fmt.Sprintf("transport: server returned status %d", e.Status)
	}
	return fmt.Sprintf("transport: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Response is the outcome of one successful exchange.
type Response struct {
	StatusCode int
	Body       []byte
}

const (
	defaultDialTimeout = 10 * time.Second
	defaultIOTimeout   = 30 * time.Second

	// maxBodySize bounds how much of a response is read into memory.
	maxBodySize = 1 << 20
)

// Client performs one HTTP or HTTPS request/response exchange per call over
// its own connection. There is no retry, no redirect following and no
// connection reuse: every exchange opens and fully tears down a connection.
type Client struct {
	host      string
	port      int
	path      string
	useTLS    bool
	verifyTLS bool
	proxy     *url.URL

	dialTimeout time.Duration
	ioTimeout   time.Duration
}

// NewClient builds a client for the controller endpoint in cfg.
func NewClient(cfg *config.Config) (*Client, error) {
	c := &Client{
		host:        cfg.Host,
		port:        cfg.Port,
		path:        cfg.Path,
		useTLS:      cfg.Scheme == "https",
		verifyTLS:   cfg.VerifySSL,
		dialTimeout: defaultDialTimeout,
		ioTimeout:   defaultIOTimeout,
	}

	if cfg.ProxyURL != "" {
		proxy, err := url.Parse(cfg.ProxyURL)
		if err != nil || proxy.Hostname() == "" {
			return nil, fmt.Errorf("transport: invalid proxy URL %q", cfg.ProxyURL)
		}
		if proxy.Port() == "" {
			proxy.Host = net.JoinHostPort(proxy.Hostname(), "8080")
		}
		c.proxy = proxy
	}

	return c, nil
}

// Request performs a single exchange. All failures are reported as *Error
// with a kind identifying the failed phase; a non-2xx status is KindStatus.
func (c *Client) Request(method string, headers map[string]string, body []byte) (*Response, error) {
	conn, err := c.dial()
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(c.ioTimeout))

	if err := c.writeRequest(conn, method, headers, body); err != nil {
		return nil, &Error{Kind: KindWrite, Err: err}
	}

	resp, err := readResponse(bufio.NewReader(conn))
	if err != nil {
		return nil, &Error{Kind: KindRead, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{Kind: KindStatus, Status: resp.StatusCode}
	}

	return resp, nil
}

// dial resolves and connects, tunneling through the proxy when one is
// configured and completing the TLS handshake for https targets. TLS never
// degrades: a failed handshake or failed verification surfaces as a connect
// error.
func (c *Client) dial() (net.Conn, error) {
	dialHost := c.host
	dialPort := strconv.Itoa(c.port)
	if c.proxy != nil {
		dialHost = c.proxy.Hostname()
		dialPort = c.proxy.Port()
	}

	addrs, err := net.LookupHost(dialHost)
	if err != nil || len(addrs) == 0 {
		return nil, &Error{Kind: KindResolve, Err: fmt.Errorf("lookup %s: %w", dialHost, err)}
	}

	conn, err := net.DialTimeout("tcp", net.JoinHostPort(addrs[0], dialPort), c.dialTimeout)
	if err != nil {
		return nil, &Error{Kind: KindConnect, Err: err}
	}

	if c.proxy != nil && c.useTLS {
		if err := c.connectTunnel(conn); err != nil {
			conn.Close()
			return nil, &Error{Kind: KindConnect, Err: err}
		}
	}

	if c.useTLS {
		tlsConn := tls.Client(conn, &tls.Config{
			ServerName:         c.host,
			InsecureSkipVerify: !c.verifyTLS,
		})
		if err := tlsConn.Handshake(); err != nil {
			conn.Close()
			return nil, &Error{Kind: KindConnect, Err: fmt.Errorf("tls handshake: %w", err)}
		}
		return tlsConn, nil
	}

	return conn, nil
}

// connectTunnel issues an HTTP CONNECT through the proxy for TLS targets.
func (c *Client) connectTunnel(conn net.Conn) error {
	target := net.JoinHostPort(c.host, strconv.Itoa(c.port))

	_ = conn.SetDeadline(time.Now().Add(c.ioTimeout))
	_, err := fmt.Fprintf(conn, "CONNECT %s HTTP/1.1\r\nHost: %s\r\n\r\n", target, target)
	if err != nil {
		return fmt.Errorf("proxy connect: %w", err)
	}

	br := bufio.NewReader(conn)
	status, _, err := readStatusLine(br)
	if err != nil {
		return fmt.Errorf("proxy connect: %w", err)
	}
	if status != 200 {
		return fmt.Errorf("proxy refused tunnel: status %d", status)
	}

	// Drain the proxy's response headers before handing the conn to TLS.
	for {
		line, err := readLine(br)
		if err != nil {
			return fmt.Errorf("proxy connect: %w", err)
		}
		if line == "" {
			return nil
		}
	}
}

func (c *Client) writeRequest(conn net.Conn, method string, headers map[string]string, body []byte) error {
	target := c.path
	if c.proxy != nil && !c.useTLS {
		// Plaintext requests through a proxy use the absolute form.
		target = fmt.Sprintf("http://%s:%d%s", c.host, c.port, c.path)
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s %s HTTP/1.1\r\n", method, target)
	fmt.Fprintf(&buf, "Host: %s\r\n", c.host)

	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&buf, "%s: %s\r\n", k, headers[k])
	}

	if len(body) > 0 {
		fmt.Fprintf(&buf, "Content-Length: %d\r\n", len(body))
	}
	buf.WriteString("Connection: close\r\n\r\n")
	buf.Write(body)

	_, err := conn.Write(buf.Bytes())
	return err
}

// readResponse parses a response. Bodies framed by Content-Length, chunked
// transfer-encoding, and close-delimited (read until EOF) are all handled.
func readResponse(br *bufio.Reader) (*Response, error) {
	status, _, err := readStatusLine(br)
	if err != nil {
		return nil, err
	}

	contentLength := -1
	chunked := false
	for {
		line, err := readLine(br)
		if err != nil {
			return nil, err
		}
		if line == "" {
			break
		}

		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.ToLower(name) {
		case "content-length":
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				return nil, fmt.Errorf("bad Content-Length %q", value)
			}
			contentLength = n
		case "transfer-encoding":
			if strings.Contains(strings.ToLower(value), "chunked") {
				chunked = true
			}
		}
	}

	var body []byte
	switch {
	case chunked:
		body, err = readChunkedBody(br)
	case contentLength >= 0:
		if contentLength > maxBodySize {
			return nil, fmt.Errorf("response body too large: %d bytes", contentLength)
		}
		body = make([]byte, contentLength)
		_, err = io.ReadFull(br, body)
	default:
		body, err = io.ReadAll(io.LimitReader(br, maxBodySize))
	}
	if err != nil {
		return nil, err
	}

	return &Response{StatusCode: status, Body: body}, nil
}

func readStatusLine(br *bufio.Reader) (status int, reason string, err error) {
	line, err := readLine(br)
	if err != nil {
		return 0, "", err
	}

	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 || !strings.HasPrefix(parts[0], "HTTP/") {
		return 0, "", fmt.Errorf("malformed status line %q", line)
	}

	status, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, "", fmt.Errorf("malformed status code in %q", line)
	}
	if len(parts) == 3 {
		reason = parts[2]
	}
	return status, reason, nil
}

func readChunkedBody(br *bufio.Reader) ([]byte, error) {
	var body []byte
	for {
		line, err := readLine(br)
		if err != nil {
			return nil, err
		}
		sizeStr, _, _ := strings.Cut(line, ";")
		size, err := strconv.ParseInt(strings.TrimSpace(sizeStr), 16, 64)
		if err != nil || size < 0 {
			return nil, fmt.Errorf("bad chunk size %q", line)
		}
		if size == 0 {
			// Trailer section ends with an empty line.
			for {
				line, err := readLine(br)
				if err != nil {
					return nil, err
				}
				if line == "" {
					return body, nil
				}
			}
		}
		if int64(len(body))+size > maxBodySize {
			return nil, fmt.Errorf("chunked body too large")
		}

		chunk := make([]byte, size)
		if _, err := io.ReadFull(br, chunk); err != nil {
			return nil, err
		}
		body = append(body, chunk...)

		// Chunk data is followed by CRLF.
		if _, err := readLine(br); err != nil {
			return nil, err
		}
	}
}

func readLine(br *bufio.Reader) (string, error) {
	line, err := br.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
