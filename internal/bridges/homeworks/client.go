package homeworks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Connection handshake and transport tuning.
const (
	// defaultPort is the processor's telnet integration port.
	defaultPort = 23

	// defaultLoginTimeout bounds the full login handshake, prompt included.
	defaultLoginTimeout = 10 * time.Second

	// defaultDialTimeout bounds a single TCP connection attempt.
	defaultDialTimeout = 5 * time.Second

	// defaultKeepaliveInterval is how often an empty line is written to
	// keep the telnet session from idling out.
	defaultKeepaliveInterval = 60 * time.Second

	// defaultReconnectInitialDelay and defaultReconnectMaxDelay bound the
	// exponential backoff between reconnection attempts.
	defaultReconnectInitialDelay = 250 * time.Millisecond
	defaultReconnectMaxDelay     = 60 * time.Second

	// writeTimeout bounds a single line write. The processor reads
	// commands promptly; a stalled write means the connection is gone.
	writeTimeout = 5 * time.Second

	// loginPromptUser and loginPromptPassword are the telnet handshake
	// prompts. The processor emits them without a line terminator.
	loginPromptUser     = "login: "
	loginPromptPassword = "password: "

	// loginRejected appears when the processor refuses the credentials.
	loginRejected = "bad login"

	// loginBufferLimit caps handshake buffering. The prompts are tiny;
	// anything past this is not a login sequence.
	loginBufferLimit = 4096

	// readChunkSize is the receive loop's read buffer size.
	readChunkSize = 4096
)

// Logger defines the logging interface for the processor client.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// closeOnce is a shutdown signal that tolerates repeated Close calls.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// stats holds the client's internal counters. All fields are atomic so
// the receive loop, correlator, session and API snapshots never contend.
type stats struct {
	commandsSent   atomic.Uint64
	repliesMatched atomic.Uint64
	timeouts       atomic.Uint64
	reconnects     atomic.Uint64
	eventsRx       atomic.Uint64
	unknownLines   atomic.Uint64
	errorsTotal    atomic.Uint64
	lastActivity   atomic.Int64 // unix nanos of last byte received
}

// Stats is a point-in-time snapshot of client counters.
type Stats struct {
	Connected      bool      `json:"connected"`
	CommandsSent   uint64    `json:"commands_sent"`
	RepliesMatched uint64    `json:"replies_matched"`
	Timeouts       uint64    `json:"timeouts"`
	Reconnects     uint64    `json:"reconnects"`
	EventsReceived uint64    `json:"events_received"`
	UnknownLines   uint64    `json:"unknown_lines"`
	ErrorsTotal    uint64    `json:"errors_total"`
	EventOverruns  uint64    `json:"event_overruns"`
	Subscribers    int       `json:"subscribers"`
	LastActivity   time.Time `json:"last_activity,omitzero"`
}

// Config holds the connection settings for one processor.
type Config struct {
	// Host is the processor's address. Required.
	Host string

	// Port is the telnet integration port. Zero means 23.
	Port int

	// Username and Password are the integration credentials. An empty
	// Username skips the login handshake entirely, for processors with
	// authentication disabled.
	Username string
	Password string

	// LoginTimeout bounds the handshake from TCP connect to the first
	// command prompt.
	LoginTimeout time.Duration

	// DialTimeout bounds a single TCP connection attempt.
	DialTimeout time.Duration

	// CommandTimeout bounds the wait for a command's reply.
	CommandTimeout time.Duration

	// NoResponseWindow is the settle time for commands the processor
	// never acknowledges.
	NoResponseWindow time.Duration

	// MaxInFlight bounds commands awaiting replies. Zero means 1, which
	// gives strict request/reply ordering.
	MaxInFlight int

	// QueueSize is the submission queue capacity.
	QueueSize int

	// DispatchRetries is how many times a command is re-dispatched after
	// its write fails before giving up.
	DispatchRetries int

	// MaxLineLength bounds a single received protocol line.
	MaxLineLength int

	// KeepaliveInterval is how often an empty line is written while
	// connected. Negative disables keepalives; zero means the default.
	KeepaliveInterval time.Duration

	// ReconnectInitialDelay and ReconnectMaxDelay bound the exponential
	// backoff between reconnection attempts.
	ReconnectInitialDelay time.Duration
	ReconnectMaxDelay     time.Duration

	// EventBuffer is the per-subscriber event buffer size.
	EventBuffer int
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.LoginTimeout <= 0 {
		c.LoginTimeout = defaultLoginTimeout
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = defaultDialTimeout
	}
	if c.KeepaliveInterval == 0 {
		c.KeepaliveInterval = defaultKeepaliveInterval
	}
	if c.ReconnectInitialDelay <= 0 {
		c.ReconnectInitialDelay = defaultReconnectInitialDelay
	}
	if c.ReconnectMaxDelay <= 0 {
		c.ReconnectMaxDelay = defaultReconnectMaxDelay
	}
}

func (c *Config) address() string {
	return net.JoinHostPort(c.Host, fmt.Sprintf("%d", c.Port))
}

// Client is a connection to one Homeworks processor.
//
// It owns the TCP session, the login handshake, the receive loop feeding
// the correlator, keepalives, and reconnection with exponential backoff.
// Commands go out through Submit; unsolicited events come back through
// Subscribe. Both remain usable across reconnections: in-flight commands
// fail on a drop, queued ones dispatch again once the session is back.
type Client struct {
	cfg      Config
	logger   Logger
	registry *Registry
	stats    stats
	corr     *correlator
	sess     *session

	// mu guards conn and connectedCh. connectedCh is closed while a
	// logged-in connection is up and replaced with a fresh channel on
	// loss, so waiters block until the next session is ready.
	mu          sync.Mutex
	conn        net.Conn
	connectedCh chan struct{}

	// writeMu serialises raw line writes so keepalives cannot interleave
	// with command bytes.
	writeMu sync.Mutex

	done *closeOnce
	wg   sync.WaitGroup
}

// New creates a client for the given processor. Start must be called
// before commands can be submitted.
func New(cfg Config, logger Logger) (*Client, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("%w: host is required", ErrInvalidArgument)
	}
	cfg.applyDefaults()

	if logger == nil {
		logger = noopLogger{}
	}

	c := &Client{
		cfg:         cfg,
		logger:      logger,
		registry:    NewRegistry(cfg.EventBuffer),
		connectedCh: make(chan struct{}),
		done:        newCloseOnce(),
	}
	c.corr = newCorrelator(c.registry, &c.stats, logger)
	c.sess = newSession(sessionConfig{
		commandTimeout:   cfg.CommandTimeout,
		noResponseWindow: cfg.NoResponseWindow,
		maxInFlight:      cfg.MaxInFlight,
		queueSize:        cfg.QueueSize,
		dispatchRetries:  cfg.DispatchRetries,
	}, c, c.corr, &c.stats, logger)

	return c, nil
}

// Start connects to the processor and launches the background loops.
// It blocks until the first login handshake completes, so a caller that
// gets nil back has a working session.
//
// Credential rejection is terminal: the processor will refuse the same
// credentials forever, so Start fails with ErrLoginFailed instead of
// retrying.
func (c *Client) Start(ctx context.Context) error {
	conn, err := c.connect(ctx)
	if err != nil {
		return err
	}
	c.setConn(conn)

	go c.corr.run()
	c.sess.start()

	c.wg.Add(1)
	go c.runLoop(ctx, conn)

	if c.cfg.KeepaliveInterval > 0 {
		c.wg.Add(1)
		go c.keepaliveLoop()
	}

	c.logger.Info("processor connected",
		"address", c.cfg.address(),
		"authenticated", c.cfg.Username != "",
	)
	return nil
}

// Close shuts the client down. In-flight and queued commands fail with
// ErrClosed; subscriber channels are closed. Close is idempotent.
func (c *Client) Close() error {
	c.done.Close()
	c.sess.close()
	c.corr.close()

	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}

	c.wg.Wait()
	c.registry.Close()
	return nil
}

// Submit sends a command and waits for its decoded reply, an error from
// the processor, a timeout, or cancellation.
func (c *Client) Submit(ctx context.Context, cmd *Command) (any, error) {
	if cmd == nil {
		return nil, fmt.Errorf("%w: nil command", ErrInvalidArgument)
	}
	return c.sess.Submit(ctx, cmd)
}

// Subscribe registers a listener for unsolicited events. A nil filter
// matches every event.
func (c *Client) Subscribe(filter Filter) *Subscription {
	return c.registry.Subscribe(filter)
}

// Registry exposes the event registry for components that fan events
// out elsewhere, such as the MQTT republisher.
func (c *Client) Registry() *Registry {
	return c.registry
}

// Unsubscribe removes a subscription and closes its channel.
func (c *Client) Unsubscribe(sub *Subscription) {
	if sub != nil {
		c.registry.Unsubscribe(sub.ID())
	}
}

// IsConnected reports whether a logged-in session is currently up.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Stats returns a snapshot of the client's counters.
func (c *Client) Stats() Stats {
	s := Stats{
		Connected:      c.IsConnected(),
		CommandsSent:   c.stats.commandsSent.Load(),
		RepliesMatched: c.stats.repliesMatched.Load(),
		Timeouts:       c.stats.timeouts.Load(),
		Reconnects:     c.stats.reconnects.Load(),
		EventsReceived: c.stats.eventsRx.Load(),
		UnknownLines:   c.stats.unknownLines.Load(),
		ErrorsTotal:    c.stats.errorsTotal.Load(),
		EventOverruns:  c.registry.Overruns(),
		Subscribers:    c.registry.Count(),
	}
	if ns := c.stats.lastActivity.Load(); ns > 0 {
		s.LastActivity = time.Unix(0, ns)
	}
	return s
}

// connect dials the processor and completes the login handshake.
func (c *Client) connect(ctx context.Context) (net.Conn, error) {
	dialer := net.Dialer{Timeout: c.cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.cfg.address())
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, c.cfg.address(), err)
	}

	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetKeepAlive(true)
		_ = tcp.SetNoDelay(true)
	}

	if err := c.login(conn); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return conn, nil
}

// login runs the telnet credential handshake. The processor prompts
// "login: " and "password: " without line terminators, then either
// reports "bad login" or settles at the command prompt.
func (c *Client) login(conn net.Conn) error {
	if c.cfg.Username == "" {
		return nil
	}

	if err := conn.SetDeadline(time.Now().Add(c.cfg.LoginTimeout)); err != nil {
		return fmt.Errorf("%w: set deadline: %w", ErrConnectionFailed, err)
	}

	if _, err := readUntil(conn, loginPromptUser); err != nil {
		return fmt.Errorf("%w: waiting for login prompt: %w", ErrLoginFailed, err)
	}
	if _, err := conn.Write([]byte(c.cfg.Username + LineTerminator)); err != nil {
		return fmt.Errorf("%w: sending username: %w", ErrConnectionFailed, err)
	}

	if _, err := readUntil(conn, loginPromptPassword); err != nil {
		return fmt.Errorf("%w: waiting for password prompt: %w", ErrLoginFailed, err)
	}
	if _, err := conn.Write([]byte(c.cfg.Password + LineTerminator)); err != nil {
		return fmt.Errorf("%w: sending password: %w", ErrConnectionFailed, err)
	}

	matched, err := readUntil(conn, Prompt, loginRejected)
	if err != nil {
		return fmt.Errorf("%w: waiting for command prompt: %w", ErrLoginFailed, err)
	}
	if matched == loginRejected {
		return fmt.Errorf("%w: credentials rejected for %q", ErrLoginFailed, c.cfg.Username)
	}

	// Clear the handshake deadline; the receive loop manages its own.
	if err := conn.SetDeadline(time.Time{}); err != nil {
		return fmt.Errorf("%w: clear deadline: %w", ErrConnectionFailed, err)
	}

	return nil
}

// readUntil reads from conn until one of the tokens appears in the
// accumulated stream, returning the token that matched. Matching is
// case-insensitive since firmware varies the prompt casing.
func readUntil(conn net.Conn, tokens ...string) (string, error) {
	var buf bytes.Buffer
	chunk := make([]byte, 256)

	for {
		n, err := conn.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			have := strings.ToLower(buf.String())
			for _, tok := range tokens {
				if strings.Contains(have, strings.ToLower(tok)) {
					return tok, nil
				}
			}
			if buf.Len() > loginBufferLimit {
				return "", fmt.Errorf("no prompt within %d bytes", buf.Len())
			}
		}
		if err != nil {
			return "", err
		}
	}
}

// setConn installs a live connection and releases waitConnected waiters.
func (c *Client) setConn(conn net.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = conn
	close(c.connectedCh)
}

// dropConn tears down the current connection and resets the connected
// gate so waiters block until the next session is up.
func (c *Client) dropConn() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.connectedCh = make(chan struct{})
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
}

// waitConnected blocks until a logged-in session is up, the stop channel
// fires, or the client closes.
func (c *Client) waitConnected(stop <-chan struct{}) error {
	c.mu.Lock()
	ch := c.connectedCh
	c.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-stop:
		return ErrClosed
	case <-c.done.Done():
		return ErrClosed
	}
}

// writeLine sends one protocol line. Writes are serialised so command
// bytes and keepalives never interleave on the wire.
func (c *Client) writeLine(line string) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("%w: set write deadline: %w", ErrConnectionLost, err)
	}
	if _, err := conn.Write([]byte(line + LineTerminator)); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionLost, err)
	}
	return nil
}

// runLoop drives the connection lifecycle: receive until the session
// drops, fail what was in flight, reconnect with backoff, repeat.
func (c *Client) runLoop(ctx context.Context, conn net.Conn) {
	defer c.wg.Done()

	for {
		err := c.receiveLoop(conn)

		c.dropConn()
		c.corr.failAll(ErrConnectionLost)

		select {
		case <-c.done.Done():
			return
		case <-ctx.Done():
			c.done.Close()
			return
		default:
		}

		c.stats.errorsTotal.Add(1)
		c.logger.Warn("processor connection lost", "address", c.cfg.address(), "error", err)

		conn = c.reconnect(ctx)
		if conn == nil {
			return
		}
		c.setConn(conn)
		c.logger.Info("processor reconnected", "address", c.cfg.address())
	}
}

// receiveLoop reads the stream, frames it into lines and feeds the
// correlator. Returns when the connection errors or framing breaks.
func (c *Client) receiveLoop(conn net.Conn) error {
	framer := newLineFramer(c.cfg.MaxLineLength)
	buf := make([]byte, readChunkSize)

	for {
		n, err := conn.Read(buf)
		if n > 0 {
			c.stats.lastActivity.Store(time.Now().UnixNano())

			lines, ferr := framer.push(buf[:n])
			for _, raw := range lines {
				c.corr.offer(ParseLine(raw))
			}
			if ferr != nil {
				// Framing can no longer be trusted; force a reconnect.
				return ferr
			}
		}
		if err != nil {
			return err
		}
	}
}

// reconnect retries the connection with exponential backoff and jitter
// until it succeeds, the client closes, or login is rejected outright.
func (c *Client) reconnect(ctx context.Context) net.Conn {
	delay := c.cfg.ReconnectInitialDelay

	for attempt := 1; ; attempt++ {
		select {
		case <-c.done.Done():
			return nil
		case <-ctx.Done():
			c.done.Close()
			return nil
		default:
		}

		c.stats.reconnects.Add(1)
		conn, err := c.connect(ctx)
		if err == nil {
			return conn
		}

		if errors.Is(err, ErrLoginFailed) {
			c.logger.Error("login rejected during reconnect, giving up", "error", err)
			c.done.Close()
			c.sess.close()
			c.corr.close()
			return nil
		}

		// Half-jittered backoff so a fleet of clients does not hammer
		// the processor in lockstep after an outage.
		sleep := delay/2 + time.Duration(rand.Int63n(int64(delay/2+1)))
		c.logger.Debug("reconnect attempt failed",
			"attempt", attempt,
			"retry_in", sleep,
			"error", err,
		)

		select {
		case <-time.After(sleep):
		case <-c.done.Done():
			return nil
		case <-ctx.Done():
			c.done.Close()
			return nil
		}

		delay *= 2
		if delay > c.cfg.ReconnectMaxDelay {
			delay = c.cfg.ReconnectMaxDelay
		}
	}
}

// keepaliveLoop writes an empty line periodically so the processor's
// telnet session does not idle out. The processor answers with a bare
// prompt, which the correlator discards.
func (c *Client) keepaliveLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.KeepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done.Done():
			return
		case <-ticker.C:
			if !c.IsConnected() {
				continue
			}
			if err := c.writeLine(""); err != nil {
				c.logger.Debug("keepalive write failed", "error", err)
			}
		}
	}
}
