package homeworks

import (
	"context"
	"fmt"
	"time"
)

// Default session tuning values.
const (
	defaultCommandTimeout   = 5 * time.Second
	defaultNoResponseWindow = 200 * time.Millisecond
	defaultQueueSize        = 64
	defaultDispatchRetries  = 2
)

// sessionConfig tunes the command queue.
type sessionConfig struct {
	// commandTimeout bounds the wait for a reply, measured from Submit.
	commandTimeout time.Duration

	// noResponseWindow is the settle time for commands the processor
	// never acknowledges.
	noResponseWindow time.Duration

	// maxInFlight bounds commands awaiting replies. 1 gives strict
	// request/reply ordering.
	maxInFlight int

	// queueSize is the submission queue capacity.
	queueSize int

	// dispatchRetries is how many times a command is re-dispatched after
	// its write fails before giving up.
	dispatchRetries int
}

func (c *sessionConfig) applyDefaults() {
	if c.commandTimeout <= 0 {
		c.commandTimeout = defaultCommandTimeout
	}
	if c.noResponseWindow <= 0 {
		c.noResponseWindow = defaultNoResponseWindow
	}
	if c.maxInFlight < 1 {
		c.maxInFlight = 1
	}
	if c.queueSize <= 0 {
		c.queueSize = defaultQueueSize
	}
	if c.dispatchRetries < 0 {
		c.dispatchRetries = defaultDispatchRetries
	}
}

// submission is one queued command on its way to the wire.
type submission struct {
	p        *pendingCommand
	attempts int
}

// session serialises outgoing commands against the single connection.
//
// One dispatch loop owns all command writes (single-writer discipline).
// Submissions queue FIFO; the loop takes the next one as in-flight
// capacity frees up, registers it with the correlator, and writes it.
// Commands still queued when the connection drops simply stay queued and
// dispatch after reconnection, in original order.
type session struct {
	cfg    sessionConfig
	writer connWriter
	corr   *correlator
	stats  *stats
	logger Logger

	queue chan *submission
	slots chan struct{}
	done  *closeOnce
}

// connWriter is the slice of the client the session needs: wait for a
// usable connection, then write one command line atomically.
type connWriter interface {
	waitConnected(stop <-chan struct{}) error
	writeLine(line string) error
}

func newSession(cfg sessionConfig, writer connWriter, corr *correlator, st *stats, logger Logger) *session {
	cfg.applyDefaults()
	return &session{
		cfg:    cfg,
		writer: writer,
		corr:   corr,
		stats:  st,
		logger: logger,
		queue:  make(chan *submission, cfg.queueSize),
		slots:  make(chan struct{}, cfg.maxInFlight),
		done:   newCloseOnce(),
	}
}

func (s *session) start() {
	go s.dispatchLoop()
}

func (s *session) close() {
	s.done.Close()
}

// Submit enqueues a command and waits for its resolution.
//
// The per-command timeout runs from submission. On timeout the command's
// interest is withdrawn but a command already on the wire is not
// retracted: if the processor replies later, the correlator classifies
// the orphaned reply as an event or unknown line. Cancellation via ctx
// behaves the same way.
func (s *session) Submit(ctx context.Context, cmd *Command) (any, error) {
	p := newPendingCommand(cmd)
	sub := &submission{p: p}

	select {
	case s.queue <- sub:
	case <-s.done.Done():
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
		s.stats.errorsTotal.Add(1)
		return nil, ErrQueueFull
	}

	timer := time.NewTimer(s.cfg.commandTimeout)
	defer timer.Stop()

	select {
	case res := <-p.done:
		return res.value, res.err

	case <-timer.C:
		p.resolve(nil, ErrCommandTimeout)
		s.corr.cancel(p.key)
		s.stats.timeouts.Add(1)
		return nil, fmt.Errorf("%w after %v: %s", ErrCommandTimeout, s.cfg.commandTimeout, cmd.Format())

	case <-ctx.Done():
		p.resolve(nil, ctx.Err())
		s.corr.cancel(p.key)
		return nil, ctx.Err()

	case <-s.done.Done():
		return nil, ErrClosed
	}
}

// dispatchLoop is the single writer. It pulls submissions FIFO, waits
// for an in-flight slot, and hands each to dispatch.
func (s *session) dispatchLoop() {
	for {
		var sub *submission
		select {
		case <-s.done.Done():
			return
		case sub = <-s.queue:
		}

		// Timed out or cancelled while queued: nothing was written, skip.
		if sub.p.settled() {
			continue
		}

		select {
		case s.slots <- struct{}{}:
		case <-s.done.Done():
			return
		}

		s.dispatch(sub)
	}
}

// dispatch writes one command, retrying across reconnects up to the
// configured count. The in-flight slot is released when the command
// resolves, however that happens.
func (s *session) dispatch(sub *submission) {
	p := sub.p

	// Release the slot once the command settles (reply, error, timeout,
	// connection loss). Bounded by maxInFlight goroutines.
	go func() {
		<-p.settledCh
		<-s.slots
	}()

	for {
		if err := s.writer.waitConnected(s.done.Done()); err != nil {
			p.resolve(nil, err)
			return
		}
		if p.settled() {
			return
		}

		// Register before writing so a fast reply cannot race the
		// pending set.
		p.sentAt = time.Now()
		s.corr.register(p)

		if err := s.writer.writeLine(p.cmd.Format()); err != nil {
			s.corr.cancel(p.key)
			sub.attempts++
			s.stats.errorsTotal.Add(1)

			if sub.attempts > s.cfg.dispatchRetries {
				p.resolve(nil, fmt.Errorf("%w: dispatch failed after %d attempts: %w",
					ErrConnectionLost, sub.attempts, err))
				return
			}

			s.logger.Warn("command write failed, will retry after reconnect",
				"command", p.cmd.Format(),
				"attempt", sub.attempts,
				"error", err,
			)
			continue
		}

		s.stats.commandsSent.Add(1)

		// Commands with no acknowledgement resolve after a settle
		// window; an ~ERROR inside the window still wins because
		// resolve is first-write-only.
		if p.cmd.NoResponse() {
			key := p.key
			time.AfterFunc(s.cfg.noResponseWindow, func() {
				p.resolve(nil, nil)
				s.corr.cancel(key)
			})
		}
		return
	}
}
