package homeworks

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// lineQueueSize buffers decoded lines between the receive loop and the
// correlator loop so a burst of unsolicited events does not stall reads.
const lineQueueSize = 256

// result is the outcome of one command: a decoded value or an error.
type result struct {
	value any
	err   error
}

// pendingCommand tracks one in-flight command awaiting its reply.
//
// The completion slot (done) is written exactly once: by the correlator
// on match or failure, by the session on a no-response settle, or by the
// client on connection loss. resolve is idempotent so those paths cannot
// race each other into a double send.
type pendingCommand struct {
	key       uuid.UUID
	cmd       *Command
	sentAt    time.Time
	done      chan result
	settledCh chan struct{}
	once      sync.Once
}

func newPendingCommand(cmd *Command) *pendingCommand {
	return &pendingCommand{
		key:       uuid.New(),
		cmd:       cmd,
		done:      make(chan result, 1),
		settledCh: make(chan struct{}),
	}
}

// resolve completes the command. Only the first call has any effect.
func (p *pendingCommand) resolve(value any, err error) {
	p.once.Do(func() {
		p.done <- result{value: value, err: err}
		close(p.settledCh)
	})
}

// settled reports whether the command has already been resolved.
func (p *pendingCommand) settled() bool {
	select {
	case <-p.settledCh:
		return true
	default:
		return false
	}
}

// correlator owns the pending-command set and classifies every decoded
// line as either a reply to an outstanding command or an unsolicited
// event.
//
// Exactly one goroutine (run) mutates the pending set; all other
// components talk to it through channels. This keeps the central hazard
// of the protocol, solicited and unsolicited lines interleaved on one
// stream, inside a single classification loop.
//
// Tie-break: when several pending commands could structurally match the
// same line, the oldest-sent wins. The processor replies in send order on
// a single connection, so FIFO resolution preserves correctness for the
// grammar's ambiguous cases (two queries against the same address).
type correlator struct {
	registry *Registry
	stats    *stats
	logger   Logger

	registerCh chan *pendingCommand
	cancelCh   chan uuid.UUID
	lineCh     chan Line
	failCh     chan error

	done *closeOnce
}

func newCorrelator(registry *Registry, st *stats, logger Logger) *correlator {
	return &correlator{
		registry:   registry,
		stats:      st,
		logger:     logger,
		registerCh: make(chan *pendingCommand),
		cancelCh:   make(chan uuid.UUID),
		lineCh:     make(chan Line, lineQueueSize),
		failCh:     make(chan error),
		done:       newCloseOnce(),
	}
}

// register adds a command to the pending set before its bytes hit the
// wire, so a fast reply cannot arrive unmatched.
func (c *correlator) register(p *pendingCommand) {
	select {
	case c.registerCh <- p:
	case <-c.done.Done():
		p.resolve(nil, ErrClosed)
	}
}

// cancel withdraws interest in a pending command (timeout, caller
// cancellation, no-response settle). A reply that arrives afterwards is
// classified like any other unmatched line.
func (c *correlator) cancel(key uuid.UUID) {
	select {
	case c.cancelCh <- key:
	case <-c.done.Done():
	}
}

// offer hands a decoded line to the classification loop.
func (c *correlator) offer(line Line) {
	select {
	case c.lineCh <- line:
	case <-c.done.Done():
	}
}

// failAll fails every pending command with err. Called on connection loss.
func (c *correlator) failAll(err error) {
	select {
	case c.failCh <- err:
	case <-c.done.Done():
	}
}

func (c *correlator) close() {
	c.done.Close()
}

// run is the classification loop. It is the only goroutine that touches
// the pending slice.
func (c *correlator) run() {
	var pending []*pendingCommand

	for {
		select {
		case <-c.done.Done():
			for _, p := range pending {
				p.resolve(nil, ErrClosed)
			}
			return

		case p := <-c.registerCh:
			pending = append(pending, p)

		case key := <-c.cancelCh:
			for i, p := range pending {
				if p.key == key {
					pending = append(pending[:i], pending[i+1:]...)
					break
				}
			}

		case err := <-c.failCh:
			for _, p := range pending {
				p.resolve(nil, err)
			}
			pending = pending[:0]

		case line := <-c.lineCh:
			pending = c.classify(line, pending)
		}
	}
}

// classify routes one line: reply resolution, error resolution, event
// fan-out, or unknown. Returns the updated pending set.
func (c *correlator) classify(line Line, pending []*pendingCommand) []*pendingCommand {
	switch line.Class {
	case LineEmpty, LinePrompt:
		return pending

	case LineResponse:
		if line.Command == FamilyError {
			return c.resolveError(line, pending)
		}
		return c.resolveReply(line, pending)

	default: // LineUnknown
		return c.resolveRawLine(line, pending)
	}
}

// resolveReply matches a ~-line against the pending set in FIFO order.
// No match means the line is an unsolicited event.
func (c *correlator) resolveReply(line Line, pending []*pendingCommand) []*pendingCommand {
	for i, p := range pending {
		payload, ok := p.cmd.Matches(line)
		if !ok {
			continue
		}

		value, err := p.cmd.decode(payload)
		p.resolve(value, err)
		c.stats.repliesMatched.Add(1)
		return append(pending[:i], pending[i+1:]...)
	}

	c.stats.eventsRx.Add(1)
	c.registry.Publish(Event{
		Command:   line.Command,
		Fields:    line.Fields,
		Raw:       strings.TrimSpace(line.Raw),
		Timestamp: time.Now(),
	})
	return pending
}

// resolveError fails the oldest pending command with the processor's
// error code. The processor reports errors without naming the offending
// command, so send-order FIFO is the only association available.
func (c *correlator) resolveError(line Line, pending []*pendingCommand) []*pendingCommand {
	code := 0
	if len(line.Fields) > 0 {
		if v, err := strconv.Atoi(line.Fields[0]); err == nil {
			code = v
		}
	}

	if len(pending) == 0 {
		c.logger.Warn("processor error with no pending command", "code", code, "line", strings.TrimSpace(line.Raw))
		c.registry.Publish(Event{
			Command:   FamilyError,
			Fields:    line.Fields,
			Raw:       strings.TrimSpace(line.Raw),
			Timestamp: time.Now(),
		})
		return pending
	}

	p := pending[0]
	p.resolve(nil, &CommandError{Code: code, Command: p.cmd.Format()})
	return pending[1:]
}

// resolveRawLine handles lines with no recognised shape. A pending
// command that claims bare text (OS revision) takes the oldest match;
// otherwise the line is surfaced to observers and discarded.
func (c *correlator) resolveRawLine(line Line, pending []*pendingCommand) []*pendingCommand {
	for i, p := range pending {
		if !p.cmd.matchesAnyLine() {
			continue
		}

		value, err := p.cmd.decode([]string{strings.TrimSpace(line.Raw)})
		p.resolve(value, err)
		c.stats.repliesMatched.Add(1)
		return append(pending[:i], pending[i+1:]...)
	}

	c.stats.unknownLines.Add(1)
	c.logger.Debug("unclassified line", "line", strings.TrimSpace(line.Raw))
	c.registry.Publish(Event{
		Raw:       strings.TrimSpace(line.Raw),
		Timestamp: time.Now(),
	})
	return pending
}
