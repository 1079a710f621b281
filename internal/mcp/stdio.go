package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/nerrad567/homeworks-core/internal/infrastructure/logging"
)

// StdioTransport runs the JSON-RPC dispatcher over newline-delimited
// JSON on an io stream pair, normally stdin/stdout. Tool hosts that
// launch local servers as subprocesses speak this framing.
type StdioTransport struct {
	dispatcher *Dispatcher
	reader     *bufio.Reader
	writer     *json.Encoder
	logger     *logging.Logger
}

// NewStdioTransport creates a stdio transport around the dispatcher.
func NewStdioTransport(dispatcher *Dispatcher, in io.Reader, out io.Writer, logger *logging.Logger) *StdioTransport {
	if logger == nil {
		logger = logging.Discard()
	}
	return &StdioTransport{
		dispatcher: dispatcher,
		reader:     bufio.NewReader(in),
		writer:     json.NewEncoder(out),
		logger:     logger,
	}
}

// readLine carries one line off the input stream, with the read error
// that ended it.
type readLine struct {
	line string
	err  error
}

// Run reads requests one line at a time until EOF or context
// cancellation. Notifications produce no output line. Malformed JSON
// yields a parse error response rather than terminating the loop.
//
// Reading happens on its own goroutine so cancellation is honoured even
// while a read is blocked. That goroutine can stay parked in Read after
// Run returns, until the host closes the input stream.
func (t *StdioTransport) Run(ctx context.Context) error {
	lines := make(chan readLine)
	go func() {
		defer close(lines)
		for {
			line, err := t.reader.ReadString('\n')
			select {
			case lines <- readLine{line: line, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		var rl readLine
		var ok bool
		select {
		case <-ctx.Done():
			return ctx.Err()
		case rl, ok = <-lines:
			if !ok {
				return nil
			}
		}

		atEOF := errors.Is(rl.err, io.EOF)
		if rl.err != nil && !atEOF {
			return rl.err
		}

		// A final line without a trailing newline still gets handled.
		if strings.TrimSpace(rl.line) == "" {
			if atEOF {
				return nil
			}
			continue
		}

		var req Request
		if uerr := json.Unmarshal([]byte(rl.line), &req); uerr != nil {
			t.write(newErrorResponse(nil, CodeParseError, "parse error: "+uerr.Error()))
		} else if resp := t.dispatcher.HandleRequest(ctx, &req); resp != nil {
			t.write(resp)
		}

		if atEOF {
			return nil
		}
	}
}

func (t *StdioTransport) write(resp *Response) {
	if err := t.writer.Encode(resp); err != nil {
		t.logger.Error("failed to write response", "error", err)
	}
}
