package homeworks

import (
	"strings"
	"time"
)

// Protocol framing constants for the Homeworks integration protocol.
const (
	// Prompt is printed by the processor when it is ready for a command.
	Prompt = "QNET>"

	// LineTerminator ends every protocol line.
	LineTerminator = "\r\n"

	// QueryPrefix starts a read command (e.g. "?OUTPUT,5,1").
	QueryPrefix = "?"

	// ExecutePrefix starts a write command (e.g. "#OUTPUT,5,1,75").
	ExecutePrefix = "#"

	// ResponsePrefix starts every reply and unsolicited event line.
	ResponsePrefix = "~"
)

// LineClass classifies a decoded protocol line.
type LineClass int

// Line classifications.
const (
	// LineEmpty is a blank line; the processor pads output with them.
	LineEmpty LineClass = iota

	// LinePrompt is the command-ready prompt.
	LinePrompt

	// LineResponse is a ~-prefixed line: either a reply to a pending
	// command or an unsolicited event. Which of the two it is can only be
	// decided against the pending set.
	LineResponse

	// LineUnknown is anything else. Not an error: some commands (OS
	// revision) answer with bare text, and the processor occasionally
	// emits chatter.
	LineUnknown
)

// Line is a single decoded protocol line.
//
// For LineResponse, Command holds the reporting command family (e.g.
// "OUTPUT", "DEVICE", "ERROR") and Fields the comma-separated values after
// it. Lines are ephemeral: the correlator consumes them immediately.
type Line struct {
	Raw     string
	Class   LineClass
	Command string
	Fields  []string
}

// ParseLine decodes a raw protocol line.
//
// The terminator must already be stripped (the framer does this). The
// prompt has no terminator of its own, so it can arrive glued to the
// front of a response ("QNET> ~OUTPUT,5,1,75.00"); leading prompts are
// stripped before classification. Classification never fails.
func ParseLine(raw string) Line {
	trimmed := strings.TrimSpace(raw)

	sawPrompt := false
	for strings.HasPrefix(trimmed, Prompt) {
		sawPrompt = true
		trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, Prompt))
	}

	if trimmed == "" {
		if sawPrompt {
			return Line{Raw: raw, Class: LinePrompt}
		}
		return Line{Raw: raw, Class: LineEmpty}
	}

	if !strings.HasPrefix(trimmed, ResponsePrefix) {
		return Line{Raw: raw, Class: LineUnknown}
	}

	parts := strings.Split(trimmed[len(ResponsePrefix):], ",")
	return Line{
		Raw:     raw,
		Class:   LineResponse,
		Command: parts[0],
		Fields:  parts[1:],
	}
}

// Event is an unsolicited protocol line delivered to subscribers.
//
// Command is empty for lines that match no known shape (LineUnknown);
// such lines are surfaced for observability and carry only Raw.
type Event struct {
	Command   string
	Fields    []string
	Raw       string
	Timestamp time.Time
}

// IID returns the integration ID the event refers to, which by protocol
// convention is the first field. Returns empty string if absent.
func (e Event) IID() string {
	if len(e.Fields) == 0 {
		return ""
	}
	return e.Fields[0]
}
