package homeworks

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestLineFramer_CompleteLines(t *testing.T) {
	f := newLineFramer(0)

	lines, err := f.push([]byte("~OUTPUT,5,1,75.00\r\n~AREA,3,6,2\r\n"))
	if err != nil {
		t.Fatalf("push() error: %v", err)
	}

	want := []string{"~OUTPUT,5,1,75.00", "~AREA,3,6,2"}
	if !reflect.DeepEqual(lines, want) {
		t.Errorf("lines = %v, want %v", lines, want)
	}
	if f.pending() != 0 {
		t.Errorf("pending() = %d, want 0", f.pending())
	}
}

func TestLineFramer_PartialAcrossChunks(t *testing.T) {
	f := newLineFramer(0)

	lines, err := f.push([]byte("~OUTPUT,5"))
	if err != nil {
		t.Fatalf("push() error: %v", err)
	}
	if len(lines) != 0 {
		t.Fatalf("lines = %v, want none", lines)
	}

	lines, err = f.push([]byte(",1,75.00\r\n"))
	if err != nil {
		t.Fatalf("push() error: %v", err)
	}
	if len(lines) != 1 || lines[0] != "~OUTPUT,5,1,75.00" {
		t.Errorf("lines = %v, want one complete line", lines)
	}
}

func TestLineFramer_TerminatorSplitAcrossChunks(t *testing.T) {
	f := newLineFramer(0)

	lines, err := f.push([]byte("~OUTPUT,5,1,75.00\r"))
	if err != nil {
		t.Fatalf("push() error: %v", err)
	}
	if len(lines) != 0 {
		t.Fatalf("lines = %v, want none before LF arrives", lines)
	}

	lines, err = f.push([]byte("\n"))
	if err != nil {
		t.Fatalf("push() error: %v", err)
	}
	if len(lines) != 1 || lines[0] != "~OUTPUT,5,1,75.00" {
		t.Errorf("lines = %v, want the buffered line", lines)
	}
}

func TestLineFramer_BareLF(t *testing.T) {
	f := newLineFramer(0)

	lines, err := f.push([]byte("~OUTPUT,5,1,75.00\n"))
	if err != nil {
		t.Fatalf("push() error: %v", err)
	}
	if len(lines) != 1 || lines[0] != "~OUTPUT,5,1,75.00" {
		t.Errorf("lines = %v, want line without CR", lines)
	}
}

func TestLineFramer_OversizedLine(t *testing.T) {
	f := newLineFramer(32)

	_, err := f.push([]byte(strings.Repeat("x", 64) + "\r\n"))
	if !errors.Is(err, ErrFrameTooLong) {
		t.Fatalf("push() error = %v, want ErrFrameTooLong", err)
	}
	if f.pending() != 0 {
		t.Errorf("pending() = %d, want 0 after reset", f.pending())
	}
}

func TestLineFramer_OversizedPartial(t *testing.T) {
	f := newLineFramer(32)

	// No terminator at all: the buffer alone must trip the limit.
	_, err := f.push([]byte(strings.Repeat("x", 64)))
	if !errors.Is(err, ErrFrameTooLong) {
		t.Fatalf("push() error = %v, want ErrFrameTooLong", err)
	}
}

func TestLineFramer_GoodLinesBeforeOversized(t *testing.T) {
	f := newLineFramer(16)

	lines, err := f.push([]byte("~AREA,3,6,2\r\n" + strings.Repeat("x", 40) + "\r\n"))
	if !errors.Is(err, ErrFrameTooLong) {
		t.Fatalf("push() error = %v, want ErrFrameTooLong", err)
	}
	if len(lines) != 1 || lines[0] != "~AREA,3,6,2" {
		t.Errorf("lines = %v, want the valid line before the oversized one", lines)
	}
}

func TestLineFramer_Reset(t *testing.T) {
	f := newLineFramer(0)

	if _, err := f.push([]byte("partial")); err != nil {
		t.Fatalf("push() error: %v", err)
	}
	if f.pending() == 0 {
		t.Fatal("pending() = 0, want buffered bytes")
	}

	f.reset()
	if f.pending() != 0 {
		t.Errorf("pending() = %d after reset, want 0", f.pending())
	}

	// Stale bytes must not bleed into post-reset lines.
	lines, err := f.push([]byte("~OUTPUT,5,1,75.00\r\n"))
	if err != nil {
		t.Fatalf("push() error: %v", err)
	}
	if len(lines) != 1 || lines[0] != "~OUTPUT,5,1,75.00" {
		t.Errorf("lines = %v, want clean line after reset", lines)
	}
}
