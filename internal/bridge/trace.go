package bridge

import (
	"fmt"
	"os"
	"sync"
)

// Trace appends one line per record to a file. It is a best-effort debugging
// aid, not a durable log: the file is opened lazily and reopened after a
// failed write.
type Trace struct {
	path string

	mu sync.Mutex
	f  *os.File
}

// NewTrace returns a trace writing to path. The file is created on the first
// Append if it does not exist.
func NewTrace(path string) *Trace {
	return &Trace{path: path}
}

// Append writes line followed by a newline.
func (t *Trace) Append(line []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.f == nil {
		f, err := os.OpenFile(t.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open trace: %w", err)
		}
		t.f = f
	}

	buf := make([]byte, 0, len(line)+1)
	buf = append(buf, line...)
	buf = append(buf, '\n')

	if _, err := t.f.Write(buf); err != nil {
		t.f.Close()
		t.f = nil
		return fmt.Errorf("write trace: %w", err)
	}
	return nil
}

// Close closes the file if it is open.
func (t *Trace) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.f == nil {
		return nil
	}
	err := t.f.Close()
	t.f = nil
	return err
}
