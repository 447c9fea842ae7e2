package modem

import (
	"context"
	"strings"
	"sync"
)

// TestPort is a scripted Port for tests. Replies are queued per command
// and released into the receive buffer when the command is written, the
// way the module answers after a request. Reads return buffered bytes and
// then report an idle line.
type TestPort struct {
	mu       sync.Mutex
	replies  map[string][]string
	pending  []byte
	writes   []string
	drainErr error
	closed   bool
}

// NewTestPort creates a new test port.
func NewTestPort() *TestPort {
	return &TestPort{replies: make(map[string][]string)}
}

// Reply queues responses for a command written without its terminator.
// Each write of the command consumes one response; the last one repeats.
func (t *TestPort) Reply(cmd string, responses ...string) *TestPort {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.replies[cmd] = append(t.replies[cmd], responses...)
	return t
}

// SendData queues data that arrives without a request, such as an
// unsolicited notification.
func (t *TestPort) SendData(data string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = append(t.pending, data...)
}

// FailDrain makes every following Drain return err.
func (t *TestPort) FailDrain(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.drainErr = err
}

// Writes returns every written frame with its trailing CR and LF trimmed.
// Embedded line breaks are kept.
func (t *TestPort) Writes() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.writes...)
}

// Count returns how many times cmd was written.
func (t *TestPort) Count(cmd string) int {
	n := 0
	for _, w := range t.Writes() {
		if w == cmd {
			n++
		}
	}
	return n
}

// Closed reports whether Close was called.
func (t *TestPort) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *TestPort) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cmd := strings.TrimRight(string(p), "\r\n")
	t.writes = append(t.writes, cmd)

	queue := t.replies[cmd]
	if len(queue) > 0 {
		t.pending = append(t.pending, queue[0]...)
		if len(queue) > 1 {
			t.replies[cmd] = queue[1:]
		}
	}
	return len(p), nil
}

func (t *TestPort) Read(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := copy(p, t.pending)
	t.pending = t.pending[n:]
	return n, nil
}

func (t *TestPort) ResetInputBuffer() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = nil
	return nil
}

func (t *TestPort) ResetOutputBuffer() error {
	return nil
}

func (t *TestPort) Drain() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.drainErr
}

func (t *TestPort) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// TestDialer hands out a prepared Port.
type TestDialer struct {
	Port Port
	Err  error
}

func (d TestDialer) Dial(_ context.Context) (Port, error) {
	return d.Port, d.Err
}
