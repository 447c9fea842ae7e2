package modem_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	gomock "go.uber.org/mock/gomock"

	"i4.energy/across/sim868/modem"
)

type MockSequenceBuilder struct {
	port  *modem.MockPort
	calls []any
}

func NewMockSequence(port *modem.MockPort) *MockSequenceBuilder {
	return &MockSequenceBuilder{
		port:  port,
		calls: []any{},
	}
}

// Exchange expects one command frame and answers it with resp.
func (b *MockSequenceBuilder) Exchange(frame, resp string) *MockSequenceBuilder {
	b.calls = append(b.calls,
		b.port.EXPECT().ResetOutputBuffer().Return(nil),
		b.port.EXPECT().ResetInputBuffer().Return(nil),
		b.port.EXPECT().Write([]byte(frame)).Return(len(frame), nil),
		b.port.EXPECT().Drain().Return(nil),
	)
	if resp != "" {
		b.calls = append(b.calls,
			b.port.EXPECT().Read(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
				return copy(p, resp), nil
			}),
		)
	}
	b.calls = append(b.calls, b.port.EXPECT().Read(gomock.Any()).Return(0, nil))
	return b
}

// EchoSilent is the power probe of a module that is off.
func (b *MockSequenceBuilder) EchoSilent() *MockSequenceBuilder {
	return b.Exchange("AT\r", "")
}

// EchoOK is the power probe of a module that is on.
func (b *MockSequenceBuilder) EchoOK() *MockSequenceBuilder {
	return b.Exchange("AT\r", "AT\r\nOK\r\n")
}

func (b *MockSequenceBuilder) Build() []any {
	return b.calls
}

// sleepLog records waits instead of sleeping.
type sleepLog struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (s *sleepLog) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sleeps = append(s.sleeps, d)
	return ctx.Err()
}

func (s *sleepLog) Durations() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.sleeps...)
}

func (s *sleepLog) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sleeps = nil
}

// pinLog records the power pin levels.
type pinLog struct {
	mu     sync.Mutex
	levels []bool
}

func (p *pinLog) High() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.levels = append(p.levels, true)
	return nil
}

func (p *pinLog) Low() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.levels = append(p.levels, false)
	return nil
}

func (p *pinLog) Pulses() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.levels) / 2
}

// newTestModem builds a Modem over a TestPort whose module is off at
// construction. Waits are recorded, not slept.
func newTestModem(t *testing.T, port *modem.TestPort) (*modem.Modem, *sleepLog, *pinLog) {
	t.Helper()

	sleeps := &sleepLog{}
	pin := &pinLog{}
	config, err := modem.NewConfigBuilder().
		WithDialer(modem.TestDialer{Port: port}).
		WithPowerPin(pin).
		WithSleeper(sleeps).
		Build()
	require.NoError(t, err)

	m, err := modem.New(context.Background(), config)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })

	sleeps.Reset()
	return m, sleeps, pin
}

func seconds(units ...float64) []time.Duration {
	out := make([]time.Duration, len(units))
	for i, u := range units {
		out[i] = time.Duration(u * float64(time.Second))
	}
	return out
}
