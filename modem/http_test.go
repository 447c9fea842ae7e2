package modem_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"i4.energy/across/sim868/modem"
)

func TestInitializeHTTPSession(t *testing.T) {
	ctx := context.Background()

	t.Run("APN only", func(t *testing.T) {
		port := modem.NewTestPort()
		m, _, _ := newTestModem(t, port)

		require.NoError(t, m.InitializeHTTPSession(ctx, modem.BearerConfig{APN: "internet"}))
		assert.Equal(t, []string{
			"AT",
			`AT+SAPBR=3,1,"CONTYPE","GPRS"`,
			`AT+SAPBR=3,1,"APN","internet"`,
			"AT+SAPBR=2,1",
			"AT+SAPBR=1,1",
			"AT+HTTPINIT",
			"AT+HTTPSSL=1",
			`AT+HTTPPARA="CID",1`,
		}, port.Writes())
	})

	t.Run("Address and credentials", func(t *testing.T) {
		port := modem.NewTestPort()
		m, _, _ := newTestModem(t, port)

		require.NoError(t, m.InitializeHTTPSession(ctx, modem.BearerConfig{
			APN:      "pp.vodafone.co.uk",
			Address:  "10.0.0.1",
			User:     "wap",
			Password: "secret",
		}))
		writes := port.Writes()
		assert.Contains(t, writes, `AT+SAPBR=3,1,"APN","10.0.0.1"`)
		assert.Contains(t, writes, `AT+SAPBR=3,1,"USER","wap"`)
		assert.Contains(t, writes, `AT+SAPBR=3,1,"PWD","secret"`)
	})
}

func TestHTTPRejectsUnquotableParameters(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		call func(m *modem.Modem) error
	}{
		{name: "APN with quote", call: func(m *modem.Modem) error {
			return m.InitializeHTTPSession(ctx, modem.BearerConfig{APN: `internet","x`})
		}},
		{name: "Password with CR", call: func(m *modem.Modem) error {
			return m.InitializeHTTPSession(ctx, modem.BearerConfig{APN: "internet", Password: "pw\rAT+CGNSPWR=0"})
		}},
		{name: "POST url with quote", call: func(m *modem.Modem) error {
			_, err := m.HTTPPost(ctx, `https://example.com/"`, "{}")
			return err
		}},
		{name: "GET url with LF", call: func(m *modem.Modem) error {
			_, err := m.HTTPGet(ctx, "https://example.com/\nAT")
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			port := modem.NewTestPort()
			m, _, _ := newTestModem(t, port)

			assert.ErrorIs(t, tt.call(m), modem.ErrInvalidParameter)
			assert.Equal(t, []string{"AT"}, port.Writes())
		})
	}
}

func TestHTTPPost(t *testing.T) {
	ctx := context.Background()
	const url = "https://example.com/track"
	const body = `{"latitude":"50.1"}`

	t.Run("Upload, action, read, terminate", func(t *testing.T) {
		port := modem.NewTestPort()
		m, sleeps, _ := newTestModem(t, port)
		require.NoError(t, m.InitializeHTTPSession(ctx, modem.BearerConfig{APN: "internet"}))
		sleeps.Reset()
		before := len(port.Writes())

		port.Reply("AT+HTTPDATA=19,10000", "AT+HTTPDATA=19,10000\r\nDOWNLOAD\r\n")
		port.Reply("AT+HTTPREAD", "AT+HTTPREAD\r\r\n+HTTPREAD: 2\r\nok\r\nOK\r\n")

		resp, err := m.HTTPPost(ctx, url, body)
		require.NoError(t, err)
		assert.Contains(t, resp, "+HTTPREAD: 2")

		assert.Equal(t, []string{
			`AT+HTTPPARA="URL","https://example.com/track"`,
			`AT+HTTPPARA="CONTENT","application/json"`,
			"AT+HTTPDATA=19,10000",
			body + "\x1a",
			"AT+HTTPACTION=1",
			"AT+HTTPREAD",
			"AT+HTTPTERM",
		}, port.Writes()[before:])
		assert.Equal(t, seconds(1, 1, 1, 1, 3, 11, 3, 1), sleeps.Durations())
	})

	t.Run("Terminated service is reopened", func(t *testing.T) {
		port := modem.NewTestPort()
		m, _, _ := newTestModem(t, port)
		require.NoError(t, m.InitializeHTTPSession(ctx, modem.BearerConfig{APN: "internet"}))

		_, err := m.HTTPPost(ctx, url, body)
		require.NoError(t, err)
		_, err = m.HTTPPost(ctx, url, body)
		require.NoError(t, err)

		assert.Equal(t, 2, port.Count("AT+HTTPINIT"))
		assert.Equal(t, 1, port.Count("AT+SAPBR=1,1"))
		assert.Equal(t, 2, port.Count("AT+HTTPTERM"))
	})

	t.Run("Transport failure still terminates", func(t *testing.T) {
		port := modem.NewTestPort()
		m, _, _ := newTestModem(t, port)
		require.NoError(t, m.InitializeHTTPSession(ctx, modem.BearerConfig{APN: "internet"}))
		port.FailDrain(assert.AnError)

		_, err := m.HTTPPost(ctx, url, body)
		assert.ErrorIs(t, err, modem.ErrTransportNotReady)
		assert.Equal(t, 1, port.Count("AT+HTTPTERM"))
	})
}

func TestHTTPGet(t *testing.T) {
	port := modem.NewTestPort()
	m, _, _ := newTestModem(t, port)
	port.Reply("AT+HTTPREAD", "AT+HTTPREAD\r\n+HTTPREAD: 0\r\n")

	resp, err := m.HTTPGet(context.Background(), "http://example.com")
	require.NoError(t, err)
	assert.Equal(t, "+HTTPREAD: 0", resp)
	assert.Equal(t, 1, port.Count("AT+HTTPACTION=0"))
	assert.Equal(t, 1, port.Count("AT+HTTPINIT"))
}
