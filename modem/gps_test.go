package modem_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"i4.energy/across/sim868/modem"
)

const (
	fixLine   = "+CGNSINF: 1,1,20231122111000.000,50.887232,19.231535,120.429,0.00,0.0,1,,1.0,1.4,0.9,,14,7,5,,31,,"
	noFixLine = "+CGNSINF: 0,,,,,,,,,,,,,,,,,,,,"
)

func gnssReply(line string) string {
	return "AT+CGNSINF\r\n" + line + "\r\n"
}

func TestCoordinatesAcquired(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		expected bool
	}{
		{name: "Fix", line: fixLine, expected: true},
		{name: "No fix", line: noFixLine, expected: false},
		{name: "Four empty fields anywhere", line: "+CGNSINF: 1,1,20231122111000.000,50.1,19.2,,,,,1", expected: false},
		{name: "Absent", line: "", expected: false},
		{name: "Three empty fields", line: "+CGNSINF: 1,1,x,,,", expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, modem.CoordinatesAcquired(tt.line))
		})
	}
}

func TestParseFix(t *testing.T) {
	t.Run("Well formed record", func(t *testing.T) {
		fix, err := modem.ParseFix("+CGNSINF: 1,1,20231122111000.000,50.887232,19.231535,120.429,...")
		require.NoError(t, err)
		assert.Equal(t, modem.GPSData{
			Datetime:  "2023-11-22 11:10:00",
			Latitude:  "50.887232",
			Longitude: "19.231535",
			Altitude:  "120.429",
		}, fix)
	})

	t.Run("Record without timestamp", func(t *testing.T) {
		fix, err := modem.ParseFix("+CGNSINF: 1,1,,50.1,19.2,100")
		require.NoError(t, err)
		assert.Equal(t, "", fix.Datetime)
		assert.True(t, fix.Present())
	})

	malformed := []struct {
		name string
		line string
	}{
		{name: "Too few fields", line: "+CGNSINF: 1,1,20231122111000.000"},
		{name: "Empty latitude", line: "+CGNSINF: 1,1,20231122111000.000,,19.2,100"},
		{name: "Short timestamp", line: "+CGNSINF: 1,1,2023,50.1,19.2,100"},
		{name: "Invalid timestamp", line: "+CGNSINF: 1,1,20231399111000.000,50.1,19.2,100"},
		{name: "Garbage", line: "ERROR"},
	}
	for _, tt := range malformed {
		t.Run(tt.name, func(t *testing.T) {
			_, err := modem.ParseFix(tt.line)
			require.ErrorIs(t, err, modem.ErrMalformedFix)

			var fixErr *modem.MalformedFixError
			require.ErrorAs(t, err, &fixErr)
			assert.Equal(t, tt.line, fixErr.Line)
		})
	}
}

func TestGPSData(t *testing.T) {
	t.Run("Presence needs both coordinates", func(t *testing.T) {
		assert.False(t, modem.GPSData{Latitude: "", Longitude: "x"}.Present())
		assert.False(t, modem.GPSData{Latitude: "1"}.Present())
		assert.True(t, modem.GPSData{Latitude: "1", Longitude: "2"}.Present())
		assert.True(t, modem.GPSData{Latitude: "1", Longitude: "2", Datetime: "2023-11-22 11:10:00"}.Present())
	})

	t.Run("Map link", func(t *testing.T) {
		link := modem.GPSData{Latitude: "50.1", Longitude: "19.2"}.ComposeLink()
		assert.Equal(t, "https://www.google.com/maps/search/?api=1&query=50.1%2019.2", link)
	})

	t.Run("Coordinates", func(t *testing.T) {
		lat, lon := modem.GPSData{Latitude: "50.1", Longitude: "19.2"}.Coordinates()
		assert.Equal(t, "50.1", lat)
		assert.Equal(t, "19.2", lon)
	})

	t.Run("Position", func(t *testing.T) {
		lat, lon, err := modem.GPSData{Latitude: "50.887232", Longitude: "-19.231535"}.Position()
		require.NoError(t, err)
		assert.InDelta(t, 50.887232, lat, 1e-9)
		assert.InDelta(t, -19.231535, lon, 1e-9)

		_, _, err = modem.GPSData{Latitude: "north", Longitude: "1"}.Position()
		assert.Error(t, err)
	})

	t.Run("DMS", func(t *testing.T) {
		dms, err := modem.GPSData{Latitude: "50.5", Longitude: "19.25"}.DMS()
		require.NoError(t, err)
		assert.Contains(t, dms, "50°")
		assert.Contains(t, dms, "19°")
	})
}

func TestGPSFix(t *testing.T) {
	ctx := context.Background()

	t.Run("Fix on the third attempt", func(t *testing.T) {
		port := modem.NewTestPort()
		m, sleeps, _ := newTestModem(t, port)
		port.Reply("AT+CGNSPWR=1", "AT+CGNSPWR=1\r\nOK\r\n")
		port.Reply("AT+CGNSINF", gnssReply(noFixLine), gnssReply(noFixLine), gnssReply(fixLine))

		fix, err := m.GPSFix(ctx, 3, 0)
		require.NoError(t, err)
		assert.Equal(t, "50.887232", fix.Latitude)
		assert.Equal(t, "19.231535", fix.Longitude)
		assert.Equal(t, "2023-11-22 11:10:00", fix.Datetime)
		assert.Equal(t, "120.429", fix.Altitude)
		assert.Equal(t, 3, port.Count("AT+CGNSINF"))

		// power ack, cold fix, then query, retry, query, retry, query
		assert.Equal(t, seconds(5, 30, 10, 0, 10, 0, 10), sleeps.Durations())
	})

	t.Run("Success short-circuits remaining attempts", func(t *testing.T) {
		port := modem.NewTestPort()
		m, _, _ := newTestModem(t, port)
		port.Reply("AT+CGNSINF", gnssReply(fixLine))

		_, err := m.GPSFix(ctx, 5, time.Second)
		require.NoError(t, err)
		assert.Equal(t, 1, port.Count("AT+CGNSINF"))
	})

	t.Run("GPSNotAcquired after every attempt", func(t *testing.T) {
		port := modem.NewTestPort()
		m, sleeps, _ := newTestModem(t, port)
		port.Reply("AT+CGNSINF", gnssReply(noFixLine))

		_, err := m.GPSFix(ctx, 2, 7*time.Second)
		require.ErrorIs(t, err, modem.ErrGPSNotAcquired)

		var notAcquired *modem.GPSNotAcquiredError
		require.ErrorAs(t, err, &notAcquired)
		assert.Equal(t, 2, notAcquired.Attempts)
		assert.Equal(t, 2, port.Count("AT+CGNSINF"))
		// the retry interval is constant
		assert.Equal(t, seconds(5, 30, 10, 7, 10), sleeps.Durations())
	})

	t.Run("Absent response is no fix", func(t *testing.T) {
		port := modem.NewTestPort()
		m, _, _ := newTestModem(t, port)

		_, err := m.GPSFix(ctx, 2, 0)
		assert.ErrorIs(t, err, modem.ErrGPSNotAcquired)
	})

	t.Run("Malformed fix is not retried", func(t *testing.T) {
		port := modem.NewTestPort()
		m, _, _ := newTestModem(t, port)
		port.Reply("AT+CGNSINF", gnssReply("+CGNSINF: 1,1"), gnssReply(fixLine))

		_, err := m.GPSFix(ctx, 3, 0)
		assert.ErrorIs(t, err, modem.ErrMalformedFix)
		assert.Equal(t, 1, port.Count("AT+CGNSINF"))
	})

	t.Run("Transport failure propagates", func(t *testing.T) {
		port := modem.NewTestPort()
		m, _, _ := newTestModem(t, port)
		require.NoError(t, m.SetGPSPower(ctx, true))
		port.FailDrain(assert.AnError)

		_, err := m.GPSFix(ctx, 3, 0)
		assert.ErrorIs(t, err, modem.ErrTransportNotReady)
	})

	t.Run("Attempts must be positive", func(t *testing.T) {
		m, _, _ := newTestModem(t, modem.NewTestPort())

		_, err := m.GPSFix(ctx, 0, 0)
		assert.Error(t, err)
	})
}

func TestSetGPSPower(t *testing.T) {
	ctx := context.Background()

	t.Run("Cold fix window is paid once", func(t *testing.T) {
		port := modem.NewTestPort()
		m, sleeps, _ := newTestModem(t, port)

		require.NoError(t, m.SetGPSPower(ctx, true))
		require.NoError(t, m.SetGPSPower(ctx, true))
		assert.True(t, m.GPSPowerOn())
		assert.Equal(t, 1, port.Count("AT+CGNSPWR=1"))
		assert.Equal(t, seconds(5, 30), sleeps.Durations())
	})

	t.Run("Power off", func(t *testing.T) {
		port := modem.NewTestPort()
		m, sleeps, _ := newTestModem(t, port)

		require.NoError(t, m.SetGPSPower(ctx, true))
		sleeps.Reset()
		require.NoError(t, m.SetGPSPower(ctx, false))
		assert.False(t, m.GPSPowerOn())
		assert.Equal(t, 1, port.Count("AT+CGNSPWR=0"))
		assert.Equal(t, seconds(5), sleeps.Durations())

		// switching on again pays the cold fix window again
		sleeps.Reset()
		require.NoError(t, m.SetGPSPower(ctx, true))
		assert.Equal(t, seconds(5, 30), sleeps.Durations())
	})
}
