package modem

import (
	"context"
	"fmt"
	"strings"
	"time"

	nmea "github.com/adrianmo/go-nmea"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"i4.energy/across/sim868/at"
)

// GNSS timings in time units.
const (
	gnssPowerAckUnits  = 5
	gnssColdFixUnits   = 30
	gnssInfoWaitUnits  = 10
	noFixMarker        = ",,,,"
	fixTimestampLayout = "20060102150405"
	// DatetimeLayout is the layout of GPSData.Datetime.
	DatetimeLayout = "2006-01-02 15:04:05"
)

// Field offsets in a comma split +CGNSINF record.
const (
	fieldRunStatus = iota
	fieldFixStatus
	fieldTimestamp
	fieldLatitude
	fieldLongitude
	fieldAltitude
	minFixFields
)

// GPSData is one GNSS fix as reported by the module.
type GPSData struct {
	Latitude  string `json:"latitude"`
	Longitude string `json:"longitude"`
	Datetime  string `json:"datetime,omitempty"`
	Altitude  string `json:"altitude,omitempty"`
}

// Present reports whether the fix carries both coordinates.
func (g GPSData) Present() bool {
	return g.Latitude != "" && g.Longitude != ""
}

// Coordinates returns latitude and longitude.
func (g GPSData) Coordinates() (string, string) {
	return g.Latitude, g.Longitude
}

// Position parses the coordinates as decimal degrees.
func (g GPSData) Position() (lat, lon float64, err error) {
	if lat, err = nmea.ParseDecimal(g.Latitude); err != nil {
		return 0, 0, errors.Wrapf(err, "latitude %q", g.Latitude)
	}
	if lon, err = nmea.ParseDecimal(g.Longitude); err != nil {
		return 0, 0, errors.Wrapf(err, "longitude %q", g.Longitude)
	}
	return lat, lon, nil
}

// DMS formats the coordinates in degrees, minutes and seconds.
func (g GPSData) DMS() (string, error) {
	lat, lon, err := g.Position()
	if err != nil {
		return "", err
	}
	return nmea.FormatDMS(lat) + " " + nmea.FormatDMS(lon), nil
}

// ComposeLink returns a Google Maps search link for the fix.
func (g GPSData) ComposeLink() string {
	return fmt.Sprintf("https://www.google.com/maps/search/?api=1&query=%s%%20%s", g.Latitude, g.Longitude)
}

// CoordinatesAcquired classifies a +CGNSINF reply. A reply without four
// consecutive empty fields is a fix; an absent reply is not.
func CoordinatesAcquired(line string) bool {
	return line != "" && !strings.Contains(line, noFixMarker)
}

// ParseFix builds a GPSData from a +CGNSINF reply classified as a fix.
func ParseFix(line string) (GPSData, error) {
	fields := strings.Split(line, ",")
	if len(fields) < minFixFields {
		return GPSData{}, &MalformedFixError{
			Line:   line,
			Reason: fmt.Sprintf("%d fields, want at least %d", len(fields), minFixFields),
		}
	}

	fix := GPSData{
		Latitude:  strings.TrimSpace(fields[fieldLatitude]),
		Longitude: strings.TrimSpace(fields[fieldLongitude]),
		Altitude:  strings.TrimSpace(fields[fieldAltitude]),
	}
	if !fix.Present() {
		return GPSData{}, &MalformedFixError{Line: line, Reason: "empty coordinates"}
	}

	if ts := strings.TrimSpace(fields[fieldTimestamp]); ts != "" {
		if len(ts) < len(fixTimestampLayout) {
			return GPSData{}, &MalformedFixError{Line: line, Reason: fmt.Sprintf("short timestamp %q", ts)}
		}
		t, err := time.Parse(fixTimestampLayout, ts[:len(fixTimestampLayout)])
		if err != nil {
			return GPSData{}, &MalformedFixError{Line: line, Reason: err.Error()}
		}
		fix.Datetime = t.Format(DatetimeLayout)
	}
	return fix, nil
}

// SetGPSPower switches the GNSS subsystem. Switching it on the first time
// blocks through the cold fix window; repeated calls skip it.
func (m *Modem) SetGPSPower(ctx context.Context, on bool) error {
	if on {
		return m.ensureGNSSOn(ctx)
	}

	if !m.gnssOn {
		m.logger.Info("gnss already off")
	}
	if _, err := m.sendAndVerify(ctx, at.CmdGNSSPowerOff, at.OK, gnssPowerAckUnits, true, Report); err != nil {
		return errors.Wrap(err, "gnss power off")
	}
	m.gnssOn = false
	return nil
}

// GPSPowerOn reports the remembered GNSS power state.
func (m *Modem) GPSPowerOn() bool {
	return m.gnssOn
}

func (m *Modem) ensureGNSSOn(ctx context.Context) error {
	if m.gnssOn {
		return nil
	}

	if _, err := m.sendAndVerify(ctx, at.CmdGNSSPowerOn, at.OK, gnssPowerAckUnits, true, Report); err != nil {
		return errors.Wrap(err, "gnss power on")
	}
	m.logger.Info("waiting for gnss cold fix window")
	if err := m.wait(ctx, gnssColdFixUnits); err != nil {
		return err
	}
	m.gnssOn = true
	return nil
}

// GPSFix powers the GNSS subsystem if needed and queries it up to
// maxAttempts times, sleeping retryInterval between attempts without a
// fix. The interval is constant.
//
// Returns a *GPSNotAcquiredError when no attempt produced a fix and a
// *MalformedFixError when a fix line cannot be parsed.
func (m *Modem) GPSFix(ctx context.Context, maxAttempts int, retryInterval time.Duration) (GPSData, error) {
	if maxAttempts < 1 {
		return GPSData{}, errors.Errorf("max attempts must be at least 1, got %d", maxAttempts)
	}
	if err := m.ensureGNSSOn(ctx); err != nil {
		return GPSData{}, err
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		line, err := m.send(ctx, at.CmdGNSSInfo, gnssInfoWaitUnits, true)
		if err != nil {
			return GPSData{}, err
		}

		if CoordinatesAcquired(line) {
			fix, err := ParseFix(line)
			if err != nil {
				return GPSData{}, err
			}
			m.logger.Info("acquired coordinates",
				zap.Int("attempt", attempt), zap.String("record", line))
			return fix, nil
		}

		m.logger.Info("no gnss fix yet",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxAttempts),
			zap.Duration("retry_interval", retryInterval))
		if attempt == maxAttempts {
			break
		}
		if err := m.sleeper.Sleep(ctx, retryInterval); err != nil {
			return GPSData{}, err
		}
	}

	return GPSData{}, &GPSNotAcquiredError{Attempts: maxAttempts}
}
