package tracker

import (
	"encoding/json"

	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
	"github.com/pkg/errors"

	"i4.energy/across/sim868/modem"
)

// DefaultDeviceID tags records when no device id is configured.
const DefaultDeviceID = "Default device id"

// earthRadiusMeters is the mean Earth radius used for great-circle distances.
const earthRadiusMeters = 6371008.8

// Record is one fix tagged with the device that produced it.
type Record struct {
	DeviceID  string `json:"device_id"`
	Latitude  string `json:"latitude"`
	Longitude string `json:"longitude"`
	Datetime  string `json:"datetime"`
	Altitude  string `json:"altitude"`
}

// Batch is the upload document: {"resource": [records...]}.
type Batch struct {
	Resource []Record `json:"resource"`
}

// Compose tags a fix with deviceID.
func Compose(fix modem.GPSData, deviceID string) Record {
	if deviceID == "" {
		deviceID = DefaultDeviceID
	}
	return Record{
		DeviceID:  deviceID,
		Latitude:  fix.Latitude,
		Longitude: fix.Longitude,
		Datetime:  fix.Datetime,
		Altitude:  fix.Altitude,
	}
}

// ComposeBatch tags every fix with deviceID.
func ComposeBatch(fixes []modem.GPSData, deviceID string) Batch {
	b := Batch{Resource: make([]Record, 0, len(fixes))}
	for _, f := range fixes {
		b.Resource = append(b.Resource, Compose(f, deviceID))
	}
	return b
}

func (b Batch) JSON() ([]byte, error) {
	return json.Marshal(b)
}

// Distance returns the great-circle distance between two fixes in meters.
func Distance(a, b modem.GPSData) (float64, error) {
	pa, err := latLng(a)
	if err != nil {
		return 0, err
	}
	pb, err := latLng(b)
	if err != nil {
		return 0, err
	}
	return angleMeters(pa.Distance(pb)), nil
}

// MovedAtLeast reports whether next is at least meters away from prev.
// Fixes that cannot be compared count as movement.
func MovedAtLeast(prev, next modem.GPSData, meters float64) bool {
	if meters <= 0 || !prev.Present() {
		return true
	}
	d, err := Distance(prev, next)
	if err != nil {
		return true
	}
	return d >= meters
}

func latLng(g modem.GPSData) (s2.LatLng, error) {
	lat, lon, err := g.Position()
	if err != nil {
		return s2.LatLng{}, errors.Wrap(err, "fix position")
	}
	return s2.LatLngFromDegrees(lat, lon), nil
}

func angleMeters(a s1.Angle) float64 {
	return a.Radians() * earthRadiusMeters
}
