package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"i4.energy/across/sim868/modem"
	"i4.energy/across/sim868/tracker"
)

// Server handles incoming HTTP requests for interacting with the
// configured modem instance. The modem has a single owner at a time;
// every handler holds Lock while it talks to it.
type Server struct {
	Logger  *zap.Logger
	Modem   *modem.Modem
	Tracker *tracker.Tracker
	Lock    *sync.Mutex

	GPSAttempts int
	GPSRetry    time.Duration
	DeviceID    string
}

// ServeHTTP implements the http.Handler interface for the Server struct
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /sms", s.handleSMS)
	mux.HandleFunc("GET /gps", s.handleGPS)
	mux.HandleFunc("GET /gps/samples", s.handleSamples)
	mux.HandleFunc("POST /gps/power", s.handleGPSPower)
	mux.HandleFunc("POST /gps/link", s.handleMapLink)
	mux.HandleFunc("GET /signal", s.handleSignal)
	mux.ServeHTTP(w, r)
}

func (s *Server) sendError(w http.ResponseWriter, message string, statusCode int) {
	if message == "" {
		w.WriteHeader(statusCode)
		return
	}

	type ErrorResponse struct {
		Message string `json:"message"`
	}
	s.sendJSON(w, ErrorResponse{Message: message}, statusCode)
}

func (s *Server) sendJSON(w http.ResponseWriter, v any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.Logger.Warn("Failed to write response", zap.Error(err))
	}
}

// statusFor maps driver errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, modem.ErrInvalidRecipient),
		errors.Is(err, modem.ErrInvalidMessage),
		errors.Is(err, modem.ErrInvalidParameter):
		return http.StatusBadRequest
	case errors.Is(err, modem.ErrGPSNotAcquired):
		return http.StatusServiceUnavailable
	case errors.Is(err, modem.ErrMalformedFix), errors.Is(err, modem.ErrIncorrectCommandOutput):
		return http.StatusBadGateway
	case errors.Is(err, modem.ErrAlreadyClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// handleSMS processes incoming HTTP POST requests to send SMS messages
func (s *Server) handleSMS(w http.ResponseWriter, r *http.Request) {
	type SMSRequest struct {
		To      string `json:"to"`
		Message string `json:"message"`
	}

	var req SMSRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if req.To == "" || req.Message == "" {
		s.sendError(w, "both 'to' and 'message' fields are required", http.StatusBadRequest)
		return
	}

	s.Lock.Lock()
	resp, err := s.Modem.SendTextMessage(r.Context(), req.To, req.Message)
	s.Lock.Unlock()
	if err != nil {
		s.Logger.Error("Failed to send SMS", zap.Error(err), zap.String("to", req.To))
		s.sendError(w, err.Error(), statusFor(err))
		return
	}

	s.Logger.Info("SMS sent", zap.String("to", req.To), zap.Int("message_length", len(req.Message)))
	s.sendJSON(w, map[string]string{"response": resp}, http.StatusOK)
}

func (s *Server) handleGPS(w http.ResponseWriter, r *http.Request) {
	s.Lock.Lock()
	fix, err := s.Modem.GPSFix(r.Context(), s.GPSAttempts, s.GPSRetry)
	s.Lock.Unlock()
	if err != nil {
		s.Logger.Warn("GPS fix failed", zap.Error(err))
		s.sendError(w, err.Error(), statusFor(err))
		return
	}

	type GPSResponse struct {
		modem.GPSData
		Link string `json:"link"`
	}
	s.sendJSON(w, GPSResponse{GPSData: fix, Link: fix.ComposeLink()}, http.StatusOK)
}

// maxSamples bounds one GET /gps/samples request.
const maxSamples = 20

func (s *Server) handleSamples(w http.ResponseWriter, r *http.Request) {
	if s.Tracker == nil {
		s.sendError(w, "tracking is not configured", http.StatusNotFound)
		return
	}

	n, interval := 1, time.Duration(0)
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 || parsed > maxSamples {
			s.sendError(w, fmt.Sprintf("'n' must be between 1 and %d", maxSamples), http.StatusBadRequest)
			return
		}
		n = parsed
	}
	if v := r.URL.Query().Get("interval"); v != "" {
		parsed, err := time.ParseDuration(v)
		if err != nil || parsed < 0 {
			s.sendError(w, "'interval' must be a non-negative duration", http.StatusBadRequest)
			return
		}
		interval = parsed
	}

	// Tracker takes the lock for every sample.
	fixes, err := s.Tracker.Collect(r.Context(), n, interval)
	if err != nil {
		s.Logger.Warn("Sample collection failed", zap.Error(err), zap.Int("collected", len(fixes)))
		s.sendError(w, err.Error(), statusFor(err))
		return
	}
	s.sendJSON(w, tracker.ComposeBatch(fixes, s.DeviceID), http.StatusOK)
}

func (s *Server) handleGPSPower(w http.ResponseWriter, r *http.Request) {
	var req struct {
		On *bool `json:"on"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.On == nil {
		s.sendError(w, "'on' field is required", http.StatusBadRequest)
		return
	}

	s.Lock.Lock()
	err := s.Modem.SetGPSPower(r.Context(), *req.On)
	s.Lock.Unlock()
	if err != nil {
		s.Logger.Error("Failed to switch GNSS power", zap.Error(err), zap.Bool("on", *req.On))
		s.sendError(w, err.Error(), statusFor(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMapLink(w http.ResponseWriter, r *http.Request) {
	if s.Tracker == nil {
		s.sendError(w, "tracking is not configured", http.StatusNotFound)
		return
	}

	var req struct {
		To string `json:"to"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.To == "" {
		s.sendError(w, "'to' field is required", http.StatusBadRequest)
		return
	}

	// Tracker takes the lock itself.
	if err := s.Tracker.SendMapLink(r.Context(), req.To); err != nil {
		s.Logger.Error("Failed to send map link", zap.Error(err), zap.String("to", req.To))
		s.sendError(w, err.Error(), statusFor(err))
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	s.Lock.Lock()
	rssi, err := s.Modem.SignalQuality(r.Context())
	s.Lock.Unlock()
	if err != nil {
		s.sendError(w, err.Error(), statusFor(err))
		return
	}

	type SignalResponse struct {
		RSSI     int  `json:"rssi"`
		Detected bool `json:"detected"`
	}
	s.sendJSON(w, SignalResponse{RSSI: rssi, Detected: rssi != modem.SignalQualityUnknown}, http.StatusOK)
}
