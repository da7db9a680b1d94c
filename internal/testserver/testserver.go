// Package testserver runs an in-process HTTP endpoint for probe tests and
// counts the connections it accepts.
package testserver

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"
)

// ForecastPath is the fixture endpoint path.
const ForecastPath = "/WeatherForecast"

type Server struct {
	*httptest.Server

	newConns atomic.Int64
	requests atomic.Int64
}

type forecast struct {
	Date         string `json:"date"`
	TemperatureC int    `json:"temperatureC"`
	Summary      string `json:"summary"`
}

// New starts a plain HTTP server and stops it when the test ends.
func New(t testing.TB) *Server {
	t.Helper()
	s := newUnstarted()
	s.Start()
	t.Cleanup(s.Close)
	return s
}

// NewTLS starts an HTTPS server with HTTP/2 enabled. Clients need to skip
// certificate verification.
func NewTLS(t testing.TB) *Server {
	t.Helper()
	s := newUnstarted()
	s.EnableHTTP2 = true
	s.StartTLS()
	t.Cleanup(s.Close)
	return s
}

func newUnstarted() *Server {
	s := &Server{}

	r := chi.NewRouter()
	r.Get(ForecastPath, s.handleForecast)
	r.Get("/status/{code}", s.handleStatus)

	s.Server = httptest.NewUnstartedServer(r)
	s.Config.ConnState = func(_ net.Conn, state http.ConnState) {
		if state == http.StateNew {
			s.newConns.Add(1)
		}
	}
	return s
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	s.requests.Add(1)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode([]forecast{
		{Date: "2026-10-18", TemperatureC: 14, Summary: "Mild"},
		{Date: "2026-10-19", TemperatureC: 9, Summary: "Chilly"},
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.requests.Add(1)
	code, err := strconv.Atoi(chi.URLParam(r, "code"))
	if err != nil || code < 100 || code > 599 {
		code = http.StatusBadRequest
	}
	w.WriteHeader(code)
}

// Endpoint returns the absolute URL of the forecast fixture.
func (s *Server) Endpoint() string {
	return s.URL + ForecastPath
}

// StatusEndpoint returns a URL that always answers with code.
func (s *Server) StatusEndpoint(code int) string {
	return s.URL + "/status/" + strconv.Itoa(code)
}

// Port is the TCP port the server listens on.
func (s *Server) Port() int {
	return s.Listener.Addr().(*net.TCPAddr).Port
}

// NewConns is the number of connections accepted so far.
func (s *Server) NewConns() int {
	return int(s.newConns.Load())
}

// Requests is the number of requests served so far.
func (s *Server) Requests() int {
	return int(s.requests.Load())
}

// UnusedEndpoint returns a forecast URL on a port nothing listens on.
func UnusedEndpoint(t testing.TB) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return "http://" + addr + ForecastPath
}
