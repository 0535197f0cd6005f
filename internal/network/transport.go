package network

import (
	"net"
	"net/http"
	"time"

	"github.com/bryanchriswhite/ScreenShotSender/internal/logger"
)

// Connectivity reports whether the device currently has a usable network
type Connectivity interface {
	Available() bool
}

// ConnectivityFunc adapts a function to Connectivity
type ConnectivityFunc func() bool

func (f ConnectivityFunc) Available() bool { return f() }

// InterfaceProbe reports connectivity when at least one non-loopback interface is up
// and has an address.
type InterfaceProbe struct{}

func (InterfaceProbe) Available() bool {
	ifaces, err := net.Interfaces()
	if err != nil {
		return false
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err == nil && len(addrs) > 0 {
			return true
		}
	}
	return false
}

// connectivityTransport refuses requests while offline
type connectivityTransport struct {
	probe Connectivity
	next  http.RoundTripper
}

func (t *connectivityTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.probe != nil && !t.probe.Available() {
		return nil, ErrNoConnectivity
	}
	return t.next.RoundTrip(req)
}

// loggingTransport logs every exchange with the collector
type loggingTransport struct {
	next http.RoundTripper
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	log := logger.WithComponent("http")
	start := time.Now()

	resp, err := t.next.RoundTrip(req)
	if err != nil {
		log.Warn().
			Err(err).
			Str("method", req.Method).
			Str("url", req.URL.String()).
			Str("request_id", req.Header.Get(HeaderRequestID)).
			Dur("duration", time.Since(start)).
			Msg("Request failed")
		return nil, err
	}

	log.Debug().
		Str("method", req.Method).
		Str("url", req.URL.String()).
		Str("request_id", req.Header.Get(HeaderRequestID)).
		Int("status", resp.StatusCode).
		Int64("request_bytes", req.ContentLength).
		Int64("response_bytes", resp.ContentLength).
		Dur("duration", time.Since(start)).
		Msg("Request completed")
	return resp, nil
}
