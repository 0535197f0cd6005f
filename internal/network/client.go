package network

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/bryanchriswhite/ScreenShotSender/internal/capture"
	"github.com/bryanchriswhite/ScreenShotSender/internal/config"
	"github.com/bryanchriswhite/ScreenShotSender/internal/logger"
	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
)

// Headers set on every collector request
const (
	HeaderRequestID = "X-Request-ID"
	HeaderUserAgent = "User-Agent"
)

const (
	opResolveTarget = "resolve_upload_target"
	opUpload        = "upload_screenshot"

	screenshotPart = "screenshot"
)

// UploadTarget is the collector's answer to "which flow is active for this app"
type UploadTarget struct {
	FlowID *int `json:"flowId"`
}

// Options configures a Client
type Options struct {
	BaseURL      string
	UserAgent    string
	Timeout      time.Duration
	Connectivity Connectivity
	Resilience   config.ResilienceConfig

	// Transport is the innermost round tripper. Defaults to http.DefaultTransport.
	Transport http.RoundTripper
}

// OptionsFromConfig builds client options from the SDK configuration
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		BaseURL:      cfg.Collector.BaseURL,
		UserAgent:    cfg.Collector.UserAgent,
		Timeout:      cfg.Collector.Timeout,
		Connectivity: InterfaceProbe{},
		Resilience:   cfg.Resilience,
	}
}

// Client talks to the screenshot collector
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	resilience config.ResilienceConfig

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[*http.Response]
}

// NewClient creates a collector client
func NewClient(opts Options) (*Client, error) {
	base := strings.TrimSpace(opts.BaseURL)
	if base == "" {
		return nil, errors.New("collector base URL is empty")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("invalid collector base URL: %w", err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	inner := opts.Transport
	if inner == nil {
		inner = http.DefaultTransport
	}

	return &Client{
		baseURL:   strings.TrimRight(base, "/"),
		userAgent: opts.UserAgent,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &connectivityTransport{
				probe: opts.Connectivity,
				next:  &loggingTransport{next: inner},
			},
		},
		resilience: opts.Resilience,
		breakers:   make(map[string]*gobreaker.CircuitBreaker[*http.Response]),
	}, nil
}

// ResolveUploadTarget asks the collector which flow screenshots for identity go to
func (c *Client) ResolveUploadTarget(ctx context.Context, identity string) Result[UploadTarget] {
	endpoint := fmt.Sprintf("%s/active-flows/%s/", c.baseURL, url.PathEscape(identity))

	return Execute[UploadTarget](ctx, func(ctx context.Context) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		return c.do(opResolveTarget, req)
	})
}

// UploadScreenshot posts the artifact to the given flow as multipart form data
func (c *Client) UploadScreenshot(ctx context.Context, flowID int, artifact *capture.Artifact) Result[Unit] {
	endpoint := fmt.Sprintf("%s/flows/%d/live-screenshot/", c.baseURL, flowID)

	return ExecuteUnit(ctx, func(ctx context.Context) (*http.Response, error) {
		body, contentType, err := screenshotBody(artifact)
		if err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		return c.do(opUpload, req)
	})
}

func screenshotBody(artifact *capture.Artifact) (*bytes.Buffer, string, error) {
	if artifact == nil {
		return nil, "", errors.New("no screenshot to upload")
	}

	f, err := artifact.Open()
	if err != nil {
		return nil, "", fmt.Errorf("failed to open screenshot: %w", err)
	}
	defer f.Close()

	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name=%q; filename=%q`, screenshotPart, artifact.Name))
	header.Set("Content-Type", "image/png")

	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create multipart part: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("failed to read screenshot: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finish multipart body: %w", err)
	}

	return buf, mw.FormDataContentType(), nil
}

// statusError marks a 5xx response as a breaker failure while keeping the response
type statusError struct {
	resp *http.Response
}

func (e *statusError) Error() string {
	return fmt.Sprintf("collector returned %d", e.resp.StatusCode)
}

func (c *Client) do(operation string, req *http.Request) (*http.Response, error) {
	req.Header.Set(HeaderRequestID, uuid.NewString())
	if c.userAgent != "" {
		req.Header.Set(HeaderUserAgent, c.userAgent)
	}

	if !c.resilience.BreakerEnabled {
		return c.httpClient.Do(req)
	}

	resp, err := c.breaker(operation).Execute(func() (*http.Response, error) {
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 {
			return resp, &statusError{resp: resp}
		}
		return resp, nil
	})

	var se *statusError
	if errors.As(err, &se) {
		return se.resp, nil
	}
	return resp, err
}

func (c *Client) breaker(operation string) *gobreaker.CircuitBreaker[*http.Response] {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cb, ok := c.breakers[operation]; ok {
		return cb
	}

	cfg := c.resilience
	settings := gobreaker.Settings{
		Name:        operation,
		MaxRequests: cfg.BreakerHalfOpenMaxCalls,
		Timeout:     cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.BreakerMinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.BreakerFailureRatio
		},
		IsSuccessful: func(err error) bool {
			// Being offline says nothing about the collector
			return err == nil || errors.Is(err, ErrNoConnectivity) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithComponent("network").Warn().
				Str("operation", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	}

	cb := gobreaker.NewCircuitBreaker[*http.Response](settings)
	c.breakers[operation] = cb
	return cb
}

// CloseIdleConnections releases pooled connections
func (c *Client) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}
