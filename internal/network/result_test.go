package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
)

func respond(code int, body string) Operation {
	return func(context.Context) (*http.Response, error) {
		return &http.Response{
			StatusCode: code,
			Body:       io.NopCloser(strings.NewReader(body)),
		}, nil
	}
}

func fail(err error) Operation {
	return func(context.Context) (*http.Response, error) {
		return nil, err
	}
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, errors.New("read failed") }

func TestNotFoundDetailIsStable(t *testing.T) {
	for i := 0; i < 3; i++ {
		r := Execute[UploadTarget](context.Background(), respond(404, `{"detail":"not found"}`))
		if assert.NotNil(t, r.Err) {
			assert.Equal(t, "not found", r.Err.Message)
			assert.Equal(t, 404, r.Err.Code)
		}
	}
}

func TestConnectivityErrorIgnoresMessage(t *testing.T) {
	errs := []error{
		ErrNoConnectivity,
		fmt.Errorf("wrapped: %w", ErrNoConnectivity),
		&url.Error{Op: "Get", URL: "http://x", Err: ErrNoConnectivity},
	}
	for _, err := range errs {
		r := ExecuteUnit(context.Background(), fail(err))
		if assert.NotNil(t, r.Err) {
			assert.Equal(t, CodeNoConnectivity, r.Err.Code)
			assert.Equal(t, "", r.Err.Message)
		}
	}
}

func TestTransportIOErrors(t *testing.T) {
	errs := []error{
		&url.Error{Op: "Post", URL: "http://x", Err: errors.New("dial tcp: refused")},
		&net.OpError{Op: "dial", Err: errors.New("refused")},
		io.ErrUnexpectedEOF,
	}
	for _, err := range errs {
		r := ExecuteUnit(context.Background(), fail(err))
		if assert.NotNil(t, r.Err) {
			assert.Equal(t, MsgNetworkError, r.Err.Message)
			assert.Equal(t, CodeNoConnectivity, r.Err.Code)
		}
	}
}

func TestOtherErrorsAreUnknown(t *testing.T) {
	r := ExecuteUnit(context.Background(), fail(errors.New("something odd")))
	if assert.NotNil(t, r.Err) {
		assert.Equal(t, "something odd", r.Err.Message)
		assert.Equal(t, CodeUnknown, r.Err.Code)
	}

	r = ExecuteUnit(context.Background(), fail(gobreaker.ErrOpenState))
	if assert.NotNil(t, r.Err) {
		assert.Equal(t, CodeUnknown, r.Err.Code)
	}
}

func TestErrorBodyFallbacks(t *testing.T) {
	cases := []struct {
		name    string
		code    int
		body    string
		message string
	}{
		{"detail", 400, `{"detail":"bad flow"}`, "bad flow"},
		{"no detail", 409, `{"error":"conflict"}`, `{"error":"conflict"}`},
		{"null body", 500, "null", "null"},
		{"numeric detail", 400, `{"detail": 7}`, "7"},
		{"boolean detail", 400, `{"detail":false}`, "false"},
		{"plain text", 502, "bad gateway", MsgParseError},
		{"html", 502, "<html>Bad Gateway</html>", MsgParseError},
		{"array body", 502, `["a"]`, MsgParseError},
		{"object detail", 422, `{"detail":{"field":"x"}}`, MsgParseError},
		{"array detail", 422, `{"detail":["x"]}`, MsgParseError},
		{"null detail", 422, `{"detail":null}`, MsgParseError},
		{"empty", 500, "", MsgUnknownError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := ExecuteUnit(context.Background(), respond(tc.code, tc.body))
			if assert.NotNil(t, r.Err) {
				assert.Equal(t, tc.message, r.Err.Message)
				assert.Equal(t, tc.code, r.Err.Code)
			}
		})
	}
}

func TestUnreadableErrorBody(t *testing.T) {
	op := func(context.Context) (*http.Response, error) {
		return &http.Response{StatusCode: 503, Body: io.NopCloser(errReader{})}, nil
	}
	r := ExecuteUnit(context.Background(), op)
	if assert.NotNil(t, r.Err) {
		assert.Equal(t, MsgParseError, r.Err.Message)
		assert.Equal(t, 503, r.Err.Code)
	}
}

func TestExecuteDecodesBody(t *testing.T) {
	r := Execute[UploadTarget](context.Background(), respond(200, `{"flowId":42}`))
	assert.True(t, r.OK())
	if assert.NotNil(t, r.Data.FlowID) {
		assert.Equal(t, 42, *r.Data.FlowID)
	}

	r = Execute[UploadTarget](context.Background(), respond(200, `{"flowId":null}`))
	assert.True(t, r.OK())
	assert.Nil(t, r.Data.FlowID)
}

func TestExecuteRequiresBody(t *testing.T) {
	r := Execute[UploadTarget](context.Background(), respond(200, ""))
	if assert.NotNil(t, r.Err) {
		assert.Equal(t, MsgUnknownError, r.Err.Message)
		assert.Equal(t, 200, r.Err.Code)
	}
}

func TestExecuteBadJSONIsUnknown(t *testing.T) {
	r := Execute[UploadTarget](context.Background(), respond(200, "<html>"))
	if assert.NotNil(t, r.Err) {
		assert.Equal(t, CodeUnknown, r.Err.Code)
	}
}

func TestExecuteUnitAcceptsEmptyBody(t *testing.T) {
	r := ExecuteUnit(context.Background(), respond(201, ""))
	assert.True(t, r.OK())
}
