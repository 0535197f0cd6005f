package network

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"syscall"
)

// Unit is the payload of calls whose response body is irrelevant
type Unit struct{}

// Result is either Data or a classified Err
type Result[T any] struct {
	Data T
	Err  *NetworkError
}

// OK reports whether the call succeeded
func (r Result[T]) OK() bool {
	return r.Err == nil
}

func success[T any](data T) Result[T] {
	return Result[T]{Data: data}
}

func failure[T any](message string, code int) Result[T] {
	return Result[T]{Err: &NetworkError{Message: message, Code: code}}
}

// Operation performs one HTTP exchange. The classifier owns and closes the response body.
type Operation func(ctx context.Context) (*http.Response, error)

// Execute runs op and decodes a JSON body into T. A successful response without
// a body is treated as a failure.
func Execute[T any](ctx context.Context, op Operation) Result[T] {
	resp, err := op(ctx)
	if err != nil {
		ne := classifyTransport(err)
		return failure[T](ne.Message, ne.Code)
	}
	defer resp.Body.Close()

	if !isSuccessful(resp.StatusCode) {
		ne := errorDetails(resp)
		return failure[T](ne.Message, ne.Code)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		ne := classifyTransport(err)
		return failure[T](ne.Message, ne.Code)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return failure[T](MsgUnknownError, resp.StatusCode)
	}

	var data T
	if err := json.Unmarshal(body, &data); err != nil {
		return failure[T](err.Error(), CodeUnknown)
	}
	return success(data)
}

// ExecuteUnit runs op where any 2xx response counts as success
func ExecuteUnit(ctx context.Context, op Operation) Result[Unit] {
	resp, err := op(ctx)
	if err != nil {
		ne := classifyTransport(err)
		return failure[Unit](ne.Message, ne.Code)
	}
	defer resp.Body.Close()

	if !isSuccessful(resp.StatusCode) {
		ne := errorDetails(resp)
		return failure[Unit](ne.Message, ne.Code)
	}

	// Drain so the connection can be reused
	_, _ = io.Copy(io.Discard, resp.Body)
	return success(Unit{})
}

func isSuccessful(code int) bool {
	return code >= 200 && code < 300
}

// classifyTransport maps an error raised before a usable response onto a NetworkError
func classifyTransport(err error) *NetworkError {
	if errors.Is(err, ErrNoConnectivity) {
		return &NetworkError{Message: "", Code: CodeNoConnectivity}
	}
	if errors.Is(err, context.Canceled) {
		return &NetworkError{Message: err.Error(), Code: CodeUnknown}
	}
	if isIOError(err) {
		return &NetworkError{Message: MsgNetworkError, Code: CodeNoConnectivity}
	}

	msg := err.Error()
	if msg == "" {
		msg = MsgUnknownFallback
	}
	return &NetworkError{Message: msg, Code: CodeUnknown}
}

func isIOError(err error) bool {
	var netErr net.Error
	var urlErr *url.Error
	switch {
	case errors.As(err, &netErr), errors.As(err, &urlErr):
		return true
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		return true
	case errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.ECONNRESET):
		return true
	case errors.Is(err, context.DeadlineExceeded):
		return true
	}
	return false
}

// errorDetails builds the failure for a non-2xx response
func errorDetails(resp *http.Response) *NetworkError {
	code := resp.StatusCode

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &NetworkError{Message: MsgParseError, Code: code}
	}

	text := string(body)
	if strings.TrimSpace(text) == "" {
		return &NetworkError{Message: MsgUnknownError, Code: code}
	}

	// The body must be a JSON object; a "detail" member wins over the raw text
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return &NetworkError{Message: MsgParseError, Code: code}
	}
	if raw, ok := payload["detail"]; ok {
		detail, err := detailText(raw)
		if err != nil {
			return &NetworkError{Message: MsgParseError, Code: code}
		}
		return &NetworkError{Message: detail, Code: code}
	}
	return &NetworkError{Message: text, Code: code}
}

// detailText reads a scalar "detail" as text. Numbers and booleans keep their
// literal form; null, objects and arrays are not a message.
func detailText(raw json.RawMessage) (string, error) {
	var v interface{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return "", err
	}

	switch d := v.(type) {
	case string:
		return d, nil
	case json.Number:
		return d.String(), nil
	case bool:
		return strconv.FormatBool(d), nil
	default:
		return "", fmt.Errorf("detail is not a scalar: %s", raw)
	}
}
