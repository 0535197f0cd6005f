package network

import (
	"errors"
	"fmt"
)

// Error codes carried by NetworkError besides plain HTTP status codes
const (
	CodeNoConnectivity = -1
	CodeUnknown        = -2
)

// Messages produced by the classifier
const (
	MsgNetworkError    = "Network connection error"
	MsgUnknownError    = "Unknown error occurred"
	MsgParseError      = "Failed to parse error response"
	MsgUnknownFallback = "Unknown error"
)

// ErrNoConnectivity is returned by the transport when the device is offline
var ErrNoConnectivity = errors.New("no internet connection")

// NetworkError is the classified failure of one collector call
type NetworkError struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s (code %d)", e.Message, e.Code)
}

// NoConnectivity reports whether the failure happened before reaching the collector
func (e *NetworkError) NoConnectivity() bool {
	return e.Code == CodeNoConnectivity
}
