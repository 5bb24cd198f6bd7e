package metrics

import (
	"context"
	"errors"
	"net"
	"strconv"
	"syscall"
)

// Buckets for outcomes that carry no HTTP status.
const (
	KindTimeout           = "TIMEOUT"
	KindConnectionRefused = "CONNECTION_REFUSED"
	KindConnectionReset   = "CONNECTION_RESET"
	KindDNS               = "DNS"
	KindCanceled          = "CANCELED"
	KindTransport         = "TRANSPORT"
)

// ErrorKind maps a transport error to one of the Kind* buckets.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return KindDNS
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return KindConnectionRefused
	}
	if errors.Is(err, syscall.ECONNRESET) {
		return KindConnectionReset
	}
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}
	return KindTransport
}

// StatusKey is the StatusCodes bucket of an outcome: the HTTP status when a response
// arrived, otherwise the error kind.
func StatusKey(o Outcome) string {
	if o.StatusCode > 0 {
		return strconv.Itoa(o.StatusCode)
	}
	if o.Timeout {
		return KindTimeout
	}
	if kind := ErrorKind(o.Err); kind != "" {
		return kind
	}
	return KindTransport
}

// failureLabel is the Errors bucket of a failed outcome.
func failureLabel(o Outcome) string {
	if o.StatusCode > 0 {
		return "HTTP " + strconv.Itoa(o.StatusCode)
	}
	return StatusKey(o)
}
