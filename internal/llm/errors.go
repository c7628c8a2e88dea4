package llm

import (
	"errors"
	"fmt"
)

// Kind classifies a gateway failure so callers can branch without
// matching message text.
type Kind int

const (
	KindUnknown Kind = iota
	// KindAuth: the endpoint rejected the credentials.
	KindAuth
	// KindModelNotFound: the configured model does not exist upstream.
	KindModelNotFound
	// KindRateLimited: the endpoint throttled the request.
	KindRateLimited
	// KindTimeout: the request exceeded the configured timeout.
	KindTimeout
	// KindNetwork: transport-level connection failure.
	KindNetwork
	// KindProxyUnsupported: proxy URL uses a scheme the client cannot dial.
	KindProxyUnsupported
	// KindMalformed: response body lacks the expected reply shape.
	KindMalformed
	// KindEmpty: response parsed but the reply text is blank.
	KindEmpty
	// KindHTTP: any other non-2xx status, with status and body attached.
	KindHTTP
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindModelNotFound:
		return "model_not_found"
	case KindRateLimited:
		return "rate_limited"
	case KindTimeout:
		return "timeout"
	case KindNetwork:
		return "network"
	case KindProxyUnsupported:
		return "proxy_unsupported"
	case KindMalformed:
		return "malformed_response"
	case KindEmpty:
		return "empty_response"
	case KindHTTP:
		return "http"
	default:
		return "unknown"
	}
}

// APIError is the only error type the gateway returns.
type APIError struct {
	Kind   Kind
	Status int
	Body   string
	Err    error
}

func (e *APIError) Error() string {
	switch {
	case e.Kind == KindHTTP:
		return fmt.Sprintf("inference api: http %d: %s", e.Status, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("inference api: %s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("inference api: %s", e.Kind)
	}
}

func (e *APIError) Unwrap() error { return e.Err }

// Classify extracts the failure kind from any error returned by the
// gateway; non-gateway errors report KindUnknown.
func Classify(err error) Kind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindUnknown
}
