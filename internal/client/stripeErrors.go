package client

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"

	"github.com/stripe/stripe-go/v81"
)

// ProviderErrorKind is the closed set of failure categories Stripe reports.
type ProviderErrorKind int

const (
	ProviderErrUnknown ProviderErrorKind = iota
	ProviderErrCard
	ProviderErrRateLimit
	ProviderErrInvalidRequest
	ProviderErrAPI
	ProviderErrConnection
	ProviderErrAuthentication
)

func (k ProviderErrorKind) String() string {
	switch k {
	case ProviderErrCard:
		return "card_error"
	case ProviderErrRateLimit:
		return "rate_limit_error"
	case ProviderErrInvalidRequest:
		return "invalid_request_error"
	case ProviderErrAPI:
		return "api_error"
	case ProviderErrConnection:
		return "api_connection_error"
	case ProviderErrAuthentication:
		return "authentication_error"
	default:
		return "unknown_error"
	}
}

type ProviderError struct {
	Kind    ProviderErrorKind
	Code    string
	Message string
	Err     error
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// AsProviderError reports the classified error carried by err, if any.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// classify turns an SDK error into a *ProviderError. It is the only place
// that inspects stripe.Error.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := AsProviderError(err); ok {
		return err
	}

	var se *stripe.Error
	if errors.As(err, &se) {
		pe := &ProviderError{
			Kind:    ProviderErrUnknown,
			Code:    string(se.Code),
			Message: se.Msg,
			Err:     err,
		}
		switch {
		case se.HTTPStatusCode == http.StatusTooManyRequests || se.Code == stripe.ErrorCodeRateLimit:
			pe.Kind = ProviderErrRateLimit
		case se.HTTPStatusCode == http.StatusUnauthorized:
			pe.Kind = ProviderErrAuthentication
		case se.Type == stripe.ErrorTypeCard:
			pe.Kind = ProviderErrCard
		case se.Type == stripe.ErrorTypeInvalidRequest:
			pe.Kind = ProviderErrInvalidRequest
		case se.Type == stripe.ErrorTypeAPI:
			pe.Kind = ProviderErrAPI
		}
		return pe
	}

	var netErr net.Error
	var urlErr *url.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) {
		return &ProviderError{Kind: ProviderErrConnection, Message: err.Error(), Err: err}
	}

	return &ProviderError{Kind: ProviderErrUnknown, Message: err.Error(), Err: err}
}
