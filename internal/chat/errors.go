package chat

import (
	"errors"
	"strings"
)

const (
	// NetworkErrorMessage is shown when a transport failure carries no
	// usable diagnostic.
	NetworkErrorMessage = "Network error"
	// UnknownErrorMessage is shown when the backend flags a failure
	// without an error detail.
	UnknownErrorMessage = "Unknown error occurred"
)

// TransportError reports that a request produced no usable response.
// Detail holds a diagnostic supplied by the remote side, if any.
type TransportError struct {
	Detail string
	Err    error
}

func (e *TransportError) Error() string {
	switch {
	case e.Err != nil && e.Detail != "":
		return e.Detail + ": " + e.Err.Error()
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Detail
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ErrorDetail returns the remote diagnostic.
func (e *TransportError) ErrorDetail() string {
	return e.Detail
}

// DetailFromError derives the user-facing message for a transport failure:
// the remote diagnostic when one was supplied, else the error text, else
// NetworkErrorMessage.
func DetailFromError(err error) string {
	if err == nil {
		return NetworkErrorMessage
	}
	var d interface{ ErrorDetail() string }
	if errors.As(err, &d) {
		if detail := strings.TrimSpace(d.ErrorDetail()); detail != "" {
			return detail
		}
	}
	var te *TransportError
	if errors.As(err, &te) && te.Err == nil {
		return NetworkErrorMessage
	}
	if msg := strings.TrimSpace(err.Error()); msg != "" {
		return msg
	}
	return NetworkErrorMessage
}

// detailFromResponse derives the error detail for an unsuccessful response.
func detailFromResponse(resp *Response) string {
	if resp.Error != nil {
		if detail := strings.TrimSpace(*resp.Error); detail != "" {
			return detail
		}
	}
	return UnknownErrorMessage
}
