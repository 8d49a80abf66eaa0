package weixin

import (
	"errors"
	"fmt"

	"github.com/sengeiou/life-helper-server/credential"
)

var (
	// ErrUnavailable is the upstream-unreachable class. It is the same
	// value as credential.ErrUpstreamUnavailable.
	ErrUnavailable = credential.ErrUpstreamUnavailable
	// ErrCodeInvalid is returned when a login code is unknown, expired or
	// already used.
	ErrCodeInvalid = errors.New("weixin login code invalid")
	// ErrRejected is the fallback for errcodes with no dedicated class.
	ErrRejected = errors.New("weixin request rejected")
)

const (
	errcodeSystemBusy          = -1
	errcodeInvalidToken        = 40001
	errcodeInvalidTokenFormat  = 40014
	errcodeTokenExpired        = 42001
	errcodeInvalidCode         = 40029
	errcodeCodeUsed            = 40163
	errcodeCodeBlocked         = 40226
	errcodeTokenRequestLimited = 45009
)

// APIError is a non-zero errcode answer.
type APIError struct {
	Op      string
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("weixin %s: errcode=%d errmsg=%s", e.Op, e.Code, e.Message)
}

// Unwrap returns the error class the errcode belongs to.
func (e *APIError) Unwrap() error {
	switch e.Code {
	case errcodeInvalidToken, errcodeInvalidTokenFormat, errcodeTokenExpired:
		return credential.ErrInvalidCredential
	case errcodeInvalidCode, errcodeCodeUsed, errcodeCodeBlocked:
		return ErrCodeInvalid
	case errcodeSystemBusy, errcodeTokenRequestLimited:
		return ErrUnavailable
	default:
		return ErrRejected
	}
}
