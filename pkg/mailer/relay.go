package mailer

import (
	"context"
	"errors"
	"net"
	"net/textproto"

	"github.com/sony/gobreaker"
)

// Relay hands a composed message to an external mail service.
type Relay interface {
	Send(ctx context.Context, msg OutgoingMessage) error
	Name() string
}

// FailureKind classifies why a send failed.
type FailureKind string

const (
	FailureAuth        FailureKind = "auth"
	FailureNetwork     FailureKind = "network"
	FailureRejected    FailureKind = "rejected"
	FailureUnavailable FailureKind = "unavailable"
	FailureUnknown     FailureKind = "unknown"
)

// RelayError is returned by relays that know more about a failure than the
// wrapped error carries on its own.
type RelayError struct {
	Kind FailureKind
	Op   string
	Err  error
}

func (e *RelayError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *RelayError) Unwrap() error { return e.Err }

// Classify maps a relay error to a FailureKind. Transport-level causes win
// over whatever kind a relay attached.
func Classify(err error) FailureKind {
	if err == nil {
		return ""
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return FailureUnavailable
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return FailureNetwork
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return FailureNetwork
	}
	var tpe *textproto.Error
	if errors.As(err, &tpe) {
		switch tpe.Code {
		case 530, 534, 535, 538:
			return FailureAuth
		case 421, 450, 451, 452:
			return FailureUnavailable
		default:
			return FailureRejected
		}
	}
	var re *RelayError
	if errors.As(err, &re) && re.Kind != "" {
		return re.Kind
	}
	return FailureUnknown
}
