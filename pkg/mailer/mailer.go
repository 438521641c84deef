package mailer

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/oksasatya/messaging-system/pkg/helpers"
	"github.com/oksasatya/messaging-system/pkg/metrics"
)

// SuccessMessage is the Result message of every successful send.
const SuccessMessage = "Email sent successfully"

// Status is the outcome of a send attempt.
type Status int

const (
	StatusSent Status = iota + 1
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSent:
		return "sent"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is the outcome of Mailer.Send. Relay failures are reported here,
// never as a panic or a returned error.
type Result struct {
	Status  Status
	Message string
	Kind    FailureKind // set when Status is StatusFailed
	Err     error
}

func (r Result) OK() bool { return r.Status == StatusSent }

// Options configure the fixed message and the relay guards.
type Options struct {
	Sender  string
	Subject string
	Body    string
	// Timeout bounds a single relay call; zero leaves it to the relay.
	Timeout time.Duration
	// BreakerMaxFailures consecutive failures open the breaker; zero disables it.
	BreakerMaxFailures uint32
	BreakerOpenTimeout time.Duration
	Metrics            *metrics.Metrics
	Now                func() time.Time
}

// Mailer composes the fixed message for a recipient and sends it through a Relay.
type Mailer struct {
	relay   Relay
	opts    Options
	log     *logrus.Entry
	breaker *gobreaker.CircuitBreaker
	now     func() time.Time
}

func New(relay Relay, logger logrus.FieldLogger, opts Options) *Mailer {
	m := &Mailer{
		relay: relay,
		opts:  opts,
		log:   helpers.Component(logger, "mailer").WithField("relay", relay.Name()),
		now:   helpers.Clock(opts.Now),
	}
	if opts.BreakerMaxFailures > 0 {
		max := opts.BreakerMaxFailures
		m.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "mail-relay-" + relay.Name(),
			Timeout: opts.BreakerOpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= max
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				m.log.WithFields(logrus.Fields{"breaker": name, "from": from.String(), "to": to.String()}).
					Warn("relay circuit breaker state changed")
			},
		})
	}
	return m
}

// Message builds the OutgoingMessage for recipient.
func (m *Mailer) Message(recipient string) OutgoingMessage {
	return OutgoingMessage{
		From:    m.opts.Sender,
		To:      recipient,
		Subject: m.opts.Subject,
		Body:    m.opts.Body,
		Date:    m.now(),
	}
}

// Send delivers the fixed message to recipient and logs exactly one entry:
// info on success, error on failure.
func (m *Mailer) Send(ctx context.Context, recipient string) Result {
	if m.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	err := m.deliver(ctx, m.Message(recipient))
	elapsed := time.Since(start)

	if err != nil {
		kind := Classify(err)
		text := fmt.Sprintf("Error sending email to %s: %v", recipient, err)
		m.log.WithField("kind", string(kind)).Error(text)
		m.opts.Metrics.Failed(string(kind), elapsed)
		return Result{Status: StatusFailed, Message: text, Kind: kind, Err: err}
	}

	m.log.Infof("Email sent successfully to %s", recipient)
	m.opts.Metrics.Sent(elapsed)
	return Result{Status: StatusSent, Message: SuccessMessage}
}

func (m *Mailer) deliver(ctx context.Context, msg OutgoingMessage) error {
	if m.breaker == nil {
		return m.relay.Send(ctx, msg)
	}
	_, err := m.breaker.Execute(func() (interface{}, error) {
		return nil, m.relay.Send(ctx, msg)
	})
	return err
}
