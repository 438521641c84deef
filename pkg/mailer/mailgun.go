package mailer

import (
	"context"
	"errors"
	"net/http"

	mg "github.com/mailgun/mailgun-go/v4"
)

// MailgunRelay sends through the Mailgun HTTP API.
type MailgunRelay struct {
	Domain string
	APIKey string
	// APIBase overrides the Mailgun endpoint (EU region, tests).
	APIBase string
}

func NewMailgunRelay(domain, apiKey string) *MailgunRelay {
	return &MailgunRelay{Domain: domain, APIKey: apiKey}
}

func (m *MailgunRelay) Name() string { return "mailgun" }

// Send implements Relay
func (m *MailgunRelay) Send(ctx context.Context, msg OutgoingMessage) error {
	client := mg.NewMailgun(m.Domain, m.APIKey)
	if m.APIBase != "" {
		client.SetAPIBase(m.APIBase)
	}
	message := client.NewMessage(msg.From, msg.Subject, msg.Body, msg.To)
	if _, _, err := client.Send(ctx, message); err != nil {
		return &RelayError{Kind: mailgunKind(err), Op: "mailgun send", Err: err}
	}
	return nil
}

func mailgunKind(err error) FailureKind {
	var ure *mg.UnexpectedResponseError
	if !errors.As(err, &ure) {
		return ""
	}
	switch {
	case ure.Actual == http.StatusUnauthorized || ure.Actual == http.StatusForbidden:
		return FailureAuth
	case ure.Actual == http.StatusTooManyRequests || ure.Actual >= 500:
		return FailureUnavailable
	default:
		return FailureRejected
	}
}
