package mailer

import (
	"context"
	"crypto/tls"
	"net"
	"net/smtp"
	"os"
	"strconv"
	"time"
)

// SMTPRelay delivers through an authenticated SMTP submission server.
// Each Send opens its own session and closes it on every return path.
type SMTPRelay struct {
	Host     string
	Port     int
	Username string
	// Secret is read on every Send.
	Secret  func() string
	Timeout time.Duration
	// ImplicitTLS dials straight into TLS (port 465). Plain connections are
	// only accepted by net/smtp for loopback hosts.
	ImplicitTLS bool
	TLSConfig   *tls.Config
}

// EnvSecret reads key from the process environment at call time.
func EnvSecret(key string) func() string {
	return func() string { return os.Getenv(key) }
}

// NewSMTPRelay returns an implicit-TLS relay authenticating as username with
// the password found in EMAIL_PASSWORD.
func NewSMTPRelay(host string, port int, username string, timeout time.Duration) *SMTPRelay {
	return &SMTPRelay{
		Host:        host,
		Port:        port,
		Username:    username,
		Secret:      EnvSecret("EMAIL_PASSWORD"),
		Timeout:     timeout,
		ImplicitTLS: true,
	}
}

func (r *SMTPRelay) Name() string { return "smtp" }

func (r *SMTPRelay) addr() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}

func (r *SMTPRelay) deadline(ctx context.Context) time.Time {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	d := time.Now().Add(timeout)
	if cd, ok := ctx.Deadline(); ok && cd.Before(d) {
		d = cd
	}
	return d
}

func (r *SMTPRelay) dial(ctx context.Context, deadline time.Time) (net.Conn, error) {
	nd := &net.Dialer{Deadline: deadline}
	if !r.ImplicitTLS {
		return nd.DialContext(ctx, "tcp", r.addr())
	}
	cfg := r.TLSConfig
	if cfg == nil {
		cfg = &tls.Config{ServerName: r.Host, MinVersion: tls.VersionTLS12}
	}
	td := &tls.Dialer{NetDialer: nd, Config: cfg}
	return td.DialContext(ctx, "tcp", r.addr())
}

// Send implements Relay
func (r *SMTPRelay) Send(ctx context.Context, msg OutgoingMessage) error {
	deadline := r.deadline(ctx)
	conn, err := r.dial(ctx, deadline)
	if err != nil {
		return &RelayError{Kind: FailureNetwork, Op: "dial " + r.addr(), Err: err}
	}
	_ = conn.SetDeadline(deadline)

	c, err := smtp.NewClient(conn, r.Host)
	if err != nil {
		_ = conn.Close()
		return &RelayError{Kind: FailureNetwork, Op: "greeting", Err: err}
	}
	defer func() { _ = c.Close() }()

	secret := ""
	if r.Secret != nil {
		secret = r.Secret()
	}
	if err := c.Auth(smtp.PlainAuth("", r.Username, secret, r.Host)); err != nil {
		return &RelayError{Kind: FailureAuth, Op: "auth", Err: err}
	}
	if err := c.Mail(msg.From); err != nil {
		return &RelayError{Kind: FailureRejected, Op: "MAIL FROM", Err: err}
	}
	if err := c.Rcpt(msg.To); err != nil {
		return &RelayError{Kind: FailureRejected, Op: "RCPT TO", Err: err}
	}
	w, err := c.Data()
	if err != nil {
		return &RelayError{Kind: FailureRejected, Op: "DATA", Err: err}
	}
	if _, err := w.Write(msg.Bytes()); err != nil {
		_ = w.Close()
		return &RelayError{Kind: FailureNetwork, Op: "write body", Err: err}
	}
	if err := w.Close(); err != nil {
		return &RelayError{Kind: FailureRejected, Op: "end of data", Err: err}
	}
	// The message is accepted once DATA completes; a failed QUIT changes nothing.
	_ = c.Quit()
	return nil
}
