package mailer

import "time"

// EmailJob is the JSON payload put on the RabbitMQ queue for sending email.
// Recipient is taken verbatim from the request and is not validated.
type EmailJob struct {
	ID        string    `json:"id"`
	Recipient string    `json:"recipient"`
	QueuedAt  time.Time `json:"queued_at"`
}
