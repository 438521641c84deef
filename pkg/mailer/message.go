package mailer

import (
	"bytes"
	"fmt"
	"mime"
	"mime/quotedprintable"
	"strings"
	"time"
)

// OutgoingMessage is built fresh for every job and never persisted.
type OutgoingMessage struct {
	From    string
	To      string
	Subject string
	Body    string
	Date    time.Time
}

var headerSanitizer = strings.NewReplacer("\r", "", "\n", "")

// Bytes renders the message as RFC 5322 text with a quoted-printable
// UTF-8 plain text body.
func (m OutgoingMessage) Bytes() []byte {
	date := m.Date
	if date.IsZero() {
		date = time.Now()
	}

	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", headerSanitizer.Replace(m.From))
	fmt.Fprintf(&b, "To: %s\r\n", headerSanitizer.Replace(m.To))
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("UTF-8", headerSanitizer.Replace(m.Subject)))
	fmt.Fprintf(&b, "Date: %s\r\n", date.Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("Content-Transfer-Encoding: quoted-printable\r\n\r\n")

	qp := quotedprintable.NewWriter(&b)
	body := strings.ReplaceAll(m.Body, "\r\n", "\n")
	_, _ = qp.Write([]byte(strings.ReplaceAll(body, "\n", "\r\n")))
	_ = qp.Close()
	b.WriteString("\r\n")
	return b.Bytes()
}
