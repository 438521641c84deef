package mailer

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/smithy-go"
	mg "github.com/mailgun/mailgun-go/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSESClient struct {
	err       error
	lastInput *sesv2.SendEmailInput
}

func (m *mockSESClient) SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	m.lastInput = params
	if m.err != nil {
		return nil, m.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("test-message-id")}, nil
}

func TestSESRelaySend(t *testing.T) {
	client := &mockSESClient{}
	relay := NewSESRelayWithClient(client)
	assert.Equal(t, "ses", relay.Name())

	require.NoError(t, relay.Send(context.Background(), testMessage()))

	in := client.lastInput
	require.NotNil(t, in)
	assert.Equal(t, "sender@example.com", *in.FromEmailAddress)
	assert.Equal(t, []string{"test@example.com"}, in.Destination.ToAddresses)
	assert.Equal(t, "Subject", *in.Content.Simple.Subject.Data)
	assert.Equal(t, "Body", *in.Content.Simple.Body.Text.Data)
}

func TestSESRelayFailureKinds(t *testing.T) {
	tests := []struct {
		code string
		want FailureKind
	}{
		{"AccessDeniedException", FailureAuth},
		{"TooManyRequestsException", FailureUnavailable},
		{"MessageRejected", FailureRejected},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			relay := NewSESRelayWithClient(&mockSESClient{err: &smithy.GenericAPIError{Code: tt.code, Message: "nope"}})
			err := relay.Send(context.Background(), testMessage())
			require.Error(t, err)
			assert.Equal(t, tt.want, Classify(err))
		})
	}

	t.Run("non API error", func(t *testing.T) {
		relay := NewSESRelayWithClient(&mockSESClient{err: errors.New("weird")})
		assert.Equal(t, FailureUnknown, Classify(relay.Send(context.Background(), testMessage())))
	})
}

func TestMailgunKind(t *testing.T) {
	tests := []struct {
		status int
		want   FailureKind
	}{
		{http.StatusUnauthorized, FailureAuth},
		{http.StatusForbidden, FailureAuth},
		{http.StatusTooManyRequests, FailureUnavailable},
		{http.StatusBadGateway, FailureUnavailable},
		{http.StatusBadRequest, FailureRejected},
	}
	for _, tt := range tests {
		err := &mg.UnexpectedResponseError{Expected: []int{http.StatusOK}, Actual: tt.status}
		assert.Equal(t, tt.want, mailgunKind(err), "status %d", tt.status)
	}
	assert.Equal(t, FailureKind(""), mailgunKind(errors.New("x")))
	assert.Equal(t, "mailgun", NewMailgunRelay("mg.example.com", "key").Name())
}
