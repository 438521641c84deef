package mailer

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/aws/smithy-go"
)

// SendEmailAPI is the subset of the SES v2 client the relay uses.
type SendEmailAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESConfig holds the configuration for creating a SESRelay.
type SESConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// SESRelay sends through the AWS SES v2 API.
type SESRelay struct {
	client SendEmailAPI
}

// NewSESRelay loads the default AWS credential chain, preferring static keys
// when both are set.
func NewSESRelay(ctx context.Context, cfg SESConfig) (*SESRelay, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return &SESRelay{client: sesv2.NewFromConfig(awsCfg)}, nil
}

// NewSESRelayWithClient is used by tests to inject a fake client.
func NewSESRelayWithClient(client SendEmailAPI) *SESRelay {
	return &SESRelay{client: client}
}

func (s *SESRelay) Name() string { return "ses" }

// Send implements Relay
func (s *SESRelay) Send(ctx context.Context, msg OutgoingMessage) error {
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(msg.From),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(msg.Body), Charset: aws.String("UTF-8")},
				},
			},
		},
	}
	if _, err := s.client.SendEmail(ctx, input); err != nil {
		return &RelayError{Kind: sesKind(err), Op: "ses send", Err: err}
	}
	return nil
}

func sesKind(err error) FailureKind {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return ""
	}
	switch apiErr.ErrorCode() {
	case "AccessDeniedException", "UnrecognizedClientException", "InvalidClientTokenId",
		"SignatureDoesNotMatch", "ExpiredTokenException":
		return FailureAuth
	case "TooManyRequestsException", "LimitExceededException", "SendingPausedException",
		"AccountSuspendedException", "ServiceUnavailable", "InternalFailure":
		return FailureUnavailable
	default:
		return FailureRejected
	}
}
