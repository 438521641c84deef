package application

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/messaging-system/pkg/helpers"
	"github.com/oksasatya/messaging-system/pkg/mailer"
	"github.com/oksasatya/messaging-system/pkg/metrics"
)

// Publisher hands a job to the broker.
type Publisher interface {
	Publish(ctx context.Context, job mailer.EmailJob) error
}

// Sender delivers the fixed email to one recipient.
type Sender interface {
	Send(ctx context.Context, recipient string) mailer.Result
}

// JobLedger remembers job IDs that were delivered. MarkDone is only
// called after a successful send, so a crash mid-send leaves the job
// eligible for redelivery.
type JobLedger interface {
	Done(ctx context.Context, jobID string) (bool, error)
	MarkDone(ctx context.Context, jobID string) error
}

type EmailService struct {
	Pub     Publisher
	Sender  Sender
	Ledger  JobLedger
	Metrics *metrics.Metrics
	Logger  logrus.FieldLogger
	Now     func() time.Time
}

// NewEmailService wires the serve side (pub) or the worker side (sender,
// ledger); either half may be nil when that process doesn't need it.
func NewEmailService(pub Publisher, sender Sender, ledger JobLedger, m *metrics.Metrics, logger logrus.FieldLogger) *EmailService {
	return &EmailService{Pub: pub, Sender: sender, Ledger: ledger, Metrics: m, Logger: logger}
}

// Enqueue publishes a send job for recipient and returns without waiting
// for it to be processed.
func (s *EmailService) Enqueue(ctx context.Context, recipient string) (mailer.EmailJob, error) {
	job := mailer.EmailJob{
		ID:        uuid.NewString(),
		Recipient: recipient,
		QueuedAt:  helpers.Clock(s.Now)().UTC(),
	}
	if err := s.Pub.Publish(ctx, job); err != nil {
		s.Metrics.EnqueueFailed()
		return job, err
	}
	s.Metrics.Enqueued()
	return job, nil
}

// Process runs one dequeued job. A job already recorded as delivered is
// skipped and reported as sent.
func (s *EmailService) Process(ctx context.Context, job mailer.EmailJob) mailer.Result {
	log := helpers.Component(s.Logger, "worker").WithField("job_id", job.ID)
	track := s.Ledger != nil && job.ID != ""

	if track {
		done, err := s.Ledger.Done(ctx, job.ID)
		if err != nil {
			log.WithError(err).Warn("idempotency check unavailable, sending anyway")
		} else if done {
			s.Metrics.Duplicate()
			log.Info("skipping duplicate email job")
			return mailer.Result{Status: mailer.StatusSent, Message: mailer.SuccessMessage}
		}
	}

	res := s.Sender.Send(ctx, job.Recipient)
	if track && res.OK() {
		if err := s.Ledger.MarkDone(ctx, job.ID); err != nil {
			log.WithError(err).Warn("could not record delivered email job")
		}
	}
	return res
}

// RedisLedger records delivered job IDs as keys with a TTL. A nil client
// never reports a job as done.
type RedisLedger struct {
	Client *redis.Client
	TTL    time.Duration
	Prefix string
}

func NewRedisLedger(rdb *redis.Client, ttl time.Duration) *RedisLedger {
	return &RedisLedger{Client: rdb, TTL: ttl, Prefix: "email:job:done:"}
}

func (l *RedisLedger) Done(ctx context.Context, jobID string) (bool, error) {
	if l == nil || l.Client == nil {
		return false, nil
	}
	n, err := l.Client.Exists(ctx, l.Prefix+jobID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (l *RedisLedger) MarkDone(ctx context.Context, jobID string) error {
	if l == nil || l.Client == nil {
		return nil
	}
	return l.Client.Set(ctx, l.Prefix+jobID, time.Now().UTC().Format(time.RFC3339), l.TTL).Err()
}
