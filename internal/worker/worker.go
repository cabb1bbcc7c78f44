package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fleettrack/backend/pkg/queue"
)

// Jobs is the queue the processor drains.
type Jobs interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// InviteDelivery sends invite emails queued by the invites service.
type InviteDelivery struct {
	jobs    Jobs
	mailer  Mailer
	backoff time.Duration
	now     func() time.Time
	logger  *zap.Logger
}

// NewInviteDelivery creates an invite delivery processor.
func NewInviteDelivery(jobs Jobs, mailer Mailer, logger *zap.Logger) *InviteDelivery {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InviteDelivery{jobs: jobs, mailer: mailer, backoff: queue.RetryBackoff, now: time.Now, logger: logger}
}

// Process executes one invite delivery job. Invites that expired while queued
// are dropped.
func (p *InviteDelivery) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeInviteEmail {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.InviteEmailPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	if !payload.ExpiresAt.IsZero() && !p.now().Before(payload.ExpiresAt) {
		p.logger.Info("invite expired before delivery", zap.String("invite_id", payload.InviteID.String()))
		return nil
	}
	if err := p.mailer.SendInvite(ctx, payload); err != nil {
		return fmt.Errorf("send invite: %w", err)
	}
	p.logger.Info("invite delivered", zap.String("invite_id", payload.InviteID.String()), zap.String("job_id", job.ID))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *InviteDelivery) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("invite worker stopping")
			return
		default:
		}

		job, err := p.jobs.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
			if reErr := p.jobs.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			p.sleep(ctx)
		}
	}
}

func (p *InviteDelivery) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
