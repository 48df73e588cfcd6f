package notify

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/trustteams/trustteams-api/internal/mailer"
	"github.com/trustteams/trustteams-api/internal/models"
	"github.com/trustteams/trustteams-api/pkg/config"
	"github.com/trustteams/trustteams-api/pkg/jobs"
)

// broadcastPayload is one recipient's share of an opportunity announcement.
type broadcastPayload struct {
	To          string
	Name        string
	Opportunity *models.Opportunity
	Link        string
}

// Broadcaster fans opportunity announcements out to students through a
// bounded worker pool. Each recipient is an independent job: one failing
// address never blocks the rest, and delivery never affects the HTTP request
// that triggered it.
type Broadcaster struct {
	queue  *jobs.Queue
	mailer mailer.Mailer
	log    *zap.Logger

	frontendBaseURL string
}

// NewBroadcaster builds the fan-out queue. Call Start before enqueueing.
func NewBroadcaster(cfg config.NotifyConfig, frontendBaseURL string, m mailer.Mailer, log *zap.Logger) *Broadcaster {
	b := &Broadcaster{mailer: m, log: log, frontendBaseURL: frontendBaseURL}
	b.queue = jobs.NewQueue("opportunity-broadcast", b.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     log,
	})
	return b
}

// Start launches the worker pool.
func (b *Broadcaster) Start(ctx context.Context) {
	b.queue.Start(ctx)
}

// Stop drains the worker pool.
func (b *Broadcaster) Stop() {
	b.queue.Stop()
}

// Announce enqueues one broadcast job per recipient. Best effort: enqueue
// failures are logged and the remaining recipients still get their jobs.
func (b *Broadcaster) Announce(opp *models.Opportunity, recipients []models.User) {
	link := fmt.Sprintf("%s/opportunities/%s", b.frontendBaseURL, opp.ID)
	for _, r := range recipients {
		job := jobs.Job{
			ID:   uuid.NewString(),
			Type: "opportunity-broadcast",
			Payload: broadcastPayload{
				To:          r.Email,
				Name:        r.Name,
				Opportunity: opp,
				Link:        link,
			},
		}
		if err := b.queue.Enqueue(job); err != nil {
			b.log.Warn("failed to enqueue broadcast",
				zap.String("opportunity_id", opp.ID),
				zap.String("to", r.Email),
				zap.Error(err))
		}
	}
	b.log.Info("opportunity broadcast enqueued",
		zap.String("opportunity_id", opp.ID),
		zap.Int("recipients", len(recipients)))
}

func (b *Broadcaster) handle(_ context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(broadcastPayload)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", job.Payload)
	}
	return b.mailer.SendOpportunityBroadcast(payload.To, payload.Name, payload.Opportunity, payload.Link)
}
