package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/studio-scheduler/internal/dto"
	"github.com/noah-isme/studio-scheduler/internal/recurrence"
	"github.com/noah-isme/studio-scheduler/pkg/jobs"
)

// Job types handled by ReleaseWorker.
const (
	JobReleaseSweep    = "release-sweep"
	JobWaitlistPromote = "waitlist-promote"
)

type jobEnqueuer interface {
	Enqueue(job jobs.Job) (bool, error)
}

type releaseSweeper interface {
	ReleaseDue(ctx context.Context, now time.Time) (*dto.ReleaseSweepResult, error)
}

// PromotionRequest is the payload of a waitlist-promote job.
type PromotionRequest struct {
	StudioID  string
	Date      time.Time
	StartTime string
	EndTime   string
}

// QueuedPromoter defers waitlist promotion to the job queue instead of running it inline.
type QueuedPromoter struct {
	queue jobEnqueuer
}

// NewQueuedPromoter wraps a job queue.
func NewQueuedPromoter(queue jobEnqueuer) *QueuedPromoter {
	return &QueuedPromoter{queue: queue}
}

// PromoteOverlapping enqueues one keyed promotion job per released window and reports no inline promotions.
func (p *QueuedPromoter) PromoteOverlapping(_ context.Context, studioID string, date time.Time, startTime, endTime string) ([]dto.PromotionResult, error) {
	key := fmt.Sprintf("promote:%s:%s:%s-%s", studioID, date.Format(recurrence.DateLayout), startTime, endTime)
	_, err := p.queue.Enqueue(jobs.Job{
		ID:   key,
		Type: JobWaitlistPromote,
		Key:  key,
		Payload: PromotionRequest{
			StudioID:  studioID,
			Date:      date,
			StartTime: startTime,
			EndTime:   endTime,
		},
	})
	return nil, err
}

// ReleaseWorker bridges queue jobs to release sweeps and waitlist promotion.
type ReleaseWorker struct {
	sweeper  releaseSweeper
	promoter waitlistPromoter
	queue    jobEnqueuer
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewReleaseWorker constructs a worker. Queue is attached separately since the queue needs Handle first.
func NewReleaseWorker(sweeper releaseSweeper, promoter waitlistPromoter, interval time.Duration, logger *zap.Logger) *ReleaseWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &ReleaseWorker{
		sweeper:  sweeper,
		promoter: promoter,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// AttachQueue sets the queue the ticker feeds.
func (w *ReleaseWorker) AttachQueue(queue jobEnqueuer) {
	w.queue = queue
}

// Handle processes a queue job.
func (w *ReleaseWorker) Handle(ctx context.Context, job jobs.Job) error {
	switch job.Type {
	case JobReleaseSweep:
		result, err := w.sweeper.ReleaseDue(ctx, w.now())
		if err != nil {
			return err
		}
		if len(result.Released) > 0 {
			w.logger.Sugar().Infow("release sweep job done", "job_id", job.ID, "released", len(result.Released))
		}
		return nil
	case JobWaitlistPromote:
		req, ok := job.Payload.(PromotionRequest)
		if !ok {
			w.logger.Sugar().Errorw("discarding promotion job with bad payload", "job_id", job.ID)
			return nil
		}
		promotions, err := w.promoter.PromoteOverlapping(ctx, req.StudioID, req.Date, req.StartTime, req.EndTime)
		if err != nil {
			return err
		}
		if len(promotions) > 0 {
			w.logger.Sugar().Infow("promotion job done", "job_id", job.ID, "promoted", len(promotions))
		}
		return nil
	default:
		w.logger.Sugar().Warnw("unknown job type", "job_id", job.ID, "type", job.Type)
		return nil
	}
}

// Run enqueues a release sweep every interval until ctx is cancelled.
func (w *ReleaseWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	w.enqueueSweep()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.enqueueSweep()
		}
	}
}

func (w *ReleaseWorker) enqueueSweep() {
	if w.queue == nil {
		return
	}
	now := w.now().UTC()
	if _, err := w.queue.Enqueue(jobs.Job{
		ID:   fmt.Sprintf("%s-%d", JobReleaseSweep, now.Unix()),
		Type: JobReleaseSweep,
		Key:  JobReleaseSweep,
	}); err != nil {
		w.logger.Sugar().Warnw("failed to enqueue release sweep", "error", err)
	}
}
