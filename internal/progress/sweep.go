package progress

import (
	"context"
	"time"

	"github.com/yungbote/fablecast-backend/internal/data/repos"
	"github.com/yungbote/fablecast-backend/internal/platform/dbctx"
	"github.com/yungbote/fablecast-backend/internal/platform/logger"
)

const (
	DefaultStallThreshold = 60 * time.Minute
	defaultSweepInterval  = 5 * time.Minute

	stallMessage = "Processing stalled and was marked as failed; resume to continue"
)

// Sweeper force-fails processing records whose last update is older than the
// stall threshold. Coarse recovery for work that died without reporting.
type Sweeper struct {
	log            *logger.Logger
	ebookRepo      repos.EbookRepo
	collectionRepo repos.AudioCollectionRepo
	examRepo       repos.ExamRepo
	stallThreshold time.Duration
}

func NewSweeper(
	ebookRepo repos.EbookRepo,
	collectionRepo repos.AudioCollectionRepo,
	examRepo repos.ExamRepo,
	stallThreshold time.Duration,
	log *logger.Logger,
) *Sweeper {
	if stallThreshold <= 0 {
		stallThreshold = DefaultStallThreshold
	}
	return &Sweeper{
		log:            log.With("service", "StallSweeper"),
		ebookRepo:      ebookRepo,
		collectionRepo: collectionRepo,
		examRepo:       examRepo,
		stallThreshold: stallThreshold,
	}
}

// SweepOnce flips every stalled processing record to error and returns the
// number of records touched.
func (s *Sweeper) SweepOnce(dbc dbctx.Context) (int64, error) {
	cutoff := time.Now().Add(-s.stallThreshold)

	var total int64
	n, err := s.ebookRepo.MarkStalled(dbc, cutoff, stallMessage)
	if err != nil {
		return total, err
	}
	total += n

	n, err = s.collectionRepo.MarkStalled(dbc, cutoff, stallMessage)
	if err != nil {
		return total, err
	}
	total += n

	n, err = s.examRepo.MarkStalled(dbc, cutoff, stallMessage)
	if err != nil {
		return total, err
	}
	total += n

	if total > 0 {
		s.log.Warn("Stalled records marked as failed", "count", total, "threshold", s.stallThreshold.String())
	}
	return total, nil
}

// Start runs the sweep on a ticker until ctx is canceled.
func (s *Sweeper) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.SweepOnce(dbctx.Context{Ctx: ctx}); err != nil {
					s.log.Error("Stall sweep failed", "error", err)
				}
			}
		}
	}()
}
