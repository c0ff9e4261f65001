package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/community-market-backend/internal/payments"
	"github.com/angelmondragon/community-market-backend/pkg/logger"
)

const (
	defaultSweepMinAge    = 24 * time.Hour
	defaultSweepBatchSize = 200
)

type paymentSweeper interface {
	Sweep(ctx context.Context, olderThan time.Duration, limit int) (payments.SweepResult, error)
}

type StalePaymentJobParams struct {
	Logger    *logger.Logger
	Sweeper   paymentSweeper
	MinAge    time.Duration
	BatchSize int
}

// NewStalePaymentJob reconciles pending payment transactions nobody came
// back for. Rows past the stale threshold are failed; the rest are settled
// from the provider's view of the intent.
func NewStalePaymentJob(params StalePaymentJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Sweeper == nil {
		return nil, fmt.Errorf("payment sweeper required")
	}
	minAge := params.MinAge
	if minAge <= 0 {
		minAge = defaultSweepMinAge
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultSweepBatchSize
	}
	return &stalePaymentJob{logg: params.Logger, sweeper: params.Sweeper, minAge: minAge, batch: batch}, nil
}

type stalePaymentJob struct {
	logg    *logger.Logger
	sweeper paymentSweeper
	minAge  time.Duration
	batch   int
}

func (j *stalePaymentJob) Name() string { return "stale-payment-sweep" }

func (j *stalePaymentJob) Run(ctx context.Context) error {
	result, err := j.sweeper.Sweep(ctx, j.minAge, j.batch)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"examined":  result.Examined,
		"confirmed": result.Confirmed,
		"failed":    result.Failed,
		"pending":   result.Pending,
		"errored":   result.Errored,
	})
	if err != nil {
		return fmt.Errorf("stale payment sweep: %w", err)
	}
	j.logg.Info(logCtx, "stale payment sweep complete")
	return nil
}
