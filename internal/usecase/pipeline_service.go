package usecase

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/riskibarqy/waterpolo-stats/internal/domain/matchstats"
	"github.com/riskibarqy/waterpolo-stats/internal/platform/logging"
)

const (
	stageScrape = "scrape"
	stageClean  = "clean"
	stageSave   = "save"
)

type Scraper interface {
	Scrape(ctx context.Context, competitionID int64) (matchstats.CompetitionResult, error)
}

type Cleaner interface {
	Clean(ctx context.Context, raw matchstats.CompetitionResult) (matchstats.ProjectedResult, error)
}

type Saver interface {
	Save(ctx context.Context, projected matchstats.ProjectedResult) error
}

// StagePolicy is the retry budget applied to every stage independently.
type StagePolicy struct {
	Retries    int
	RetryDelay time.Duration
}

type PipelineService struct {
	scraper Scraper
	cleaner Cleaner
	saver   Saver
	policy  StagePolicy
	logger  *logging.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

func NewPipelineService(scraper Scraper, cleaner Cleaner, saver Saver, policy StagePolicy, logger *logging.Logger) *PipelineService {
	if logger == nil {
		logger = logging.Default()
	}
	if policy.Retries < 0 {
		policy.Retries = 0
	}
	if policy.RetryDelay < 0 {
		policy.RetryDelay = 0
	}
	return &PipelineService{
		scraper: scraper,
		cleaner: cleaner,
		saver:   saver,
		policy:  policy,
		logger:  logger.Named("pipeline"),
		sleep:   sleepContext,
	}
}

// Run executes scrape, clean and save for one competition.
func (s *PipelineService) Run(ctx context.Context, competitionID int64) error {
	ctx, span := startUsecaseSpan(ctx, "usecase.PipelineService.Run")
	defer span.End()

	started := time.Now()
	s.logger.InfoContext(ctx, "pipeline run started", "competition_id", competitionID)

	raw, err := runStage(ctx, s, stageScrape, competitionID, func(ctx context.Context) (matchstats.CompetitionResult, error) {
		return s.scraper.Scrape(ctx, competitionID)
	})
	if err != nil {
		return err
	}

	projected, err := runStage(ctx, s, stageClean, competitionID, func(ctx context.Context) (matchstats.ProjectedResult, error) {
		return s.cleaner.Clean(ctx, raw)
	})
	if err != nil {
		return err
	}

	if _, err := runStage(ctx, s, stageSave, competitionID, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.saver.Save(ctx, projected)
	}); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "pipeline run finished",
		"competition_id", competitionID,
		"event_rows", projected.Events.Len(),
		"roster_rows", projected.Dates.Len(),
		"duration", time.Since(started),
	)
	return nil
}

// RunAll runs every competition in order. A failed competition does not stop
// the ones after it; all failures are joined into the returned error.
func (s *PipelineService) RunAll(ctx context.Context, competitionIDs []int64) error {
	ctx, span := startUsecaseSpan(ctx, "usecase.PipelineService.RunAll")
	defer span.End()

	var errs []error
	for _, competitionID := range competitionIDs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := s.Run(ctx, competitionID); err != nil {
			s.logger.ErrorContext(ctx, "pipeline run failed", "competition_id", competitionID, "error", err)
			errs = append(errs, err)
		}
	}

	s.logger.InfoContext(ctx, "pipeline batch finished",
		"competitions", len(competitionIDs),
		"failed", len(errs),
	)
	return stderrors.Join(errs...)
}

func runStage[T any](
	ctx context.Context,
	s *PipelineService,
	stage string,
	competitionID int64,
	fn func(ctx context.Context) (T, error),
) (T, error) {
	attempts := s.policy.Retries + 1

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		out, err := fn(ctx)
		if err == nil {
			s.logger.InfoContext(ctx, "stage completed", "stage", stage, "competition_id", competitionID, "attempt", attempt)
			return out, nil
		}
		lastErr = err

		if attempt == attempts || ctx.Err() != nil {
			attempts = attempt
			break
		}

		s.logger.WarnContext(ctx, "stage failed, retrying",
			"stage", stage,
			"competition_id", competitionID,
			"attempt", attempt,
			"retry_in", s.policy.RetryDelay,
			"error", err,
		)
		if err := s.sleep(ctx, s.policy.RetryDelay); err != nil {
			attempts = attempt
			break
		}
	}

	var zero T
	s.logger.ErrorContext(ctx, "stage failed", "stage", stage, "competition_id", competitionID, "attempts", attempts, "error", lastErr)
	return zero, &StageError{Stage: stage, CompetitionID: competitionID, Attempts: attempts, Err: lastErr}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
