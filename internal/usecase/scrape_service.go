package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	stderrors "errors"
	"fmt"
	"sort"
	"time"

	"github.com/bytedance/sonic"
	"github.com/riskibarqy/waterpolo-stats/internal/domain/matchstats"
	"github.com/riskibarqy/waterpolo-stats/internal/domain/rawdata"
	"github.com/riskibarqy/waterpolo-stats/internal/platform/logging"
	"github.com/riskibarqy/waterpolo-stats/internal/platform/workerpool"
)

const rawPayloadSource = "waterpolo"

// MatchSource is the upstream statistics API.
type MatchSource interface {
	DiscoverMatchIDs(ctx context.Context, competitionID int64) (matchstats.IDSet, error)
	FetchMatch(ctx context.Context, id matchstats.MatchID) (any, error)
	FetchEvents(ctx context.Context, id matchstats.MatchID) (any, error)
}

type ScrapeConfig struct {
	MaxConcurrency int
	ArchiveRaw     bool
}

type ScrapeService struct {
	source      MatchSource
	rawDataRepo rawdata.Repository
	cfg         ScrapeConfig
	logger      *logging.Logger
	now         func() time.Time
}

// NewScrapeService wires the scrape stage. rawDataRepo may be nil when
// archiving is disabled.
func NewScrapeService(source MatchSource, rawDataRepo rawdata.Repository, cfg ScrapeConfig, logger *logging.Logger) *ScrapeService {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = workerpool.DefaultMaxConcurrency
	}
	return &ScrapeService{
		source:      source,
		rawDataRepo: rawDataRepo,
		cfg:         cfg,
		logger:      logger.Named("scrape"),
		now:         time.Now,
	}
}

// Scrape discovers the matches of a competition and fetches match and event
// documents for each of them. Individual fetch failures are logged and
// dropped; a failed discovery yields an empty result.
func (s *ScrapeService) Scrape(ctx context.Context, competitionID int64) (matchstats.CompetitionResult, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.ScrapeService.Scrape")
	defer span.End()

	result := matchstats.CompetitionResult{
		CompetitionID: competitionID,
		RawDates:      []matchstats.RawRecord{},
		RawEvents:     []matchstats.RawRecord{},
	}
	if competitionID <= 0 {
		return result, fmt.Errorf("%w: competition id must be greater than zero", ErrInvalidInput)
	}

	ids, err := s.source.DiscoverMatchIDs(ctx, competitionID)
	if err != nil {
		s.logger.ErrorContext(ctx, "match discovery failed, nothing to scrape",
			"competition_id", competitionID,
			"error", err,
		)
		return result, nil
	}
	if ids.Len() == 0 {
		s.logger.WarnContext(ctx, "competition has no matches", "competition_id", competitionID)
		return result, nil
	}
	s.logger.InfoContext(ctx, "matches discovered", "competition_id", competitionID, "match_count", ids.Len())

	keys := ids.Sorted()

	// Passes run one after the other so upstream load never exceeds the pool size.
	result.RawDates, err = s.fetchPass(ctx, competitionID, matchstats.RecordKindMatch, keys, s.source.FetchMatch)
	if err != nil {
		return matchstats.CompetitionResult{}, err
	}
	result.RawEvents, err = s.fetchPass(ctx, competitionID, matchstats.RecordKindEvents, keys, s.source.FetchEvents)
	if err != nil {
		return matchstats.CompetitionResult{}, err
	}

	if s.cfg.ArchiveRaw && s.rawDataRepo != nil {
		if err := s.archive(ctx, competitionID, result); err != nil {
			return matchstats.CompetitionResult{}, err
		}
	}

	return result, nil
}

func (s *ScrapeService) fetchPass(
	ctx context.Context,
	competitionID int64,
	kind matchstats.RecordKind,
	keys []matchstats.MatchID,
	fetch func(ctx context.Context, id matchstats.MatchID) (any, error),
) ([]matchstats.RawRecord, error) {
	records, summary, err := workerpool.Collect(ctx, keys, workerpool.Options[matchstats.MatchID]{
		MaxConcurrency: s.cfg.MaxConcurrency,
		OnFailure: func(id matchstats.MatchID, err error) {
			s.logFetchFailure(ctx, competitionID, kind, id, err)
		},
	}, func(ctx context.Context, id matchstats.MatchID) (matchstats.RawRecord, error) {
		doc, err := fetch(ctx, id)
		if err != nil {
			return matchstats.RawRecord{}, err
		}
		return matchstats.RawRecord{MatchID: id, Kind: kind, Document: doc}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s pass competition_id=%d: %w", kind, competitionID, err)
	}

	sort.SliceStable(records, func(i, j int) bool { return records[i].MatchID < records[j].MatchID })

	s.logger.InfoContext(ctx, "fetch pass finished",
		"competition_id", competitionID,
		"resource", string(kind),
		"submitted", summary.Submitted,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
	)
	return records, nil
}

func (s *ScrapeService) logFetchFailure(ctx context.Context, competitionID int64, kind matchstats.RecordKind, id matchstats.MatchID, err error) {
	args := []any{
		"competition_id", competitionID,
		"resource", string(kind),
		"match_id", int64(id),
	}

	var fetchErr *matchstats.FetchError
	if stderrors.As(err, &fetchErr) {
		args = append(args, "kind", string(fetchErr.Kind), "status_code", fetchErr.StatusCode)
	} else {
		args = append(args, "kind", "unknown")
	}
	args = append(args, "error", err)

	s.logger.WarnContext(ctx, "fetch failed, match skipped", args...)
}

func (s *ScrapeService) archive(ctx context.Context, competitionID int64, result matchstats.CompetitionResult) error {
	fetchedAt := s.now().UTC()
	payloads := make([]rawdata.Payload, 0, len(result.RawDates)+len(result.RawEvents))

	for _, records := range [][]matchstats.RawRecord{result.RawDates, result.RawEvents} {
		for _, record := range records {
			body, err := sonic.MarshalString(record.Document)
			if err != nil {
				return fmt.Errorf("encode raw %s payload match_id=%d: %w", record.Kind, record.MatchID, err)
			}
			matchID := int64(record.MatchID)
			payloads = append(payloads, rawdata.Payload{
				Source:        rawPayloadSource,
				EntityType:    string(record.Kind),
				EntityKey:     record.MatchID.String(),
				CompetitionID: competitionID,
				MatchID:       &matchID,
				PayloadJSON:   body,
				PayloadHash:   payloadHash(body),
				FetchedAt:     fetchedAt,
			})
		}
	}
	if len(payloads) == 0 {
		return nil
	}

	if err := s.rawDataRepo.UpsertMany(ctx, payloads); err != nil {
		return fmt.Errorf("archive raw payloads competition_id=%d: %w", competitionID, err)
	}
	s.logger.DebugContext(ctx, "raw payloads archived", "competition_id", competitionID, "count", len(payloads))
	return nil
}

func payloadHash(body string) string {
	sum := sha256.Sum256([]byte(body))
	return hex.EncodeToString(sum[:])
}
