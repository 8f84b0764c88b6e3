package usecase

import (
	"context"
	"fmt"

	"github.com/riskibarqy/waterpolo-stats/internal/domain/matchstats"
	"github.com/riskibarqy/waterpolo-stats/internal/platform/flatten"
	"github.com/riskibarqy/waterpolo-stats/internal/platform/logging"
)

const (
	eventFlattenDepth  = 2
	rosterFlattenDepth = 2
)

type CleanService struct {
	logger *logging.Logger
}

func NewCleanService(logger *logging.Logger) *CleanService {
	if logger == nil {
		logger = logging.Default()
	}
	return &CleanService{logger: logger.Named("clean")}
}

// Clean flattens raw documents into the events and dates datasets. Only a
// roster document without a players list fails the stage.
func (s *CleanService) Clean(ctx context.Context, raw matchstats.CompetitionResult) (matchstats.ProjectedResult, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.CleanService.Clean")
	defer span.End()

	events := s.cleanEvents(ctx, raw.CompetitionID, raw.RawEvents)

	dates, err := s.cleanDates(ctx, raw.CompetitionID, raw.RawDates)
	if err != nil {
		return matchstats.ProjectedResult{}, err
	}

	return matchstats.ProjectedResult{
		CompetitionID: raw.CompetitionID,
		Events:        events,
		Dates:         dates,
	}, nil
}

func (s *CleanService) cleanEvents(ctx context.Context, competitionID int64, records []matchstats.RawRecord) matchstats.Dataset {
	rows := make([]matchstats.Row, 0, len(records)*16)
	dropped := 0

	for _, record := range records {
		for _, doc := range eventDocuments(record.Document) {
			row := flatten.Document(doc, eventFlattenDepth)
			if row[matchstats.EventMatchIDColumn] == nil {
				row[matchstats.EventMatchIDColumn] = int64(record.MatchID)
			}
			if column, ok := negativeCounter(row); ok {
				dropped++
				s.logger.WarnContext(ctx, "event row dropped: negative counter",
					"competition_id", competitionID,
					"match_id", int64(record.MatchID),
					"column", column,
				)
				continue
			}
			rows = append(rows, row)
		}
	}

	projected, missing := flatten.Project(flatten.NewTable(rows), matchstats.EventColumns)
	if len(missing) > 0 {
		s.logger.WarnContext(ctx, "event columns absent from batch",
			"competition_id", competitionID,
			"missing_columns", missing,
		)
	}
	s.logger.InfoContext(ctx, "events flattened",
		"competition_id", competitionID,
		"rows", projected.Len(),
		"columns", len(projected.Columns),
		"dropped_rows", dropped,
	)
	return projected
}

func (s *CleanService) cleanDates(ctx context.Context, competitionID int64, records []matchstats.RawRecord) (matchstats.Dataset, error) {
	rows := make([]matchstats.Row, 0, len(records)*28)
	dropped := 0

	for index, record := range records {
		doc, ok := record.Document.(map[string]any)
		if !ok {
			return matchstats.Dataset{}, s.schemaFailure(ctx, competitionID, record, index, fmt.Errorf("document is %T, not an object", record.Document))
		}

		entries, err := flatten.Records(doc, matchstats.RosterRecordPath, rosterFlattenDepth)
		if err != nil {
			return matchstats.Dataset{}, s.schemaFailure(ctx, competitionID, record, index, err)
		}

		for _, row := range entries {
			if missing := missingIdentity(row); len(missing) > 0 {
				dropped++
				s.logger.WarnContext(ctx, "roster row dropped: missing identity",
					"competition_id", competitionID,
					"match_id", int64(record.MatchID),
					"missing_columns", missing,
				)
				continue
			}
			rows = append(rows, row)
		}
	}

	projected, missing := flatten.Project(flatten.NewTable(rows), matchstats.RosterColumns)
	if len(missing) > 0 {
		s.logger.WarnContext(ctx, "roster columns absent from batch",
			"competition_id", competitionID,
			"missing_columns", missing,
		)
	}
	s.logger.InfoContext(ctx, "roster flattened",
		"competition_id", competitionID,
		"rows", projected.Len(),
		"columns", len(projected.Columns),
		"dropped_rows", dropped,
	)
	return projected, nil
}

func (s *CleanService) schemaFailure(ctx context.Context, competitionID int64, record matchstats.RawRecord, index int, cause error) error {
	s.logger.ErrorContext(ctx, "roster document has no players list",
		"competition_id", competitionID,
		"match_id", int64(record.MatchID),
		"error", cause,
	)
	return fmt.Errorf("flatten roster match_id=%d: %w (%v)", record.MatchID,
		&matchstats.SchemaError{Path: matchstats.RosterRecordPath, Index: index}, cause)
}

// eventDocuments flattens one level: a list contributes its object elements,
// an object contributes itself.
func eventDocuments(doc any) []map[string]any {
	switch value := doc.(type) {
	case map[string]any:
		return []map[string]any{value}
	case []any:
		out := make([]map[string]any, 0, len(value))
		for _, item := range value {
			if event, ok := item.(map[string]any); ok {
				out = append(out, event)
			}
		}
		return out
	default:
		return nil
	}
}

func negativeCounter(row matchstats.Row) (string, bool) {
	for _, column := range matchstats.EventCounterColumns {
		switch value := row[column].(type) {
		case int64:
			if value < 0 {
				return column, true
			}
		case float64:
			if value < 0 {
				return column, true
			}
		case int:
			if value < 0 {
				return column, true
			}
		}
	}
	return "", false
}

func missingIdentity(row matchstats.Row) []string {
	var missing []string
	for _, column := range matchstats.RosterIdentityColumns {
		if row[column] == nil {
			missing = append(missing, column)
		}
	}
	return missing
}
