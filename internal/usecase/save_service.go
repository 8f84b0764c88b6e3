package usecase

import (
	"context"
	"fmt"

	"github.com/riskibarqy/waterpolo-stats/internal/domain/matchstats"
	"github.com/riskibarqy/waterpolo-stats/internal/platform/logging"
)

type SaveService struct {
	sink   matchstats.TableSink
	logger *logging.Logger
}

func NewSaveService(sink matchstats.TableSink, logger *logging.Logger) *SaveService {
	if logger == nil {
		logger = logging.Default()
	}
	return &SaveService{sink: sink, logger: logger.Named("save")}
}

// Save replaces the competition's events and dates tables in one sink call.
func (s *SaveService) Save(ctx context.Context, projected matchstats.ProjectedResult) error {
	ctx, span := startUsecaseSpan(ctx, "usecase.SaveService.Save")
	defer span.End()

	if projected.CompetitionID <= 0 {
		return fmt.Errorf("%w: competition id must be greater than zero", ErrInvalidInput)
	}

	candidates := []matchstats.NamedDataset{
		{Table: matchstats.EventsTableName(projected.CompetitionID), Dataset: projected.Events},
		{Table: matchstats.DatesTableName(projected.CompetitionID), Dataset: projected.Dates},
	}

	tables := make([]matchstats.NamedDataset, 0, len(candidates))
	for _, candidate := range candidates {
		if len(candidate.Dataset.Columns) == 0 {
			s.logger.WarnContext(ctx, "dataset has no columns, table left untouched",
				"competition_id", projected.CompetitionID,
				"table", candidate.Table,
			)
			continue
		}
		tables = append(tables, candidate)
	}
	if len(tables) == 0 {
		return nil
	}

	if err := s.sink.ReplaceTables(ctx, tables); err != nil {
		return fmt.Errorf("replace tables competition_id=%d: %w", projected.CompetitionID, err)
	}

	for _, table := range tables {
		s.logger.InfoContext(ctx, "table replaced",
			"competition_id", projected.CompetitionID,
			"table", table.Table,
			"rows", table.Dataset.Len(),
			"columns", len(table.Dataset.Columns),
		)
	}
	return nil
}
