package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/riskibarqy/waterpolo-stats/internal/domain/rawdata"
	qb "github.com/riskibarqy/waterpolo-stats/internal/platform/querybuilder"
)

const rawDataUpsertSuffix = `ON CONFLICT (source, entity_type, entity_key)
DO UPDATE SET
    competition_id = EXCLUDED.competition_id,
    match_id = EXCLUDED.match_id,
    payload = EXCLUDED.payload,
    payload_hash = EXCLUDED.payload_hash,
    fetched_at = EXCLUDED.fetched_at,
    ingested_at = NOW()
WHERE raw_data_payloads.payload_hash IS DISTINCT FROM EXCLUDED.payload_hash`

type RawDataRepository struct {
	db *sqlx.DB
}

func NewRawDataRepository(db *sqlx.DB) *RawDataRepository {
	return &RawDataRepository{db: db}
}

// UpsertMany stores payloads keyed by (source, entity_type, entity_key).
// Rows whose hash is unchanged are left alone.
func (r *RawDataRepository) UpsertMany(ctx context.Context, items []rawdata.Payload) error {
	models := rawDataInsertModels(items)
	if len(models) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx upsert raw payloads: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	columns, err := qb.ModelColumns(rawDataPayloadInsertModel{})
	if err != nil {
		return fmt.Errorf("raw payload columns: %w", err)
	}
	chunkSize := qb.RowsPerStatement(len(columns))
	for start := 0; start < len(models); start += chunkSize {
		end := min(start+chunkSize, len(models))

		columns, rows, err := qb.ModelRows(models[start:end])
		if err != nil {
			return fmt.Errorf("raw payload rows: %w", err)
		}

		query, args, err := qb.InsertInto("raw_data_payloads").
			Columns(columns...).
			Rows(rows).
			Suffix(rawDataUpsertSuffix).
			ToSQL()
		if err != nil {
			return fmt.Errorf("build upsert raw payload query: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("upsert raw payloads rows=%d..%d: %w", start, end, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert raw payloads tx: %w", err)
	}

	return nil
}

// rawDataInsertModels drops duplicate keys, keeping the last payload, since one
// statement cannot touch the same conflict target twice.
func rawDataInsertModels(items []rawdata.Payload) []rawDataPayloadInsertModel {
	type key struct{ source, entityType, entityKey string }

	index := make(map[key]int, len(items))
	out := make([]rawDataPayloadInsertModel, 0, len(items))
	for _, item := range items {
		model := rawDataPayloadInsertModel{
			Source:        item.Source,
			EntityType:    item.EntityType,
			EntityKey:     item.EntityKey,
			CompetitionID: item.CompetitionID,
			MatchID:       nullableInt64(item.MatchID),
			Payload:       item.PayloadJSON,
			PayloadHash:   item.PayloadHash,
			FetchedAt:     item.FetchedAt.UTC(),
		}
		k := key{model.Source, model.EntityType, model.EntityKey}
		if pos, ok := index[k]; ok {
			out[pos] = model
			continue
		}
		index[k] = len(out)
		out = append(out, model)
	}
	return out
}

type rawDataPayloadInsertModel struct {
	Source        string    `db:"source"`
	EntityType    string    `db:"entity_type"`
	EntityKey     string    `db:"entity_key"`
	CompetitionID int64     `db:"competition_id"`
	MatchID       *int64    `db:"match_id"`
	Payload       string    `db:"payload"`
	PayloadHash   string    `db:"payload_hash"`
	FetchedAt     time.Time `db:"fetched_at"`
}
