package app

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/riskibarqy/waterpolo-stats/external/waterpolo"
	"github.com/riskibarqy/waterpolo-stats/internal/config"
	"github.com/riskibarqy/waterpolo-stats/internal/domain/matchstats"
	"github.com/riskibarqy/waterpolo-stats/internal/domain/rawdata"
	"github.com/riskibarqy/waterpolo-stats/internal/infrastructure/repository/memory"
	"github.com/riskibarqy/waterpolo-stats/internal/infrastructure/repository/postgres"
	"github.com/riskibarqy/waterpolo-stats/internal/platform/logging"
	"github.com/riskibarqy/waterpolo-stats/internal/platform/resilience"
	"github.com/riskibarqy/waterpolo-stats/internal/usecase"
	"github.com/uptrace/opentelemetry-go-extra/otelsql"
	"github.com/uptrace/opentelemetry-go-extra/otelsqlx"
)

// Pipeline is the assembled scrape, clean and save chain plus the resources it owns.
type Pipeline struct {
	Service        *usecase.PipelineService
	CompetitionIDs []int64

	db *sqlx.DB
}

func NewPipeline(cfg config.Config, logger *logging.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = logging.Default()
	}

	client := waterpolo.NewClient(waterpolo.ClientConfig{
		CompetitionURLTemplate: cfg.CompetitionURLTemplate,
		MatchURLTemplate:       cfg.MatchURLTemplate,
		EventURLTemplate:       cfg.EventURLTemplate,
		Authorization:          cfg.Authorization,
		UserAgent:              cfg.UserAgent,
		Timeout:                cfg.FetchTimeout,
		Jitter: waterpolo.Jitter{
			Min: cfg.FetchJitterMin,
			Max: cfg.FetchJitterMax,
		},
		CircuitBreaker: resilience.CircuitBreakerConfig{
			Enabled:          cfg.UpstreamCircuitEnabled,
			FailureThreshold: cfg.UpstreamCircuitFailureCount,
			OpenTimeout:      cfg.UpstreamCircuitOpenTimeout,
			HalfOpenMaxReq:   cfg.UpstreamCircuitHalfOpenMaxReq,
		},
		Logger: logger,
	})

	var (
		db      *sqlx.DB
		sink    matchstats.TableSink
		rawRepo rawdata.Repository
	)
	switch cfg.SinkDriver {
	case config.SinkDriverPostgres:
		var err error
		db, err = openDB(cfg)
		if err != nil {
			return nil, err
		}
		sink = postgres.NewTableSink(db)
		if cfg.RawArchiveEnabled {
			rawRepo = postgres.NewRawDataRepository(db)
		}
		logger.Info("postgres sink configured", "db_name", dbNameFromURL(cfg.DBURL), "raw_archive", cfg.RawArchiveEnabled)
	case config.SinkDriverMemory:
		sink = memory.NewTableSink()
		logger.Info("memory sink configured")
	default:
		return nil, fmt.Errorf("unsupported sink driver %q", cfg.SinkDriver)
	}

	scrapeSvc := usecase.NewScrapeService(client, rawRepo, usecase.ScrapeConfig{
		MaxConcurrency: cfg.FetchMaxWorkers,
		ArchiveRaw:     cfg.RawArchiveEnabled,
	}, logger)
	cleanSvc := usecase.NewCleanService(logger)
	saveSvc := usecase.NewSaveService(sink, logger)

	pipelineSvc := usecase.NewPipelineService(scrapeSvc, cleanSvc, saveSvc, usecase.StagePolicy{
		Retries:    cfg.StageRetries,
		RetryDelay: cfg.StageRetryDelay,
	}, logger)

	return &Pipeline{
		Service:        pipelineSvc,
		CompetitionIDs: append([]int64(nil), cfg.CompetitionIDs...),
		db:             db,
	}, nil
}

// Close releases the database pool when one was opened.
func (p *Pipeline) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}

func openDB(cfg config.Config) (*sqlx.DB, error) {
	dbURL := normalizeDBURL(cfg.DBURL, cfg.DBDisablePreparedBinary)

	db, err := otelsqlx.Open("postgres", dbURL,
		otelsql.WithDBSystem("postgresql"),
		otelsql.WithDBName(dbNameFromURL(dbURL)),
		otelsql.WithQueryFormatter(formatDBQueryForTrace),
	)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	return db, nil
}
