package usecase_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/riskibarqy/waterpolo-stats/external/waterpolo"
	"github.com/riskibarqy/waterpolo-stats/internal/domain/matchstats"
	"github.com/riskibarqy/waterpolo-stats/internal/infrastructure/repository/memory"
	"github.com/riskibarqy/waterpolo-stats/internal/platform/logging"
	"github.com/riskibarqy/waterpolo-stats/internal/usecase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUpstream(t *testing.T, failedRequests *atomic.Int32) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /competitions/100/matches", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"matches":[{"id":1},{"id":1},{"id":2}]}`))
	})
	mux.HandleFunc("GET /matches/1", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{
			"id": 1,
			"homeTeamId": 7,
			"awayTeamId": 8,
			"players": [
				{"id": 501, "player": {"id": 70, "name": "Ana", "surname": "Vidal", "primaryPosition": "CB"}, "team": {"id": 7, "name": "Home"}, "match": {"id": 1, "homeTeamId": 7, "awayTeamId": 8}},
				{"id": 502, "player": {"id": 80, "name": "Bea", "surname": "Ortiz", "primaryPosition": "GK"}, "team": {"id": 8, "name": "Away"}, "match": {"id": 1, "homeTeamId": 7, "awayTeamId": 8}}
			]
		}`))
	})
	mux.HandleFunc("GET /matches/1/events", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[
			{"period": 1, "minute": 2, "seconds": 10, "matchId": 1, "type": "SHOT", "shot": {"teamId": 7, "isGoal": true, "takenBy": {"playerId": 70, "teamId": 7}}},
			{"period": 1, "minute": 5, "seconds": 0, "matchId": 1, "type": "TIMEOUT", "timeout": {"teamId": 8}}
		]`))
	})
	mux.HandleFunc("GET /matches/2", func(w http.ResponseWriter, _ *http.Request) {
		failedRequests.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("GET /matches/2/events", func(w http.ResponseWriter, _ *http.Request) {
		failedRequests.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestPipeline_EndToEndSkipsFailedMatch(t *testing.T) {
	t.Parallel()

	var failedRequests atomic.Int32
	server := newUpstream(t, &failedRequests)
	logger := logging.NewNop()

	client := waterpolo.NewClient(waterpolo.ClientConfig{
		CompetitionURLTemplate: server.URL + "/competitions/{competition_id}/matches",
		MatchURLTemplate:       server.URL + "/matches/{match_id}",
		EventURLTemplate:       server.URL + "/matches/{match_id}/events",
		Authorization:          "Bearer token",
		UserAgent:              "stats-e2e/1.0",
		Timeout:                2 * time.Second,
		Logger:                 logger,
	})
	sink := memory.NewTableSink()

	pipeline := usecase.NewPipelineService(
		usecase.NewScrapeService(client, nil, usecase.ScrapeConfig{MaxConcurrency: 5}, logger),
		usecase.NewCleanService(logger),
		usecase.NewSaveService(sink, logger),
		usecase.StagePolicy{},
		logger,
	)

	require.NoError(t, pipeline.RunAll(context.Background(), []int64{100}))
	assert.Equal(t, int32(2), failedRequests.Load())
	assert.Equal(t, []string{"dates100", "events100"}, sink.TableNames())

	events, ok := sink.Table(matchstats.EventsTableName(100))
	require.True(t, ok)
	require.Equal(t, 2, events.Len())
	assert.Equal(t, []string{
		"period", "minute", "seconds", "matchId", "type",
		"shot_teamId", "shot_takenBy_playerId", "shot_takenBy_teamId", "shot_isGoal",
		"timeout_teamId",
	}, events.Columns)
	for _, row := range events.Rows {
		assert.Equal(t, int64(1), row["matchId"])
	}
	assert.Equal(t, true, events.Rows[0]["shot_isGoal"])
	assert.Equal(t, int64(8), events.Rows[1]["timeout_teamId"])

	dates, ok := sink.Table(matchstats.DatesTableName(100))
	require.True(t, ok)
	require.Equal(t, 2, dates.Len())
	for _, row := range dates.Rows {
		assert.Equal(t, int64(1), row["match_id"])
	}
	assert.Equal(t, int64(70), dates.Rows[0]["player_id"])
	assert.Equal(t, "Away", dates.Rows[1]["team_name"])
}

func TestPipeline_EndToEndReplacesPreviousRun(t *testing.T) {
	t.Parallel()

	var failedRequests atomic.Int32
	server := newUpstream(t, &failedRequests)
	logger := logging.NewNop()

	client := waterpolo.NewClient(waterpolo.ClientConfig{
		CompetitionURLTemplate: server.URL + "/competitions/{competition_id}/matches",
		MatchURLTemplate:       server.URL + "/matches/{match_id}",
		EventURLTemplate:       server.URL + "/matches/{match_id}/events",
		Authorization:          "Bearer token",
		Logger:                 logger,
	})
	sink := memory.NewTableSink()
	pipeline := usecase.NewPipelineService(
		usecase.NewScrapeService(client, nil, usecase.ScrapeConfig{}, logger),
		usecase.NewCleanService(logger),
		usecase.NewSaveService(sink, logger),
		usecase.StagePolicy{},
		logger,
	)

	require.NoError(t, pipeline.Run(context.Background(), 100))
	first, _ := sink.Table("events100")

	require.NoError(t, pipeline.Run(context.Background(), 100))
	second, _ := sink.Table("events100")

	assert.Equal(t, first, second)
	assert.Equal(t, 2, second.Len())
}
