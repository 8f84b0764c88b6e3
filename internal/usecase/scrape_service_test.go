package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/riskibarqy/waterpolo-stats/internal/domain/matchstats"
	"github.com/riskibarqy/waterpolo-stats/internal/domain/rawdata"
	rawdatamock "github.com/riskibarqy/waterpolo-stats/internal/mocks/domain/rawdata"
	"github.com/riskibarqy/waterpolo-stats/internal/platform/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type stubMatchSource struct {
	mu           sync.Mutex
	ids          matchstats.IDSet
	discoverErr  error
	failMatches  map[matchstats.MatchID]error
	failEvents   map[matchstats.MatchID]error
	matchCalls   []matchstats.MatchID
	eventCalls   []matchstats.MatchID
	discoverHits int
}

func (s *stubMatchSource) DiscoverMatchIDs(_ context.Context, _ int64) (matchstats.IDSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discoverHits++
	if s.discoverErr != nil {
		return matchstats.NewIDSet(), s.discoverErr
	}
	return s.ids, nil
}

func (s *stubMatchSource) FetchMatch(_ context.Context, id matchstats.MatchID) (any, error) {
	s.mu.Lock()
	s.matchCalls = append(s.matchCalls, id)
	s.mu.Unlock()
	if err := s.failMatches[id]; err != nil {
		return nil, err
	}
	return map[string]any{"id": int64(id), "players": []any{}}, nil
}

func (s *stubMatchSource) FetchEvents(_ context.Context, id matchstats.MatchID) (any, error) {
	s.mu.Lock()
	s.eventCalls = append(s.eventCalls, id)
	s.mu.Unlock()
	if err := s.failEvents[id]; err != nil {
		return nil, err
	}
	return []any{map[string]any{"matchId": int64(id), "type": "SHOT"}}, nil
}

func TestScrapeService_PartialFailureKeepsSuccessfulMatches(t *testing.T) {
	t.Parallel()

	source := &stubMatchSource{
		ids: matchstats.NewIDSet(3, 1, 2),
		failMatches: map[matchstats.MatchID]error{
			2: &matchstats.FetchError{Kind: matchstats.FetchErrorTransport, Key: "2", StatusCode: 503},
		},
		failEvents: map[matchstats.MatchID]error{
			3: &matchstats.FetchError{Kind: matchstats.FetchErrorDecode, Key: "3", StatusCode: 200, Err: errors.New("bad json")},
		},
	}
	service := NewScrapeService(source, nil, ScrapeConfig{MaxConcurrency: 2}, logging.NewNop())

	result, err := service.Scrape(context.Background(), 100)
	require.NoError(t, err)

	assert.Equal(t, int64(100), result.CompetitionID)
	require.Len(t, result.RawDates, 2)
	assert.Equal(t, matchstats.MatchID(1), result.RawDates[0].MatchID)
	assert.Equal(t, matchstats.MatchID(3), result.RawDates[1].MatchID)
	assert.Equal(t, matchstats.RecordKindMatch, result.RawDates[0].Kind)

	require.Len(t, result.RawEvents, 2)
	assert.Equal(t, matchstats.MatchID(1), result.RawEvents[0].MatchID)
	assert.Equal(t, matchstats.MatchID(2), result.RawEvents[1].MatchID)

	assert.ElementsMatch(t, []matchstats.MatchID{1, 2, 3}, source.matchCalls)
	assert.ElementsMatch(t, []matchstats.MatchID{1, 2, 3}, source.eventCalls)
}

func TestScrapeService_DiscoveryFailureMeansNoWork(t *testing.T) {
	t.Parallel()

	source := &stubMatchSource{discoverErr: &matchstats.FetchError{Kind: matchstats.FetchErrorTransport, Key: "100", StatusCode: 500}}
	service := NewScrapeService(source, nil, ScrapeConfig{}, logging.NewNop())

	result, err := service.Scrape(context.Background(), 100)
	require.NoError(t, err)
	assert.Empty(t, result.RawDates)
	assert.Empty(t, result.RawEvents)
	assert.NotNil(t, result.RawDates)
	assert.Empty(t, source.matchCalls)
}

func TestScrapeService_RejectsInvalidCompetition(t *testing.T) {
	t.Parallel()

	service := NewScrapeService(&stubMatchSource{}, nil, ScrapeConfig{}, logging.NewNop())
	_, err := service.Scrape(context.Background(), 0)
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestScrapeService_ArchivesRawPayloads(t *testing.T) {
	t.Parallel()

	source := &stubMatchSource{ids: matchstats.NewIDSet(7)}
	repo := rawdatamock.NewRepository(t)
	fixedNow := time.Date(2026, 10, 3, 9, 0, 0, 0, time.UTC)

	repo.
		On("UpsertMany", mock.Anything, mock.MatchedBy(func(items []rawdata.Payload) bool {
			if len(items) != 2 {
				return false
			}
			kinds := map[string]bool{}
			for _, item := range items {
				if item.Source != "waterpolo" || item.EntityKey != "7" || item.CompetitionID != 100 {
					return false
				}
				if item.MatchID == nil || *item.MatchID != 7 || len(item.PayloadHash) != 64 || !item.FetchedAt.Equal(fixedNow) {
					return false
				}
				kinds[item.EntityType] = true
			}
			return kinds["match"] && kinds["events"]
		})).
		Return(nil).
		Once()

	service := NewScrapeService(source, repo, ScrapeConfig{ArchiveRaw: true}, logging.NewNop())
	service.now = func() time.Time { return fixedNow }

	result, err := service.Scrape(context.Background(), 100)
	require.NoError(t, err)
	assert.Len(t, result.RawDates, 1)
}

func TestScrapeService_ArchiveFailureFailsStage(t *testing.T) {
	t.Parallel()

	source := &stubMatchSource{ids: matchstats.NewIDSet(7)}
	repo := rawdatamock.NewRepository(t)
	repo.On("UpsertMany", mock.Anything, mock.Anything).Return(errors.New("connection reset")).Once()

	service := NewScrapeService(source, repo, ScrapeConfig{ArchiveRaw: true}, logging.NewNop())
	_, err := service.Scrape(context.Background(), 100)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "archive raw payloads")
}

func TestPayloadHash_IsStable(t *testing.T) {
	t.Parallel()

	assert.Equal(t, payloadHash(`{"id":1}`), payloadHash(`{"id":1}`))
	assert.NotEqual(t, payloadHash(`{"id":1}`), payloadHash(`{"id":2}`))
}
