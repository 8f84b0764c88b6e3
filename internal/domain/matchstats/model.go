package matchstats

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/riskibarqy/waterpolo-stats/internal/platform/flatten"
)

// MatchID identifies a match inside a competition's discovered set.
type MatchID int64

func (id MatchID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// ParseMatchID accepts the id shapes the upstream feed has been seen to use:
// JSON integers, integral floats and numeric strings.
func ParseMatchID(raw any) (MatchID, bool) {
	switch v := raw.(type) {
	case int64:
		return MatchID(v), true
	case int:
		return MatchID(v), true
	case int32:
		return MatchID(v), true
	case uint64:
		if v > math.MaxInt64 {
			return 0, false
		}
		return MatchID(v), true
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) || math.IsNaN(v) {
			return 0, false
		}
		return MatchID(int64(v)), true
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, false
		}
		return MatchID(parsed), true
	default:
		return 0, false
	}
}

// IDSet is the deduplicated set of match ids found for a competition.
type IDSet map[MatchID]struct{}

func NewIDSet(ids ...MatchID) IDSet {
	set := make(IDSet, len(ids))
	for _, id := range ids {
		set.Add(id)
	}
	return set
}

func (s IDSet) Add(id MatchID) {
	s[id] = struct{}{}
}

func (s IDSet) Has(id MatchID) bool {
	_, ok := s[id]
	return ok
}

func (s IDSet) Len() int {
	return len(s)
}

// Sorted returns the ids in ascending order so dispatch order is reproducible.
func (s IDSet) Sorted() []MatchID {
	out := make([]MatchID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

type RecordKind string

const (
	RecordKindMatch  RecordKind = "match"
	RecordKindEvents RecordKind = "events"
)

// RawRecord is one successful fetch: a decoded JSON document plus the id it was fetched for.
type RawRecord struct {
	MatchID  MatchID
	Kind     RecordKind
	Document any
}

// CompetitionResult is the scrape stage output handed to the clean stage.
type CompetitionResult struct {
	CompetitionID int64
	RawDates      []RawRecord
	RawEvents     []RawRecord
}

// ProjectedResult is the clean stage output handed to the save stage.
type ProjectedResult struct {
	CompetitionID int64
	Events        Dataset
	Dates         Dataset
}

type Row = flatten.Row

// Dataset is a tabular batch; see flatten.Table.
type Dataset = flatten.Table

// NamedDataset binds a dataset to its destination table.
type NamedDataset struct {
	Table   string
	Dataset Dataset
}

func EventsTableName(competitionID int64) string {
	return "events" + strconv.FormatInt(competitionID, 10)
}

func DatesTableName(competitionID int64) string {
	return "dates" + strconv.FormatInt(competitionID, 10)
}
