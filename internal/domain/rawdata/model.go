package rawdata

import "time"

// Payload is one raw upstream document archived before cleaning.
type Payload struct {
	Source        string
	EntityType    string
	EntityKey     string
	CompetitionID int64
	MatchID       *int64
	PayloadJSON   string
	PayloadHash   string
	FetchedAt     time.Time
}
