package domain

import (
	"fmt"
	"time"
)

// DateLayout is the wire format of ScoreRecord.Date
const DateLayout = "2006-01-02"

// ScoreRecord is one immutable leaderboard row. A new personal best creates a
// new record; earlier records stay in the ledger and keep counting for ranks.
type ScoreRecord struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Score     int64     `json:"score"`
	Mode      GameMode  `json:"mode"`
	Date      time.Time `json:"-"`
	CreatedAt time.Time `json:"-"`
}

// Decision is the outcome of the best-score policy for one candidate score
type Decision struct {
	Accepted     bool
	Rank         int64
	PreviousBest *int64
	RecordID     string
}

// SubmitResult is either ScoreAccepted or ScoreRejected
type SubmitResult interface {
	// Position is the competition rank the submitted score has (or would have)
	Position() int64
	isSubmitResult()
}

// ScoreAccepted means the score beat the user's previous best and was stored
type ScoreAccepted struct {
	Record       ScoreRecord
	Rank         int64
	PreviousBest *int64
}

// ScoreRejected means the score did not beat the user's best and was not stored
type ScoreRejected struct {
	Rank         int64
	PreviousBest int64
}

func (r ScoreAccepted) Position() int64 { return r.Rank }
func (ScoreAccepted) isSubmitResult()   {}

func (r ScoreRejected) Position() int64 { return r.Rank }
func (ScoreRejected) isSubmitResult()   {}

// Message explains the rejection to the player
func (r ScoreRejected) Message() string {
	return fmt.Sprintf("Score not saved. Your best score is %d", r.PreviousBest)
}

// RankInfo answers "where would this score rank" for a mode
type RankInfo struct {
	Mode  GameMode `json:"mode"`
	Score int64    `json:"score"`
	Rank  int64    `json:"rank"`
}

// RankedEntry is a record together with its competition rank
type RankedEntry struct {
	Rank     int64    `json:"rank"`
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Score    int64    `json:"score"`
	Mode     GameMode `json:"mode"`
	Date     string   `json:"date"`
}

// RankRecords assigns competition ranks to records already sorted by score
// descending. The slice must be a prefix of the full mode listing.
func RankRecords(records []ScoreRecord) []RankedEntry {
	entries := make([]RankedEntry, len(records))
	var rank int64
	for i, r := range records {
		if i == 0 || r.Score != records[i-1].Score {
			rank = int64(i + 1)
		}
		entries[i] = RankedEntry{
			Rank:     rank,
			ID:       r.ID,
			Username: r.Username,
			Score:    r.Score,
			Mode:     r.Mode,
			Date:     r.Date.Format(DateLayout),
		}
	}
	return entries
}
