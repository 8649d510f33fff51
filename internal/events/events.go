// Package events describes the notifications a ledger store emits after a
// successful write-through, for consumers such as the spreadsheet mirror.
package events

import (
	"context"
	"encoding/json"
	"time"
)

// Collection names the part of a ledger that was written.
type Collection string

const (
	Expenses Collection = "expenses"
	Goals    Collection = "goals"
)

// LedgerSynced is published once a collection has been persisted.
// It carries no records: consumers read the current state themselves.
type LedgerSynced struct {
	UserID     string     `json:"userId"`
	Owner      string     `json:"owner,omitempty"`
	Collection Collection `json:"collection"`
	Count      int        `json:"count"`
	Timestamp  time.Time  `json:"timestamp"`
}

func NewLedgerSynced(userID string, c Collection, count int) LedgerSynced {
	return LedgerSynced{
		UserID:     userID,
		Collection: c,
		Count:      count,
		Timestamp:  time.Now().UTC(),
	}
}

// ToJSON converts the event to JSON bytes
func (e LedgerSynced) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// LedgerSyncedFromJSON decodes an event body.
func LedgerSyncedFromJSON(data []byte) (LedgerSynced, error) {
	var e LedgerSynced
	err := json.Unmarshal(data, &e)
	return e, err
}

type Publisher interface {
	PublishLedgerSynced(ctx context.Context, e LedgerSynced) error
	Close() error
}

// Nop discards every event. It is used when no events backend is configured.
type Nop struct{}

func (Nop) PublishLedgerSynced(context.Context, LedgerSynced) error { return nil }
func (Nop) Close() error                                            { return nil }
