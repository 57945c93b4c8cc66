package storage

import (
	"time"
)

// CurrentSchemaVersion is written into every saved HistoryDocument.
const CurrentSchemaVersion = "1.0.0"

// HistoryDocument is the persisted form of one console history.
// This is the top-level object serialized to a file.
type HistoryDocument struct {
	Version       string        `json:"version"`        // Schema version, for forward-compatibility.
	Type          string        `json:"type"`           // History type, e.g. the console language.
	PersistenceID string        `json:"persistence_id"` // Optional isolation identifier.
	UpdatedAt     time.Time     `json:"updated_at"`     // Timestamp of the last save.
	Dropped       int           `json:"dropped"`        // Total entries removed by explicit truncation.
	Entries       []EntryRecord `json:"entries"`        // Oldest first.
}

// EntryRecord is one submitted input line.
type EntryRecord struct {
	Seq       uint64    `json:"seq"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Key returns the key the document is stored under.
func (d *HistoryDocument) Key() Key {
	return Key{Type: d.Type, PersistenceID: d.PersistenceID}
}

// Texts returns the entry texts in order.
func (d *HistoryDocument) Texts() []string {
	out := make([]string, len(d.Entries))
	for i, e := range d.Entries {
		out[i] = e.Text
	}
	return out
}

// clone returns a deep copy so callers can never alias stored state.
func (d *HistoryDocument) clone() *HistoryDocument {
	cp := *d
	cp.Entries = append([]EntryRecord(nil), d.Entries...)
	return &cp
}
