package model

import (
	"encoding/json"
	"time"
)

// SourceRecord is one vendor object as fetched: parsed id/created header plus
// the verbatim payload. The payload lands untouched in the raw tables.
type SourceRecord struct {
	ID      string
	Created int64
	Payload json.RawMessage
}

// RawRecord is the append-only landing row. The same vendor id may appear in
// many rows across runs; Seq exists only to keep inserts unambiguous.
type RawRecord struct {
	Seq             uint64    `gorm:"primaryKey;autoIncrement"`
	RecordID        string    `gorm:"column:id;size:64;not null;index"`
	Payload         string    `gorm:"column:json_data;type:text;not null"`
	IngestedAt      time.Time `gorm:"not null"`
	SourceCreatedAt time.Time
}
