package trace

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"
)

// ErrNotFound is returned when a trace id has no sealed record.
var ErrNotFound = errors.New("trace not found")

// Step is one reasoning step in a turn, ordered by Seq.
type Step struct {
	Seq       int         `json:"seq"`
	Stage     string      `json:"stage"`
	Input     interface{} `json:"input"`
	Output    interface{} `json:"output"`
	Timestamp time.Time   `json:"timestamp"`
}

// Record is the sealed chain-of-thought for one conversation turn. Records
// are written once and immutable thereafter.
type Record struct {
	TraceID          string    `db:"trace_id" json:"trace_id"`
	UserID           string    `db:"user_id" json:"user_id"`
	Steps            []Step    `db:"steps" json:"steps"`
	FinalDisposition string    `db:"final_disposition" json:"final_disposition"`
	StartedAt        time.Time `db:"started_at" json:"started_at"`
	SealedAt         time.Time `db:"sealed_at" json:"sealed_at"`
}

// NewTraceID mints the public trace id, e.g. "tr_9f86d081884c7d65".
func NewTraceID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return "tr_" + hex.EncodeToString(b)
}
