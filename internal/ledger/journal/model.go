package journal

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// JournalEntry captures posting metadata. Entries are immutable once
// created; corrections are posted as reversing entries.
type JournalEntry struct {
	ID           int64
	TenantID     int64
	Number       string
	Seq          int64
	Year         int
	Date         time.Time
	Description  string
	SourceModule string
	SourceID     uuid.UUID
	CreatedBy    int64
	CreatedAt    time.Time
	Lines        []Posting
}

// Posting stores a debit or credit amount for an account within an entry.
// Exactly one of Debit/Credit is nonzero.
type Posting struct {
	ID        int64
	JournalID int64
	AccountID int64
	Debit     decimal.Decimal
	Credit    decimal.Decimal
	CreatedAt time.Time
}
