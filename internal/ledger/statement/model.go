package statement

import (
	"time"

	"github.com/shopspring/decimal"
)

// Line is one posting replayed into a statement, with the running balance
// immediately after it.
type Line struct {
	Date           time.Time
	EntryNumber    string
	Description    string
	Debit          decimal.Decimal
	Credit         decimal.Decimal
	RunningBalance decimal.Decimal
}

// Statement is the reconstruction of an account over a date range.
type Statement struct {
	AccountID      int64
	AccountCode    string
	From           time.Time
	To             time.Time
	OpeningBalance decimal.Decimal
	Lines          []Line
	ClosingBalance decimal.Decimal
	TotalDebit     decimal.Decimal
	TotalCredit    decimal.Decimal
}
