package journal

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/coopfin/coopfin/internal/ledger/shared"
)

// MoneyScale is the currency precision every entry must balance to.
const MoneyScale = 2

// PostingLineInput describes a journal line for a posting request. The
// account may be referenced by code or by id; code wins when both are set.
type PostingLineInput struct {
	AccountCode string
	AccountID   int64
	Debit       decimal.Decimal
	Credit      decimal.Decimal
}

// PostingInput groups fields required to create a journal entry.
type PostingInput struct {
	TenantID     int64
	Date         time.Time
	Description  string
	SourceModule string
	SourceID     uuid.UUID
	CreatedBy    int64
	Lines        []PostingLineInput
}

// Validate ensures posting input meets minimum criteria before any I/O.
// The account existence/leaf checks happen later, inside the transaction.
func (in PostingInput) Validate() error {
	if in.TenantID == 0 {
		return fmt.Errorf("%w: tenant required", shared.ErrValidation)
	}
	if in.Date.IsZero() {
		return fmt.Errorf("%w: date required", shared.ErrValidation)
	}
	if len(in.Lines) < 2 {
		return shared.ErrTooFewLines
	}
	// Amounts are rounded to MoneyScale before any check, so validation
	// passes judgement on exactly the values that will be stored.
	var debit, credit decimal.Decimal
	for idx, line := range in.Lines {
		if line.AccountCode == "" && line.AccountID == 0 {
			return fmt.Errorf("%w: line %d missing account", shared.ErrValidation, idx)
		}
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			return fmt.Errorf("%w: line %d negative amount", shared.ErrValidation, idx)
		}
		d := line.Debit.Round(MoneyScale)
		c := line.Credit.Round(MoneyScale)
		hasDebit := d.IsPositive()
		hasCredit := c.IsPositive()
		if hasDebit == hasCredit {
			return fmt.Errorf("%w: line %d must set exactly one of debit or credit", shared.ErrValidation, idx)
		}
		debit = debit.Add(d)
		credit = credit.Add(c)
	}
	if !debit.Equal(credit) {
		return shared.ErrUnbalanced
	}
	return nil
}

// ReverseInput wraps parameters for posting a reversing entry.
type ReverseInput struct {
	TenantID    int64
	EntryID     int64
	ActorID     int64
	Date        time.Time
	Description string
}
