package shared

import "errors"

var (
	// ErrUnbalanced indicates debit != credit across an entry's lines.
	ErrUnbalanced = errors.New("ledger: journal lines must balance")
	// ErrTooFewLines indicates less than two lines.
	ErrTooFewLines = errors.New("ledger: journal requires at least two lines")
	// ErrAccountNotFound indicates the posting target does not exist.
	ErrAccountNotFound = errors.New("ledger: account not found")
	// ErrAccountInactiveOrGroup indicates the target cannot receive postings.
	ErrAccountInactiveOrGroup = errors.New("ledger: account is inactive or a group")
	// ErrDuplicateCode indicates an account code collision within a tenant.
	ErrDuplicateCode = errors.New("ledger: account code already exists")
	// ErrDuplicateEntryNumber indicates the sequence retry budget was exhausted.
	ErrDuplicateEntryNumber = errors.New("ledger: journal entry number collision")
	// ErrJournalNotFound indicates missing entry.
	ErrJournalNotFound = errors.New("ledger: journal entry not found")
	// ErrSourceAlreadyLinked indicates the source document was already posted.
	ErrSourceAlreadyLinked = errors.New("ledger: source already linked to a journal entry")
	// ErrSourceConflict indicates the source link row already exists.
	ErrSourceConflict = errors.New("ledger: source link conflict")
	// ErrValidation indicates malformed posting input.
	ErrValidation = errors.New("ledger: invalid input")
)
