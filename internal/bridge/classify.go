package bridge

import "strings"

// Kind is the three-way classification of an outgoing SQL command.
type Kind int

const (
	// KindOther is ordinary DML/DDL, the common case.
	KindOther Kind = iota
	// KindBegin opens a database-native transaction.
	KindBegin
	// KindCommitOrRollback closes the current database-native transaction.
	KindCommitOrRollback
)

// Classify inspects a SQL command and reports whether it is a
// transaction-boundary command. The match is a case-insensitive prefix test
// after trimming whitespace, mirroring how the underlying connection
// recognizes its transaction verbs. A statement that merely starts with
// "begin" (say, a call to a procedure named begin_import) is classified as
// KindBegin.
func Classify(sqlText string) Kind {
	s := strings.ToLower(strings.TrimSpace(sqlText))
	switch {
	case strings.HasPrefix(s, "begin"):
		return KindBegin
	case strings.HasPrefix(s, "commit"), strings.HasPrefix(s, "rollback"):
		return KindCommitOrRollback
	default:
		return KindOther
	}
}

// ReadOnly reports whether a statement can be served through the read path
// (Query) without touching storage state.
func ReadOnly(sqlText string) bool {
	s := strings.ToLower(strings.TrimSpace(sqlText))
	for _, prefix := range []string{"select", "with", "pragma", "explain", "values"} {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}

// TxState tracks whether the next ordinary statement dispatched on one
// logical connection should be wrapped in an implicit transaction by the
// executor. One TxState belongs to exactly one Adapter; it is plain instance
// state and is not safe for concurrent use (the caller serializes all
// operations on an adapter).
type TxState struct {
	wrapNext bool
}

// NewTxState returns a TxState with the given initial flag value. The usual
// initial value is true: assume a transaction must be opened before the
// first statement.
func NewTxState(wrapFirst bool) *TxState {
	return &TxState{wrapNext: wrapFirst}
}

// Before applies the pre-dispatch transition for a command of kind k and
// returns the wrap-in-transaction flag the dispatch must carry. A commit or
// rollback flips the flag back to true first, so the statement immediately
// following it is again treated as needing a fresh implicit wrap.
func (s *TxState) Before(k Kind) bool {
	if k == KindCommitOrRollback {
		s.wrapNext = true
	}
	return s.wrapNext
}

// After applies the post-dispatch transition. Statements following an
// explicit begin are already inside the transaction it opened, so they must
// not each be individually wrapped.
func (s *TxState) After(k Kind) {
	if k == KindBegin {
		s.wrapNext = false
	}
}

// WrapNext reports the current flag value.
func (s *TxState) WrapNext() bool { return s.wrapNext }
