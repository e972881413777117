package ledger

import (
	"context"
	"sort"
)

// LogReader lists the entries appended for an account.
type LogReader interface {
	ListLogs(ctx context.Context, accountID string) ([]LogEntry, error)
}

// TransactionLog is the read side of the append-only movement log.
// Appends happen only inside Repository.CommitDeposit/CommitWithdraw.
type TransactionLog struct {
	reader LogReader
}

// NewTransactionLog creates a log view over reader.
func NewTransactionLog(reader LogReader) *TransactionLog {
	return &TransactionLog{reader: reader}
}

// List returns the account's entries in append order (oldest first).
func (l *TransactionLog) List(ctx context.Context, accountID string) ([]LogEntry, error) {
	entries, err := l.reader.ListLogs(ctx, accountID)
	if err != nil {
		return nil, persistenceFailure("list transactions", accountID, "failed to list transactions", err)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Sequence < entries[j].Sequence
	})
	return entries, nil
}
