package database

import (
	"context"
	"fmt"
)

// NextNumber atomically advances the named counter and formats the issued
// value as PREFIX-000001. Call it with the transaction that inserts the row
// carrying the number so a rolled back insert also rolls back the counter.
func NextNumber(ctx context.Context, q Querier, name, prefix string) (string, error) {
	var n int64
	err := q.QueryRowContext(ctx, `
		INSERT INTO sequences (name, value) VALUES (?, 1)
		ON CONFLICT(name) DO UPDATE SET value = value + 1
		RETURNING value`, name).Scan(&n)
	if err != nil {
		return "", fmt.Errorf("advance sequence %s: %w", name, err)
	}
	return fmt.Sprintf("%s-%06d", prefix, n), nil
}
