package store

import "time"

// DefaultReceiptLimit caps ListReceipts when the query sets no limit.
const DefaultReceiptLimit = 50

// ReceiptQuery selects a user's receipts, newest first.
type ReceiptQuery struct {
	Username string
	Since    time.Time // zero means no lower bound on start time
	Limit    int
}

func (q ReceiptQuery) limit() int {
	if q.Limit <= 0 || q.Limit > 500 {
		return DefaultReceiptLimit
	}
	return q.Limit
}
