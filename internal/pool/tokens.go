package pool

import "sync/atomic"

// Token is a concurrency slot lent by a token pool. Holding one grants
// permission to run a single unit of work.
type Token uint64

// NewTokenPool returns a pool of tokens bounded by ThreadBounds. Its capacity
// is the number of tasks that may run at once.
func NewTokenPool(name string) *Pool[Token] {
	var next atomic.Uint64
	return New(name, ThreadBounds, func() (Token, error) {
		return Token(next.Add(1)), nil
	})
}
