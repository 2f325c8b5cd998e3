package engine

import (
	"errors"
	"fmt"
)

// DefaultMaxFirings bounds how many rules one entity may fire in one tick.
// A topic with n listeners costs up to n firings per broadcast rule, so
// the quota is what keeps an n² blow-up from stalling a tick.
const DefaultMaxFirings = 100000

// Quota counts the firings of one entity during one tick.
//
// Not thread-safe: each update owns its own Quota.
type Quota struct {
	owner   string
	limit   int
	current int
}

// NewQuota creates a quota for owner. A limit of zero or less disables it.
func NewQuota(owner string, limit int) *Quota {
	return &Quota{owner: owner, limit: limit}
}

// Check counts one firing and fails once the limit is passed.
func (q *Quota) Check() error {
	q.current++
	if q.limit > 0 && q.current > q.limit {
		return &FiringsExceededError{Owner: q.owner, Firings: q.current, Limit: q.limit}
	}
	return nil
}

// Current returns the number of firings counted so far.
func (q *Quota) Current() int {
	return q.current
}

// Limit returns the configured limit.
func (q *Quota) Limit() int {
	return q.limit
}

// FiringsExceededError ends an entity's update for the rest of the tick.
type FiringsExceededError struct {
	Owner   string
	Firings int
	Limit   int
}

// Error implements the error interface.
func (e *FiringsExceededError) Error() string {
	return fmt.Sprintf("%s exceeded firing quota: %d firings > %d limit", e.Owner, e.Firings, e.Limit)
}

// IsFiringsExceededError reports whether err is a FiringsExceededError.
func IsFiringsExceededError(err error) bool {
	var fe *FiringsExceededError
	return errors.As(err, &fe)
}
