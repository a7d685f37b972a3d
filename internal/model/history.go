package model

import (
	"database/sql/driver"

	"github.com/lib/pq"
)

// PasswordHistory holds previously active hashes, oldest first.
type PasswordHistory []string

// Contains reports exact hash membership.
func (h PasswordHistory) Contains(hash string) bool {
	for _, entry := range h {
		if entry == hash {
			return true
		}
	}
	return false
}

// Push appends hash and evicts the oldest entries beyond MaxPasswordHistory.
func (h PasswordHistory) Push(hash string) PasswordHistory {
	next := make(PasswordHistory, 0, MaxPasswordHistory)
	next = append(next, h...)
	next = append(next, hash)
	if len(next) > MaxPasswordHistory {
		next = next[len(next)-MaxPasswordHistory:]
	}
	return next
}

// Scan reads a postgres TEXT[] column.
func (h *PasswordHistory) Scan(src interface{}) error {
	var arr pq.StringArray
	if err := arr.Scan(src); err != nil {
		return err
	}
	*h = PasswordHistory(arr)
	return nil
}

func (h PasswordHistory) Value() (driver.Value, error) {
	if h == nil {
		return pq.StringArray{}.Value()
	}
	return pq.StringArray(h).Value()
}
