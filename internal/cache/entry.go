// Package cache provides the generic two-tier (memory + disk) cache with
// stale-while-revalidate that backs every cacheable lookup: accumulated
// catalog state, metadata and search results.
package cache

import (
	"encoding/json"
	"time"
)

// Entry is the unit stored in both tiers. The memory expiry is the value's
// logical TTL; the disk expiry bounds how long a stale value may still be
// served while a refresh runs in the background.
type Entry struct {
	Key             string          `json:"key"`
	Value           json.RawMessage `json:"value"`
	MemoryExpiresAt time.Time       `json:"memoryExpiresAt"`
	DiskExpiresAt   time.Time       `json:"diskExpiresAt"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// Fresh reports whether the value is within its logical TTL.
func (e *Entry) Fresh(now time.Time) bool {
	return now.Before(e.MemoryExpiresAt)
}

// Retained reports whether a stale value is still within the disk retention
// window and may be served while revalidating.
func (e *Entry) Retained(now time.Time) bool {
	return now.Before(e.DiskExpiresAt)
}

// Status describes the outcome of a cache lookup.
type Status int

const (
	StatusMiss Status = iota
	StatusMemory
	StatusDisk
)

func (s Status) String() string {
	switch s {
	case StatusMemory:
		return "memory"
	case StatusDisk:
		return "disk"
	default:
		return "miss"
	}
}
