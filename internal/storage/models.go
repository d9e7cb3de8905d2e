package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// dateLayout is the WooCommerce REST date format (site time, no zone).
const dateLayout = "2006-01-02T15:04:05"

// Record is one stored resource item. Fields holds everything except the
// columns the store manages itself.
type Record struct {
	Resource  string
	ID        int64
	Status    string
	Fields    map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// managed fields are owned by the store and ignored on write.
var managed = map[string]bool{
	"id":            true,
	"status":        true,
	"date_created":  true,
	"date_modified": true,
}

// Item renders the record the way the REST API returns it.
func (r Record) Item() map[string]any {
	out := make(map[string]any, len(r.Fields)+4)
	for k, v := range r.Fields {
		out[k] = v
	}
	out["id"] = r.ID
	if r.Status != "" {
		out["status"] = r.Status
	}
	out["date_created"] = r.CreatedAt.UTC().Format(dateLayout)
	out["date_modified"] = r.UpdatedAt.UTC().Format(dateLayout)
	return out
}

// ListOptions filters and pages ListRecords.
type ListOptions struct {
	Status  string
	Search  string
	Include []int64
	// OrderBy is "id" or "date" (the default).
	OrderBy string
	// Order is "asc" or "desc" (the default).
	Order  string
	Limit  int
	Offset int
}
