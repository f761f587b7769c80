package models

import "time"

// Record is the local shadow of one tracked item.
//
// LocalKey is assigned by the store and never reused. RemoteID is empty
// until the server has acknowledged the record; once set it never changes.
// A record is Synced only when it carries a RemoteID and matches the
// server copy as of UpdatedAt. Deleted marks a row whose remote delete is
// still unconfirmed; such rows are hidden from queries.
type Record[T Payload] struct {
	LocalKey  int64
	RemoteID  string
	OwnerID   string
	Data      T
	CreatedAt time.Time
	UpdatedAt time.Time
	Synced    bool
	Deleted   bool
}

// Patch lists the fields of a record to overwrite. Nil fields are kept.
type Patch[T Payload] struct {
	RemoteID  *string
	Data      *T
	UpdatedAt *time.Time
	Synced    *bool
	Deleted   *bool
}

// Empty reports whether the patch changes nothing.
func (p Patch[T]) Empty() bool {
	return p.RemoteID == nil && p.Data == nil && p.UpdatedAt == nil && p.Synced == nil && p.Deleted == nil
}

// Ptr returns a pointer to v. Handy for building patches.
func Ptr[V any](v V) *V {
	return &v
}

// Filter restricts a query to one day or an inclusive range of days.
// The zero Filter matches every record, including undated ones.
type Filter struct {
	Date string
	From string
	To   string
}

// Match reports whether a record filed under day passes the filter.
func (f Filter) Match(day string) bool {
	if f.Date != "" {
		return day == f.Date
	}
	if f.From != "" && day < f.From {
		return false
	}
	if f.To != "" && day > f.To {
		return false
	}
	return true
}

// IsZero reports whether the filter matches everything.
func (f Filter) IsZero() bool {
	return f == Filter{}
}

// Window returns the filter covering the days days ending at now.
func Window(now time.Time, days int) Filter {
	return Filter{From: Today(now.AddDate(0, 0, -days)), To: Today(now)}
}
