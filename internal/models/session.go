package models

import "time"

// Session is an ordered batch of items sharing a session key. The key is
// the handle callers use to resume an interrupted batch.
type Session struct {
	Key       string
	Items     []*UploadItem
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Item returns the item with the given id, or nil.
func (s *Session) Item(id string) *UploadItem {
	for _, it := range s.Items {
		if it.ID == id {
			return it
		}
	}
	return nil
}

// Complete reports whether every item has reached a terminal status.
func (s *Session) Complete() bool {
	for _, it := range s.Items {
		if !it.Status.Terminal() {
			return false
		}
	}
	return true
}

// Tally is the derived aggregate view of a session. It is always computed
// by scanning the items, never maintained as separate counters. Aborted
// items are excluded from the counts and from the progress denominator.
type Tally struct {
	Succeeded     int
	Failed        int
	Pending       int
	TotalProgress int
}

// Tally scans the current item states and derives the aggregate.
func (s *Session) Tally() Tally {
	var t Tally
	var sum, n int
	for _, it := range s.Items {
		switch it.Status {
		case StatusSucceeded:
			t.Succeeded++
		case StatusFailed:
			t.Failed++
		case StatusAborted:
			continue
		default:
			t.Pending++
		}
		sum += it.Progress
		n++
	}
	if n > 0 {
		t.TotalProgress = sum / n
	}
	return t
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	c := &Session{Key: s.Key, CreatedAt: s.CreatedAt, UpdatedAt: s.UpdatedAt}
	c.Items = make([]*UploadItem, 0, len(s.Items))
	for _, it := range s.Items {
		c.Items = append(c.Items, it.Clone())
	}
	return c
}
