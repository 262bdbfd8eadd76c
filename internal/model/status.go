package model

import (
	"fmt"
	"strings"
)

// Status is the appointment lifecycle state.  Values are written out in
// PascalCase; ParseStatus accepts any casing plus the aliases used by
// older clients.
type Status string

const (
	StatusPending    Status = "Pending"
	StatusConfirmed  Status = "Confirmed"
	StatusInProgress Status = "InProgress"
	StatusCompleted  Status = "Completed"
	StatusCancelled  Status = "Cancelled"
	StatusNoShow     Status = "NoShow"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{
	StatusPending, StatusConfirmed, StatusInProgress,
	StatusCompleted, StatusCancelled, StatusNoShow,
}

// ParseStatus normalizes s by lower-casing it and dropping separators,
// then matches it against the canonical set.  "scheduled" is the legacy
// name for Pending.
func ParseStatus(s string) (Status, error) {
	key := strings.NewReplacer("_", "", "-", "", " ", "").Replace(strings.ToLower(strings.TrimSpace(s)))
	switch key {
	case "pending", "scheduled":
		return StatusPending, nil
	case "confirmed":
		return StatusConfirmed, nil
	case "inprogress":
		return StatusInProgress, nil
	case "completed":
		return StatusCompleted, nil
	case "cancelled", "canceled":
		return StatusCancelled, nil
	case "noshow":
		return StatusNoShow, nil
	}
	return "", fmt.Errorf("invalid status %q: must be one of Pending, Confirmed, InProgress, Completed, Cancelled, NoShow", s)
}

// rank is the position on the forward path.  Side exits have no rank.
func (s Status) rank() int {
	switch s {
	case StatusPending:
		return 1
	case StatusConfirmed:
		return 2
	case StatusInProgress:
		return 3
	case StatusCompleted:
		return 4
	case StatusCancelled, StatusNoShow:
		return 0
	}
	return -1
}

// Valid reports whether s is a defined status.
func (s Status) Valid() bool { return s.rank() >= 0 }

// Terminal reports whether no further transition is possible from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	case StatusPending, StatusConfirmed, StatusInProgress:
		return false
	}
	return false
}

// CanTransition reports whether the lifecycle permits moving from s to
// next.  Moves go forward along Pending, Confirmed, InProgress, Completed
// (skipping is allowed) or sideways into Cancelled or NoShow from any
// non-terminal state.
func (s Status) CanTransition(next Status) bool {
	if !s.Valid() || !next.Valid() || s.Terminal() || s == next {
		return false
	}
	switch next {
	case StatusCancelled, StatusNoShow:
		return true
	case StatusPending, StatusConfirmed, StatusInProgress, StatusCompleted:
		return next.rank() > s.rank()
	}
	return false
}

func (s Status) String() string { return string(s) }
