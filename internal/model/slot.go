package model

// DefaultSlotMinutes is the fixed appointment granularity.
const DefaultSlotMinutes = 30

// Slot is a fixed-duration candidate window [Start, End).
type Slot struct {
	Start TimeOfDay `json:"start"`
	End   TimeOfDay `json:"end"`
}

// SlotAvailability is a slot annotated with whether it can still be booked.
type SlotAvailability struct {
	Time            TimeOfDay `json:"time"`
	DurationMinutes int       `json:"duration_minutes"`
	IsAvailable     bool      `json:"is_available"`
}

// GenerateSlots walks from start to end in steps of size minutes and
// returns every slot whose end does not exceed end.  A trailing remainder
// shorter than size produces no slot.  size must be positive.
func GenerateSlots(start, end TimeOfDay, size int) []Slot {
	if size <= 0 || start >= end {
		return []Slot{}
	}
	out := make([]Slot, 0, (end.Minutes()-start.Minutes())/size)
	for t := start; t.Add(size) <= end; t = t.Add(size) {
		out = append(out, Slot{Start: t, End: t.Add(size)})
	}
	return out
}
