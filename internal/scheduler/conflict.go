package scheduler

import (
	"sort"
	"time"
)

// Slot is a time window held by one owner, such as an instructor's session.
type Slot struct {
	ID      string
	OwnerID string
	Start   time.Time
	End     time.Time
}

// Conflict names an existing slot that overlaps the candidate for the same owner.
type Conflict struct {
	WithID  string
	OwnerID string
	Start   time.Time
	End     time.Time
}

// Overlaps reports whether two half-open windows [Start, End) intersect.
func Overlaps(a, b Slot) bool {
	if !a.Start.Before(a.End) || !b.Start.Before(b.End) {
		return false
	}
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// DetectConflicts returns the existing slots of the candidate's owner that
// overlap it, ordered by start time. The candidate itself is ignored when it
// appears in existing.
func DetectConflicts(existing []Slot, candidate Slot) []Conflict {
	var conflicts []Conflict
	for _, slot := range existing {
		if slot.ID == candidate.ID || slot.OwnerID != candidate.OwnerID {
			continue
		}
		if !Overlaps(slot, candidate) {
			continue
		}
		conflicts = append(conflicts, Conflict{
			WithID:  slot.ID,
			OwnerID: slot.OwnerID,
			Start:   slot.Start,
			End:     slot.End,
		})
	}
	sort.SliceStable(conflicts, func(i, j int) bool {
		return conflicts[i].Start.Before(conflicts[j].Start)
	})
	return conflicts
}
