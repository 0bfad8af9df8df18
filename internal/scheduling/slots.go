package scheduling

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// GenerateSlots computes the bookable start times on one day for a service of
// the given duration. The grid is tied to this service's duration: candidates
// step from each block's start by the duration itself, so a 15-minute and a
// 45-minute service produce different grids inside the same block. A block
// shorter than the duration contributes no slots.
//
// day must be midnight in the clinic timezone; blocks are the active work
// blocks for that weekday; busy maps staff id to their blocking-status
// appointment intervals on that day.
//
// The result is ordered by (staff_id, start_time). Determinism here is a hard
// contract relied on by clients and tests.
func GenerateSlots(day time.Time, duration time.Duration, blocks []WorkBlock, busy map[uuid.UUID][]Interval) []Slot {
	if duration <= 0 {
		return nil
	}

	var slots []Slot
	for _, block := range blocks {
		if !block.Active {
			continue
		}
		window := block.WindowOn(day)
		taken := busy[block.StaffID]
		for t := window.Start; !t.Add(duration).After(window.End); t = t.Add(duration) {
			candidate := Interval{Start: t, End: t.Add(duration)}
			if overlapsAny(candidate, taken) {
				continue
			}
			slots = append(slots, Slot{StaffID: block.StaffID, Start: t})
		}
	}

	sort.Slice(slots, func(i, j int) bool {
		if slots[i].StaffID != slots[j].StaffID {
			return slots[i].StaffID.String() < slots[j].StaffID.String()
		}
		return slots[i].Start.Before(slots[j].Start)
	})
	return slots
}
