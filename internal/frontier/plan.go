package frontier

import "github.com/rohmanhakim/catalog-crawler/internal/catalog"

/*
Frontier Responsibilities
- Decide which leaves the enumeration phase walks in this run
- Carry each leaf's resume point (cursor, yielded count, reported total)
- Keep tree discovery order
- Knows nothing about:
	- fetching
	- extraction
	- storage

It is a data structure + policy module, not a pipeline executor.
*/

// Task is one leaf scheduled for enumeration together with the entry it
// starts from.
type Task struct {
	Leaf  catalog.Leaf
	Entry catalog.FrontierEntry
	// Resumed is true when Entry continues a previous run's progress.
	Resumed bool
}

type Schedule struct {
	Tasks []Task
	// Skipped holds the ledger entries of leaves already exhausted.
	Skipped []catalog.FrontierEntry
}

/*
Plan builds the run's frontier from the discovered leaves and the ledger state.

  - Exhausted leaves are skipped.
  - Failed and InProgress leaves resume from their last checkpointed cursor.
  - Pending or unknown leaves start from their seed.
  - forceRescan ignores the ledger and starts every leaf from its seed.
  - A leaf id seen twice is scheduled once, at its first position.
*/
func Plan(leaves []catalog.Leaf, loaded map[string]catalog.FrontierEntry, forceRescan bool) Schedule {
	var schedule Schedule
	seen := NewSet[string]()
	for _, leaf := range leaves {
		if !seen.Add(leaf.ID) {
			continue
		}

		entry, ok := loaded[leaf.ID]
		if forceRescan || !ok {
			schedule.Tasks = append(schedule.Tasks, Task{Leaf: leaf, Entry: catalog.NewFrontierEntry(leaf.ID)})
			continue
		}

		switch entry.Status {
		case catalog.StatusExhausted:
			schedule.Skipped = append(schedule.Skipped, entry)
		case catalog.StatusFailed, catalog.StatusInProgress:
			entry.Warning = ""
			schedule.Tasks = append(schedule.Tasks, Task{Leaf: leaf, Entry: entry, Resumed: true})
		default:
			schedule.Tasks = append(schedule.Tasks, Task{Leaf: leaf, Entry: entry, Resumed: entry.PagesFetched > 0})
		}
	}
	return schedule
}
