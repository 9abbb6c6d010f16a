// Package eventindex holds the materialized normalized events and
// produces the forward-time and reverse-time orderings the two
// tracers iterate over, plus the per-process metadata the forward
// tracer needs for process-tree augmentation and activity digests.
package eventindex

import (
	"sort"
	"time"

	"provtrace/internal/model"
)

// IndexedEvent pairs a normalized event with its original stream
// position, the position the tracers use to break timestamp ties
// deterministically.
type IndexedEvent struct {
	EID int
	model.Event
}

// ProcMeta accumulates what the index has learned about a pid from
// any event mentioning it.
type ProcMeta struct {
	PPID     *int
	Exe      string
	Children map[int]struct{}
}

// ActivityEntry is one line of a process's activity history, used to
// build the forward tracer's per-node activity_label.
type ActivityEntry struct {
	Timestamp *time.Time
	Action    model.Action
	Target    string
}

// Index is the immutable, once-built view over a parsed event stream.
type Index struct {
	Events []IndexedEvent

	reverseOrder []int
	forwardOrder []int

	ProcMeta     map[int]*ProcMeta
	ProcActivity map[int][]ActivityEntry
}

// New builds an Index from a normalized event slice. The index is
// immutable once constructed.
func New(events []model.Event) *Index {
	idx := &Index{
		Events:       make([]IndexedEvent, len(events)),
		ProcMeta:     make(map[int]*ProcMeta),
		ProcActivity: make(map[int][]ActivityEntry),
	}
	for i, ev := range events {
		idx.Events[i] = IndexedEvent{EID: i, Event: ev}
		idx.recordProcMeta(ev)
		idx.recordActivity(ev)
	}

	idx.reverseOrder = make([]int, len(events))
	idx.forwardOrder = make([]int, len(events))
	for i := range events {
		idx.reverseOrder[i] = i
		idx.forwardOrder[i] = i
	}

	sort.SliceStable(idx.reverseOrder, func(a, b int) bool {
		return lessReverse(idx.Events[idx.reverseOrder[a]], idx.Events[idx.reverseOrder[b]])
	})
	sort.SliceStable(idx.forwardOrder, func(a, b int) bool {
		return lessForward(idx.Events[idx.forwardOrder[a]], idx.Events[idx.forwardOrder[b]])
	})

	return idx
}

// lessReverse orders a before b in reverse-time (descending) order;
// missing timestamps sort first (treated as "newest" sentinels).
func lessReverse(a, b IndexedEvent) bool {
	if a.Timestamp == nil && b.Timestamp == nil {
		return a.EID < b.EID
	}
	if a.Timestamp == nil {
		return true
	}
	if b.Timestamp == nil {
		return false
	}
	if a.Timestamp.Equal(*b.Timestamp) {
		return a.EID < b.EID
	}
	return a.Timestamp.After(*b.Timestamp)
}

// lessForward orders a before b in forward-time (ascending) order;
// missing timestamps sort first (treated as "oldest" sentinels).
func lessForward(a, b IndexedEvent) bool {
	if a.Timestamp == nil && b.Timestamp == nil {
		return a.EID < b.EID
	}
	if a.Timestamp == nil {
		return true
	}
	if b.Timestamp == nil {
		return false
	}
	if a.Timestamp.Equal(*b.Timestamp) {
		return a.EID < b.EID
	}
	return a.Timestamp.Before(*b.Timestamp)
}

// Reverse iterates the index's events in reverse-time order.
func (idx *Index) Reverse() []IndexedEvent {
	out := make([]IndexedEvent, len(idx.reverseOrder))
	for i, pos := range idx.reverseOrder {
		out[i] = idx.Events[pos]
	}
	return out
}

// Forward iterates the index's events in forward-time order.
func (idx *Index) Forward() []IndexedEvent {
	out := make([]IndexedEvent, len(idx.forwardOrder))
	for i, pos := range idx.forwardOrder {
		out[i] = idx.Events[pos]
	}
	return out
}

func (idx *Index) procMeta(pid int) *ProcMeta {
	pm, ok := idx.ProcMeta[pid]
	if !ok {
		pm = &ProcMeta{Children: make(map[int]struct{})}
		idx.ProcMeta[pid] = pm
	}
	return pm
}

func (idx *Index) recordProcMeta(ev model.Event) {
	if ev.PID == nil {
		return
	}
	pid := *ev.PID
	pm := idx.procMeta(pid)
	if ev.Exe != "" && pm.Exe == "" {
		pm.Exe = ev.Exe
	}
	if ev.PPID != nil {
		ppid := *ev.PPID
		if pm.PPID == nil {
			pm.PPID = &ppid
		}
		parent := idx.procMeta(ppid)
		parent.Children[pid] = struct{}{}
	}
}

// resolveTarget mirrors the original forward tracer's target
// resolution priority: file_path -> inode -> socket dst -> socket src.
func resolveTarget(ev model.Event) string {
	if ev.FilePath != "" {
		return ev.FilePath
	}
	if ev.Inode != "" {
		return ev.Inode
	}
	if ev.Socket.HasDst() {
		return ev.Socket.Key()
	}
	if ev.Socket.HasSrc() {
		return model.SocketTuple{SrcIP: ev.Socket.SrcIP, SrcPort: ev.Socket.SrcPort}.Key()
	}
	return ""
}

func (idx *Index) recordActivity(ev model.Event) {
	if ev.PID == nil {
		return
	}
	pid := *ev.PID
	idx.ProcActivity[pid] = append(idx.ProcActivity[pid], ActivityEntry{
		Timestamp: ev.Timestamp,
		Action:    ev.Action,
		Target:    resolveTarget(ev),
	})
}
