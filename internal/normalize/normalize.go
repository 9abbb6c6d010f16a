// Package normalize maps raw audit records onto the engine's typed
// normalized events: a canonical action, actor/target identifiers,
// and an edge direction.
package normalize

import (
	"strings"
	"time"

	"provtrace/internal/ingest"
	"provtrace/internal/model"
)

var syscallAliases = map[string]string{
	"execve":   "exec",
	"execveat": "exec",
	"openat":   "open",
	"accept4":  "accept",
}

var canonicalAction = map[string]model.Action{
	"exec":    model.ActionExec,
	"open":    model.ActionRead,
	"read":    model.ActionRead,
	"mmap":    model.ActionRead,
	"write":   model.ActionWrite,
	"connect": model.ActionConnect,
	"sendto":  model.ActionConnect,
	"sendmsg": model.ActionConnect,
	"accept":  model.ActionAccept,
	"recvfrom": model.ActionAccept,
	"fork":    model.ActionFork,
	"vfork":   model.ActionFork,
	"clone":   model.ActionFork,
}

var edgeDirForAction = map[model.Action]model.EdgeDir{
	model.ActionExec:    model.EdgeDirFileToProcess,
	model.ActionRead:    model.EdgeDirFileToProcess,
	model.ActionWrite:   model.EdgeDirProcessToFile,
	model.ActionConnect: model.EdgeDirProcessToSocket,
	model.ActionAccept:  model.EdgeDirSocketToProcess,
	model.ActionFork:    model.EdgeDirNone,
}

// canonicalize resolves the raw syscall name through the alias table
// and the source->canonical mapping table from spec.md §4.1.
func canonicalize(raw string) (model.Action, bool) {
	name := strings.ToLower(strings.TrimSpace(raw))
	if alias, ok := syscallAliases[name]; ok {
		name = alias
	}
	action, ok := canonicalAction[name]
	return action, ok
}

// applyTagOverride implements the tag-driven reclassification rule:
// attacker_write/attacker_attr/dl_dir force "write"; attacker_read
// forces "read".
func applyTagOverride(action model.Action, tags []string) model.Action {
	for _, t := range tags {
		switch t {
		case "attacker_write", "attacker_attr", "dl_dir":
			return model.ActionWrite
		}
	}
	for _, t := range tags {
		if t == "attacker_read" {
			return model.ActionRead
		}
	}
	return action
}

func parseTimestamp(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return nil
}

func intPtr(n int) *int {
	return &n
}

// Normalize maps a single raw record to zero or more normalized
// events, per the emission rules of spec.md §4.1. It never returns an
// error: unknown canonical actions and missing socket tuples simply
// yield fewer events (spec.md §7 leniency).
func Normalize(rec ingest.RawRecord) []model.Event {
	rawName, ok := rec.RawSyscallName()
	if !ok {
		return nil
	}
	action, ok := canonicalize(rawName)
	if !ok {
		return nil
	}

	tags := rec.Tags()
	action = applyTagOverride(action, tags)
	ts := parseTimestampFromRecord(rec)

	pid, hasPID := rec.ProcessPID()
	ppid, hasPPID := rec.ProcessPPID()
	exe, _ := rec.ProcessExe()

	base := model.Event{
		Timestamp: ts,
		Action:    action,
		Exe:       exe,
		Tags:      tags,
		EdgeDir:   edgeDirForAction[action],
	}
	if hasPID {
		base.PID = intPtr(pid)
	}
	if hasPPID {
		base.PPID = intPtr(ppid)
	}

	switch action {
	case model.ActionExec:
		return emitExec(rec, base)
	case model.ActionRead, model.ActionWrite:
		return emitFileEvents(rec, base)
	case model.ActionConnect, model.ActionAccept:
		return emitSocketEvent(rec, base)
	case model.ActionFork:
		return emitFork(base)
	default:
		return nil
	}
}

func parseTimestampFromRecord(rec ingest.RawRecord) *time.Time {
	raw, ok := rec.Timestamp()
	if !ok {
		return nil
	}
	return parseTimestamp(raw)
}

// emitExec attaches the inode of the paths-array entry matching the
// process executable, if any.
func emitExec(rec ingest.RawRecord, base model.Event) []model.Event {
	if base.PID == nil {
		return nil
	}
	ev := base
	ev.FilePath = ev.Exe
	for _, p := range rec.Paths() {
		name, _ := p.Name()
		if name != "" && name == ev.Exe {
			if inode, ok := p.Inode(); ok {
				ev.Inode = inode
			}
			break
		}
	}
	return []model.Event{ev}
}

// emitFileEvents emits one event per entry in the paths array that
// carries a name or an inode; entries with neither are skipped, and a
// record without a pid yields no events.
func emitFileEvents(rec ingest.RawRecord, base model.Event) []model.Event {
	if base.PID == nil {
		return nil
	}
	paths := rec.Paths()
	out := make([]model.Event, 0, len(paths))
	for _, p := range paths {
		ev := base
		if name, ok := p.Name(); ok {
			ev.FilePath = name
		}
		if inode, ok := p.Inode(); ok {
			ev.Inode = inode
		}
		if ev.FilePath == "" && ev.Inode == "" {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// emitSocketEvent emits a single event iff a usable socket tuple can
// be assembled from destination/source fields.
func emitSocketEvent(rec ingest.RawRecord, base model.Event) []model.Event {
	if base.PID == nil {
		return nil
	}
	tuple := model.SocketTuple{}
	if ip, ok := rec.DestIP(); ok {
		tuple.DstIP = ip
	}
	if port, ok := rec.DestPort(); ok {
		tuple.DstPort = port
	}
	if ip, ok := rec.SourceIP(); ok {
		tuple.SrcIP = ip
	}
	if port, ok := rec.SourcePort(); ok {
		tuple.SrcPort = port
	}
	if !tuple.HasDst() && !tuple.HasSrc() {
		return nil
	}
	ev := base
	ev.Socket = tuple
	return []model.Event{ev}
}

// emitFork emits a single bare event carrying pid/ppid only.
func emitFork(base model.Event) []model.Event {
	if base.PID == nil {
		return nil
	}
	return []model.Event{base}
}
