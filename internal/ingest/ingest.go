// Package ingest reads NDJSON audit records line-by-line and exposes
// them to the Normalizer as a schema-agnostic value tree, without
// aborting the stream on a malformed line.
package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"

	provtraceerrors "provtrace/errors"
	"provtrace/logging"
)

// RawRecord wraps a single decoded NDJSON line as an untyped value
// tree and provides typed accessors into the nested audit schema
// (`auditd.*`, `process.*`, `file.*`, `destination.*`, `source.*`,
// `tags`) without copying the data into a second struct.
type RawRecord map[string]any

func (r RawRecord) path(keys ...string) (any, bool) {
	var cur any = map[string]any(r)
	for _, k := range keys {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[k]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func asString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case []any:
		if len(t) == 0 {
			return "", false
		}
		return asString(t[0])
	default:
		return "", false
	}
}

func asFloat(v any) (float64, bool) {
	f, ok := v.(float64)
	return f, ok
}

// AuditdSyscall returns auditd.data.syscall.
func (r RawRecord) AuditdSyscall() (string, bool) {
	v, ok := r.path("auditd", "data", "syscall")
	if !ok {
		return "", false
	}
	return asString(v)
}

// EventAction returns event.action.
func (r RawRecord) EventAction() (string, bool) {
	v, ok := r.path("event", "action")
	if !ok {
		return "", false
	}
	return asString(v)
}

// AuditdSummaryAction returns auditd.summary.action.
func (r RawRecord) AuditdSummaryAction() (string, bool) {
	v, ok := r.path("auditd", "summary", "action")
	if !ok {
		return "", false
	}
	return asString(v)
}

// RawSyscallName resolves the priority chain from spec §4.1:
// auditd.data.syscall, then event.action, then auditd.summary.action.
func (r RawRecord) RawSyscallName() (string, bool) {
	if s, ok := r.AuditdSyscall(); ok {
		return s, true
	}
	if s, ok := r.EventAction(); ok {
		return s, true
	}
	if s, ok := r.AuditdSummaryAction(); ok {
		return s, true
	}
	return "", false
}

// Paths returns the auditd.paths array, each entry as a RawRecord.
func (r RawRecord) Paths() []RawRecord {
	v, ok := r.path("auditd", "paths")
	if !ok {
		return nil
	}
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]RawRecord, 0, len(arr))
	for _, e := range arr {
		if m, ok := e.(map[string]any); ok {
			out = append(out, RawRecord(m))
		}
	}
	return out
}

// Inode returns this path-entry's inode (auditd.paths[].inode), as a string.
func (r RawRecord) Inode() (string, bool) {
	v, ok := r["inode"]
	if !ok {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, t != ""
	case float64:
		return itoa64(t), true
	default:
		return "", false
	}
}

// Name returns this path-entry's name (file path).
func (r RawRecord) Name() (string, bool) {
	if v, ok := r["name"]; ok {
		return asString(v)
	}
	return "", false
}

// ProcessPID returns process.pid.
func (r RawRecord) ProcessPID() (int, bool) {
	v, ok := r.path("process", "pid")
	if !ok {
		return 0, false
	}
	f, ok := asFloat(v)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// ProcessPPID returns process.parent.pid (or process.ppid as a fallback).
func (r RawRecord) ProcessPPID() (int, bool) {
	if v, ok := r.path("process", "parent", "pid"); ok {
		if f, ok := asFloat(v); ok {
			return int(f), true
		}
	}
	if v, ok := r.path("process", "ppid"); ok {
		if f, ok := asFloat(v); ok {
			return int(f), true
		}
	}
	return 0, false
}

// ProcessExe returns process.executable.
func (r RawRecord) ProcessExe() (string, bool) {
	v, ok := r.path("process", "executable")
	if !ok {
		return "", false
	}
	return asString(v)
}

// FilePath returns file.path.
func (r RawRecord) FilePath() (string, bool) {
	v, ok := r.path("file", "path")
	if !ok {
		return "", false
	}
	return asString(v)
}

// FileInode returns file.inode.
func (r RawRecord) FileInode() (string, bool) {
	v, ok := r.path("file", "inode")
	if !ok {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, t != ""
	case float64:
		return itoa64(t), true
	default:
		return "", false
	}
}

// DestIP returns destination.ip.
func (r RawRecord) DestIP() (string, bool) {
	v, ok := r.path("destination", "ip")
	if !ok {
		return "", false
	}
	return asString(v)
}

// DestPort returns destination.port.
func (r RawRecord) DestPort() (int, bool) {
	v, ok := r.path("destination", "port")
	if !ok {
		return 0, false
	}
	f, ok := asFloat(v)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// SourceIP returns source.ip.
func (r RawRecord) SourceIP() (string, bool) {
	v, ok := r.path("source", "ip")
	if !ok {
		return "", false
	}
	return asString(v)
}

// SourcePort returns source.port.
func (r RawRecord) SourcePort() (int, bool) {
	v, ok := r.path("source", "port")
	if !ok {
		return 0, false
	}
	f, ok := asFloat(v)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// Timestamp returns @timestamp (or event.created as a fallback).
func (r RawRecord) Timestamp() (string, bool) {
	if v, ok := r["@timestamp"]; ok {
		if s, ok := asString(v); ok {
			return s, true
		}
	}
	if v, ok := r.path("event", "created"); ok {
		return asString(v)
	}
	return "", false
}

// Tags returns the record's tags array.
func (r RawRecord) Tags() []string {
	v, ok := r["tags"]
	if !ok {
		return nil
	}
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, e := range arr {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func itoa64(f float64) string {
	n := int64(f)
	if float64(n) != f {
		return ""
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	if n == 0 {
		i--
		buf[i] = '0'
	}
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Reader yields one RawRecord per non-blank NDJSON line.
type Reader struct {
	scanner *bufio.Scanner
	line    int
}

// NewReader wraps r as a line-oriented NDJSON source.
func NewReader(r io.Reader) *Reader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return &Reader{scanner: s}
}

// ReadAll consumes the entire stream, logging and skipping any line
// that fails to parse as JSON (spec.md §7: MalformedRecord is per-line
// and never aborts the stream).
func (rd *Reader) ReadAll(ctx context.Context) []RawRecord {
	var out []RawRecord
	for rd.scanner.Scan() {
		rd.line++
		line := strings.TrimSpace(rd.scanner.Text())
		if line == "" {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			logging.WarnContext(ctx, "skipping malformed audit record",
				"line", rd.line,
				"error", provtraceerrors.Wrap(err, provtraceerrors.ErrMalformedRecord, "ingest.ReadAll"))
			continue
		}
		out = append(out, RawRecord(rec))
	}
	return out
}
