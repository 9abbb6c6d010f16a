// Package render emits the two output artifacts spec.md §6 defines:
// the JSON detections summary and a per-detection, per-direction DOT
// graph suitable for visualization.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"provtrace/internal/model"
)

// detectionJSON is one entry of the detections summary. It carries the
// index, matched tags, start keys, backtrack error and report paths;
// the triggering event and the trace graphs are not serialized.
type detectionJSON struct {
	Index          int                `json:"index"`
	MatchedTags    []string           `json:"matched_tags"`
	BacktrackStart string             `json:"backtrack_start,omitempty"`
	BacktrackError string             `json:"backtrack_error,omitempty"`
	ForwardStart   string             `json:"forward_start,omitempty"`
	Reports        *reportsJSON       `json:"reports,omitempty"`
}

type reportsJSON struct {
	BackwardDOT string `json:"backward_dot,omitempty"`
	ForwardDOT  string `json:"forward_dot,omitempty"`
}

type summaryJSON struct {
	Detections []detectionJSON `json:"detections"`
	Total      int             `json:"total"`
}

// WriteJSON writes the {"detections": [...], "total": N} envelope.
func WriteJSON(w io.Writer, detections []model.Detection) error {
	summary := summaryJSON{Total: len(detections)}
	for _, d := range detections {
		dj := detectionJSON{
			Index:          d.Index,
			MatchedTags:    d.MatchedTags,
			BacktrackError: d.BacktrackError,
		}
		if d.BacktrackStart != nil {
			dj.BacktrackStart = d.BacktrackStart.Kind.String() + ":" + d.BacktrackStart.ID
		}
		if d.ForwardStart != nil {
			dj.ForwardStart = d.ForwardStart.Kind.String() + ":" + d.ForwardStart.ID
		}
		if d.Reports.BackwardDOT != "" || d.Reports.ForwardDOT != "" {
			dj.Reports = &reportsJSON{
				BackwardDOT: d.Reports.BackwardDOT,
				ForwardDOT:  d.Reports.ForwardDOT,
			}
		}
		summary.Detections = append(summary.Detections, dj)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}

// nodeStyle is the original export_dot's color-coded node styling,
// keyed by node kind.
var nodeStyle = map[model.NodeKind]struct {
	Shape string
	Fill  string
	Color string
}{
	model.NodeProc: {Shape: "ellipse", Fill: "#E1BEE7", Color: "#4A148C"},
	model.NodeFile: {Shape: "box", Fill: "#B3E5FC", Color: "#01579B"},
	model.NodeSock: {Shape: "diamond", Fill: "#FFE0B2", Color: "#E65100"},
}

func nodeLabel(n model.Node) string {
	switch n.Kind {
	case model.NodeProc:
		if n.Exe != "" {
			return fmt.Sprintf("pid %d\\n%s", n.PID, n.Exe)
		}
		return fmt.Sprintf("pid %d", n.PID)
	case model.NodeFile:
		if n.Path != "" {
			return n.Path
		}
		return "inode " + n.Inode
	case model.NodeSock:
		return n.Addr
	default:
		return ""
	}
}

func dotNodeID(kind model.NodeKind, idx int) string {
	return fmt.Sprintf("%s_%d", kind.String(), idx)
}

// WriteDOT renders a single detection's trace graph to
// <dir>/<direction>/<direction>_<index>.dot and returns the path
// written.
func WriteDOT(dir string, index int, direction string, g model.TraceGraph) (string, error) {
	subdir := filepath.Join(dir, direction)
	if err := os.MkdirAll(subdir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(subdir, fmt.Sprintf("%s_%d.dot", direction, index))

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var b strings.Builder
	b.WriteString("digraph provenance {\n")
	b.WriteString("  rankdir=LR;\n")

	ids := make([]string, len(g.Nodes))
	for i, n := range g.Nodes {
		style := nodeStyle[n.Kind]
		id := dotNodeID(n.Kind, i)
		ids[i] = id
		label := nodeLabel(n)
		if n.ActivityLabel != "" {
			label += "\\n" + strings.ReplaceAll(n.ActivityLabel, "\n", "\\n")
		}
		fmt.Fprintf(&b, "  %s [shape=%s style=filled fillcolor=%q color=%q label=%q];\n",
			id, style.Shape, style.Fill, style.Color, label)
	}

	isForward := direction == "forward"
	for _, e := range g.Edges {
		srcID := ids[e.Src]
		dstID := ids[e.Dst]
		label := edgeLabel(e, isForward)
		fmt.Fprintf(&b, "  %s -> %s [label=%q];\n", srcID, dstID, label)
	}

	b.WriteString("}\n")

	if _, err := f.WriteString(b.String()); err != nil {
		return "", err
	}
	return path, nil
}

func edgeLabel(e model.Edge, isForward bool) string {
	action := e.Label
	if !isForward {
		action = e.RenderedAction()
	}
	ts := ""
	if e.Timestamp != nil {
		ts = e.Timestamp.Format("15:04:05")
	}
	label := action
	if ts != "" {
		label = action + "\n" + ts
	}
	if isForward && e.Order >= 0 {
		label = fmt.Sprintf("[%d] %s", e.Order, label)
	}
	return label
}
