// Package forward implements the forward-time taint-propagation
// tracer (spec.md §4.6): starting from a tainted node, it propagates
// influence forward through time, augments the result with the full
// known process tree, and attaches a per-process activity digest for
// rendering.
package forward

import (
	"time"

	provtraceerrors "provtrace/errors"
	"provtrace/internal/eventindex"
	"provtrace/internal/model"
	"provtrace/internal/noise"
	"provtrace/internal/trace"
)

// StartKind names the three start types the forward tracer accepts.
type StartKind string

const (
	StartInode  StartKind = "inode"
	StartPID    StartKind = "pid"
	StartSocket StartKind = "socket"
)

type edgeMergeKey struct {
	Src, Dst model.NodeID
	Label    string
}

const maxActivityLines = 4

// Forward coerces (startType, startID) into a start node and runs the
// forward trace. An unrecognized startType is a programmer-error
// ErrInvalidStartKind.
func Forward(idx *eventindex.Index, noiseCfg noise.Config, startType StartKind, startID string, startTimestamp, timeCutoff *time.Time, maxHops int) (*model.TraceGraph, error) {
	var start model.NodeKey
	switch startType {
	case StartInode:
		start = model.NodeKey{Kind: model.NodeFile, ID: startID}
	case StartPID:
		start = model.NodeKey{Kind: model.NodeProc, ID: startID}
	case StartSocket:
		start = model.NodeKey{Kind: model.NodeSock, ID: startID}
	default:
		return nil, provtraceerrors.ErrStartKindInvalid
	}
	return ForwardKey(idx, noiseCfg, start, startTimestamp, timeCutoff, maxHops), nil
}

// ForwardKey runs the forward trace rooted at an already-resolved
// start node key.
func ForwardKey(idx *eventindex.Index, noiseCfg noise.Config, start model.NodeKey, startTimestamp, timeCutoff *time.Time, maxHops int) *model.TraceGraph {
	g := model.NewTraceGraph()
	depth := map[model.NodeKey]int{start: 0}
	g.Intern(start)

	edgeIndex := make(map[edgeMergeKey]bool)
	nextOrder := 0

	for _, iev := range idx.Forward() {
		ev := iev.Event

		if ev.Timestamp != nil {
			if startTimestamp != nil && ev.Timestamp.Before(*startTimestamp) {
				continue
			}
			if timeCutoff != nil && ev.Timestamp.After(*timeCutoff) {
				break
			}
		}

		candidates := trace.DeriveEdges(ev)
		if ev.PPID != nil && ev.PID != nil && *ev.PPID != *ev.PID {
			procAttrs := trace.EndpointAttrs{Exe: ev.Exe}
			parentKey := model.NodeKey{Kind: model.NodeProc, ID: itoa(*ev.PPID)}
			childKey := model.NodeKey{Kind: model.NodeProc, ID: itoa(*ev.PID)}
			candidates = append(candidates,
				trace.Candidate{Src: parentKey, Dst: childKey, DstAttrs: procAttrs, Label: string(model.ActionProcTreeDown)},
				trace.Candidate{Src: childKey, SrcAttrs: procAttrs, Dst: parentKey, Label: string(model.ActionProcTreeUp)},
			)
		}

		for _, c := range candidates {
			srcDepth, ok := depth[c.Src]
			if !ok {
				continue
			}
			if srcDepth+1 > maxHops {
				continue
			}
			if trace.IsNoiseEndpoint(c.Src, c.SrcAttrs, noiseCfg.IsNoiseFile, noiseCfg.IsNoiseSocket) ||
				trace.IsNoiseEndpoint(c.Dst, c.DstAttrs, noiseCfg.IsNoiseFile, noiseCfg.IsNoiseSocket) {
				continue
			}

			srcID := g.Intern(c.Src)
			dstID := g.Intern(c.Dst)
			trace.MergeAttrs(g, c.Src, srcID, c.SrcAttrs)
			trace.MergeAttrs(g, c.Dst, dstID, c.DstAttrs)

			isTreeEdge := c.Label == string(model.ActionProcTreeDown) || c.Label == string(model.ActionProcTreeUp)
			key := edgeMergeKey{Src: srcID, Dst: dstID, Label: c.Label}
			if !edgeIndex[key] {
				edgeIndex[key] = true
				order := -1
				if !isTreeEdge {
					order = nextOrder
					nextOrder++
				}
				g.Edges = append(g.Edges, model.Edge{
					Src: srcID, Dst: dstID, Label: c.Label,
					Timestamp: ev.Timestamp, Count: 1, Order: order,
				})
			}

			if cur, ok := depth[c.Dst]; !ok || srcDepth+1 < cur {
				depth[c.Dst] = srcDepth + 1
			}
		}
	}

	augmentProcessTree(idx, g, edgeIndex)
	attachActivityDigests(idx, g, startTimestamp)

	return g
}

// augmentProcessTree connects every process node already in the
// result to its known parent and children, regardless of whether that
// traffic carried taint (spec.md §4.6 "Process-tree augmentation").
func augmentProcessTree(idx *eventindex.Index, g *model.TraceGraph, edgeIndex map[edgeMergeKey]bool) {
	procPIDs := make([]int, 0)
	for _, n := range g.Nodes {
		if n.Kind == model.NodeProc {
			procPIDs = append(procPIDs, n.PID)
		}
	}

	addTreeEdge := func(srcKey, dstKey model.NodeKey, label string) {
		srcID := g.Intern(srcKey)
		dstID := g.Intern(dstKey)
		key := edgeMergeKey{Src: srcID, Dst: dstID, Label: label}
		if edgeIndex[key] {
			return
		}
		edgeIndex[key] = true
		g.Edges = append(g.Edges, model.Edge{Src: srcID, Dst: dstID, Label: label, Order: -1})
	}

	for _, pid := range procPIDs {
		pm, ok := idx.ProcMeta[pid]
		if !ok {
			continue
		}
		childKey := model.NodeKey{Kind: model.NodeProc, ID: itoa(pid)}
		if pm.PPID != nil && *pm.PPID != pid {
			parentKey := model.NodeKey{Kind: model.NodeProc, ID: itoa(*pm.PPID)}
			addTreeEdge(parentKey, childKey, string(model.ActionProcTreeDown))
			addTreeEdge(childKey, parentKey, string(model.ActionProcTreeUp))
		}
		for child := range pm.Children {
			if child == pid {
				continue
			}
			grandchildKey := model.NodeKey{Kind: model.NodeProc, ID: itoa(child)}
			addTreeEdge(childKey, grandchildKey, string(model.ActionProcTreeDown))
			addTreeEdge(grandchildKey, childKey, string(model.ActionProcTreeUp))
		}
	}
}

// attachActivityDigests sets each process node's ActivityLabel to up
// to four lines of "{timestamp} {action} {target}", skipping entries
// before startTimestamp.
func attachActivityDigests(idx *eventindex.Index, g *model.TraceGraph, startTimestamp *time.Time) {
	for i := range g.Nodes {
		n := &g.Nodes[i]
		if n.Kind != model.NodeProc {
			continue
		}
		entries := idx.ProcActivity[n.PID]
		var lines []string
		for _, e := range entries {
			if startTimestamp != nil && e.Timestamp != nil && e.Timestamp.Before(*startTimestamp) {
				continue
			}
			ts := "?"
			if e.Timestamp != nil {
				ts = e.Timestamp.Format(time.RFC3339)
			}
			lines = append(lines, ts+" "+string(e.Action)+" "+e.Target)
			if len(lines) >= maxActivityLines {
				break
			}
		}
		n.ActivityLabel = joinLines(lines)
	}
}

func joinLines(lines []string) string {
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += "\n"
		}
		out += l
	}
	return out
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
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
