// Package backward implements the reverse-time causal backtracer
// (spec.md §4.5): a reachability sweep that reconstructs the minimal
// causal subgraph explaining how a start node came to be, followed by
// an egress-enrichment pass that adds outbound activity of processes
// already implicated.
package backward

import (
	provtraceerrors "provtrace/errors"
	"provtrace/internal/eventindex"
	"provtrace/internal/model"
	"provtrace/internal/noise"
	"provtrace/internal/trace"
)

// StartKind names the three start types the backward tracer accepts.
type StartKind string

const (
	StartInode  StartKind = "inode"
	StartPID    StartKind = "pid"
	StartSocket StartKind = "socket"
)

// passthroughShells are excluded from egress enrichment's
// suspicious_pids set (spec.md §4.5.2 / §9's resolved Open Question):
// the filtered computation is authoritative.
var passthroughShells = map[string]struct{}{
	"/usr/bin/sudo": {}, "/bin/sudo": {}, "/usr/bin/bash": {}, "/bin/bash": {},
}

type edgeMergeKey struct {
	Src, Dst model.NodeID
	Label    string
}

// edgeContribution marks one event (by EID) as already counted toward
// one merged edge, so the egress pass never counts it a second time.
type edgeContribution struct {
	Key edgeMergeKey
	EID int
}

// Backtrack coerces (startType, startID) into a start node and runs
// the backward trace. An unrecognized startType is a programmer-error
// ErrInvalidStartKind.
func Backtrack(idx *eventindex.Index, noiseCfg noise.Config, startType StartKind, startID string, maxHops int) (*model.TraceGraph, error) {
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
	return BacktrackKey(idx, noiseCfg, start, maxHops), nil
}

// BacktrackKey runs the backward trace rooted at an already-resolved
// start node key.
func BacktrackKey(idx *eventindex.Index, noiseCfg noise.Config, start model.NodeKey, maxHops int) *model.TraceGraph {
	g := model.NewTraceGraph()
	interesting := map[model.NodeKey]bool{start: true}
	depth := map[model.NodeKey]int{start: 0}
	g.Intern(start)

	edgeIndex := make(map[edgeMergeKey]int)
	counted := make(map[edgeContribution]bool)

	for _, iev := range idx.Reverse() {
		ev := iev.Event
		for _, c := range trace.DeriveEdges(ev) {
			if !interesting[c.Dst] {
				continue
			}
			if trace.IsNoiseEndpoint(c.Src, c.SrcAttrs, noiseCfg.IsNoiseFile, noiseCfg.IsNoiseSocket) ||
				trace.IsNoiseEndpoint(c.Dst, c.DstAttrs, noiseCfg.IsNoiseFile, noiseCfg.IsNoiseSocket) {
				continue
			}
			dstDepth := depth[c.Dst]
			if dstDepth >= maxHops {
				continue
			}

			srcID := g.Intern(c.Src)
			dstID := g.Intern(c.Dst)
			trace.MergeAttrs(g, c.Src, srcID, c.SrcAttrs)
			trace.MergeAttrs(g, c.Dst, dstID, c.DstAttrs)

			mergeEdge(g, edgeIndex, counted, srcID, dstID, c.Label, iev)

			if !interesting[c.Src] {
				interesting[c.Src] = true
				depth[c.Src] = dstDepth + 1
			}
		}
	}

	enrichEgress(idx, noiseCfg, g, interesting, edgeIndex, counted)

	return g
}

func mergeEdge(g *model.TraceGraph, edgeIndex map[edgeMergeKey]int, counted map[edgeContribution]bool, srcID, dstID model.NodeID, label string, iev eventindex.IndexedEvent) {
	ev := iev.Event
	key := edgeMergeKey{Src: srcID, Dst: dstID, Label: label}
	contrib := edgeContribution{Key: key, EID: iev.EID}
	if counted[contrib] {
		return
	}
	counted[contrib] = true
	if pos, ok := edgeIndex[key]; ok {
		g.Edges[pos].Count++
		return
	}
	g.Edges = append(g.Edges, model.Edge{
		Src: srcID, Dst: dstID, Label: label,
		Timestamp: ev.Timestamp, Count: 1, Order: -1,
	})
	edgeIndex[key] = len(g.Edges) - 1
}

// enrichEgress implements spec.md §4.5.2: after the main reverse
// traversal, filter the implicated proc nodes to exclude pass-through
// shells, then sweep the stream once more adding outbound connects
// and writes for those pids into the same graph.
func enrichEgress(idx *eventindex.Index, noiseCfg noise.Config, g *model.TraceGraph, interesting map[model.NodeKey]bool, edgeIndex map[edgeMergeKey]int, counted map[edgeContribution]bool) {
	suspiciousPIDs := make(map[int]struct{})
	for key := range interesting {
		if key.Kind != model.NodeProc {
			continue
		}
		id, ok := g.Lookup(key)
		if !ok {
			continue
		}
		exe := g.Node(id).Exe
		if _, isShell := passthroughShells[exe]; isShell {
			continue
		}
		suspiciousPIDs[atoi(key.ID)] = struct{}{}
	}

	for _, iev := range idx.Forward() {
		ev := iev.Event
		if ev.PID == nil {
			continue
		}
		if _, ok := suspiciousPIDs[*ev.PID]; !ok {
			continue
		}

		switch ev.Action {
		case model.ActionConnect:
			addr := ev.Socket.Key()
			if noiseCfg.IsNoiseSocket(addr) {
				continue
			}
			srcKey := model.NodeKey{Kind: model.NodeProc, ID: itoa(*ev.PID)}
			dstKey := model.NodeKey{Kind: model.NodeSock, ID: addr}
			srcID := g.Intern(srcKey)
			dstID := g.Intern(dstKey)
			g.MergeProcAttrs(srcID, ev.Exe)
			g.MergeSockAttrs(dstID, ev.Socket)
			mergeEdge(g, edgeIndex, counted, srcID, dstID, string(model.ActionConnect), iev)
		case model.ActionWrite:
			if noiseCfg.IsNoiseFile(ev.FilePath) {
				continue
			}
			srcKey := model.NodeKey{Kind: model.NodeProc, ID: itoa(*ev.PID)}
			dstKey := model.NodeKey{Kind: model.NodeFile, ID: ev.FileKey()}
			srcID := g.Intern(srcKey)
			dstID := g.Intern(dstKey)
			g.MergeProcAttrs(srcID, ev.Exe)
			g.MergeFileAttrs(dstID, ev.Inode, ev.FilePath)
			mergeEdge(g, edgeIndex, counted, srcID, dstID, string(model.ActionWrite), iev)
		}
	}
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

func atoi(s string) int {
	neg := false
	i := 0
	if i < len(s) && (s[i] == '-' || s[i] == '+') {
		neg = s[i] == '-'
		i++
	}
	n := 0
	for ; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			break
		}
		n = n*10 + int(s[i]-'0')
	}
	if neg {
		return -n
	}
	return n
}
