// Package trace holds the edge-derivation logic shared by the
// backward and forward tracers (spec.md §4.5.1): turning a single
// normalized event into the zero, one, or two graph edges it implies.
package trace

import "provtrace/internal/model"

// EndpointAttrs carries the attribute values to merge onto one edge
// endpoint. Only the fields relevant to that endpoint's NodeKind are
// meaningful.
type EndpointAttrs struct {
	Exe    string
	Inode  string
	Path   string
	Socket model.SocketTuple
}

// Candidate is one derived edge: an endpoint pair, a label, and the
// attribute values each endpoint should be merged with.
type Candidate struct {
	Src, Dst       model.NodeKey
	SrcAttrs       EndpointAttrs
	DstAttrs       EndpointAttrs
	Label          string
	IsForkAncestry bool
}

func procKey(pid int) model.NodeKey {
	return model.NodeKey{Kind: model.NodeProc, ID: itoa(pid)}
}

func fileKey(ev model.Event) model.NodeKey {
	return model.NodeKey{Kind: model.NodeFile, ID: ev.FileKey()}
}

func sockKey(ev model.Event) model.NodeKey {
	return model.NodeKey{Kind: model.NodeSock, ID: ev.Socket.Key()}
}

// DeriveEdges derives the graph edges implied by a single normalized
// event, per spec.md §4.5.1: the event's own data-flow edge (if any)
// plus, independently, a "fork" ancestry edge whenever ppid is
// present and differs from pid.
func DeriveEdges(ev model.Event) []Candidate {
	var out []Candidate

	if ev.PID != nil {
		pid := *ev.PID
		procAttrs := EndpointAttrs{Exe: ev.Exe}

		switch ev.EdgeDir {
		case model.EdgeDirProcessToFile:
			out = append(out, Candidate{
				Src: procKey(pid), SrcAttrs: procAttrs,
				Dst: fileKey(ev), DstAttrs: EndpointAttrs{Inode: ev.Inode, Path: ev.FilePath},
				Label: string(ev.Action),
			})
		case model.EdgeDirFileToProcess:
			out = append(out, Candidate{
				Src: fileKey(ev), SrcAttrs: EndpointAttrs{Inode: ev.Inode, Path: ev.FilePath},
				Dst: procKey(pid), DstAttrs: procAttrs,
				Label: string(ev.Action),
			})
		case model.EdgeDirProcessToSocket:
			out = append(out, Candidate{
				Src: procKey(pid), SrcAttrs: procAttrs,
				Dst: sockKey(ev), DstAttrs: EndpointAttrs{Socket: ev.Socket},
				Label: string(ev.Action),
			})
		case model.EdgeDirSocketToProcess:
			out = append(out, Candidate{
				Src: sockKey(ev), SrcAttrs: EndpointAttrs{Socket: ev.Socket},
				Dst: procKey(pid), DstAttrs: procAttrs,
				Label: string(ev.Action),
			})
		}

		if ev.PPID != nil && *ev.PPID != pid {
			out = append(out, Candidate{
				Src: procKey(*ev.PPID), SrcAttrs: EndpointAttrs{},
				Dst: procKey(pid), DstAttrs: procAttrs,
				Label:          "fork",
				IsForkAncestry: true,
			})
		}
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

// MergeAttrs applies a as the observation for graph node id, per the
// merge rule appropriate to its kind (spec.md §3: inode overwrites,
// path/exe/socket fields are first-observation-wins).
func MergeAttrs(g *model.TraceGraph, key model.NodeKey, id model.NodeID, a EndpointAttrs) {
	switch key.Kind {
	case model.NodeProc:
		g.MergeProcAttrs(id, a.Exe)
	case model.NodeFile:
		g.MergeFileAttrs(id, a.Inode, a.Path)
	case model.NodeSock:
		g.MergeSockAttrs(id, a.Socket)
	}
}

// IsNoiseEndpoint reports whether a candidate endpoint should be
// treated as noise, using the noise predicate appropriate to its kind.
func IsNoiseEndpoint(key model.NodeKey, a EndpointAttrs, isNoiseFile func(string) bool, isNoiseSocket func(string) bool) bool {
	switch key.Kind {
	case model.NodeFile:
		return isNoiseFile(a.Path)
	case model.NodeSock:
		return isNoiseSocket(a.Socket.Key())
	default:
		return false
	}
}
