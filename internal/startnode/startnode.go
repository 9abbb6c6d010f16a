// Package startnode infers the start node a tracer is rooted at from
// a detection's triggering event, per spec.md §4.7.
//
// Backward start priority is inode -> socket (dst preferred, else
// src) -> pid; forward start priority is pid, falling back to the
// backward start. These orderings resolve the "start-node priority
// disagreement" Open Question (spec.md §9) using the original
// implementation's main.py as the tiebreaker.
package startnode

import "provtrace/internal/model"

// Kind names the three start types a tracer accepts.
type Kind int

const (
	KindInode Kind = iota
	KindPID
	KindSocket
)

// InferBackward derives the backward tracer's start node from a
// detection's event: inode -> socket -> pid.
func InferBackward(ev model.Event) (model.NodeKey, bool) {
	if ev.Inode != "" {
		return model.NodeKey{Kind: model.NodeFile, ID: ev.Inode}, true
	}
	if ev.Socket.HasDst() || ev.Socket.HasSrc() {
		return model.NodeKey{Kind: model.NodeSock, ID: ev.Socket.Key()}, true
	}
	if ev.PID != nil {
		return model.NodeKey{Kind: model.NodeProc, ID: itoa(*ev.PID)}, true
	}
	return model.NodeKey{}, false
}

// InferForward derives the forward tracer's start node: the event's
// pid if present, else the backward start (which must already have
// been computed by the caller).
func InferForward(ev model.Event, backward *model.NodeKey) (model.NodeKey, bool) {
	if ev.PID != nil {
		return model.NodeKey{Kind: model.NodeProc, ID: itoa(*ev.PID)}, true
	}
	if backward != nil {
		return *backward, true
	}
	return model.NodeKey{}, false
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
