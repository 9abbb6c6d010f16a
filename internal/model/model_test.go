package model

import "testing"

func TestSocketTupleKey(t *testing.T) {
	tests := []struct {
		name string
		s    SocketTuple
		want string
	}{
		{"dst preferred", SocketTuple{SrcIP: "10.0.0.1", SrcPort: 1111, DstIP: "1.2.3.4", DstPort: 443}, "1.2.3.4:443"},
		{"src only", SocketTuple{SrcIP: "10.0.0.1", SrcPort: 1111}, "10.0.0.1:1111"},
		{"empty", SocketTuple{}, ""},
		{"zero port still has ip", SocketTuple{DstIP: "1.2.3.4"}, "1.2.3.4:0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.s.Key(); got != tt.want {
				t.Errorf("Key() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEventFileKey(t *testing.T) {
	e := Event{Inode: "42", FilePath: "/tmp/p"}
	if got := e.FileKey(); got != "42" {
		t.Errorf("FileKey() = %q, want 42", got)
	}
	e2 := Event{FilePath: "/tmp/p"}
	if got := e2.FileKey(); got != "/tmp/p" {
		t.Errorf("FileKey() = %q, want /tmp/p", got)
	}
}

func TestEventHasTag(t *testing.T) {
	e := Event{Tags: []string{"a", "b"}}
	if !e.HasTag("a") {
		t.Error("expected HasTag(a) true")
	}
	if e.HasTag("c") {
		t.Error("expected HasTag(c) false")
	}
}

func TestNodeKeyByKind(t *testing.T) {
	proc := Node{Kind: NodeProc, PID: 7}
	if got := proc.Key(); got != (NodeKey{Kind: NodeProc, ID: "7"}) {
		t.Errorf("proc key = %+v", got)
	}

	fileWithInode := Node{Kind: NodeFile, Inode: "10", Path: "/tmp/x"}
	if got := fileWithInode.Key(); got != (NodeKey{Kind: NodeFile, ID: "10"}) {
		t.Errorf("file key prefers inode, got %+v", got)
	}

	fileNoInode := Node{Kind: NodeFile, Path: "/tmp/x"}
	if got := fileNoInode.Key(); got != (NodeKey{Kind: NodeFile, ID: "/tmp/x"}) {
		t.Errorf("file key falls back to path, got %+v", got)
	}

	sock := Node{Kind: NodeSock, Addr: "1.2.3.4:80"}
	if got := sock.Key(); got != (NodeKey{Kind: NodeSock, ID: "1.2.3.4:80"}) {
		t.Errorf("sock key = %+v", got)
	}
}

func TestTraceGraphInternIsIdempotent(t *testing.T) {
	g := NewTraceGraph()
	key := NodeKey{Kind: NodeProc, ID: "123"}
	id1 := g.Intern(key)
	id2 := g.Intern(key)
	if id1 != id2 {
		t.Errorf("Intern not idempotent: %v != %v", id1, id2)
	}
	if len(g.Nodes) != 1 {
		t.Errorf("expected 1 node, got %d", len(g.Nodes))
	}
	if g.Node(id1).PID != 123 {
		t.Errorf("expected pid 123, got %d", g.Node(id1).PID)
	}
}

func TestTraceGraphInternFileKind(t *testing.T) {
	g := NewTraceGraph()
	inodeKey := NodeKey{Kind: NodeFile, ID: "9001"}
	id := g.Intern(inodeKey)
	if g.Node(id).Inode != "9001" {
		t.Errorf("expected numeric key interned as inode, got %+v", g.Node(id))
	}

	pathKey := NodeKey{Kind: NodeFile, ID: "/tmp/payload"}
	id2 := g.Intern(pathKey)
	if g.Node(id2).Path != "/tmp/payload" {
		t.Errorf("expected non-numeric key interned as path, got %+v", g.Node(id2))
	}
}

func TestMergeFileAttrs_InodeOverwritesPathFirstWins(t *testing.T) {
	g := NewTraceGraph()
	id := g.Intern(NodeKey{Kind: NodeFile, ID: "/tmp/p"})

	g.MergeFileAttrs(id, "1", "/tmp/p")
	g.MergeFileAttrs(id, "2", "/tmp/other")

	n := g.Node(id)
	if n.Inode != "2" {
		t.Errorf("expected inode overwritten to 2, got %q", n.Inode)
	}
	if n.Path != "/tmp/p" {
		t.Errorf("expected path to remain first-seen value, got %q", n.Path)
	}
}

func TestMergeProcAttrs_ExeFirstWins(t *testing.T) {
	g := NewTraceGraph()
	id := g.Intern(NodeKey{Kind: NodeProc, ID: "1"})

	g.MergeProcAttrs(id, "/bin/bash")
	g.MergeProcAttrs(id, "/bin/other")

	if got := g.Node(id).Exe; got != "/bin/bash" {
		t.Errorf("expected exe to remain first-seen value, got %q", got)
	}
}

func TestMergeSockAttrs_FirstWinsPerField(t *testing.T) {
	g := NewTraceGraph()
	id := g.Intern(NodeKey{Kind: NodeSock, ID: "1.2.3.4:443"})

	g.MergeSockAttrs(id, SocketTuple{SrcIP: "10.0.0.1", SrcPort: 111})
	g.MergeSockAttrs(id, SocketTuple{SrcIP: "10.0.0.2", SrcPort: 222, DstIP: "1.2.3.4", DstPort: 443})

	n := g.Node(id)
	if n.SrcIP != "10.0.0.1" || n.SrcPort != 111 {
		t.Errorf("expected first-seen src to stick, got %+v", n)
	}
	if n.DstIP != "1.2.3.4" || n.DstPort != 443 {
		t.Errorf("expected dst to populate from second merge, got %+v", n)
	}
}

func TestEdgeRenderedAction(t *testing.T) {
	single := Edge{Label: "write", Count: 1}
	if got := single.RenderedAction(); got != "write" {
		t.Errorf("RenderedAction() = %q, want write", got)
	}

	multi := Edge{Label: "write", Count: 3}
	if got := multi.RenderedAction(); got != "write (x3)" {
		t.Errorf("RenderedAction() = %q, want write (x3)", got)
	}
}
