package driver

import (
	"context"
	"strings"
	"testing"

	"provtrace/internal/config"
	"provtrace/internal/tagpool"
)

func loadPool(t *testing.T, tags string) *tagpool.Pool {
	t.Helper()
	p, err := tagpool.Parse([]byte(tags))
	if err != nil {
		t.Fatalf("failed to build tag pool: %v", err)
	}
	return p
}

// TestRun_DropAndExecute covers the canonical "drop a payload, then
// execute it" scenario: the payload's exec is tagged, and the
// backward trace must recover the write that dropped it.
func TestRun_DropAndExecute(t *testing.T) {
	ndjson := strings.Join([]string{
		`{"@timestamp":"2026-01-01T00:00:01Z","auditd":{"data":{"syscall":"write"},"paths":[{"name":"/tmp/payload","inode":"77"}]},"process":{"pid":100,"executable":"/bin/bash"}}`,
		`{"@timestamp":"2026-01-01T00:00:02Z","auditd":{"data":{"syscall":"execve"},"paths":[{"name":"/tmp/payload","inode":"77"}]},"process":{"pid":200,"parent":{"pid":100},"executable":"/tmp/payload"},"tags":["attacker_exec"]}`,
	}, "\n")

	pool := loadPool(t, `["attacker_exec"]`)
	cfg := config.Default()
	cfg.ReportDir = ""

	result, err := Run(context.Background(), strings.NewReader(ndjson), pool, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.RunID == "" {
		t.Error("expected a non-empty run id")
	}
	if len(result.Detections) != 1 {
		t.Fatalf("expected 1 detection, got %d", len(result.Detections))
	}

	d := result.Detections[0]
	if d.BacktrackError != "" {
		t.Fatalf("expected backward start to resolve, got error: %s", d.BacktrackError)
	}
	if d.Trace == nil {
		t.Fatal("expected a backward trace graph")
	}

	foundWrite := false
	for _, e := range d.Trace.Edges {
		if e.Label == "write" {
			foundWrite = true
		}
	}
	if !foundWrite {
		t.Error("expected backward trace to recover the write that dropped the payload")
	}
}

// TestRun_NoisePruning checks that an exec'd shell used only to launch
// the tagged payload does not pull noise (e.g. /bin/bash itself) into
// the backward trace.
func TestRun_NoisePruning(t *testing.T) {
	ndjson := strings.Join([]string{
		`{"@timestamp":"2026-01-01T00:00:01Z","auditd":{"data":{"syscall":"execve"},"paths":[{"name":"/bin/bash"}]},"process":{"pid":100,"executable":"/bin/bash"}}`,
		`{"@timestamp":"2026-01-01T00:00:02Z","auditd":{"data":{"syscall":"execve"},"paths":[{"name":"/tmp/payload","inode":"77"}]},"process":{"pid":200,"parent":{"pid":100},"executable":"/tmp/payload"},"tags":["attacker_exec"]}`,
	}, "\n")

	pool := loadPool(t, `["attacker_exec"]`)
	cfg := config.Default()
	cfg.ReportDir = ""

	result, err := Run(context.Background(), strings.NewReader(ndjson), pool, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	d := result.Detections[0]
	for _, n := range d.Trace.Nodes {
		if n.Path == "/bin/bash" {
			t.Error("expected /bin/bash to be pruned as noise, found in trace nodes")
		}
	}
}

// TestRun_HopBoundLimitsDepth verifies a chain of causes longer than
// max_hops is truncated.
func TestRun_HopBoundLimitsDepth(t *testing.T) {
	ndjson := strings.Join([]string{
		`{"@timestamp":"2026-01-01T00:00:01Z","auditd":{"data":{"syscall":"write"},"paths":[{"name":"/tmp/origin"}]},"process":{"pid":9,"executable":"/tmp/dropper"}}`,
		`{"@timestamp":"2026-01-01T00:00:02Z","auditd":{"data":{"syscall":"execve"},"paths":[{"name":"/tmp/origin"}]},"process":{"pid":1,"executable":"/tmp/origin"}}`,
		`{"@timestamp":"2026-01-01T00:00:03Z","auditd":{"data":{"syscall":"write"},"paths":[{"name":"/tmp/payload"}]},"process":{"pid":1,"executable":"/tmp/origin"}}`,
		`{"@timestamp":"2026-01-01T00:00:04Z","auditd":{"data":{"syscall":"execve"},"paths":[{"name":"/tmp/payload"}]},"process":{"pid":2,"parent":{"pid":1},"executable":"/tmp/payload"},"tags":["attacker_exec"]}`,
	}, "\n")

	pool := loadPool(t, `["attacker_exec"]`)

	cfgShallow := config.Default()
	cfgShallow.ReportDir = ""
	cfgShallow.MaxHops = 1

	result, err := Run(context.Background(), strings.NewReader(ndjson), pool, cfgShallow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d := result.Detections[0]
	found := false
	for _, n := range d.Trace.Nodes {
		if n.Path == "/tmp/origin" {
			found = true
		}
	}
	if found {
		t.Error("expected /tmp/origin to be beyond the max_hops=1 bound")
	}

	cfgDeep := config.Default()
	cfgDeep.ReportDir = ""
	cfgDeep.MaxHops = 5

	result2, err := Run(context.Background(), strings.NewReader(ndjson), pool, cfgDeep)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d2 := result2.Detections[0]
	found = false
	for _, n := range d2.Trace.Nodes {
		if n.Path == "/tmp/origin" {
			found = true
		}
	}
	if !found {
		t.Error("expected /tmp/origin reachable at max_hops=5")
	}
}

// TestRun_MultiplicityCounted verifies repeated identical writes to
// the same target merge into a single backward edge with Count>1.
func TestRun_MultiplicityCounted(t *testing.T) {
	ndjson := strings.Join([]string{
		`{"@timestamp":"2026-01-01T00:00:01Z","auditd":{"data":{"syscall":"write"},"paths":[{"name":"/tmp/payload"}]},"process":{"pid":100,"executable":"/tmp/dropper"}}`,
		`{"@timestamp":"2026-01-01T00:00:02Z","auditd":{"data":{"syscall":"write"},"paths":[{"name":"/tmp/payload"}]},"process":{"pid":100,"executable":"/tmp/dropper"}}`,
		`{"@timestamp":"2026-01-01T00:00:03Z","auditd":{"data":{"syscall":"execve"},"paths":[{"name":"/tmp/payload"}]},"process":{"pid":200,"parent":{"pid":100},"executable":"/tmp/payload"},"tags":["attacker_exec"]}`,
	}, "\n")

	pool := loadPool(t, `["attacker_exec"]`)
	cfg := config.Default()
	cfg.ReportDir = ""

	result, err := Run(context.Background(), strings.NewReader(ndjson), pool, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	d := result.Detections[0]
	var writeCount int
	for _, e := range d.Trace.Edges {
		if e.Label == "write" {
			writeCount = e.Count
		}
	}
	if writeCount != 2 {
		t.Errorf("expected merged write edge with count 2, got %d", writeCount)
	}
}

// TestRun_ForwardTreeAugmentation verifies a detection's forward trace
// includes a process spawned from the tagged process even though no
// further tainted data flowed through it.
func TestRun_ForwardTreeAugmentation(t *testing.T) {
	ndjson := strings.Join([]string{
		`{"@timestamp":"2026-01-01T00:00:01Z","auditd":{"data":{"syscall":"execve"},"paths":[{"name":"/tmp/payload"}]},"process":{"pid":200,"executable":"/tmp/payload"},"tags":["attacker_exec"]}`,
		`{"@timestamp":"2026-01-01T00:00:02Z","auditd":{"data":{"syscall":"clone"}},"process":{"pid":300,"parent":{"pid":200}}}`,
	}, "\n")

	pool := loadPool(t, `["attacker_exec"]`)
	cfg := config.Default()
	cfg.ReportDir = ""

	result, err := Run(context.Background(), strings.NewReader(ndjson), pool, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	d := result.Detections[0]
	if d.ForwardTrace == nil {
		t.Fatal("expected a forward trace")
	}
	found := false
	for _, n := range d.ForwardTrace.Nodes {
		if n.PID == 300 {
			found = true
		}
	}
	if !found {
		t.Error("expected process-tree augmentation to surface the spawned child pid 300")
	}
}

// TestRun_EmptyStreamIsError verifies a log producing zero normalized
// events is a fatal, distinguishable error.
func TestRun_EmptyStreamIsError(t *testing.T) {
	pool := loadPool(t, `["attacker_exec"]`)
	cfg := config.Default()

	_, err := Run(context.Background(), strings.NewReader(""), pool, cfg)
	if err == nil {
		t.Fatal("expected ErrStreamEmpty for a log with no parseable events")
	}
}
