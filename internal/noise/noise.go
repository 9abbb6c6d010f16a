// Package noise holds the pure predicates that classify file paths
// and socket endpoints as system boilerplate, excluded from traces.
// These predicates never alter the Event Index; they are applied only
// during traversal.
package noise

import "strings"

// Config holds the configurable noise lists. NewDefaultConfig returns
// a Config carrying the original source's hardcoded defaults; a
// zero-value Config treats only the empty path as noise.
type Config struct {
	IgnoredPrefixes         []string
	IgnoredBinaries         []string
	IgnoredExactPaths       []string
	IgnoredPorts            []int
	IgnoredSocketSubstrings []string
}

// NewDefaultConfig returns the noise lists baked into the original
// implementation's utils/filters.py, used whenever no engine config
// overrides them.
func NewDefaultConfig() Config {
	return Config{
		IgnoredPrefixes: []string{
			"/lib/", "/usr/lib/", "/usr/share/", "/proc/", "/sys/",
			"/dev/", "/etc/ld.so.cache", "/etc/localtime", "/run/",
			"/var/lib/", "/snap/", "/tmp/go-build",
		},
		IgnoredBinaries: []string{
			"/usr/bin/sudo", "/bin/sudo", "/usr/bin/bash", "/bin/bash",
			"/usr/bin/curl", "/usr/bin/chmod", "/usr/bin/touch", "/usr/bin/rm",
		},
		IgnoredExactPaths: []string{
			"/home/attacker", "/home/attacker/",
			"/home/student/proj_tools", "/home/student/Downloads", "/home/student/Downloads/",
		},
		IgnoredPorts:            []int{0, 53, 5353},
		IgnoredSocketSubstrings: []string{"127.0.0.53"},
	}
}

func normalizeExact(path string) string {
	return strings.TrimSuffix(path, "/")
}

// IsNoiseFile reports whether path is system boilerplate that should
// be excluded from a trace.
func (c Config) IsNoiseFile(path string) bool {
	if path == "" {
		return true
	}
	norm := normalizeExact(path)
	for _, exact := range c.IgnoredExactPaths {
		if norm == normalizeExact(exact) {
			return true
		}
	}
	for _, bin := range c.IgnoredBinaries {
		if path == bin {
			return true
		}
	}
	for _, prefix := range c.IgnoredPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// IsNoiseSocket reports whether addr ("ip:port", or empty) is system
// boilerplate. An empty address is explicitly not noise.
func (c Config) IsNoiseSocket(addr string) bool {
	if addr == "" {
		return false
	}
	for _, sub := range c.IgnoredSocketSubstrings {
		if strings.Contains(addr, sub) {
			return true
		}
	}
	idx := strings.LastIndex(addr, ":")
	if idx < 0 {
		return false
	}
	portStr := addr[idx+1:]
	port, ok := parsePort(portStr)
	if !ok {
		return false
	}
	for _, p := range c.IgnoredPorts {
		if p == port {
			return true
		}
	}
	return false
}

func parsePort(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	return n, true
}
