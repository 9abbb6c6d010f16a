// Package tagpool loads the operator-configured suspicious-tag set
// and matches it against normalized events to select detections.
package tagpool

import (
	"encoding/json"
	"os"
	"sort"
	"strings"

	provtraceerrors "provtrace/errors"
	"provtrace/internal/model"
)

// Pool is the set of suspicious tags an analysis run matches against.
type Pool struct {
	tags map[string]struct{}
}

// wireFormat accepts either a bare JSON array of strings or an
// object of the shape {"tags": [...]}.
type wireFormat struct {
	Tags []string `json:"tags"`
}

// Load reads a tag pool from path. A pool with zero usable entries
// after whitespace-trimming is a fatal ErrEmptyTagPool.
func Load(path string) (*Pool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, provtraceerrors.Wrap(err, provtraceerrors.ErrInvalidConfig, "tagpool.Load")
	}
	return Parse(data)
}

// Parse decodes raw JSON bytes into a Pool, per the bare-array or
// {"tags":[...]} wire formats.
func Parse(data []byte) (*Pool, error) {
	var raw []string
	if err := json.Unmarshal(data, &raw); err != nil {
		var wrapped wireFormat
		if err2 := json.Unmarshal(data, &wrapped); err2 != nil {
			return nil, provtraceerrors.WrapWithDetail(err, provtraceerrors.ErrInvalidConfig,
				"tagpool.Parse", "neither a bare array nor {\"tags\": [...]}")
		}
		raw = wrapped.Tags
	}

	tags := make(map[string]struct{}, len(raw))
	for _, t := range raw {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		tags[t] = struct{}{}
	}
	if len(tags) == 0 {
		return nil, provtraceerrors.ErrTagPoolEmpty
	}
	return &Pool{tags: tags}, nil
}

// Match returns the sorted intersection of p and tags.
func (p *Pool) Match(tags []string) []string {
	var matched []string
	for _, t := range tags {
		if _, ok := p.tags[t]; ok {
			matched = append(matched, t)
		}
	}
	sort.Strings(matched)
	return matched
}

// Detect scans events in order and emits a Detection for every event
// whose tags intersect the pool.
func Detect(p *Pool, events []model.Event) []model.Detection {
	var detections []model.Detection
	for i, ev := range events {
		matched := p.Match(ev.Tags)
		if len(matched) == 0 {
			continue
		}
		detections = append(detections, model.Detection{
			Index:       i,
			MatchedTags: matched,
			Event:       ev,
		})
	}
	return detections
}
