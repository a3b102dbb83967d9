// Package tagging assigns configured tags to titles.
package tagging

import (
	"fmt"
	"regexp"
	"sort"
)

type rule struct {
	tag      string
	patterns []*regexp.Regexp
}

// Tagger matches titles against the configured tag rules. Immutable after
// construction and safe for concurrent use.
type Tagger struct {
	rules []rule
}

// New compiles the tags section of the config. Rules are ordered by tag name
// so output is deterministic regardless of map iteration.
func New(tags map[string][]string) (*Tagger, error) {
	names := make([]string, 0, len(tags))
	for name := range tags {
		names = append(names, name)
	}
	sort.Strings(names)

	rules := make([]rule, 0, len(names))
	for _, name := range names {
		r := rule{tag: name}
		for _, p := range tags[name] {
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, fmt.Errorf("tag %q: pattern %q: %w", name, p, err)
			}
			r.patterns = append(r.patterns, re)
		}
		rules = append(rules, r)
	}
	return &Tagger{rules: rules}, nil
}

// Tags returns every tag whose patterns match the title, in rule order.
func (t *Tagger) Tags(title string) []string {
	var out []string
	for _, r := range t.rules {
		for _, re := range r.patterns {
			if re.MatchString(title) {
				out = append(out, r.tag)
				break
			}
		}
	}
	return out
}

// Merge prepends extra tags to tags, keeping first occurrence only. Order is
// preserved, which makes the result an ordered set.
func Merge(extra []string, tags []string) []string {
	seen := make(map[string]bool, len(extra)+len(tags))
	out := make([]string, 0, len(extra)+len(tags))
	for _, t := range append(append([]string{}, extra...), tags...) {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
