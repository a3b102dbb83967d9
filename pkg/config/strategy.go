package config

import (
	"fmt"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Strategy bounds one source's fuse comparator run.
//
// Nil FuseLimit disables count-based termination: the stream then stops at
// the first out-of-range item instead. IgnoreIDLt / IgnoreTimeLt declare
// items out of range by id or update time.
type Strategy struct {
	FuseLimit    *int       `yaml:"fuse_limit,omitempty" json:"fuse_limit,omitempty"`
	IgnoreIDLt   *int32     `yaml:"ignore_id_lt,omitempty" json:"ignore_id_lt,omitempty"`
	IgnoreTimeLt *time.Time `yaml:"ignore_time_lt,omitempty" json:"ignore_time_lt,omitempty"`
}

// StrategyConfig is the fetch.strategy block: a "base" strategy plus
// per-source overrides keyed by source name.
type StrategyConfig struct {
	Base      Strategy            `json:"base,omitempty"`
	Overrides map[string]Strategy `json:"-"`
}

// UnmarshalYAML accepts a flat map where the "base" key is the default and
// every other key is a per-source override.
func (sc *StrategyConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw map[string]Strategy
	if err := value.Decode(&raw); err != nil {
		return err
	}
	sc.Overrides = make(map[string]Strategy, len(raw))
	for name, s := range raw {
		if name == "base" {
			sc.Base = s
			continue
		}
		sc.Overrides[name] = s
	}
	return nil
}

// clone copies the strategy with fresh pointers, so merging into the copy
// never writes through into the original.
func (s Strategy) clone() Strategy {
	out := s
	if s.FuseLimit != nil {
		v := *s.FuseLimit
		out.FuseLimit = &v
	}
	if s.IgnoreIDLt != nil {
		v := *s.IgnoreIDLt
		out.IgnoreIDLt = &v
	}
	if s.IgnoreTimeLt != nil {
		v := *s.IgnoreTimeLt
		out.IgnoreTimeLt = &v
	}
	return out
}

// For resolves the effective strategy for a source: the override merged on
// top of the base, field-wise. The result shares no pointers with the base
// or the override.
func (sc StrategyConfig) For(sourceName string) (Strategy, error) {
	merged := sc.Base.clone()
	if override, ok := sc.Overrides[sourceName]; ok {
		if err := mergo.Merge(&merged, override, mergo.WithOverride); err != nil {
			return Strategy{}, fmt.Errorf("merge strategy for %s: %w", sourceName, err)
		}
	}
	return merged.clone(), nil
}
