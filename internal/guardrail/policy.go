// ABOUTME: TOML-backed policy source with per-owner budget overrides
// ABOUTME: Owner sections inherit any limit they leave unset from the defaults

package guardrail

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// policyFile is the on-disk policy format:
//
//	[defaults]
//	max_tokens = 500000
//	max_cost_usd = 10.0
//	max_actions = 200
//	max_duration = "2h"
//	loop_threshold = 5
//
//	[owners."user-123"]
//	max_tokens = 100000
type policyFile struct {
	Defaults policyLimits            `toml:"defaults"`
	Owners   map[string]policyLimits `toml:"owners"`
}

type policyLimits struct {
	MaxTokens     int64   `toml:"max_tokens"`
	MaxCostUSD    float64 `toml:"max_cost_usd"`
	MaxActions    int     `toml:"max_actions"`
	MaxDuration   string  `toml:"max_duration"`
	LoopThreshold int     `toml:"loop_threshold"`
}

// FilePolicy is a PolicySource loaded once from a TOML file. The parsed
// limits are immutable after load, so lookups need no locking.
type FilePolicy struct {
	defaults Limits
	owners   map[string]Limits
}

// LoadPolicy parses the policy file at the given path.
func LoadPolicy(path string) (*FilePolicy, error) {
	var file policyFile
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return nil, fmt.Errorf("parsing policy file: %w", err)
	}
	return buildPolicy(file)
}

// ParsePolicy parses policy TOML from a string. Used by tests and by
// deployments that inject policy through configuration management.
func ParsePolicy(data string) (*FilePolicy, error) {
	var file policyFile
	if _, err := toml.Decode(data, &file); err != nil {
		return nil, fmt.Errorf("parsing policy: %w", err)
	}
	return buildPolicy(file)
}

func buildPolicy(file policyFile) (*FilePolicy, error) {
	defaults, err := file.Defaults.toLimits()
	if err != nil {
		return nil, fmt.Errorf("defaults: %w", err)
	}

	owners := make(map[string]Limits, len(file.Owners))
	for owner, raw := range file.Owners {
		limits, err := raw.toLimits()
		if err != nil {
			return nil, fmt.Errorf("owner %q: %w", owner, err)
		}
		owners[owner] = mergeLimits(defaults, limits)
	}

	return &FilePolicy{defaults: defaults, owners: owners}, nil
}

// Limits returns the owner's limits, falling back to the defaults for
// owners with no dedicated section.
func (p *FilePolicy) Limits(owner string) (Limits, error) {
	if limits, ok := p.owners[owner]; ok {
		return limits, nil
	}
	return p.defaults, nil
}

func (l policyLimits) toLimits() (Limits, error) {
	out := Limits{
		MaxTokens:     l.MaxTokens,
		MaxCostUSD:    l.MaxCostUSD,
		MaxActions:    l.MaxActions,
		LoopThreshold: l.LoopThreshold,
	}
	if l.MaxDuration != "" {
		d, err := time.ParseDuration(l.MaxDuration)
		if err != nil {
			return Limits{}, fmt.Errorf("invalid max_duration %q: %w", l.MaxDuration, err)
		}
		out.MaxDuration = d
	}
	return out, nil
}

// mergeLimits overlays owner limits on the defaults; unset (zero) owner
// fields inherit the default value.
func mergeLimits(defaults, owner Limits) Limits {
	out := defaults
	if owner.MaxTokens != 0 {
		out.MaxTokens = owner.MaxTokens
	}
	if owner.MaxCostUSD != 0 {
		out.MaxCostUSD = owner.MaxCostUSD
	}
	if owner.MaxActions != 0 {
		out.MaxActions = owner.MaxActions
	}
	if owner.MaxDuration != 0 {
		out.MaxDuration = owner.MaxDuration
	}
	if owner.LoopThreshold != 0 {
		out.LoopThreshold = owner.LoopThreshold
	}
	return out
}
