// Package policy exposes the named optimization tunables consulted by
// the flow-graph optimizer: safety level, space versus speed
// preference, debug preservation and bounds-check enablement.
package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Policy is the set of optimization qualities in effect for a
// compilation unit. Qualities range 0..3, matching the optimization
// levels of the surrounding driver.
type Policy struct {
	// Safety keeps runtime checks alive when high.
	Safety int `yaml:"safety"`
	// Speed favors aggressive rewriting and inlining when high.
	Speed int `yaml:"speed"`
	// Space favors code-size reduction; at 3 named inline expansion of
	// small bodies is attempted even without an explicit request.
	Space int `yaml:"space"`
	// Debug suppresses rewrites that lose source-level structure.
	Debug int `yaml:"debug"`
	// BoundsChecks enables array bound checking; when disabled,
	// bounds-check assertions drop their runtime component.
	BoundsChecks bool `yaml:"bounds_checks"`
	// InlinePriority lists callee names that should always be
	// expanded inline when a body is available.
	InlinePriority []string `yaml:"inline_priority"`
	// NotInline lists callee names that must never be expanded.
	NotInline []string `yaml:"not_inline"`
	// FreshInlineCopies mandates a fresh graph copy of an inline body
	// per call site instead of one shared conversion per unit.
	FreshInlineCopies bool `yaml:"fresh_inline_copies"`
}

// Default returns the policy for an optimization level 0..3.
func Default(level int) *Policy {
	if level < 0 {
		level = 0
	}
	if level > 3 {
		level = 3
	}
	p := &Policy{
		Safety:       3 - level,
		Speed:        level,
		Space:        1,
		Debug:        0,
		BoundsChecks: true,
	}
	if level == 0 {
		p.Debug = 3
	}
	if level >= 3 {
		p.BoundsChecks = false
	}
	return p
}

// Load reads a policy file in YAML form, overlaying the level-1
// defaults.
func Load(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}
	p := Default(1)
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parse policy %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("policy %s: %w", path, err)
	}
	return p, nil
}

// Validate rejects out-of-range qualities.
func (p *Policy) Validate() error {
	for _, q := range []struct {
		name string
		val  int
	}{{"safety", p.Safety}, {"speed", p.Speed}, {"space", p.Space}, {"debug", p.Debug}} {
		if q.val < 0 || q.val > 3 {
			return fmt.Errorf("quality %s out of range: %d", q.name, q.val)
		}
	}
	return nil
}

// WantInline reports whether name should be expanded inline when an
// inline body is available and no explicit notinline declaration
// exists.
func (p *Policy) WantInline(name string) bool {
	for _, n := range p.NotInline {
		if n == name {
			return false
		}
	}
	for _, n := range p.InlinePriority {
		if n == name {
			return true
		}
	}
	return p.Speed > p.Space && p.Debug < 2
}

// FavorSpace reports whether code-size reduction outweighs speed.
func (p *Policy) FavorSpace() bool { return p.Space > p.Speed }
