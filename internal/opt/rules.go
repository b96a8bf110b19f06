package opt

import (
	"github.com/orizon-lang/iropt/internal/flow"
	"github.com/orizon-lang/iropt/internal/policy"
)

// OutcomeKind discriminates the results a rewrite rule can return.
// Rules signal control transfer by value; the call optimizer
// interprets the outcome, with no implicit unwinding.
type OutcomeKind int

const (
	// OutcomeSuccess supplies a replacement implementation spliced in
	// as the call's new callee.
	OutcomeSuccess OutcomeKind = iota
	// OutcomeGiveUp lets the next rule try; the reason accumulates in
	// the unit's failed-rewrite table.
	OutcomeGiveUp
	// OutcomeAbort forces the plain unrewritten call and stops the
	// rule search; with a reason, the call is marked in error.
	OutcomeAbort
	// OutcomeDelay suspends the rule until a named later phase
	// re-arms the call.
	OutcomeDelay
)

// DelayPhase names the phase boundaries a delayed rule can wait for.
type DelayPhase int

const (
	// DelayNextPass retries after the current optimization pass.
	DelayNextPass DelayPhase = iota
	// DelayConstraint retries after auxiliary constraint propagation
	// has run, once the main iteration quiesces.
	DelayConstraint
)

func (p DelayPhase) String() string {
	switch p {
	case DelayNextPass:
		return "next-pass"
	case DelayConstraint:
		return "constraint-propagation"
	default:
		return "phase?"
	}
}

// Outcome is the by-value result of one rewrite rule application.
type Outcome struct {
	Kind        OutcomeKind
	Replacement flow.InlineBuilder
	Reason      string
	Phase       DelayPhase
}

// Success builds a success outcome carrying the replacement body.
func Success(replacement flow.InlineBuilder) Outcome {
	return Outcome{Kind: OutcomeSuccess, Replacement: replacement}
}

// GiveUp builds a give-up outcome, optionally with a reason.
func GiveUp(reason string) Outcome {
	return Outcome{Kind: OutcomeGiveUp, Reason: reason}
}

// Abort builds an abort outcome, optionally with a reason.
func Abort(reason string) Outcome {
	return Outcome{Kind: OutcomeAbort, Reason: reason}
}

// Delay builds a delay outcome waiting for phase.
func Delay(phase DelayPhase) Outcome {
	return Outcome{Kind: OutcomeDelay, Phase: phase}
}

// TransformFn is one rewrite rule body.
type TransformFn func(o *Optimizer, call *flow.Call) Outcome

// Transform is a registered rewrite rule. Rules attached to a known
// operation are tried in registration order (highest priority first).
type Transform struct {
	Name string
	// When, if set, gates the rule on the policy in effect.
	When func(p *policy.Policy) bool
	Fn   TransformFn
}
