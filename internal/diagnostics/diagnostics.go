// Package diagnostics provides the reporting sink for the flow-graph
// optimizer: internal inconsistency notes, user-facing type errors,
// style notes and efficiency notes, with structured context and
// warn-once deduplication.
package diagnostics

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/orizon-lang/iropt/internal/lattice"
)

// Level represents the severity of a diagnostic.
type Level int

const (
	LevelError Level = iota
	LevelWarning
	LevelNote
	LevelInternal
)

func (l Level) String() string {
	switch l {
	case LevelError:
		return "error"
	case LevelWarning:
		return "warning"
	case LevelNote:
		return "note"
	case LevelInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Category classifies a diagnostic for filtering and reporting.
type Category int

const (
	CategoryTypeError Category = iota
	CategoryTypeConflict
	CategorySignature
	CategoryMutation
	CategoryDeadCode
	CategoryDiscardedValue
	CategoryUnusedVariable
	CategoryFailedRewrite
	CategoryInconsistency
	CategoryFolding
)

func (c Category) String() string {
	switch c {
	case CategoryTypeError:
		return "type-error"
	case CategoryTypeConflict:
		return "type-conflict"
	case CategorySignature:
		return "signature"
	case CategoryMutation:
		return "mutation"
	case CategoryDeadCode:
		return "dead-code"
	case CategoryDiscardedValue:
		return "discarded-value"
	case CategoryUnusedVariable:
		return "unused-variable"
	case CategoryFailedRewrite:
		return "failed-rewrite"
	case CategoryInconsistency:
		return "inconsistency"
	case CategoryFolding:
		return "folding"
	default:
		return "unknown"
	}
}

// Diagnostic is one reported condition with its structured context.
type Diagnostic struct {
	Level    Level
	Category Category
	Message  string
	// Source is the source form the condition was detected on, as
	// rendered by the IR printer.
	Source string
	// Types carries the semantic types involved, when relevant.
	Types []lattice.Type
	// Unit correlates the diagnostic with a compilation unit.
	Unit uuid.UUID
}

func (d Diagnostic) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s[%s]: %s", d.Level, d.Category, d.Message)
	if d.Source != "" {
		fmt.Fprintf(&b, "\n  in: %s", d.Source)
	}
	for _, t := range d.Types {
		fmt.Fprintf(&b, "\n  type: %s", t)
	}
	return b.String()
}

// Collector accumulates diagnostics for end-of-compilation reporting.
// Conditions that must be reported at most once per node are
// deduplicated by caller-supplied keys.
type Collector struct {
	diags []Diagnostic
	seen  map[string]bool
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{seen: make(map[string]bool)}
}

// Report appends a diagnostic unconditionally.
func (c *Collector) Report(d Diagnostic) {
	c.diags = append(c.diags, d)
}

// ReportOnce appends a diagnostic unless one with the same key has
// been reported before. It reports whether the diagnostic was kept.
func (c *Collector) ReportOnce(key string, d Diagnostic) bool {
	if c.seen[key] {
		return false
	}
	c.seen[key] = true
	c.diags = append(c.diags, d)
	return true
}

// All returns the accumulated diagnostics in report order.
func (c *Collector) All() []Diagnostic { return c.diags }

// CountAt returns the number of diagnostics at the given level.
func (c *Collector) CountAt(level Level) int {
	n := 0
	for _, d := range c.diags {
		if d.Level == level {
			n++
		}
	}
	return n
}

// Summary renders the accumulated diagnostics grouped by level.
func (c *Collector) Summary() string {
	if len(c.diags) == 0 {
		return "no diagnostics"
	}
	sorted := make([]Diagnostic, len(c.diags))
	copy(sorted, c.diags)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Level < sorted[j].Level })
	var b strings.Builder
	for i, d := range sorted {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(d.String())
	}
	return b.String()
}
