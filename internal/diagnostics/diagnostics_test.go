package diagnostics_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/orizon-lang/iropt/internal/diagnostics"
	"github.com/orizon-lang/iropt/internal/lattice"
)

func TestReportOnce(t *testing.T) {
	c := diagnostics.NewCollector()
	d := diagnostics.Diagnostic{
		Level:    diagnostics.LevelWarning,
		Category: diagnostics.CategoryTypeConflict,
		Message:  "first",
	}
	require.True(t, c.ReportOnce("node-7", d))
	d.Message = "second"
	require.False(t, c.ReportOnce("node-7", d))
	require.Len(t, c.All(), 1)
	require.Equal(t, "first", c.All()[0].Message)
}

func TestCountAt(t *testing.T) {
	c := diagnostics.NewCollector()
	c.Report(diagnostics.Diagnostic{Level: diagnostics.LevelError})
	c.Report(diagnostics.Diagnostic{Level: diagnostics.LevelNote})
	c.Report(diagnostics.Diagnostic{Level: diagnostics.LevelNote})
	require.Equal(t, 1, c.CountAt(diagnostics.LevelError))
	require.Equal(t, 2, c.CountAt(diagnostics.LevelNote))
	require.Equal(t, 0, c.CountAt(diagnostics.LevelWarning))
}

func TestSummaryOrdersBySeverity(t *testing.T) {
	c := diagnostics.NewCollector()
	c.Report(diagnostics.Diagnostic{Level: diagnostics.LevelNote, Message: "a note"})
	c.Report(diagnostics.Diagnostic{Level: diagnostics.LevelError, Message: "an error"})
	s := c.Summary()
	require.Less(t, indexOf(s, "an error"), indexOf(s, "a note"))
}

func TestSummaryEmpty(t *testing.T) {
	require.Equal(t, "no diagnostics", diagnostics.NewCollector().Summary())
}

func TestDiagnosticString(t *testing.T) {
	d := diagnostics.Diagnostic{
		Level:    diagnostics.LevelWarning,
		Category: diagnostics.CategoryMutation,
		Message:  "destructive operation on a constant",
		Source:   "(nreverse x)",
		Types:    []lattice.Type{lattice.List},
	}
	s := d.String()
	require.Contains(t, s, "warning[mutation]")
	require.Contains(t, s, "destructive operation")
	require.Contains(t, s, "in: (nreverse x)")
	require.Contains(t, s, "type: list")
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}
