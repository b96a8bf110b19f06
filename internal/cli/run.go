package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/orizon-lang/iropt/internal/diagnostics"
	"github.com/orizon-lang/iropt/internal/opt"
)

// NewRunCommand creates the run command, which optimizes one sample.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run <sample>",
		Short: "Optimize a built-in sample and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSample(cmd, rootOpts, args[0])
		},
	}
}

// NewListCommand creates the list command.
func NewListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the built-in samples",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			names := make([]string, 0, len(samples))
			for name := range samples {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintf(cmd.OutOrStdout(), "%-10s %s\n", name, samples[name].doc)
			}
			return nil
		},
	}
}

func runSample(cmd *cobra.Command, rootOpts *RootOptions, name string) error {
	sample, ok := samples[name]
	if !ok {
		return fmt.Errorf("unknown sample %q (try: iropt-demo list)", name)
	}
	pol, err := rootOpts.Policy()
	if err != nil {
		return fmt.Errorf("resolving policy: %w", err)
	}

	u := sample.build()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "unit %s (%s)\n", name, u.ID)
	if rootOpts.Verbose {
		fmt.Fprintln(out, "before:")
		fmt.Fprintln(out, u.Format())
	}

	diags := diagnostics.NewCollector()
	opt.New(u, pol, diags).Run()

	fmt.Fprintln(out, "after:")
	fmt.Fprintln(out, u.Format())
	fmt.Fprintln(out, "diagnostics:")
	fmt.Fprintln(out, diags.Summary())
	return nil
}
