// Package cli implements the iropt-demo command line: build a sample
// flow graph, run the optimizer over it and print the result.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/xyproto/env/v2"

	"github.com/orizon-lang/iropt/internal/policy"
)

// RootOptions holds global flags shared by all subcommands.
type RootOptions struct {
	// Level selects the built-in policy defaults, 0..3. The
	// IROPT_LEVEL environment variable supplies the default.
	Level int
	// PolicyFile overlays a YAML policy file on the level defaults.
	PolicyFile string
	Verbose    bool
}

// Policy resolves the effective policy from the flags.
func (o *RootOptions) Policy() (*policy.Policy, error) {
	if o.PolicyFile != "" {
		return policy.Load(o.PolicyFile)
	}
	return policy.Default(o.Level), nil
}

// NewRootCommand creates the iropt-demo root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "iropt-demo",
		Short: "Run the flow-graph optimizer over built-in sample programs",
		Long: `iropt-demo builds small flow graphs the way a front end would,
runs the local optimization pass to its fixed point and prints the
graph before and after, together with any diagnostics.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().IntVar(&opts.Level, "level",
		env.Int("IROPT_LEVEL", 1), "optimization level 0..3")
	cmd.PersistentFlags().StringVar(&opts.PolicyFile, "policy", "",
		"path to a YAML policy file overriding the level defaults")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false,
		"also print the graph before optimization")

	cmd.AddCommand(NewListCommand())
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewVersionCommand())

	return cmd
}

// Execute runs the root command and exits nonzero on error.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "iropt-demo:", err)
		os.Exit(1)
	}
}
