package cli

import (
	"github.com/spf13/cobra"
)

// NewDotCommand creates the dot command.
func NewDotCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dot <fixture.yaml>",
		Short: "Print the index graph of a fixture in Graphviz DOT",
		Long: `Build an index from the subscriptions declared in a YAML fixture and
print its shared predicate graph in the Graphviz DOT language.  Pipe the
output to "dot -Tsvg" to render it.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDot(cmd, rootOpts, args[0])
		},
	}
	return cmd
}

func runDot(cmd *cobra.Command, opts *RootOptions, path string) error {
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	_, idx, err := loadIndex(cmd, opts, formatter, path)
	if err != nil {
		return err
	}
	defer idx.Close()

	if opts.Format == "json" {
		g, err := idx.Graph()
		if err != nil {
			return formatter.Fail(ErrCodeFixture, "reading graph", err)
		}
		return formatter.Success(g)
	}
	return idx.WriteGraphviz(cmd.OutOrStdout())
}
