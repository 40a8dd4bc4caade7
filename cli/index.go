package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "index [dir]",
		Short: "Index a directory of document exports",
		Long:  "Embed and store every export found one level below dir. Each subdirectory holds one JSON export named after its document.",
		Args:  cobra.ExactArgs(1),
		RunE:  runIndex,
	}
	RootCmd.AddCommand(cmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	return withBackend(cmd, func(b *Backend) error {
		results, err := b.Indexer.IndexDirectory(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return writeIndexed(cmd.OutOrStdout(), results)
	})
}
