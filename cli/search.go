package cli

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search indexed chunks",
		Long:  "Run a hybrid search without the agent and print the ranked chunks.",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runSearch,
	}
	RootCmd.AddCommand(cmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")
	return withBackend(cmd, func(b *Backend) error {
		result := b.Retriever.Retrieve(cmd.Context(), query)
		if result.Failed {
			return errors.New(result.Content)
		}
		return writeSearch(cmd.OutOrStdout(), query, result)
	})
}
