package cli

import (
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask the agent a question",
		Long:  "Run one agent turn against the index and print the answer with its sources.",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runAsk,
	}
	RootCmd.AddCommand(cmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := strings.Join(args, " ")
	return withBackend(cmd, func(b *Backend) error {
		resp, err := b.Agent.ProcessMessage(cmd.Context(), question, uuid.NewString(), nil)
		if err != nil {
			return err
		}
		return writeAnswer(cmd.OutOrStdout(), resp)
	})
}
