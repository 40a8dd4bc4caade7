// Package cli implements the ragctl commands: indexing document exports and
// querying the index from a terminal.
package cli

import (
	"context"
	"fmt"

	"multimodal-rag/agent"
	"multimodal-rag/config"
	"multimodal-rag/database"
	"multimodal-rag/llmclient"
	"multimodal-rag/rag"
	"multimodal-rag/web/types"

	"github.com/spf13/cobra"
)

var (
	formatFlag string
	verbose    bool
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "ragctl",
	Short: "Index and query multimodal document exports",
	Long:  "Command line access to the document index: load exports, run searches and ask the agent questions.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if formatFlag != "json" && formatFlag != "text" {
			return fmt.Errorf("unknown format %q: use json or text", formatFlag)
		}
		return nil
	},
	SilenceUsage: true,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&formatFlag, "format", "f", "text", "Output format: json or text")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log at the configured level instead of warnings only")
}

// Asker answers a question with the agent.
type Asker interface {
	ProcessMessage(ctx context.Context, message, chatID string, history []types.ChatMessage) (*agent.AgentResponse, error)
}

// Searcher runs the retrieval tool directly.
type Searcher interface {
	Retrieve(ctx context.Context, query string) rag.ToolResult
}

// DirectoryIndexer indexes a directory of exports.
type DirectoryIndexer interface {
	IndexDirectory(ctx context.Context, dir string) ([]database.IndexResult, error)
}

// Backend is what the commands run against.
type Backend struct {
	Agent     Asker
	Retriever Searcher
	Indexer   DirectoryIndexer
	Close     func()
}

// openBackend connects to the database and language model from the usual
// configuration sources.
var openBackend = func(ctx context.Context) (*Backend, error) {
	cfg := config.Load(nil)
	level := "warn"
	if verbose {
		level = cfg.LogLevel
	}
	logger, err := config.InitLogger(level)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	store, err := database.NewPostgresStore(cfg.DatabaseURL, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	store.SetFusionWeights(cfg.SemanticWeight, cfg.LexicalWeight)
	if err := store.EnsureSchema(ctx, cfg.EmbeddingDimensions); err != nil {
		store.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	client := llmclient.New(cfg, logger)
	retriever := rag.NewRetriever(store, client, cfg.RetrievalSize, logger)
	return &Backend{
		Agent:     agent.NewAgent(cfg, client, retriever, store, logger),
		Retriever: retriever,
		Indexer:   rag.NewIndexer(client, store, cfg.EmbedBatchSize, logger),
		Close: func() {
			store.Close()
			config.Cleanup()
		},
	}, nil
}

func withBackend(cmd *cobra.Command, run func(*Backend) error) error {
	b, err := openBackend(cmd.Context())
	if err != nil {
		return err
	}
	if b.Close != nil {
		defer b.Close()
	}
	return run(b)
}
