package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"taskpilot/internal/codegen"
	"taskpilot/internal/config"
	"taskpilot/internal/engine"
	"taskpilot/internal/llm"
	"taskpilot/internal/logging"
	"taskpilot/internal/memory"
	"taskpilot/internal/session"
)

var (
	// Global flags
	verbose    bool
	configPath string

	// Logger
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "taskpilot",
	Short: "taskpilot - conversational task orchestrator",
	Long: `taskpilot routes each request through a small workflow: vague requests
get a bounded clarification dialogue, development requests are refined and
handed to the code-generation collaborator, and questions get a direct
answer.

Run without arguments to start the interactive chat interface.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// The chat UI owns the terminal; keep the logger quiet there.
		if cmd.Use == "taskpilot" && cmd.CalledAs() == "taskpilot" {
			logger = zap.NewNop()
			return nil
		}

		var err error
		logger, err = logging.New(verbose)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to taskpilot.yaml")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(selftestCmd)
}

// loadConfig reads settings and fails fast when the required credential is
// missing.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildFactory wires a session factory around the shared completion client.
func buildFactory(ctx context.Context, cfg *config.Config) (session.EngineFactory, error) {
	client, err := llm.NewGeminiClient(ctx, llm.GeminiConfig{
		APIKey:  cfg.GeminiAPIKey,
		Model:   cfg.LLM.Model,
		Timeout: cfg.LLM.Timeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("creating completion client: %w", err)
	}

	engCfg := engine.Config{
		MaxClarificationRounds: cfg.Workflow.MaxClarificationRounds,
		MaxTokens:              cfg.Workflow.MaxTokens,
		AnswerMaxTokens:        cfg.Workflow.AnswerMaxTokens,
	}
	runner := codegen.NewPlaceholderRunner()

	return func() *engine.Engine {
		return engine.New(client, runner, memory.NewConversation(), engCfg, logger)
	}, nil
}

func main() {
	start := time.Now()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if verbose {
			fmt.Fprintf(os.Stderr, "(after %v)\n", time.Since(start).Round(time.Millisecond))
		}
		os.Exit(1)
	}
}
