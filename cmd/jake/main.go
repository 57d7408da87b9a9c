// Command jake records conversations between a human operator and an
// assistant, evaluates the commands embedded in messages, and compiles the
// log into training data.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zaporter/jake/internal/config"
	"github.com/zaporter/jake/internal/logging"
	"github.com/zaporter/jake/internal/store"
)

var (
	// Global flags
	verbose    bool
	configPath string
	dbPath     string

	// Loaded in PersistentPreRunE
	cfg *config.Config

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "jake",
	Short: "jake - conversation log, command evaluator and training data compiler",
	Long: `jake keeps an append-mostly log of conversations between you and an assistant.

Messages may embed commands:
  [< ls -la >]                         run on the execution backend
  [( task start --name <N> )]          open a subtask
  [( task done --summary <S> )]        close the innermost open subtask
  [( nexos rebuild )]                  rebuild the execution image

Evaluating a message runs its commands and splices their output in after it.
Your own messages compile into JSON Lines training examples.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if dbPath != "" {
			loaded.Store.Path = dbPath
		}
		if verbose {
			loaded.Logging.Level = "debug"
		}
		if err := logging.Initialize(loaded.Logging.Options()); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		cfg = loaded
		logger = logging.Base().Named("cli")
		logger.Debug("configuration loaded",
			zap.String("config", configPath),
			zap.String("db", cfg.Store.Path),
			zap.String("sandbox", cfg.Execution.Sandbox))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logging.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to the configuration file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (overrides store.path)")

	rootCmd.AddCommand(newCmd, listCmd, showCmd, deleteCmd)
	rootCmd.AddCommand(msgCmd, tasksCmd)
	rootCmd.AddCommand(exportCmd, migrateCmd, backupCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openStore opens the conversation store. Mutating commands take a
// timestamped backup first when the configuration asks for one.
func openStore(ctx context.Context, mutating bool) (*store.KV, *store.Conversations, error) {
	kv, err := store.Open(cfg.Store.Path, cfg.Store.Driver)
	if err != nil {
		return nil, nil, err
	}

	if mutating && cfg.Store.BackupOnOpen && cfg.Store.BackupDir != "" {
		dest, err := store.TimestampedBackup(ctx, kv, cfg.Store.BackupDir, time.Now())
		if err != nil {
			_ = kv.Close()
			return nil, nil, fmt.Errorf("backup before write: %w", err)
		}
		logger.Debug("backup written", zap.String("path", dest))
	}

	return kv, store.NewConversations(kv, cfg.Store.Bucket), nil
}
