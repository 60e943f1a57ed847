// Package cli implements the lorekeep debug CLI commands.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lorekeep/lorekeep-go/pkg/core"
)

var (
	worldFile string
	questFile string
	dbPath    string
	verbose   bool
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "lorekeep",
	Short: "Debug surface for the lorekeep NPC memory engine",
	Long:  "Inspect and mutate engine state: quests, memories, world flags and relationships. Every mutation is idempotent and side-effect-logged.",
}

func init() {
	RootCmd.PersistentFlags().StringVar(&worldFile, "world", "", "World definition file (default: $LOREKEEP_WORLD_FILE)")
	RootCmd.PersistentFlags().StringVar(&questFile, "quests", "", "Quest definition file (default: $LOREKEEP_QUEST_FILE)")
	RootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (default: $LOREKEEP_SQLITE_PATH)")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log engine side effects to stderr")
}

// openEngine builds an engine from the environment plus CLI overrides.
// Generation is always disabled: the debug surface never calls the
// generator.
func openEngine() (*core.Engine, error) {
	cfg, err := core.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	cfg.Generator.Provider = "none"
	if worldFile != "" {
		cfg.WorldFile = worldFile
	}
	if questFile != "" {
		cfg.QuestFile = questFile
	}
	if dbPath != "" {
		cfg.Records.Provider = "sqlite"
		cfg.Records.Config = map[string]interface{}{"db_path": dbPath}
	}

	logger := zap.NewNop()
	if verbose {
		logger, err = zap.NewDevelopment()
		if err != nil {
			return nil, err
		}
	}
	return core.NewEngine(cfg, logger)
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
