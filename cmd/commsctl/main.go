// Command commsctl inspects and switches the local execution context, resolves capabilities
// and runs the realtime simulator from the terminal.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"ndjobi.org/internal/auth"
	"ndjobi.org/internal/config"
	"ndjobi.org/internal/ctxstore"
	"ndjobi.org/internal/registry"
)

var (
	// Global flags
	contextFile string

	cfg config.Config
)

var rootCmd = &cobra.Command{
	Use:   "commsctl",
	Short: "NDJOBI comms developer tool",
	Long: `commsctl works against the file-backed execution context used by local front-ends.

Available commands:
  context       - show, switch or export the active context
  capabilities  - resolve modules for the active context
  catalog       - list registered apps and networks
  token         - issue a delegation token
  simulate      - run the realtime simulator and print its events`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return err
		}
		cfg = loaded
		auth.SetSecret(cfg.AuthSecret)
		if contextFile == "" {
			contextFile = cfg.ContextFile
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&contextFile, "context-file", "", "context file (default NDJOBI_CONTEXT_FILE)")

	rootCmd.AddCommand(contextCmd, capabilitiesCmd, catalogCmd, tokenCmd, simulateCmd)
}

func main() {
	_ = godotenv.Load()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func openContexts() *ctxstore.Store {
	return ctxstore.New(ctxstore.NewFileKV(contextFile), registry.Default())
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
