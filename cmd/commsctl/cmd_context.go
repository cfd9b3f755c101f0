package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"ndjobi.org/internal/auth"
	"ndjobi.org/internal/capability"
	"ndjobi.org/internal/ctxstore"
	"ndjobi.org/internal/domain"
	"ndjobi.org/internal/registry"
)

var (
	setApp   string
	setMode  string
	setActor string
	setRealm string

	tokenActor string
	tokenRealm string
	tokenTTL   time.Duration
)

// contextCmd groups the context subcommands
var contextCmd = &cobra.Command{
	Use:   "context",
	Short: "Inspect or change the active execution context",
}

var contextShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the active context",
	RunE: func(cmd *cobra.Command, args []string) error {
		return printJSON(cmd.OutOrStdout(), openContexts().Load(cmd.Context()))
	},
}

var contextSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Switch app or identity mode",
	Long: `Applies the given flags on top of the active context and saves it.

Example:
  commsctl context set --app app-dgdi --mode delegated --actor agent-7 --realm government`,
	RunE: runContextSet,
}

var contextHeadersCmd = &cobra.Command{
	Use:   "headers",
	Short: "Print the request headers for the active context",
	RunE: func(cmd *cobra.Command, args []string) error {
		headers := ctxstore.DeriveHeaders(openContexts().Load(cmd.Context()))
		keys := make([]string, 0, len(headers))
		for k := range headers {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", k, headers[k])
		}
		return nil
	},
}

var capabilitiesCmd = &cobra.Command{
	Use:   "capabilities",
	Short: "Resolve module capabilities for the active context",
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog := registry.Default()
		ec := ctxstore.New(ctxstore.NewFileKV(contextFile), catalog).Load(cmd.Context())
		resolver := capability.NewResolver(catalog,
			capability.WithVersion(cfg.Version),
			capability.WithRealtimeURL(cfg.RealtimeURL))
		caps, ok := resolver.Resolve(ec)
		if !ok {
			return fmt.Errorf("capabilities unavailable for app %q", ec.AppID)
		}
		return printJSON(cmd.OutOrStdout(), caps)
	},
}

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "List registered apps and networks",
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog := registry.Default()
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"default_app": catalog.DefaultAppID(),
			"apps":        catalog.ListApps(),
			"networks":    catalog.ListNetworks(),
		})
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a delegation token (requires NDJOBI_AUTH_SECRET)",
	RunE: func(cmd *cobra.Command, args []string) error {
		realm, ok := domain.ParseRealm(tokenRealm)
		if !ok {
			return fmt.Errorf("unknown realm %q", tokenRealm)
		}
		token, err := auth.GenerateDelegationToken(tokenActor, realm, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	contextSetCmd.Flags().StringVar(&setApp, "app", "", "app id to switch to")
	contextSetCmd.Flags().StringVar(&setMode, "mode", "", "identity mode: service or delegated")
	contextSetCmd.Flags().StringVar(&setActor, "actor", "", "delegated actor id")
	contextSetCmd.Flags().StringVar(&setRealm, "realm", "", "delegated realm: citizen, government or business")
	contextCmd.AddCommand(contextShowCmd, contextSetCmd, contextHeadersCmd)

	tokenCmd.Flags().StringVar(&tokenActor, "actor", "", "actor id (token subject)")
	tokenCmd.Flags().StringVar(&tokenRealm, "realm", string(domain.RealmCitizen), "actor realm")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "token lifetime")
}

func runContextSet(cmd *cobra.Command, args []string) error {
	if setApp == "" && setMode == "" && setActor == "" && setRealm == "" {
		return fmt.Errorf("nothing to set: pass --app, --mode, --actor or --realm")
	}
	ec, err := openContexts().Update(cmd.Context(), ctxstore.Patch{
		AppID:   setApp,
		Mode:    setMode,
		ActorID: setActor,
		Realm:   setRealm,
	})
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), ec)
}
