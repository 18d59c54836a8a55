package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zen-systems/ticketflow/pkg/config"
	"github.com/zen-systems/ticketflow/pkg/logging"
	"github.com/zen-systems/ticketflow/pkg/server"
	"github.com/zen-systems/ticketflow/pkg/ticket"
	"github.com/zen-systems/ticketflow/pkg/workflow"
)

var (
	configFile   string
	providerFlag string
	modelFlag    string
	mockFlag     bool
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ticketflow",
		Short: "Support ticket triage and resolution engine",
		Long: `Ticketflow classifies incoming support tickets with a language model,
routes each one to a billing, technical, account or escalation specialist,
and records every decision, tool call and token spent along the way.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&configFile, "config", "", "path to config file (default ~/.ticketflow/config.yaml)")
	root.PersistentFlags().StringVar(&providerFlag, "provider", "", "model provider (mock, anthropic, openai, google, deepseek)")
	root.PersistentFlags().StringVar(&modelFlag, "model", "", "model id or alias")
	root.PersistentFlags().BoolVar(&mockFlag, "mock", false, "use the offline mock model")

	root.AddCommand(serveCmd())
	root.AddCommand(processCmd())
	root.AddCommand(modelsCmd())
	root.AddCommand(pricesCmd())
	return root
}

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			logger, err := logging.New(cfg.Logging)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
				defer cancel()
				if err := a.close(shutdownCtx); err != nil {
					logger.Warn("shutdown", zap.Error(err))
				}
			}()

			srv, err := server.New(cfg.Server, a.engine,
				server.WithLogger(logger),
				server.WithMetrics(a.metrics),
			)
			if err != nil {
				return err
			}
			defer srv.Close()

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return srv.Run(gctx) })
			g.Go(func() error {
				<-gctx.Done()
				srv.SetReady(false)
				return nil
			})
			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			logger.Info("server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

func processCmd() *cobra.Command {
	var (
		customerID string
		email      string
		tier       string
		subject    string
		body       string
		hint       string
	)

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Process one ticket and print the resulting state as JSON",
		Example: `  ticketflow process --mock --customer CUST-001 \
    --subject "Refund request" --body "I was charged twice this month"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if body == "-" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read body: %w", err)
				}
				body = strings.TrimSpace(string(data))
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			// Logs go to stderr so stdout stays valid JSON.
			logger, err := logging.New(cfg.Logging)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout(cfg))
			defer cancel()
			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.close(context.WithoutCancel(ctx)) //nolint:errcheck

			state, runErr := a.engine.ProcessRequest(ctx, workflow.Request{
				CustomerID:   customerID,
				Email:        email,
				Tier:         ticket.ParseTier(tier),
				Subject:      subject,
				Body:         body,
				CategoryHint: hint,
			})

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(state); err != nil {
				return err
			}
			return runErr
		},
	}

	cmd.Flags().StringVar(&customerID, "customer", "", "customer id")
	cmd.Flags().StringVar(&email, "email", "", "customer email")
	cmd.Flags().StringVar(&tier, "tier", "", "customer tier (free, pro, enterprise)")
	cmd.Flags().StringVar(&subject, "subject", "", "ticket subject")
	cmd.Flags().StringVar(&body, "body", "", "ticket body, or - to read stdin")
	cmd.Flags().StringVar(&hint, "category", "", "category hint")
	_ = cmd.MarkFlagRequired("subject")
	_ = cmd.MarkFlagRequired("body")
	return cmd
}

func modelsCmd() *cobra.Command {
	var aliasesFlag bool

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List available providers and models",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			aliases := loadAliases()
			if aliasesFlag {
				return showAliases(cmd.OutOrStdout(), aliases)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PROVIDER\tMODELS\tSTATUS")
			for _, provider := range aliases.ListProviders() {
				status := "no API key"
				if cfg.HasProvider(provider) {
					status = "available"
				}
				if provider == cfg.LLM.Provider {
					status += " (active)"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", provider, strings.Join(aliases.GetProviderModels(provider), ", "), status)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&aliasesFlag, "aliases", false, "show model aliases instead")
	return cmd
}

func showAliases(out io.Writer, aliases *config.ModelAliases) error {
	aliasMap := aliases.ListAliases()
	if len(aliasMap) == 0 {
		fmt.Fprintln(out, "No model aliases configured.")
		return nil
	}

	names := make([]string, 0, len(aliasMap))
	for name := range aliasMap {
		names = append(names, name)
	}
	sort.Strings(names)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ALIAS\tMODEL\tPROVIDER")
	for _, alias := range names {
		model := aliasMap[alias]
		fmt.Fprintf(w, "%s\t%s\t%s\n", alias, model, aliases.GetProviderForModel(model))
	}
	return w.Flush()
}

func pricesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prices",
		Short: "Show the per-million-token price table",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			models := make([]string, 0, len(cfg.Pricing))
			for model := range cfg.Pricing {
				models = append(models, model)
			}
			sort.Strings(models)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "MODEL\tINPUT $/M\tOUTPUT $/M")
			for _, model := range models {
				r := cfg.Pricing[model]
				fmt.Fprintf(w, "%s\t%.2f\t%.2f\n", model, r.InputPerMillion, r.OutputPerMillion)
			}
			return w.Flush()
		},
	}
}

// loadConfig reads the config file and applies the global flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if mockFlag {
		cfg.LLM.Provider = config.ProviderMock
	} else if providerFlag != "" {
		cfg.LLM.Provider = providerFlag
	}
	if modelFlag != "" {
		cfg.LLM.Model = config.DefaultAliases().Resolve(modelFlag)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadAliases reads the user's model aliases, falling back to the built-in table.
func loadAliases() *config.ModelAliases {
	aliases, err := config.LoadAliasesWithFallback("configs/models.yaml")
	if err != nil || len(aliases.Providers) == 0 {
		return config.DefaultAliases()
	}
	return aliases
}

// requestTimeout bounds a single CLI run the same way the server bounds a request.
func requestTimeout(cfg *config.Config) time.Duration {
	if cfg.Server.RequestTimeout > 0 {
		return cfg.Server.RequestTimeout
	}
	return 2 * time.Minute
}
