package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"zeno_agent/pkg/app"
	"zeno_agent/pkg/core/config"
	"zeno_agent/pkg/core/logging"
	"zeno_agent/pkg/core/pipeline"
)

type options struct {
	configPath string
	provider   string
	file       string
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "zeno",
		Short:         "East African agricultural trade economist",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to the YAML config file")
	root.PersistentFlags().StringVar(&opts.provider, "provider", "", "override the active LLM provider")

	root.AddCommand(serveCmd(opts), askCmd(opts), classifyCmd(opts), forecastCmd(opts))
	return root
}

// build loads configuration and assembles the service for one command.
func build(ctx context.Context, opts *options) (*app.App, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.provider != "" {
		cfg.LLM.ActiveProvider = opts.provider
	}
	return app.Build(ctx, cfg, logging.New(cfg.Logging))
}

func serveCmd(opts *options) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := build(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()
			if addr == "" {
				addr = a.Config.Server.Addr
			}

			srv := &http.Server{Addr: addr, Handler: a.Handler(), ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()

			a.Logger.WithField("addr", addr).Info("API server starting")
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}

func askCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask [query]",
		Short: "Answer one query and print the JSON response",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fileContext, err := readFile(opts.file)
			if err != nil {
				return err
			}
			a, err := build(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			reply := a.Dispatcher.Handle(cmd.Context(), pipeline.Query{
				Text:        strings.Join(args, " "),
				FileContext: fileContext,
			})
			if err := printJSON(cmd.OutOrStdout(), reply.Body); err != nil {
				return err
			}
			if reply.Status >= http.StatusBadRequest {
				return fmt.Errorf("query failed with status %d", reply.Status)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.file, "file", "", "document to attach as file context")
	return cmd
}

func classifyCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "classify <query>",
		Short: "Print the intent a query would be routed to",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := build(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			d := a.Router.Classify(cmd.Context(), strings.Join(args, " "))
			out := map[string]any{"intent": d.Intent, "tier": d.Tier}
			if d.Response != "" {
				out["response"] = d.Response
			}
			if d.Shortcut != nil {
				out["shortcut"] = d.Shortcut.Name
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
}

func forecastCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "forecast <query>",
		Short: "Run the forecasting handler directly, bypassing the router",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := build(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			res := a.Forecast.Run(cmd.Context(), strings.Join(args, " "), "")
			if res.DeferReason != "" {
				a.Logger.WithFields(logrus.Fields{"outcome": res.Outcome, "reason": res.DeferReason}).Warn("forecast deferred")
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
}

func readFile(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return fmt.Sprintf("File: %s\n%s", path, b), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
