package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/net/netutil"

	"github.com/kalambet/wcdata/internal/api"
	"github.com/kalambet/wcdata/internal/config"
	"github.com/kalambet/wcdata/internal/resolver"
	"github.com/kalambet/wcdata/internal/storage"
	"github.com/kalambet/wcdata/internal/warm"
)

// --- serve ---

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local development REST API (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		resources, _ := cmd.Flags().GetStringSlice("resource")
		origins, _ := cmd.Flags().GetStringSlice("allow-origin")
		maxConns, _ := cmd.Flags().GetInt("max-conns")
		return runServer(resources, origins, maxConns)
	},
}

func init() {
	serveCmd.Flags().StringSlice("resource", nil, "serve only these collections (default: any)")
	serveCmd.Flags().StringSlice("allow-origin", nil, "CORS origins (default: any)")
	serveCmd.Flags().Int("max-conns", 256, "maximum simultaneous connections")
}

func runServer(resources, origins []string, maxConns int) error {
	fmt.Fprintf(os.Stderr, "wcdata version %s\n", version)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get("http://" + addr + "/health"); err == nil {
		resp.Body.Close()
		printWarning("wcdata is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	handler := api.NewRESTHandler(api.RESTDeps{
		Store:     store,
		Resources: resources,
		Credentials: api.Credentials{
			Token:          cfg.Server.Token,
			ConsumerKey:    cfg.API.ConsumerKey,
			ConsumerSecret: cfg.API.ConsumerSecret,
		},
		AllowedOrigins: origins,
		Logger:         slog.Default(),
	})
	if cfg.Server.Token == "" && cfg.API.ConsumerKey == "" {
		slog.Warn("no credentials configured, the API accepts every request")
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	if maxConns > 0 {
		ln = netutil.LimitListener(ln, maxConns)
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "wcdata listening on %s\n", addr)
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// --- mcp ---

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the data store over MCP on stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		reg, err := registryFor(cfg)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if cfg.Warm.Targets != "" {
			w, err := newWarmer(reg, cfg, cfg.Warm.Targets)
			if err != nil {
				return err
			}
			go w.Run(ctx)
			slog.Info("cache warmer started", "interval", cfg.Warm.Interval)
		}

		stdioSrv := server.NewStdioServer(api.NewMCPServer(api.MCPDeps{Registry: reg}))
		slog.Info("MCP server started (stdio transport)")
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("MCP stdio server: %w", err)
		}
		return nil
	},
}

// --- warm ---

var warmCmd = &cobra.Command{
	Use:   "warm [target ...]",
	Short: "Keep lists warm in the cache (foreground)",
	Long: `Re-fetch a set of lists on an interval. Targets are "resource" or
"resource?query" and default to the warm.targets setting.

Examples:
  wcdata warm --once products?status=publish orders`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if d, _ := cmd.Flags().GetDuration("interval"); d > 0 {
			cfg.Warm.Interval = d
		}
		targets := cfg.Warm.Targets
		if len(args) > 0 {
			targets = strings.Join(args, ",")
		}
		if targets == "" {
			return fmt.Errorf("no targets: pass them as arguments or set warm.targets")
		}

		reg, err := registryFor(cfg)
		if err != nil {
			return err
		}
		w, err := newWarmer(reg, cfg, targets)
		if err != nil {
			return err
		}

		if once, _ := cmd.Flags().GetBool("once"); once {
			res, err := w.RunOnce(cmd.Context())
			printStats(reg)
			if err != nil {
				return fmt.Errorf("%d of %d targets failed: %w", res.Failed, res.Targets, err)
			}
			printSuccess("Warmed %d targets", res.Targets)
			return nil
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		w.Run(ctx)
		return nil
	},
}

func init() {
	warmCmd.Flags().Bool("once", false, "warm once and exit")
	warmCmd.Flags().Duration("interval", 0, "time between passes (default: warm.interval)")
}

func newWarmer(reg *resolver.Registry, cfg config.Config, targets string) (*warm.Warmer, error) {
	parsed, err := warm.ParseTargets(targets)
	if err != nil {
		return nil, err
	}
	return warm.NewWarmer(reg, parsed, cfg.Warm.Interval, cfg.Warm.Concurrency), nil
}

func printStats(reg *resolver.Registry) {
	stats := reg.Stats()
	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		s := stats[name]
		printStatus(name, "%d items, %d queries, %d errors", s.Items, s.Queries, s.Errors)
	}
}
