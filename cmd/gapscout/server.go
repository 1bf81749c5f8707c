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
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/gapscout/internal/alerts"
	"github.com/kalambet/gapscout/internal/api"
	"github.com/kalambet/gapscout/internal/composer"
	"github.com/kalambet/gapscout/internal/config"
	"github.com/kalambet/gapscout/internal/pipeline"
	"github.com/kalambet/gapscout/internal/proxy"
	"github.com/kalambet/gapscout/internal/search"
	"github.com/kalambet/gapscout/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gapscout API server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServer(addr, withMCP)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show gapscout system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default 127.0.0.1:<server.port>)")
	serveCmd.Flags().Bool("mcp", false, "also serve MCP tools over stdio")
}

func setupLogging(level string) {
	logLevel := slog.LevelInfo
	if strings.EqualFold(level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}

func runServer(addr string, withMCP bool) error {
	fmt.Fprintf(os.Stderr, "gapscout version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log.Level)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.Auth.APIToken == "" {
		slog.Warn("auth.api_token is not set; the API accepts unauthenticated requests")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.OpenURL(ctx, cfg.Storage.URL, cfg.Storage.ServiceKey)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	searchClient := search.NewClientAt(cfg.Search.APIKey, cfg.Search.BaseURL, cfg.Search.RatePerSecond)
	fanOut := search.NewFanOut(searchClient, cfg.SearchTimeout())
	aiClient := proxy.NewClientWithBaseURL(cfg.AI.APIKey, cfg.AI.Model, cfg.AI.BaseURL)
	analyzer := pipeline.NewAnalyzer(fanOut, aiClient, store, composer.New(0), pipeline.Credentials{
		SearchAPIKey: cfg.Search.APIKey,
		AIAPIKey:     cfg.AI.APIKey,
	})
	slog.Info("pipeline ready", "model", aiClient.Model(), "search_timeout", cfg.SearchTimeout())

	handler := api.NewAppHandler(api.AppDeps{
		Analyzer:      analyzer,
		Store:         store,
		Token:         cfg.Auth.APIToken,
		AllowedOrigin: cfg.Server.AllowedOrigin,
	})

	if addr == "" {
		addr = fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	if cfg.Alerts.Enabled {
		worker := alerts.NewWorker(store, analyzer, cfg.AlertsInterval())
		go worker.Run(ctx)
		slog.Info("alert worker started", "interval", cfg.AlertsInterval())
	}

	if withMCP {
		mcpSrv := api.NewMCPServer(api.MCPDeps{Analyzer: analyzer, Store: store})
		stdioSrv := server.NewStdioServer(mcpSrv)
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "gapscout listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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

func showStatus(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	client, err := newAPIClient()
	if err != nil {
		return err
	}
	client.httpClient = &http.Client{Timeout: 2 * time.Second}

	running := false
	resp, err := client.get(ctx, "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		switch resp.StatusCode {
		case http.StatusOK:
			running = true
			printStatus("Server", "running at %s", client.baseURL)
		case http.StatusServiceUnavailable:
			printStatus("Server", "running, storage unavailable")
		default:
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Model", "%s", cfg.AI.Model)
	printStatus("Storage", "%s", storageLabel(cfg.Storage.URL))
	if cfg.Alerts.Enabled {
		printStatus("Alerts", "every %s", cfg.AlertsInterval())
	} else {
		printStatus("Alerts", "disabled")
	}
	if err := cfg.Validate(); err != nil {
		printWarning("%v", err)
	}

	if running {
		var problems []storage.Problem
		if resp, err := client.get(ctx, fmt.Sprintf("/problems?limit=%d", storage.MaxListLimit)); err == nil {
			if _, err := decodeEnvelope(resp, &problems); err == nil {
				printStatus("Problems", "%s", countLabel(len(problems), storage.MaxListLimit))
			}
		}
	}
	return nil
}

// storageLabel hides credentials in a storage URL.
func storageLabel(raw string) string {
	if !storage.IsPostgresURL(raw) {
		return raw
	}
	if i := strings.Index(raw, "@"); i >= 0 {
		scheme := raw[:strings.Index(raw, "://")+3]
		return scheme + "***" + raw[i:]
	}
	return raw
}

func countLabel(count, limit int) string {
	if count >= limit {
		return fmt.Sprintf("%d+", count)
	}
	return fmt.Sprintf("%d", count)
}
