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

	"github.com/kalambet/routesmith/internal/api"
	"github.com/kalambet/routesmith/internal/config"
	"github.com/kalambet/routesmith/internal/firecrawl"
	"github.com/kalambet/routesmith/internal/gateway"
	"github.com/kalambet/routesmith/internal/metrics"
	"github.com/kalambet/routesmith/internal/ollama"
	"github.com/kalambet/routesmith/internal/openrouter"
	"github.com/kalambet/routesmith/internal/routes"
	"github.com/kalambet/routesmith/internal/schemagen"
	"github.com/kalambet/routesmith/internal/scrape"
	"github.com/kalambet/routesmith/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the routesmith server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServe(withMCP)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server and provider status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().Bool("mcp", false, "also serve the MCP route tools on stdin/stdout")
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn", "warning":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

func openKV(ctx context.Context, cfg config.Config) (storage.KV, error) {
	if cfg.Storage.Backend == config.BackendNATS {
		kv, err := storage.OpenNATS(ctx, cfg.Storage.NATSURL, cfg.Storage.NATSBucket)
		if err != nil {
			return nil, err
		}
		return kv, nil
	}
	kv, err := storage.OpenSQLite(cfg.Storage.DataDir)
	if err != nil {
		return nil, err
	}
	return kv, nil
}

// newCompleter returns the chat backend used for schema generation and
// local extraction. Ollama models are pulled on first use.
func newCompleter(ctx context.Context, cfg config.Config) (gateway.Completer, error) {
	if cfg.LLM.Provider == config.ProviderOpenRouter {
		return openrouter.NewClient(cfg.OpenRouter.APIKey, cfg.OpenRouter.Model), nil
	}
	client := ollama.New(cfg.Ollama.BaseURL)
	if err := ollama.EnsureReady(ctx, client, cfg.Ollama.Model, os.Stderr); err != nil {
		return nil, err
	}
	return ollama.NewChatter(client, cfg.Ollama.Model), nil
}

type gateways struct {
	schema  gateway.SchemaGenerator
	search  gateway.Searcher
	extract gateway.Extractor
}

func newGateways(llm gateway.Completer, cfg config.Config, m *metrics.Metrics) gateways {
	g := gateways{schema: schemagen.New(llm)}

	if cfg.Firecrawl.APIKey != "" {
		fc := firecrawl.New(cfg.Firecrawl.APIKey, cfg.Firecrawl.BaseURL)
		g.search = fc
		if cfg.Extraction.Provider == config.ProviderFirecrawl {
			g.extract = fc
		}
	}
	if cfg.Extraction.Provider == config.ProviderLocal {
		g.extract = scrape.NewExtractor(scrape.NewFetcher(cfg.Fetch.RateLimit), llm)
	}

	if m != nil {
		g.schema = m.InstrumentSchemaGenerator(g.schema)
		if g.search != nil {
			g.search = m.InstrumentSearcher(g.search)
		}
		if g.extract != nil {
			g.extract = m.InstrumentExtractor(g.extract)
		}
	}
	return g
}

func runServe(withMCP bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.RequireSecrets(); err != nil {
		return err
	}

	logger := newLogger(cfg.Log.Level)
	slog.SetDefault(logger)
	slog.Info("starting routesmith", "version", version,
		"storage", cfg.Storage.Backend,
		"extraction", cfg.Extraction.Provider,
		"llm", cfg.LLM.Provider,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	kv, err := openKV(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := kv.Close(); err != nil {
			slog.Warn("closing storage", "error", err)
		}
	}()

	llm, err := newCompleter(ctx, cfg)
	if err != nil {
		return err
	}

	m := metrics.New()
	gw := newGateways(llm, cfg, m)
	if gw.search == nil {
		slog.Warn("no firecrawl API key; /search is disabled")
	}

	manager := routes.NewManager(routes.NewStore(kv), gw.extract)
	if cfg.API.Token == "" {
		slog.Warn("api.token is not set; management endpoints are unauthenticated")
	}

	handler := api.NewHandler(api.Deps{
		Routes:    manager,
		Schema:    gw.schema,
		Search:    gw.search,
		Extract:   gw.extract,
		Token:     cfg.API.Token,
		PublicURL: cfg.Server.PublicURL,
		Metrics:   m,
		Logger:    logger,
	})

	if withMCP {
		mcpSrv := api.NewMCPServer(api.MCPDeps{Routes: manager, PublicURL: cfg.Server.PublicURL})
		stdioSrv := server.NewStdioServer(mcpSrv)
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("routesmith listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
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

	resp, err := client.get(ctx, "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			printStatus("Server", "running at %s", client.baseURL)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	if resp != nil && resp.StatusCode == http.StatusOK {
		var list routeList
		if err := client.call(ctx, http.MethodGet, "/routes", nil, &list); err == nil {
			printStatus("Routes", "%d", len(list.Routes))
		} else {
			printStatus("Routes", "unavailable (%v)", err)
		}
	}

	printStatus("Storage", "%s", cfg.Storage.Backend)
	if cfg.Storage.Backend == config.BackendNATS {
		printStatus("NATS", "%s (bucket %s)", cfg.Storage.NATSURL, cfg.Storage.NATSBucket)
	} else {
		printStatus("Data dir", "%s", cfg.Storage.DataDir)
	}
	printStatus("Extraction", "%s", cfg.Extraction.Provider)
	switch cfg.LLM.Provider {
	case config.ProviderOpenRouter:
		printStatus("LLM", "openrouter (%s)", cfg.OpenRouter.Model)
	default:
		state := "not running"
		if ollama.New(cfg.Ollama.BaseURL).IsRunning(ctx) {
			state = "running"
		}
		printStatus("LLM", "ollama %s at %s (%s)", cfg.Ollama.Model, cfg.Ollama.BaseURL, state)
	}
	if err := cfg.RequireSecrets(); err != nil {
		printWarning("%v", err)
	}
	return nil
}
