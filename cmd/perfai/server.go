package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/perfdesk/perfai/internal/api"
	"github.com/perfdesk/perfai/internal/config"
	"github.com/perfdesk/perfai/internal/embedding"
	"github.com/perfdesk/perfai/internal/indexer"
	"github.com/perfdesk/perfai/internal/orchestrator"
	"github.com/perfdesk/perfai/internal/provider"
	"github.com/perfdesk/perfai/internal/services"
	"github.com/perfdesk/perfai/internal/storage"
	"github.com/perfdesk/perfai/internal/vectorstore"
)

var debugLog bool

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the perfai server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running perfai server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show perfai system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func init() {
	startCmd.Flags().BoolVar(&debugLog, "debug", false, "enable debug logging")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "perfai.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "perfai version %s\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if debugLog {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	// Refuse to start twice: probe the health endpoint before claiming the port.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Knowledge base: vector store + embeddings + indexer.
	vstore, err := vectorstore.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening vector store: %w", err)
	}
	embeddingKey := cfg.AI.EmbeddingAPIKey
	if embeddingKey == "" {
		embeddingKey = cfg.AI.APIKey
	}
	embedder := embedding.New(embeddingKey)
	idx := indexer.New(embedder, vstore)
	retriever := indexer.NewRetriever(embedder, vstore)

	// Audit trail.
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("closing storage", "error", err)
		}
	}()

	// LLM backend + orchestrator.
	backend, err := provider.New(provider.Config{
		Provider: cfg.AI.Provider,
		APIKey:   cfg.AI.APIKey,
		Endpoint: cfg.AI.Endpoint,
		Model:    cfg.AI.Model,
	})
	if err != nil {
		return fmt.Errorf("creating LLM backend: %w", err)
	}

	orch := orchestrator.New(backend, services.Registry(retriever), orchestrator.Options{
		MaxRetries:        cfg.Orchestrator.MaxRetries,
		Timeout:           cfg.Orchestrator.ParsedTimeout(),
		RequestsPerMinute: cfg.Orchestrator.RequestsPerMinute,
		CacheEnabled:      cfg.Orchestrator.CacheEnabled,
		CacheTTL:          cfg.Orchestrator.ParsedCacheTTL(),
		MaxHistory:        cfg.Orchestrator.MaxHistory,
		Sink:              store,
		Logger:            logger,
	})
	defer orch.Close()

	handler := api.NewHandler(api.Deps{
		Orchestrator: orch,
		Indexer:      idx,
		Retriever:    retriever,
		Calls:        store,
		Token:        cfg.Server.AuthToken,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// MCP server over stdio.
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Caller:    orch,
		Retriever: retriever,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	errCh := make(chan error, 1)
	go func() {
		slog.Info("perfai listening", "addr", addr, "provider", cfg.AI.Provider)
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

func stopServer() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("perfai is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop perfai (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to perfai (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Provider", "%s", cfg.AI.Provider)
	if cfg.AI.Model != "" {
		printStatus("Model", "%s", cfg.AI.Model)
	}
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
