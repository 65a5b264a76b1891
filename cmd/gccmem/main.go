// gccmem: version-controlled memory for autonomous agents.
//
// Sessions, branches, checkpoints, and logs are stored as plain files in a
// per-session git repository, so every change in an agent's memory is a
// revision that can be listed, diffed, and rolled back.
//
// Usage:
//
//	gccmem serve     # Start the HTTP JSON API
//	gccmem mcp       # Start the MCP server (stdio transport)
//	gccmem version   # Print the version
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ZUENS2020/gcc-mem-system/internal/audit"
	"github.com/ZUENS2020/gcc-mem-system/internal/config"
	"github.com/ZUENS2020/gcc-mem-system/internal/engine"
	"github.com/ZUENS2020/gcc-mem-system/internal/mcptools"
	httpserver "github.com/ZUENS2020/gcc-mem-system/internal/server"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		if err := runHTTP(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "mcp":
		if err := runMCP(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "--help", "-h", "help":
		printUsage()
		os.Exit(0)
	case "--version", "-v", "version":
		fmt.Printf("gccmem v%s\n", mcptools.Version)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// app bundles everything a transport needs to run.
type app struct {
	cfg     *config.Config
	engine  *engine.Engine
	audit   *audit.Logger
	logger  *zap.Logger
	cleanup func()
}

// setup loads configuration and builds the engine with its logger and audit
// trail. app.cleanup flushes both logs and must be deferred.
func setup() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	auditLog, err := audit.New(cfg.AuditDir)
	if err != nil {
		logger.Sync() //nolint:errcheck
		return nil, fmt.Errorf("creating audit log: %w", err)
	}

	return &app{
		cfg:    cfg,
		engine: engine.New(cfg, logger),
		audit:  auditLog,
		logger: logger,
		cleanup: func() {
			auditLog.Close()
			logger.Sync() //nolint:errcheck
		},
	}, nil
}

func newLogger(level string) (*zap.Logger, error) {
	if level == "none" {
		return zap.NewNop(), nil
	}
	zcfg := zap.NewProductionConfig()
	if err := zcfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	// Logs go to stderr so the MCP stdio transport owns stdout.
	zcfg.OutputPaths = []string{"stderr"}
	return zcfg.Build()
}

func runHTTP() error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.cleanup()

	ctx, cancel := signalContext()
	defer cancel()

	srv := httpserver.New(a.engine, a.audit, a.logger)
	return srv.ListenAndServe(ctx, a.cfg.Server.Addr)
}

func runMCP() error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.cleanup()

	return mcpserver.ServeStdio(mcptools.NewServer(a.engine, a.audit))
}

// signalContext returns a context canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	return ctx, cancel
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `gccmem v%s — version-controlled memory for agents

Usage:
  gccmem serve     Start the HTTP JSON API
  gccmem mcp       Start the MCP server (stdio transport)
  gccmem version   Print the version

Configuration:
  Settings come from config.yaml (working directory or /etc/gccmem) and
  GCC_-prefixed environment variables, e.g. GCC_DATA_ROOT, GCC_SERVER_ADDR.

  MCP config for an AI tool:

  {
    "mcpServers": {
      "gccmem": {
        "command": "gccmem",
        "args": ["mcp"]
      }
    }
  }
`, mcptools.Version)
}
