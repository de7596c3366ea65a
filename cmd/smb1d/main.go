// Command smb1d is example wiring for the engine package: it binds a
// single on-disk share, starts a listener, and serves SMB1 connections
// until interrupted. Grounded on cmd/dittofs/main.go's runStart (flag
// parsing, logger.Init, signal-driven graceful shutdown) cut down to one
// share and no config file, YAML config loading, or API/telemetry
// subsystems, none of which this protocol core depends on (§1).
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gosmbd/smb1d/internal/localdriver"
	"github.com/gosmbd/smb1d/internal/logger"
	"github.com/gosmbd/smb1d/internal/metrics"
	"github.com/gosmbd/smb1d/internal/nbtransport"
	"github.com/gosmbd/smb1d/internal/smb1/driver"
	"github.com/gosmbd/smb1d/internal/smb1/handlers"
	"github.com/gosmbd/smb1d/internal/smb1/session"
	"github.com/gosmbd/smb1d/internal/smb1/tree"
)

// staticShare resolves every TREE_CONNECT_ANDX to the same read-write
// disk share regardless of share name, the minimal ShareResolver the
// engine needs (engine.go's ShareResolver interface).
type staticShare struct {
	fs driver.FileSystem
}

func (s *staticShare) Resolve(ctx context.Context, shareName string, client session.ClientInfo) (driver.FileSystem, tree.ShareType, tree.Permission, error) {
	return s.fs, tree.ShareTypeDisk, tree.PermissionReadWrite, nil
}

func main() {
	addr := flag.String("listen", ":445", "address to listen on")
	root := flag.String("root", "", "directory to export as the \"share\" tree")
	shareName := flag.String("share", "share", "share name shown in the startup log; every share name a client sends resolves to -root")
	metricsAddr := flag.String("metrics-listen", ":9445", "address to serve Prometheus metrics on")
	logLevel := flag.String("log-level", "INFO", "log level: DEBUG, INFO, WARN, ERROR")
	flag.Parse()

	if *root == "" {
		fmt.Fprintln(os.Stderr, "Error: -root is required (directory to export)")
		os.Exit(1)
	}
	if fi, err := os.Stat(*root); err != nil || !fi.IsDir() {
		fmt.Fprintf(os.Stderr, "Error: -root %q is not a directory\n", *root)
		os.Exit(1)
	}

	if err := logger.Init(logger.Config{Level: *logLevel, Format: "text", Output: "stdout"}); err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}

	metrics.InitRegistry(prometheus.NewRegistry())
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
		logger.Info("metrics endpoint listening", logger.ClientIP(*metricsAddr))
		if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
			logger.Error("metrics server stopped", logger.Err(err))
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connRegistry := nbtransport.NewRegistry()
	engine := handlers.NewEngine(session.DefaultConfig(), &staticShare{
		fs: localdriver.New(*root),
	})
	engine.Sender = connRegistry
	defer engine.Close()

	ln, err := net.Listen("tcp", *addr)
	if err != nil {
		log.Fatalf("failed to listen on %s: %v", *addr, err)
	}
	logger.Info("smb1d listening", logger.ClientIP(*addr), logger.Share(*shareName), logger.Path(*root))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received, closing listener")
		cancel()
		ln.Close()
	}()

	for {
		netConn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				logger.Info("server stopped")
				return
			default:
				logger.Warn("accept error", logger.Err(err))
				continue
			}
		}
		c := nbtransport.NewConn(netConn, engine, connRegistry)
		go c.Serve(ctx)
	}
}
