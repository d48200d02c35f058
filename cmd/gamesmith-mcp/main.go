package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"gamesmith/studio/internal/appdirs"
	"gamesmith/studio/internal/envfile"
	"gamesmith/studio/internal/envutil"
	"gamesmith/studio/internal/logging"
	"gamesmith/studio/internal/mcptools"
	"gamesmith/studio/internal/studio"
)

func main() {
	transport := flag.String("transport", "stdio", "Transport mode: stdio or http")
	port := flag.String("port", "8082", "HTTP port (only used with --transport http)")
	flag.Parse()

	envfile.Load()
	dataDir, err := appdirs.DataDir()
	if err != nil {
		log.Fatalf("mcp init failed: %v", err)
	}
	logSetup, _ := logging.NewFileLogger(dataDir, envutil.Bool("GAMESMITH_DEBUG"))
	logger := logSetup.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	logger = logger.With("component", "mcp")
	if logSetup.Close != nil {
		defer logSetup.Close()
	}

	engine, err := studio.New(studio.WithLogger(logger))
	if err != nil {
		log.Fatalf("mcp init failed: %v", err)
	}
	defer engine.Close()

	srv := mcptools.NewServer(engine)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	switch *transport {
	case "stdio":
		logger.Info("mcp.serving", "transport", "stdio")
		if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil {
			log.Fatalf("server error: %v", err)
		}
	case "http":
		addr := ":" + *port
		handler := mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
			return srv
		}, nil)
		logger.Info("mcp.serving", "transport", "http", "addr", addr)
		if err := http.ListenAndServe(addr, handler); err != nil {
			log.Fatalf("http server error: %v", err)
		}
	default:
		log.Fatalf("unknown transport: %s (use stdio or http)", *transport)
	}
}
