package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgdocker/sigma-mcp-server/pkg/config"
	"github.com/dgdocker/sigma-mcp-server/pkg/dispatch"
	"github.com/dgdocker/sigma-mcp-server/pkg/sigma"
	"github.com/dgdocker/sigma-mcp-server/pkg/sigma2mcp"
)

func main() {
	transport := flag.String("transport", "stdio", "Transport type: stdio, sse, or http")
	addr := flag.String("addr", "", "Listen address for sse/http transports (overrides SIGMA_HTTP_ADDR)")
	basePath := flag.String("base-path", "/mcp", "Base HTTP path to mount the MCP server")
	configPath := flag.String("config", "", "Optional YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	cfg.LogConfiguration()

	client := sigma.NewClient(cfg.Credentials())

	// Preflight the credential exchange so bad credentials show up in the
	// logs at boot instead of on the first tool call. Not fatal: auth
	// failures are per-call errors, not process errors.
	preflight(client)

	dispatcher, err := dispatch.NewDispatcher(client)
	if err != nil {
		log.Fatalf("Failed to build tool registry: %v", err)
	}
	log.Printf("Registered %d Sigma tools", len(dispatcher.Registry().Names()))

	srv := sigma2mcp.NewServer(dispatcher)

	switch *transport {
	case "stdio":
		log.Printf("Starting Sigma MCP server (stdio transport)...")
		if err := sigma2mcp.ServeStdio(srv); err != nil {
			log.Fatalf("Server error: %v", err)
		}

	case "sse", "http":
		listenAddr := cfg.HTTPAddr
		if *addr != "" {
			listenAddr = *addr
		}

		mux := http.NewServeMux()
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		})

		if *transport == "sse" {
			handler := sigma2mcp.SSEHandler(srv, *basePath)
			mux.Handle(*basePath, handler)
			mux.Handle(*basePath+"/", handler)
			log.Printf("SSE endpoint: %s", sigma2mcp.GetSSEURL(listenAddr, *basePath))
		} else {
			handler := sigma2mcp.StreamableHTTPHandler(srv, *basePath)
			mux.Handle(*basePath, handler)
			mux.Handle(*basePath+"/", handler)
			log.Printf("Streamable HTTP endpoint: http://%s%s", listenAddr, *basePath)
		}

		httpSrv := &http.Server{
			Addr:         listenAddr,
			Handler:      mux,
			ReadTimeout:  240 * time.Second,
			WriteTimeout: 240 * time.Second,
		}
		if err := startServerWithGracefulShutdown(httpSrv); err != nil {
			log.Fatalf("HTTP server error: %v", err)
		}

	default:
		fmt.Fprintf(os.Stderr, "Unknown transport: %s (use 'stdio', 'sse', or 'http')\n", *transport)
		os.Exit(1)
	}
}

func preflight(client *sigma.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := client.Token(ctx); err != nil {
		log.Printf("WARNING: Sigma credential preflight failed: %v", err)
		log.Printf("Tool calls will keep failing until the credentials are fixed")
		return
	}
	log.Printf("Successfully authenticated with the Sigma API")
}

// startServerWithGracefulShutdown runs the HTTP server until SIGINT or
// SIGTERM, then drains in-flight requests before exiting.
func startServerWithGracefulShutdown(srv *http.Server) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		log.Printf("Starting server on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %v", err)
	case sig := <-quit:
		log.Printf("Received signal %v, initiating graceful shutdown...", sig)

		ctx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("server shutdown error: %v", err)
		}
		log.Printf("Server shut down gracefully")
		return nil
	}
}
