// ABOUTME: Entry point for the botline bridge
// ABOUTME: Relays chat platform messages to a Direct Line bot and routes replies back

package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/2389/botline/internal/config"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

const banner = `
 _           _   _ _
| |__   ___ | |_| (_)_ __   ___
| '_ \ / _ \| __| | | '_ \ / _ \
| |_) | (_) | |_| | | | | |  __/
|_.__/ \___/ \__|_|_|_| |_|\___|
`

func main() {
	command := "serve"
	if len(os.Args) >= 2 {
		command = os.Args[1]
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch command {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "health":
		err = runHealth(ctx)
	case "status":
		err = runStatus(ctx)
	case "events":
		err = runEvents(ctx)
	case "version":
		fmt.Println(version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("Usage: botline <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve      Start the bridge (default)")
	fmt.Println("  init       Create a new config file interactively")
	fmt.Println("  health     Check bridge health")
	fmt.Println("  status     Show correlation counts")
	fmt.Println("  events     Show recent ledger events")
	fmt.Println("  version    Print the version")
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is not configured")
	}

	body, status, err := get(ctx, fmt.Sprintf("http://%s/health/ready", cfg.Server.HTTPAddr))
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d: %s", status, body)
	}

	fmt.Println("healthy")
	return nil
}

func runStatus(ctx context.Context) error {
	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is not configured")
	}

	body, status, err := get(ctx, fmt.Sprintf("http://%s/api/correlations", cfg.Server.HTTPAddr))
	if err != nil {
		return fmt.Errorf("status check failed: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("status request failed: status %d", status)
	}

	fmt.Println(string(body))
	return nil
}

func runEvents(ctx context.Context) error {
	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is not configured")
	}

	body, status, err := get(ctx, fmt.Sprintf("http://%s/api/events?limit=20", cfg.Server.HTTPAddr))
	if err != nil {
		return fmt.Errorf("events request failed: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("events request failed: status %d: %s", status, body)
	}

	fmt.Println(string(body))
	return nil
}

func get(ctx context.Context, url string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("reading response: %w", err)
	}
	return body, resp.StatusCode, nil
}
