package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/retailsearch/retailsearch/internal/cli/retailsearchctl"
)

func main() {
	_ = godotenv.Load()

	timeout := parseDurationWithDefault(strings.TrimSpace(os.Getenv("RETAILSEARCH_CLI_TIMEOUT")), 30*time.Second)
	options := retailsearchctl.Options{
		BaseURL:     envOr("RETAILSEARCH_AGENT_API_URL", "http://localhost:8080"),
		GenerateURL: envOr("RETAILSEARCH_GENERATE_API_URL", "http://localhost:8081"),
		ExecuteURL:  envOr("RETAILSEARCH_EXECUTE_API_URL", "http://localhost:8082"),
		Timeout:     timeout,
		Stdout:      os.Stdout,
		Stderr:      os.Stderr,
	}

	code := retailsearchctl.Run(context.Background(), os.Args[1:], options)
	os.Exit(code)
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseDurationWithDefault(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid RETAILSEARCH_CLI_TIMEOUT %q; using %s\n", raw, fallback)
		return fallback
	}
	return parsed
}
