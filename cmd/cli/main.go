package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

const defaultBaseURL = "http://localhost:8080"

var (
	apiURL  string
	timeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "traitforge",
	Short:         "Client for the traitforge API",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", envOr("TRAITFORGE_API_URL", defaultBaseURL), "API base URL")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "request timeout")

	rootCmd.AddCommand(composeCmd, tokenCmd, watchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func httpClient() *http.Client {
	return &http.Client{Timeout: timeout}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
