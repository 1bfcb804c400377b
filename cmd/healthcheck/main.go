// Command healthcheck probes the dashboard server for container health
// checks. It exits 0 when healthy and 1 otherwise.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/variantgroup/dashboard/internal/probe"
)

const defaultTimeout = 5 * time.Second

func main() {
	var (
		baseURL = flag.String("url", defaultURL(), "Base URL of the server")
		appPath = flag.String("app-path", "/app", "Path the UI is mounted under")
		full    = flag.Bool("full", false, "Also verify the UI path is reachable")
		timeout = flag.Duration("timeout", defaultTimeout, "Overall probe timeout")
	)
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	c := probe.New(probe.WithTimeout(*timeout), probe.WithAppPath(*appPath))
	check := c.Check
	if *full {
		check = c.CheckFull
	}
	if err := check(ctx, *baseURL); err != nil {
		os.Stderr.WriteString("healthcheck failed: " + err.Error() + "\n")
		cancel()
		os.Exit(1)
	}
}

// defaultURL targets the local server on PORT, or 8080.
func defaultURL() string {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	return "http://127.0.0.1:" + port
}
