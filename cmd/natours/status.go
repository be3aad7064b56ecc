// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/natours/natours/internal/config"
)

// ServerStatus holds the probe results of a running server.
type ServerStatus struct {
	Addr  string `json:"addr"`
	Live  bool   `json:"live"`
	Ready bool   `json:"ready"`
	Error string `json:"error,omitempty"`
}

// statusConfig holds configuration for the status command.
type statusConfig struct {
	jsonOutput bool
	timeout    time.Duration
}

// NewStatusCmd creates the status subcommand with all flags configured.
func NewStatusCmd() *cobra.Command {
	cfg := &statusConfig{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the health of a running Natours server",
		Long: `Query the liveness and readiness probes of the server whose metrics
listener is at --metrics-addr. Exits non-zero unless the server is ready.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, cfg)
		},
	}

	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output status as JSON")
	cmd.Flags().DurationVar(&cfg.timeout, "timeout", 2*time.Second, "probe timeout")

	return cmd
}

// runStatus executes the status command.
func runStatus(cmd *cobra.Command, sc *statusConfig) error {
	cfg, err := loadConfig(cmd, func(*config.Config) error { return nil })
	if err != nil {
		return err
	}
	if cfg.Metrics.Addr == "" {
		return oops.Code("CONFIG_INVALID").With("key", "metrics.addr").Errorf("metrics.addr is empty, the server exposes no probes")
	}

	client := &http.Client{Timeout: sc.timeout}
	status := queryServerStatus(cmd.Context(), client, cfg.Metrics.Addr)

	if sc.jsonOutput {
		data, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			return oops.Code("STATUS_FORMAT_FAILED").Wrap(err)
		}
		cmd.Println(string(data))
	} else {
		cmd.Print(formatStatusTable(status))
	}

	if !status.Ready {
		return oops.Code("SERVER_NOT_READY").With("addr", status.Addr).Errorf("server at %s is not ready", status.Addr)
	}
	return nil
}

// queryServerStatus probes the health endpoints at addr.
func queryServerStatus(ctx context.Context, client *http.Client, addr string) ServerStatus {
	status := ServerStatus{Addr: addr}
	base := probeBaseURL(addr)

	live, err := probe(ctx, client, base+"/healthz/liveness")
	if err != nil {
		status.Error = fmt.Sprintf("failed to connect: %v", err)
		return status
	}
	status.Live = live

	ready, err := probe(ctx, client, base+"/healthz/readiness")
	if err != nil {
		status.Error = fmt.Sprintf("readiness probe failed: %v", err)
		return status
	}
	status.Ready = ready
	if !ready {
		status.Error = "not ready"
	}
	return status
}

// probeBaseURL turns a listen address into a URL. A listener on every
// interface is probed through loopback.
func probeBaseURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func probe(ctx context.Context, client *http.Client, url string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return false, err //nolint:wrapcheck // reported as text
	}
	resp, err := client.Do(req)
	if err != nil {
		return false, err //nolint:wrapcheck // reported as text
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for connection reuse
	return resp.StatusCode == http.StatusOK, nil
}

// formatStatusTable formats the status as a human-readable table.
func formatStatusTable(status ServerStatus) string {
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "ADDR\tLIVE\tREADY\tDETAIL")
	_, _ = fmt.Fprintln(w, "----\t----\t-----\t------")
	detail := status.Error
	if detail == "" {
		detail = "-"
	}
	_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", status.Addr, yesNo(status.Live), yesNo(status.Ready), detail)

	_ = w.Flush()
	return b.String()
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
