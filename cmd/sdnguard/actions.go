package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/spf13/cobra"
)

func newActionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "actions",
		Short: "List the actions the assistant can take",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			cat, err := buildCatalog(cfg)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), cat.Describe())
			return err
		},
	}
}

func newHealthCmd() *cobra.Command {
	var url, minVersion string
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Probe a running sdnguard server",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var constraint *semver.Constraints
			if minVersion != "" {
				c, err := semver.NewConstraint(">= " + minVersion)
				if err != nil {
					return usageError{fmt.Errorf("--min-version: %w", err)}
				}
				constraint = c
			}
			return probe(cmd, strings.TrimRight(url, "/")+"/health", constraint)
		},
	}
	cmd.Flags().StringVar(&url, "url", "http://localhost:5001", "server base URL")
	cmd.Flags().StringVar(&minVersion, "min-version", "", "fail unless the server reports at least this version")
	return cmd
}

type healthBody struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

func probe(cmd *cobra.Command, target string, constraint *semver.Constraints) error {
	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, target, nil)
	if err != nil {
		return usageError{err}
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: %s: %s", resp.Status, strings.TrimSpace(string(raw)))
	}

	var body healthBody
	if err := json.Unmarshal(raw, &body); err != nil || body.Status != "ok" {
		return fmt.Errorf("health check failed: unexpected body %q", strings.TrimSpace(string(raw)))
	}
	if constraint != nil {
		v, err := semver.NewVersion(body.Version)
		if err != nil {
			return fmt.Errorf("server version %q is not a release version", body.Version)
		}
		if !constraint.Check(v) {
			return fmt.Errorf("server version %s does not satisfy %s", v, constraint)
		}
	}

	out := "ok"
	if body.Version != "" {
		out += " " + body.Version
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
	return err
}
