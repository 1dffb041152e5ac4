package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Mindburn-Labs/sdnguard/pkg/archive"
	"github.com/Mindburn-Labs/sdnguard/pkg/audit"
	"github.com/Mindburn-Labs/sdnguard/pkg/config"
)

func newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Verify and archive the action audit trail",
		Args:  noArgs,
	}
	cmd.AddCommand(newAuditVerifyCmd(), newAuditExportCmd())
	return cmd
}

func newAuditVerifyCmd() *cobra.Command {
	var ref string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check the hash chain of the audit store or of an archived export",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			var entries []audit.Entry
			if ref != "" {
				entries, err = fetchExport(ctx, cfg, ref)
			} else {
				entries, err = storedEntries(ctx, cfg)
			}
			if err != nil {
				return err
			}
			if err := audit.VerifyChain(entries, audit.Genesis); err != nil {
				return err
			}
			head := audit.Genesis
			if n := len(entries); n > 0 {
				head = entries[n-1].Hash
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "ok: %d entries, head %s\n", len(entries), head)
			return err
		},
	}
	cmd.Flags().StringVar(&ref, "ref", "", "archived export to verify instead of the audit store")
	return cmd
}

func newAuditExportCmd() *cobra.Command {
	var toStdout bool
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Archive the audit store as JSON Lines",
		Long: `Reads every entry from the audit store, verifies the chain and writes it to
the archive backend (AUDIT_ARCHIVE_BACKEND). Prints the archive reference.`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			entries, err := storedEntries(ctx, cfg)
			if err != nil {
				return err
			}
			if err := audit.VerifyChain(entries, audit.Genesis); err != nil {
				return fmt.Errorf("refusing to export: %w", err)
			}
			var buf bytes.Buffer
			if err := audit.Export(&buf, entries); err != nil {
				return err
			}
			if toStdout {
				_, err = cmd.OutOrStdout().Write(buf.Bytes())
				return err
			}

			store, err := openArchive(ctx, cfg)
			if err != nil {
				return err
			}
			ref, err := store.Put(ctx, buf.Bytes())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), ref)
			return err
		},
	}
	cmd.Flags().BoolVar(&toStdout, "stdout", false, "write the export to stdout instead of the archive")
	return cmd
}

var errNoAuditStore = errors.New("no audit store configured (set AUDIT_DATABASE_URL or AUDIT_SQLITE_PATH)")

func storedEntries(ctx context.Context, cfg *config.Config) ([]audit.Entry, error) {
	if cfg.Audit.DatabaseURL == "" && cfg.Audit.SQLitePath == "" {
		return nil, usageError{errNoAuditStore}
	}
	sink, err := audit.OpenSQL(ctx, cfg.Audit.DatabaseURL, cfg.Audit.SQLitePath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = sink.Close() }()
	return sink.Entries(ctx)
}

func fetchExport(ctx context.Context, cfg *config.Config, ref string) ([]audit.Entry, error) {
	store, err := openArchive(ctx, cfg)
	if err != nil {
		return nil, err
	}
	data, err := store.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	if got := archive.Ref(data); got != ref {
		return nil, fmt.Errorf("archive object %s has digest %s", ref, got)
	}
	return audit.Import(bytes.NewReader(data))
}

func openArchive(ctx context.Context, cfg *config.Config) (archive.Store, error) {
	ac := cfg.Audit.Archive
	return archive.Open(ctx, archive.Config{
		Backend:  ac.Backend,
		Dir:      ac.Dir,
		Bucket:   ac.Bucket,
		Region:   ac.Region,
		Endpoint: ac.Endpoint,
		Prefix:   ac.Prefix,
	})
}
