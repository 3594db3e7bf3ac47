package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/warent/proxycop/internal/backup"
	"github.com/warent/proxycop/internal/config"
	"github.com/warent/proxycop/internal/errors"
)

// newBackup creates the S3 backup client from the backup section.
// Tests replace it with a fake.
var newBackup = func(cfg *config.Config) (*backup.Backup, error) {
	if cfg.Backup.Bucket == "" {
		return nil, errors.New(errors.CodeNotConfigured).
			WithDetail("backup.bucket is empty").
			WithSuggestion("Set backup.bucket in proxycop.json")
	}
	client := backup.NewClient(backup.ClientConfig{
		Region:   cfg.Backup.Region,
		Endpoint: cfg.Backup.Endpoint,
	})
	return backup.New(client, cfg.Backup.Bucket, cfg.Backup.Prefix), nil
}

func backupCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Upload a snapshot of the store to S3",
		Long: `Upload a snapshot of the store to the configured bucket.

Credentials are read from AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY
and AWS_SESSION_TOKEN. Set backup.endpoint for MinIO or R2.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := g.open(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer e.Close()

			b, err := newBackup(e.cfg)
			if err != nil {
				return err
			}
			key, err := b.Upload(cmd.Context(), e.store)
			if err != nil {
				return err
			}
			success(cmd.OutOrStdout(), "Uploaded s3://%s/%s", e.cfg.Backup.Bucket, key)
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			b, err := newBackup(cfg)
			if err != nil {
				return err
			}
			objects, err := b.List(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(objects) == 0 {
				info(out, "No snapshots in s3://%s/%s", cfg.Backup.Bucket, cfg.Backup.Prefix)
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tSIZE\tMODIFIED")
			for _, o := range objects {
				fmt.Fprintf(tw, "%s\t%d\t%s\n", o.Key, o.Size, o.LastModified.UTC().Format(time.RFC3339))
			}
			return tw.Flush()
		},
	})
	return cmd
}

func restoreCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "restore [key]",
		Short: "Replace the store with a snapshot from S3",
		Long: `Replace the contents of the store with a snapshot.

Without a key the most recent snapshot under backup.prefix is used.
Stop the server first; it holds the store open.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var key string
			if len(args) == 1 {
				key = args[0]
			}

			e, err := g.open(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer e.Close()

			b, err := newBackup(e.cfg)
			if err != nil {
				return err
			}
			key, err = b.Download(cmd.Context(), key, e.store)
			if err != nil {
				return err
			}
			success(cmd.OutOrStdout(), "Restored %s into %s", key, e.store.Path())
			return nil
		},
	}
}
