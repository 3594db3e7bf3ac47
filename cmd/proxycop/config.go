package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/warent/proxycop/internal/config"
	"github.com/warent/proxycop/internal/errors"
)

func configCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create proxycop.json",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a proxycop.json with the default settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := g.configPath
			if path == "" {
				path = config.ConfigFileName
			}
			if _, err := os.Stat(path); err == nil && !force {
				return errors.New(errors.CodeConfigLoad).
					WithDetail("%s already exists", path).
					WithSuggestion("Use --force to overwrite it")
			}
			if err := config.New().SaveTo(path); err != nil {
				return err
			}
			success(cmd.OutOrStdout(), "Wrote %s", path)
			return nil
		},
	}
	initCmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")

	cmd.AddCommand(
		initCmd,
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective configuration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := g.load()
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(cfg)
			},
		},
	)
	return cmd
}
