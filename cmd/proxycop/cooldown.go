package main

import (
	stderrors "errors"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/warent/proxycop/internal/errors"
	"github.com/warent/proxycop/internal/store"
)

func cooldownCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cooldown",
		Short: "Manage per-host cooldowns",
		Long: `Manage per-host cooldowns.

After a visit, a host with a cooldown of N minutes is refused
until N minutes have passed.`,
	}

	var reset bool
	clear := &cobra.Command{
		Use:   "clear <url>",
		Short: "Remove the cooldown of a host",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hosts, err := hostsOf(args)
			if err != nil {
				return err
			}
			e, err := g.open(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer e.Close()

			ctx, host, out := cmd.Context(), hosts[0], cmd.OutOrStdout()
			err = e.store.DeleteURLConfig(ctx, host)
			switch {
			case stderrors.Is(err, store.ErrNotFound):
				warn(out, "%s has no cooldown configured", host)
			case err != nil:
				return errors.New(errors.CodeStoreWrite).Wrap(err)
			default:
				success(out, "Cleared the cooldown of %s", host)
			}

			if reset {
				if err := e.store.ClearCooldown(ctx, host); err != nil {
					return errors.New(errors.CodeStoreWrite).Wrap(err)
				}
				success(out, "Lifted the pending cooldown of %s", host)
			}
			return nil
		},
	}
	clear.Flags().BoolVar(&reset, "reset", false, "Also lift a cooldown that is currently pending")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "set <url> <minutes>",
			Short: "Set the cooldown of a host",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				hosts, err := hostsOf(args[:1])
				if err != nil {
					return err
				}
				minutes, err := strconv.ParseUint(args[1], 10, 64)
				if err != nil {
					return errors.New(errors.CodeInvalidRequest).
						WithDetail("minutes must be a non-negative integer, got %q", args[1])
				}
				e, err := g.open(cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				defer e.Close()

				if err := e.store.SetURLConfig(cmd.Context(), hosts[0], store.URLConfig{Cooldown: minutes}); err != nil {
					return errors.New(errors.CodeStoreWrite).Wrap(err)
				}
				success(cmd.OutOrStdout(), "%s now cools down for %d minutes after each visit", hosts[0], minutes)
				return nil
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List configured cooldowns",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				e, err := g.open(cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				defer e.Close()

				configs, err := e.store.URLConfigs(cmd.Context())
				if err != nil {
					return errors.New(errors.CodeStoreRead).Wrap(err)
				}
				out := cmd.OutOrStdout()
				if len(configs) == 0 {
					info(out, "No cooldowns are configured.")
					return nil
				}
				for _, h := range store.SortedHosts(configs) {
					info(out, "%s: %d min", h, configs[h].Cooldown)
				}
				return nil
			},
		},
		clear,
	)
	return cmd
}
