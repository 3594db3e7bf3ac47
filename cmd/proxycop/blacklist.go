package main

import (
	"github.com/spf13/cobra"

	"github.com/warent/proxycop/internal/errors"
	"github.com/warent/proxycop/internal/status"
)

func blacklistCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "blacklist",
		Short: "Manage blacklisted hosts",
		Long: `Manage the hosts the proxy never lets through.

Edits go straight to the store file; restart a running server to
pick them up, or use the JSON API instead.`,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List blacklisted hosts",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				e, err := g.open(cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				defer e.Close()

				hosts, err := e.store.Blacklist(cmd.Context())
				if err != nil {
					return errors.New(errors.CodeStoreRead).Wrap(err)
				}
				out := cmd.OutOrStdout()
				if len(hosts) == 0 {
					info(out, "No hosts are blacklisted.")
					return nil
				}
				for _, h := range hosts {
					info(out, "%s", h)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "add <url>...",
			Short: "Blacklist hosts",
			Args:  cobra.MinimumNArgs(1),
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

				out := cmd.OutOrStdout()
				for _, h := range hosts {
					added, err := e.store.AddToBlacklist(cmd.Context(), h)
					if err != nil {
						return errors.New(errors.CodeStoreWrite).Wrap(err)
					}
					if added {
						success(out, "Blacklisted %s", h)
					} else {
						info(out, "%s is already blacklisted", h)
					}
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "remove <url>...",
			Short: "Remove hosts from the blacklist",
			Args:  cobra.MinimumNArgs(1),
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

				out := cmd.OutOrStdout()
				for _, h := range hosts {
					removed, err := e.store.RemoveFromBlacklist(cmd.Context(), h)
					if err != nil {
						return errors.New(errors.CodeStoreWrite).Wrap(err)
					}
					if removed {
						success(out, "Removed %s", h)
					} else {
						warn(out, "%s was not blacklisted", h)
					}
				}
				return nil
			},
		},
	)
	return cmd
}

// hostsOf normalizes command-line URLs to host names.
func hostsOf(args []string) ([]string, error) {
	hosts := make([]string, 0, len(args))
	for _, a := range args {
		h, err := status.HostOf(a)
		if err != nil {
			return nil, errors.New(errors.CodeInvalidHost).WithDetail("%q", a).Wrap(err)
		}
		hosts = append(hosts, h)
	}
	return hosts, nil
}
