package main

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/warent/proxycop/internal/errors"
	"github.com/warent/proxycop/internal/status"
)

func statusCmd(g *globals) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status <url>",
		Short: "Show the restrictions of a host",
		Long: `Show whether a host is blacklisted or cooling down.

Examples:
  proxycop status news.ycombinator.com
  proxycop status https://www.reddit.com/r/golang --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			host, err := status.HostOf(args[0])
			if err != nil {
				return errors.New(errors.CodeInvalidHost).WithDetail("%q", args[0]).Wrap(err)
			}

			e, err := g.open(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer e.Close()

			st, err := status.New(e.store, status.WithLogger(e.logger)).Fetch(cmd.Context(), host)
			if err != nil && !stderrors.Is(err, status.ErrNoStatus) {
				return errors.New(errors.CodeStoreRead).Wrap(err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(st)
			}

			switch {
			case st.Cooldown > 0:
				warn(out, "%s is cooling down for %v", host, time.Duration(st.Cooldown)*time.Second)
			case st.Blacklisted:
				warn(out, "%s is blacklisted", host)
			default:
				success(out, "%s has no restriction", host)
			}
			info(out, "Visits: %d", st.Visits)
			fmt.Fprintln(out)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the status as JSON")
	return cmd
}
