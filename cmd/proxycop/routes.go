package main

import (
	"fmt"
	"net/http"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/warent/proxycop/internal/app"
	"github.com/warent/proxycop/pkg/router"
)

// tableViews stands in for the real views when only the table shape is
// needed.
type tableViews struct{}

func (tableViews) Home() router.View      { return router.ViewFunc(noopView) }
func (tableViews) URLStatus() router.View { return router.ViewFunc(noopView) }
func (tableViews) NotFound() router.View  { return router.ViewFunc(noopView) }

func noopView(http.ResponseWriter, *http.Request, *router.Match) {}

func routesCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "routes",
		Short: "Print the web UI route table",
		Long: `Print the route table of the web UI in match order.

The first entry whose pattern matches a path wins.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			rt, err := app.NewRouter(tableViews{}, cfg.UI.Base, nil)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Mode: %s\n\n", rt.Mode())
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tPATTERN\tPARAMS\tEXAMPLE")
			for _, r := range rt.Routes() {
				names, _ := rt.ParamNames(r.Name)
				example := router.Params{}
				for _, n := range names {
					example[n] = "example.com"
				}
				href, _ := rt.Href(r.Name, example)
				params := strings.Join(names, ",")
				if params == "" {
					params = "-"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Name, r.Path, params, href)
			}
			return tw.Flush()
		},
	}
}
