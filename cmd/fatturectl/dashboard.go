package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"fatture/internal/period"
	"fatture/internal/services"
)

func newDashboardCmd(opts *rootOptions) *cobra.Command {
	var (
		granularity string
		asOf        string
		current     bool
		asJSON      bool
	)
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Print income figures for a period",
		Example: `  fatturectl dashboard --granularity quarter
  fatturectl dashboard --granularity month --as-of 2024-03-31 --current --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := dashboardRequest(granularity, asOf, current, time.Now())
			if err != nil {
				return err
			}
			sess, err := opts.session()
			if err != nil {
				return err
			}
			app, err := opts.setup(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			d, err := app.Dashboard.Load(cmd.Context(), sess, req)
			if err != nil {
				return fmt.Errorf("load dashboard: %w", err)
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(services.NewDashboardJSON(d, req))
			}
			return printDashboard(cmd.OutOrStdout(), d, req)
		},
	}
	cmd.Flags().StringVarP(&granularity, "granularity", "g", string(period.Month), "month, biMonthly, quarter, ytd or last12Months")
	cmd.Flags().StringVar(&asOf, "as-of", "", "reference date YYYY-MM-DD (default today)")
	cmd.Flags().BoolVar(&current, "current", false, "only the period containing --as-of")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func dashboardRequest(granularity, asOf string, current bool, now time.Time) (services.DashboardRequest, error) {
	g, err := period.ParseGranularity(granularity)
	if err != nil {
		return services.DashboardRequest{}, err
	}
	ref := now
	if asOf != "" {
		if ref, err = time.ParseInLocation(time.DateOnly, asOf, time.Local); err != nil {
			return services.DashboardRequest{}, fmt.Errorf("invalid --as-of %q: want YYYY-MM-DD", asOf)
		}
	}
	return services.DashboardRequest{Granularity: g, AsOf: ref, CurrentPeriodOnly: current}, nil
}

func printDashboard(w io.Writer, d *services.Dashboard, req services.DashboardRequest) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "%s as of %s\n\n", req.Granularity.Label(), req.AsOf.Format(time.DateOnly))
	for _, f := range d.Figures() {
		value := f.Count
		if value == "" {
			value = f.Amount.Decimal()
		}
		fmt.Fprintf(tw, "%s\t%s\n", f.Label, value)
	}
	printSeries(tw, "Income by service", d.Buckets, d.ServiceRows)
	printSeries(tw, "Income by customer", d.Buckets, d.CustomerRows)
	return tw.Flush()
}

func printSeries(w io.Writer, title string, buckets []string, rows []services.SeriesRow) {
	if len(rows) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s\n", title)
	fmt.Fprintf(w, "\t%s\tTotal\n", strings.Join(buckets, "\t"))
	for _, row := range rows {
		cells := make([]string, len(row.Cells))
		for i, c := range row.Cells {
			cells[i] = c.Decimal()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", row.Name, strings.Join(cells, "\t"), row.Total.Decimal())
	}
}
