package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"fatture/internal/core"
	"fatture/internal/export"
	"fatture/internal/period"
	"fatture/internal/services"
)

// scopeFlags select the invoices a listing or an export covers.
type scopeFlags struct {
	granularity string
	asOf        string
}

func (f *scopeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.granularity, "granularity", "g", "", "restrict to the period containing --as-of (default all invoices)")
	cmd.Flags().StringVar(&f.asOf, "as-of", "", "reference date YYYY-MM-DD (default today)")
}

func (f *scopeFlags) scope(now time.Time) (services.Scope, error) {
	sc := services.Scope{AsOf: now}
	if f.asOf != "" {
		t, err := time.ParseInLocation(time.DateOnly, f.asOf, time.Local)
		if err != nil {
			return services.Scope{}, fmt.Errorf("invalid --as-of %q: want YYYY-MM-DD", f.asOf)
		}
		sc.AsOf = t
	}
	if f.granularity != "" {
		g, err := period.ParseGranularity(f.granularity)
		if err != nil {
			return services.Scope{}, err
		}
		sc.Granularity = g
	}
	return sc, nil
}

func newInvoicesCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invoices",
		Short: "List and render invoices",
	}

	var sf scopeFlags
	list := &cobra.Command{
		Use:   "list",
		Short: "List invoices, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sc, err := sf.scope(time.Now())
			if err != nil {
				return err
			}
			invoices, err := resolvedInvoices(cmd, opts, sc)
			if err != nil {
				return err
			}
			return printInvoices(cmd.OutOrStdout(), invoices)
		},
	}
	sf.register(list)

	var output string
	pdf := &cobra.Command{
		Use:     "pdf <invoice-id>",
		Short:   "Render one invoice as PDF",
		Example: `  fatturectl invoices pdf 42 -o fattura-42.pdf`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := opts.session()
			if err != nil {
				return err
			}
			app, err := opts.setup(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			inv, err := app.Invoices.Find(cmd.Context(), sess, args[0])
			if err != nil {
				return fmt.Errorf("get invoice: %w", err)
			}
			b, err := export.RenderInvoicePDF(inv, app.Issuer)
			if err != nil {
				return err
			}
			return writeOutput(cmd, output, b)
		},
	}
	pdf.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")

	cmd.AddCommand(list, pdf)
	return cmd
}

func resolvedInvoices(cmd *cobra.Command, opts *rootOptions, sc services.Scope) ([]core.ResolvedInvoice, error) {
	sess, err := opts.session()
	if err != nil {
		return nil, err
	}
	app, err := opts.setup(cmd.Context())
	if err != nil {
		return nil, err
	}
	defer app.Close()

	invoices, err := app.Invoices.Resolved(cmd.Context(), sess, sc)
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	return invoices, nil
}

func printInvoices(w io.Writer, invoices []core.ResolvedInvoice) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNUMBER\tDATE\tCUSTOMER\tSTATUS\tTOTAL\tTAX")
	for _, inv := range invoices {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s %s\t%s\n",
			inv.ID, inv.Number, inv.IssueDate, inv.CustomerName, inv.Status,
			inv.Currency, inv.TotalAmount.Decimal(), inv.TaxAmount.Decimal())
	}
	return tw.Flush()
}

// writeOutput writes b to path, or to stdout when path is empty or "-".
func writeOutput(cmd *cobra.Command, path string, b []byte) error {
	if path == "" || path == "-" {
		_, err := cmd.OutOrStdout().Write(b)
		return err
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s\n", path)
	return nil
}
