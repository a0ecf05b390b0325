package main

import (
	"bytes"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"fatture/internal/core"
	"fatture/internal/export"
)

func newExportCmd(opts *rootOptions) *cobra.Command {
	var (
		sf     scopeFlags
		output string
	)
	cmd := &cobra.Command{
		Use:   "export <csv|pdf>",
		Short: "Export invoices to CSV or a multi-page PDF",
		Long: `Export writes the selected invoices with their line items resolved.
It runs in the foreground; use the web UI to queue a Google Sheets export.`,
		Example: `  fatturectl export csv > invoices.csv
  fatturectl export pdf -g quarter --as-of 2024-06-30 -o q2.pdf`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(core.ExportCSV), string(core.ExportPDF)},
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := core.ParseExportFormat(args[0])
			if err != nil {
				return err
			}
			if format == core.ExportSheets {
				return fmt.Errorf("%w: sheets exports run through the worker", core.ErrInvalidExportFormat)
			}
			sc, err := sf.scope(time.Now())
			if err != nil {
				return err
			}
			invoices, err := resolvedInvoices(cmd, opts, sc)
			if err != nil {
				return err
			}

			var b []byte
			switch format {
			case core.ExportCSV:
				var buf bytes.Buffer
				if err := export.ConvertToCSV(&buf, invoices); err != nil {
					return err
				}
				b = buf.Bytes()
			case core.ExportPDF:
				cfg, err := loadConfigOnly()
				if err != nil {
					return err
				}
				if b, err = export.RenderInvoicesPDF(invoices, export.Issuer{Name: cfg.IssuerName, Email: cfg.IssuerEmail}); err != nil {
					return err
				}
			}
			return writeOutput(cmd, output, b)
		},
	}
	sf.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}
