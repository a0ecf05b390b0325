package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"fatture/internal/cli"
	"fatture/internal/core"
	"fatture/internal/session"
)

// listCmd builds "<name> list" around a function printing the records.
func listCmd(opts *rootOptions, name, short string, run func(ctx context.Context, app *cli.App, sess session.AuthSession, w io.Writer) error) *cobra.Command {
	parent := &cobra.Command{Use: name, Short: short}
	parent.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List " + name,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sess, err := opts.session()
			if err != nil {
				return err
			}
			app, err := opts.setup(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			if err := run(cmd.Context(), app, sess, tw); err != nil {
				return fmt.Errorf("list %s: %w", name, err)
			}
			return tw.Flush()
		},
	})
	return parent
}

func newCustomersCmd(opts *rootOptions) *cobra.Command {
	return listCmd(opts, "customers", "Customers you invoice", func(ctx context.Context, app *cli.App, sess session.AuthSession, w io.Writer) error {
		customers, err := app.API.ListCustomers(ctx, sess.Token)
		if err != nil {
			return err
		}
		printParties(w, customerRows(customers))
		return nil
	})
}

func newSuppliersCmd(opts *rootOptions) *cobra.Command {
	return listCmd(opts, "suppliers", "Suppliers on your invoices", func(ctx context.Context, app *cli.App, sess session.AuthSession, w io.Writer) error {
		suppliers, err := app.API.ListSuppliers(ctx, sess.Token)
		if err != nil {
			return err
		}
		rows := make([]core.Customer, len(suppliers))
		for i, s := range suppliers {
			rows[i] = core.Customer(s)
		}
		printParties(w, customerRows(rows))
		return nil
	})
}

func customerRows(cs []core.Customer) [][4]string {
	rows := make([][4]string, len(cs))
	for i, c := range cs {
		rows[i] = [4]string{c.ID, c.Name, c.Email, c.Phone}
	}
	return rows
}

func printParties(w io.Writer, rows [][4]string) {
	fmt.Fprintln(w, "ID\tNAME\tEMAIL\tPHONE")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r[0], r[1], r[2], r[3])
	}
}

func newLineItemsCmd(opts *rootOptions) *cobra.Command {
	return listCmd(opts, "line-items", "Catalog line items", func(ctx context.Context, app *cli.App, sess session.AuthSession, w io.Writer) error {
		items, err := app.API.ListLineItems(ctx, sess.Token)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "ID\tNAME\tPRICE\tQTY")
		for _, li := range items {
			fmt.Fprintf(w, "%s\t%s\t%s %s\t%s\n", li.ID, li.Name, li.Currency, li.Price.Decimal(), core.FormatQuantity(li.Quantity))
		}
		return nil
	})
}

func newExpensesCmd(opts *rootOptions) *cobra.Command {
	return listCmd(opts, "expenses", "Recorded expenses", func(ctx context.Context, app *cli.App, sess session.AuthSession, w io.Writer) error {
		expenses, err := app.API.ListExpenses(ctx, sess.Token, sess.UserID)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "ID\tDESCRIPTION\tVENDOR\tAMOUNT\tSTATUS")
		for _, e := range expenses {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s %s\t%s\n", e.ID, e.Description, e.Vendor, e.Currency, e.Amount.Decimal(), e.Status)
		}
		return nil
	})
}
