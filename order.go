package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blingpick/blingpick/internal/bling"
)

func newOrderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "order",
		Short: "Inspect Bling sales orders",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show <number>",
		Short: "Print the lines of a sales order without starting a pick",
		Args:  cobra.ExactArgs(1),
		RunE:  runOrderShow,
	})

	return cmd
}

func runOrderShow(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	client := newBlingClient(cc.Cfg, newTokenManager(cc.Cfg, cc.Logger), cc.Logger)

	found, err := client.FindOrders(ctx, args[0])
	if err != nil {
		return fmt.Errorf("searching order %s: %w", args[0], err)
	}

	if len(found) == 0 {
		return fmt.Errorf("order %s not found", args[0])
	}

	order, err := client.GetOrder(ctx, found[0].ID.String())
	if errors.Is(err, bling.ErrNotFound) {
		return fmt.Errorf("order %s not found", args[0])
	}

	if err != nil {
		return fmt.Errorf("fetching order %s: %w", args[0], err)
	}

	out := cmd.OutOrStdout()

	if cc.Flags.JSON {
		return printJSON(out, order)
	}

	rows := make([][]string, 0, len(order.Items))
	for _, it := range order.Items {
		id := "-"
		if it.Product.HasID() {
			id = it.Product.ID.String()
		}

		rows = append(rows, []string{it.Code, it.Description, it.Quantity.String(), id})
	}

	fmt.Fprintf(out, "Order %s (id %s)\n\n", order.Number, order.ID)
	printTable(out, []string{"CODE", "DESCRIPTION", "QTY", "PRODUCT"}, rows)

	return nil
}
