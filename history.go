package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/blingpick/blingpick/internal/ledger"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List finalized picks from the local ledger",
		Args:  cobra.NoArgs,
		RunE:  runHistory,
	}

	cmd.Flags().Int("limit", ledger.DefaultLimit, "maximum number of picks to list")
	cmd.Flags().String("order", "", "only list picks of this order number")

	return cmd
}

func runHistory(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	if !cc.Cfg.Ledger.Enabled {
		return errors.New("the pick ledger is disabled (ledger.enabled = false)")
	}

	store, err := ledger.Open(ctx, cc.Cfg.Ledger.DBPath, cc.Logger)
	if err != nil {
		return fmt.Errorf("opening pick ledger: %w", err)
	}
	defer store.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	number, _ := cmd.Flags().GetString("order")

	var picks []ledger.Pick
	if number != "" {
		picks, err = store.ByOrder(ctx, number)
	} else {
		picks, err = store.Recent(ctx, limit)
	}

	if err != nil {
		return fmt.Errorf("listing picks: %w", err)
	}

	out := cmd.OutOrStdout()

	if cc.Flags.JSON {
		return printJSON(out, picks)
	}

	if len(picks) == 0 {
		cc.Statusf("No picks recorded.\n")
		return nil
	}

	printTable(out, []string{"FINISHED", "ORDER", "ITEMS", "SCANNED", "FORCED"}, historyRows(picks))

	return nil
}

func historyRows(picks []ledger.Pick) [][]string {
	rows := make([][]string, 0, len(picks))

	for _, p := range picks {
		var ordered, scanned int
		for _, it := range p.Items {
			ordered += it.Ordered
			scanned += it.Scanned
		}

		rows = append(rows, []string{
			formatTime(p.FinishedAt),
			p.OrderNumber,
			strconv.Itoa(len(p.Items)),
			fmt.Sprintf("%d/%d", scanned, ordered),
			yesNo(p.Forced),
		})
	}

	return rows
}
