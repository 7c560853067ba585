package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alqatri/tbilltracker/internal/store"
	"github.com/alqatri/tbilltracker/internal/treasury"
)

// statusCmd shows the latest stored auction per tenor.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the latest stored auction result per tenor",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	st, cleanup, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	fmt.Println()
	PrintDoubleSeparator()
	fmt.Println("  Latest Auction Results")
	PrintSeparator()

	widths := []int{7, 12, 12, 14, 12, 18}
	PrintTableHeader([]string{"Tenor", "Session", "Yield", "Price/100", "Maturity", "Accepted"}, widths)

	found := 0
	for _, tenor := range treasury.Tenors {
		rec, err := st.Latest(ctx, tenor)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				PrintTableRow([]string{
					fmt.Sprintf("%dd", tenor.Days()), "-", "-", "-", "-", "-",
				}, widths)
				continue
			}
			return fmt.Errorf("read latest for tenor %d: %w", tenor.Days(), err)
		}
		found++
		PrintTableRow([]string{
			fmt.Sprintf("%dd", tenor.Days()),
			rec.SessionDate.Format("2006-01-02"),
			formatPercent(rec.Yield),
			rec.PricePer100.StringFixed(6),
			rec.MaturityDate().Format("2006-01-02"),
			formatEGP(rec.AcceptedAmount),
		}, widths)
	}

	PrintSeparator()
	if found == 0 {
		PrintWarning("No auction data stored yet. Run: tbill update")
		return nil
	}

	if date, err := st.LatestSessionDate(ctx); err == nil {
		PrintKeyValue("Newest session", date.Format("2006-01-02"), 14)
	}
	return nil
}
