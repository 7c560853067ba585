package commands

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/alqatri/tbilltracker/internal/treasury"
)

// calcCmd groups the return calculators. Both run offline against the
// flags; no stored data is required.
var calcCmd = &cobra.Command{
	Use:   "calc",
	Short: "Treasury bill return calculators",
	Long: `Calculates T-bill returns without touching the stored dataset.

Subcommands:
  primary    - buy at auction, hold to maturity
  secondary  - buy at auction, sell early at the prevailing market yield

Example:
  go run ./cmd/tbill calc primary --amount 100000 --yield 27.5 --tenor 364
  go run ./cmd/tbill calc secondary --amount 100000 --yield 27.5 --tenor 364 \
      --holding-days 180 --market-yield 26.0`,
}

var (
	calcAmount      float64
	calcYield       float64
	calcTenor       int
	calcTax         float64
	calcHolding     int
	calcMarketYield float64
	calcStrict      bool
)

var calcPrimaryCmd = &cobra.Command{
	Use:   "primary",
	Short: "Held-to-maturity return",
	RunE:  runCalcPrimary,
}

var calcSecondaryCmd = &cobra.Command{
	Use:   "secondary",
	Short: "Early-sale return at a market yield",
	RunE:  runCalcSecondary,
}

func init() {
	for _, cmd := range []*cobra.Command{calcPrimaryCmd, calcSecondaryCmd} {
		cmd.Flags().Float64Var(&calcAmount, "amount", 0, "investment amount in EGP (required)")
		cmd.Flags().Float64Var(&calcYield, "yield", 0, "auction yield percent (required)")
		cmd.Flags().IntVar(&calcTenor, "tenor", 0, "tenor in days: 91, 182, 273 or 364 (required)")
		cmd.Flags().Float64Var(&calcTax, "tax", -1, "tax rate percent (default from config)")
		cmd.Flags().BoolVar(&calcStrict, "strict", false, "enforce the 25k min/step and 10M max subscription limits")
		_ = cmd.MarkFlagRequired("amount")
		_ = cmd.MarkFlagRequired("yield")
		_ = cmd.MarkFlagRequired("tenor")
	}

	calcSecondaryCmd.Flags().IntVar(&calcHolding, "holding-days", 0, "days held before the sale (required)")
	calcSecondaryCmd.Flags().Float64Var(&calcMarketYield, "market-yield", 0, "prevailing market yield percent (required)")
	_ = calcSecondaryCmd.MarkFlagRequired("holding-days")
	_ = calcSecondaryCmd.MarkFlagRequired("market-yield")

	calcCmd.AddCommand(calcPrimaryCmd)
	calcCmd.AddCommand(calcSecondaryCmd)
	rootCmd.AddCommand(calcCmd)
}

// calcInputs resolves the shared flags against config defaults.
func calcInputs(cmd *cobra.Command) (amount, taxRate decimal.Decimal, err error) {
	cmd.SilenceUsage = true

	cfg, _, err := loadConfig()
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	amount = decimal.NewFromFloat(calcAmount)
	taxRate = decimal.NewFromFloat(cfg.TaxRatePercent)
	if calcTax >= 0 {
		taxRate = decimal.NewFromFloat(calcTax)
	}

	if !treasury.Tenor(calcTenor).Valid() {
		return decimal.Zero, decimal.Zero, fmt.Errorf("tenor must be one of 91, 182, 273, 364 days")
	}
	if calcStrict {
		if err := treasury.ValidateInvestmentAmount(amount); err != nil {
			return decimal.Zero, decimal.Zero, err
		}
	}
	return amount, taxRate, nil
}

func runCalcPrimary(cmd *cobra.Command, args []string) error {
	amount, taxRate, err := calcInputs(cmd)
	if err != nil {
		return err
	}

	result, err := treasury.CalculatePrimary(treasury.PrimaryInput{
		InvestmentAmount: amount,
		YieldPercent:     decimal.NewFromFloat(calcYield),
		TenorDays:        calcTenor,
		TaxRatePercent:   taxRate,
	})
	if err != nil {
		return err
	}

	fmt.Println()
	PrintDoubleSeparator()
	fmt.Printf("  Held to Maturity — %d days @ %.4f%%\n", calcTenor, calcYield)
	PrintSeparator()
	PrintKeyValue("Invested", formatEGP(result.PurchasePrice), 18)
	PrintKeyValue("Face value", formatEGP(result.FaceValue), 18)
	PrintKeyValue("Gross return", formatEGP(result.GrossReturn), 18)
	PrintKeyValue("Tax", formatEGP(result.TaxAmount), 18)
	PrintKeyValue("Net return", formatEGP(result.NetReturn), 18)
	PrintKeyValue("Total payout", formatEGP(result.TotalPayout), 18)
	PrintKeyValue("Real profit", formatPercent(result.RealProfitPercent), 18)
	PrintKeyValue("Effective annual", formatPercent(result.EffectiveAnnualPercent), 18)
	PrintSeparator()
	return nil
}

func runCalcSecondary(cmd *cobra.Command, args []string) error {
	amount, taxRate, err := calcInputs(cmd)
	if err != nil {
		return err
	}

	result, err := treasury.AnalyzeSecondarySale(treasury.SecondaryInput{
		InvestmentAmount:      amount,
		OriginalYieldPercent:  decimal.NewFromFloat(calcYield),
		TenorDays:             calcTenor,
		HoldingDays:           calcHolding,
		SecondaryYieldPercent: decimal.NewFromFloat(calcMarketYield),
		TaxRatePercent:        taxRate,
	})
	if err != nil {
		return err
	}

	fmt.Println()
	PrintDoubleSeparator()
	fmt.Printf("  Early Sale — day %d of %d @ market %.4f%%\n", calcHolding, calcTenor, calcMarketYield)
	PrintSeparator()
	PrintKeyValue("Invested", formatEGP(amount), 18)
	PrintKeyValue("Bought at", result.PurchasePricePer100.StringFixed(6)+" per 100", 18)
	PrintKeyValue("Sold at", result.SalePricePer100.StringFixed(6)+" per 100", 18)
	PrintKeyValue("Sale proceeds", formatEGP(result.SaleProceeds), 18)
	PrintKeyValue("Gross gain", formatEGP(result.GrossGain), 18)
	PrintKeyValue("Tax", formatEGP(result.TaxAmount), 18)
	PrintKeyValue("Net profit", formatEGP(result.NetProfit), 18)
	PrintKeyValue("Period yield", formatPercent(result.PeriodYieldPercent), 18)
	PrintSeparator()

	if result.NetProfit.IsNegative() {
		PrintWarning("Selling at this market yield realizes a loss")
	} else {
		PrintSuccess("Sale is profitable at this market yield")
	}
	return nil
}
