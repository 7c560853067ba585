package treasury

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ErrInvalidInput indicates calculation inputs that fail validation. It is
// always returned before any arithmetic happens.
var ErrInvalidInput = errors.New("invalid calculation input")

// Day-count convention is actual/365, fixed. The source quotes all yields
// against a 365-day year.
var daysInYear = decimal.NewFromInt(365)

// Subscription constraints published by the source.
var (
	MinInvestmentAmount = decimal.NewFromInt(25_000)
	InvestmentStep      = decimal.NewFromInt(25_000)
	MaxInvestmentAmount = decimal.NewFromInt(10_000_000)
)

// PrimaryInput holds the parameters for a buy-and-hold calculation.
// InvestmentAmount is the cash paid at auction (the discounted price), not
// the face value received at maturity.
type PrimaryInput struct {
	InvestmentAmount decimal.Decimal
	YieldPercent     decimal.Decimal
	TenorDays        int
	TaxRatePercent   decimal.Decimal
}

func (in PrimaryInput) validate() error {
	if !in.InvestmentAmount.IsPositive() {
		return fmt.Errorf("%w: investment amount must be positive", ErrInvalidInput)
	}
	if !in.YieldPercent.IsPositive() {
		return fmt.Errorf("%w: yield must be positive", ErrInvalidInput)
	}
	if in.TenorDays <= 0 {
		return fmt.Errorf("%w: tenor must be positive", ErrInvalidInput)
	}
	if in.TaxRatePercent.IsNegative() || in.TaxRatePercent.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("%w: tax rate must be between 0 and 100", ErrInvalidInput)
	}
	return nil
}

// PrimaryResult holds the buy-and-hold figures.
type PrimaryResult struct {
	PurchasePrice          decimal.Decimal `json:"purchase_price"`
	FaceValue              decimal.Decimal `json:"face_value"`
	GrossReturn            decimal.Decimal `json:"gross_return"`
	TaxAmount              decimal.Decimal `json:"tax_amount"`
	NetReturn              decimal.Decimal `json:"net_return"`
	TotalPayout            decimal.Decimal `json:"total_payout"`
	RealProfitPercent      decimal.Decimal `json:"real_profit_percent"`
	EffectiveAnnualPercent decimal.Decimal `json:"effective_annual_percent"`
}

// CalculatePrimary computes the return of holding a bill from auction to
// maturity. Simple interest over the tenor, actual/365:
//
//	gross = amount * yield/100 * tenor/365
//
// Tax applies to the full gross return.
func CalculatePrimary(in PrimaryInput) (*PrimaryResult, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	hundred := decimal.NewFromInt(100)
	tenor := decimal.NewFromInt(int64(in.TenorDays))

	growth := in.YieldPercent.Div(hundred).Mul(tenor).Div(daysInYear)
	grossReturn := in.InvestmentAmount.Mul(growth)
	faceValue := in.InvestmentAmount.Add(grossReturn)
	taxAmount := grossReturn.Mul(in.TaxRatePercent.Div(hundred))
	netReturn := grossReturn.Sub(taxAmount)

	realProfitPercent := netReturn.Div(in.InvestmentAmount).Mul(hundred)
	effectiveAnnual := realProfitPercent.Mul(daysInYear).Div(tenor)

	return &PrimaryResult{
		PurchasePrice:          in.InvestmentAmount,
		FaceValue:              faceValue,
		GrossReturn:            grossReturn,
		TaxAmount:              taxAmount,
		NetReturn:              netReturn,
		TotalPayout:            in.InvestmentAmount.Add(netReturn),
		RealProfitPercent:      realProfitPercent,
		EffectiveAnnualPercent: effectiveAnnual,
	}, nil
}

// SecondaryInput holds the parameters for an early-sale analysis.
type SecondaryInput struct {
	InvestmentAmount      decimal.Decimal
	OriginalYieldPercent  decimal.Decimal
	TenorDays             int
	HoldingDays           int
	SecondaryYieldPercent decimal.Decimal
	TaxRatePercent        decimal.Decimal
}

func (in SecondaryInput) validate() error {
	base := PrimaryInput{
		InvestmentAmount: in.InvestmentAmount,
		YieldPercent:     in.OriginalYieldPercent,
		TenorDays:        in.TenorDays,
		TaxRatePercent:   in.TaxRatePercent,
	}
	if err := base.validate(); err != nil {
		return err
	}
	if !in.SecondaryYieldPercent.IsPositive() {
		return fmt.Errorf("%w: secondary market yield must be positive", ErrInvalidInput)
	}
	// HoldingDays == TenorDays is allowed and reproduces the
	// held-to-maturity figures.
	if in.HoldingDays <= 0 || in.HoldingDays > in.TenorDays {
		return fmt.Errorf("%w: holding days must be within (0, tenor]", ErrInvalidInput)
	}
	return nil
}

// SecondaryResult holds the early-sale figures.
type SecondaryResult struct {
	PurchasePricePer100 decimal.Decimal `json:"purchase_price_per_100"`
	SalePricePer100     decimal.Decimal `json:"sale_price_per_100"`
	SaleProceeds        decimal.Decimal `json:"sale_proceeds"`
	GrossGain           decimal.Decimal `json:"gross_gain"`
	TaxAmount           decimal.Decimal `json:"tax_amount"`
	NetProfit           decimal.Decimal `json:"net_profit"`
	PeriodYieldPercent  decimal.Decimal `json:"period_yield_percent"`
}

// AnalyzeSecondarySale computes the outcome of selling a bill before
// maturity at the prevailing market yield. The sale price follows the
// discounted-price convention over the remaining days:
//
//	price = 100 / (1 + marketYield/100 * remaining/365)
//
// Tax applies only to a positive realized gain.
func AnalyzeSecondarySale(in SecondaryInput) (*SecondaryResult, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	hundred := decimal.NewFromInt(100)
	remainingDays := in.TenorDays - in.HoldingDays

	purchasePrice := DiscountPricePer100(in.OriginalYieldPercent, in.TenorDays)
	salePrice := DiscountPricePer100(in.SecondaryYieldPercent, remainingDays)

	// Face value units acquired for the invested amount.
	units := in.InvestmentAmount.DivRound(purchasePrice, 10)
	proceeds := units.Mul(salePrice)

	grossGain := proceeds.Sub(in.InvestmentAmount)
	taxAmount := decimal.Zero
	if grossGain.IsPositive() {
		taxAmount = grossGain.Mul(in.TaxRatePercent.Div(hundred))
	}
	netProfit := grossGain.Sub(taxAmount)
	periodYield := netProfit.Div(in.InvestmentAmount).Mul(hundred)

	return &SecondaryResult{
		PurchasePricePer100: purchasePrice,
		SalePricePer100:     salePrice,
		SaleProceeds:        proceeds,
		GrossGain:           grossGain,
		TaxAmount:           taxAmount,
		NetProfit:           netProfit,
		PeriodYieldPercent:  periodYield,
	}, nil
}

// CalculationInput pairs an auction record with investor parameters. SaleDate
// and MarketYieldPercent select the secondary-market scenario; leaving them
// nil selects buy-and-hold.
type CalculationInput struct {
	InvestmentAmount   decimal.Decimal
	TaxRatePercent     decimal.Decimal
	SaleDate           *time.Time
	MarketYieldPercent *decimal.Decimal
}

// CalculationResult is the scenario-independent view of a calculation.
// Results are transient and never persisted.
type CalculationResult struct {
	GrossReturn            decimal.Decimal  `json:"gross_return"`
	TaxAmount              decimal.Decimal  `json:"tax_amount"`
	NetProfit              decimal.Decimal  `json:"net_profit"`
	EffectiveAnnualPercent decimal.Decimal  `json:"effective_annual_percent"`
	EarlySalePricePer100   *decimal.Decimal `json:"early_sale_price_per_100,omitempty"`
	GainOrLoss             *decimal.Decimal `json:"gain_or_loss,omitempty"`
}

// Evaluate runs the calculation engine against one auction record. The sale
// date, when given, must fall after the session date and no later than
// maturity.
func Evaluate(record AuctionRecord, in CalculationInput) (*CalculationResult, error) {
	if err := record.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	if in.SaleDate == nil {
		primary, err := CalculatePrimary(PrimaryInput{
			InvestmentAmount: in.InvestmentAmount,
			YieldPercent:     record.Yield,
			TenorDays:        record.Tenor.Days(),
			TaxRatePercent:   in.TaxRatePercent,
		})
		if err != nil {
			return nil, err
		}
		return &CalculationResult{
			GrossReturn:            primary.GrossReturn,
			TaxAmount:              primary.TaxAmount,
			NetProfit:              primary.NetReturn,
			EffectiveAnnualPercent: primary.EffectiveAnnualPercent,
		}, nil
	}

	if in.MarketYieldPercent == nil {
		return nil, fmt.Errorf("%w: secondary scenario requires a market yield", ErrInvalidInput)
	}

	holdingDays := int(in.SaleDate.Sub(record.SessionDate).Hours() / 24)
	if holdingDays <= 0 || in.SaleDate.After(record.MaturityDate()) {
		return nil, fmt.Errorf("%w: sale date must fall between session date and maturity", ErrInvalidInput)
	}

	secondary, err := AnalyzeSecondarySale(SecondaryInput{
		InvestmentAmount:      in.InvestmentAmount,
		OriginalYieldPercent:  record.Yield,
		TenorDays:             record.Tenor.Days(),
		HoldingDays:           holdingDays,
		SecondaryYieldPercent: *in.MarketYieldPercent,
		TaxRatePercent:        in.TaxRatePercent,
	})
	if err != nil {
		return nil, err
	}

	annual := secondary.PeriodYieldPercent.Mul(daysInYear).Div(decimal.NewFromInt(int64(holdingDays)))
	salePrice := secondary.SalePricePer100
	gain := secondary.GrossGain
	return &CalculationResult{
		GrossReturn:            secondary.GrossGain,
		TaxAmount:              secondary.TaxAmount,
		NetProfit:              secondary.NetProfit,
		EffectiveAnnualPercent: annual,
		EarlySalePricePer100:   &salePrice,
		GainOrLoss:             &gain,
	}, nil
}

// ValidateInvestmentAmount enforces the source's subscription constraints:
// minimum, maximum and step size.
func ValidateInvestmentAmount(amount decimal.Decimal) error {
	if amount.LessThan(MinInvestmentAmount) {
		return fmt.Errorf("%w: amount below minimum %s", ErrInvalidInput, MinInvestmentAmount)
	}
	if amount.GreaterThan(MaxInvestmentAmount) {
		return fmt.Errorf("%w: amount above maximum %s", ErrInvalidInput, MaxInvestmentAmount)
	}
	if !amount.Mod(InvestmentStep).IsZero() {
		return fmt.Errorf("%w: amount must be a multiple of %s", ErrInvalidInput, InvestmentStep)
	}
	return nil
}
