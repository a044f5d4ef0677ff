package tool

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/cloudwego/eino/schema"
	tenantx "github.com/tanpawarit/chative-fintech-support/agent/tenant"
)

var (
	feePercentPattern = regexp.MustCompile(`([0-9]+(?:[.,][0-9]+)?)\s*%`)
	feeMinimumPattern = regexp.MustCompile(`(?i)min\.?\s*([0-9][0-9 .]*)`)
)

// FeeRule is the parsed form of a tenant fee string such as "1% (Min 100 F)".
type FeeRule struct {
	Percent float64
	Minimum float64
}

func ParseFeeRule(raw string) (FeeRule, error) {
	var rule FeeRule
	m := feePercentPattern.FindStringSubmatch(raw)
	if m == nil {
		return rule, fmt.Errorf("fee rule %q has no percentage", raw)
	}
	pct, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64)
	if err != nil {
		return rule, fmt.Errorf("fee rule %q: %w", raw, err)
	}
	rule.Percent = pct

	if mm := feeMinimumPattern.FindStringSubmatch(raw); mm != nil {
		digits := strings.NewReplacer(" ", "", ".", "").Replace(mm[1])
		if digits != "" {
			minimum, err := strconv.ParseFloat(digits, 64)
			if err != nil {
				return rule, fmt.Errorf("fee rule %q: %w", raw, err)
			}
			rule.Minimum = minimum
		}
	}
	return rule, nil
}

// Apply returns the fee for amount, rounded up to the whole franc.
func (r FeeRule) Apply(amount float64) float64 {
	fee := math.Ceil(amount * r.Percent / 100)
	if fee < r.Minimum {
		fee = r.Minimum
	}
	return fee
}

type feesInput struct {
	Provider  string  `json:"provider" validate:"required,max=32"`
	Operation string  `json:"operation" validate:"required,oneof=deposit withdraw"`
	Amount    float64 `json:"amount" validate:"required,gt=0,lte=10000000"`
}

type FeesOutput struct {
	Provider  string  `json:"provider"`
	Operation string  `json:"operation"`
	Amount    float64 `json:"amount"`
	Fee       float64 `json:"fee"`
	Total     float64 `json:"total"`
	Rule      string  `json:"rule,omitempty"`
	Currency  string  `json:"currency"`
	Error     string  `json:"error,omitempty"`
}

func newEstimateFeesTool(cfg tenantx.Config) *typedTool[feesInput, FeesOutput] {
	names := make([]string, 0, len(cfg.Providers()))
	for _, p := range cfg.Providers() {
		names = append(names, p.Provider)
	}

	info := &schema.ToolInfo{
		Name: ToolEstimateFees,
		Desc: "Calcule les frais d'un dépôt (deposit) ou d'un retrait (withdraw) pour un opérateur Mobile Money donné.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"provider":  {Type: schema.String, Desc: "Opérateur", Required: true, Enum: names},
			"operation": {Type: schema.String, Desc: "Type d'opération", Required: true, Enum: []string{"deposit", "withdraw"}},
			"amount":    {Type: schema.Number, Desc: "Montant en FCFA", Required: true},
		}),
	}
	return newTypedTool(info, func(_ context.Context, in feesInput) FeesOutput {
		out := FeesOutput{Provider: in.Provider, Operation: in.Operation, Amount: in.Amount, Currency: "FCFA"}

		provider, ok := cfg.Provider(in.Provider)
		if !ok {
			out.Error = fmt.Sprintf("opérateur inconnu, opérateurs supportés : %s", strings.Join(names, ", "))
			return out
		}
		out.Provider = provider.Provider
		if provider.Fees == nil {
			out.Error = "grille tarifaire non communiquée pour cet opérateur"
			return out
		}

		raw := provider.Fees.Deposit
		if in.Operation == "withdraw" {
			raw = provider.Fees.Withdraw
		}
		rule, err := ParseFeeRule(raw)
		if err != nil {
			out.Error = "grille tarifaire illisible pour cet opérateur"
			return out
		}

		out.Rule = raw
		out.Fee = rule.Apply(in.Amount)
		out.Total = in.Amount + out.Fee
		return out
	})
}
