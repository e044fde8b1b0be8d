package portfolio

import (
	"sort"

	"github.com/shopspring/decimal"

	"researchdao/internal/model"
)

// CurrencyTotals aggregates the entries of one currency.
type CurrencyTotals struct {
	TotalValue   decimal.Decimal `json:"totalValue"`
	TotalReturns decimal.Decimal `json:"totalReturns"`
	Count        int             `json:"count"`
}

// Summary holds per-currency aggregates. Amounts of different currencies are
// never added together; TotalValue is USD and TotalETH is ETH.
type Summary struct {
	ByCurrency         map[string]CurrencyTotals `json:"byCurrency"`
	Currencies         []string                  `json:"currencies"`
	TotalValue         decimal.Decimal           `json:"totalValue"`
	TotalETH           decimal.Decimal           `json:"totalETH"`
	TotalInvestments   int                       `json:"totalInvestments"`
	AveragePerformance float64                   `json:"averagePerformance"`
}

// Summarize computes the aggregates of a merged portfolio. The average
// performance is taken over all entries regardless of currency.
func Summarize(entries []Entry) Summary {
	out := Summary{
		ByCurrency: make(map[string]CurrencyTotals),
		Currencies: []string{},
		TotalValue: decimal.Zero,
		TotalETH:   decimal.Zero,
	}

	var perf float64
	for _, e := range entries {
		totals, ok := out.ByCurrency[e.Currency]
		if !ok {
			totals = CurrencyTotals{TotalValue: decimal.Zero, TotalReturns: decimal.Zero}
			out.Currencies = append(out.Currencies, e.Currency)
		}
		totals.TotalValue = totals.TotalValue.Add(e.Amount)
		totals.TotalReturns = totals.TotalReturns.Add(e.Returns)
		totals.Count++
		out.ByCurrency[e.Currency] = totals
		perf += e.Performance
	}
	sort.Strings(out.Currencies)

	if usd, ok := out.ByCurrency[model.CurrencyUSD]; ok {
		out.TotalValue = usd.TotalValue
	}
	if eth, ok := out.ByCurrency[model.CurrencyETH]; ok {
		out.TotalETH = eth.TotalValue
	}
	out.TotalInvestments = len(entries)
	if len(entries) > 0 {
		out.AveragePerformance = perf / float64(len(entries))
	}
	return out
}
