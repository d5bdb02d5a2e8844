package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position represents a position-token balance with its current value read from chain.
type Position struct {
	Address string          `json:"address"`
	Symbol  string          `json:"symbol"`
	Balance decimal.Decimal `json:"balance"`
	Value   decimal.Decimal `json:"value"`
}

// PositionSet is what a position reader returns. AuthoritativeTotal, when set, wins over the local sum.
type PositionSet struct {
	Positions          []Position
	AuthoritativeTotal *decimal.Decimal
	// Limitation describes why the set may be incomplete.
	Limitation string
}

// PortfolioSnapshot is the derived portfolio view of the connected account.
type PortfolioSnapshot struct {
	Account     string          `json:"account,omitempty"`
	ChainID     uint64          `json:"chainId,omitempty"`
	Cash        decimal.Decimal `json:"cash"`
	CashSymbol  string          `json:"cashSymbol,omitempty"`
	Positions   []Position      `json:"positions"`
	TotalValue  decimal.Decimal `json:"totalPortfolioValue"`
	Limitation  string          `json:"limitation,omitempty"`
	LastUpdated time.Time       `json:"lastUpdated"`
	Error       string          `json:"error,omitempty"`
}

// PortfolioTotal applies the total-value rule: the authoritative total when supplied,
// otherwise cash plus the sum of position values.
func PortfolioTotal(cash decimal.Decimal, positions []Position, authoritative *decimal.Decimal) decimal.Decimal {
	if authoritative != nil {
		return *authoritative
	}
	total := cash
	for _, p := range positions {
		total = total.Add(p.Value)
	}
	return total
}
