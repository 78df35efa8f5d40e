// Package models defines the portfolio, recommendation and alert types shared by
// the pairing, metrics, rule and scanner packages.
package models

import (
	"math"
	"strings"
	"time"
	"unicode"
)

// SharesPerContract is the standard equity option multiplier.
const SharesPerContract = 100.0

// PositionType classifies a holding within an account.
type PositionType string

const (
	// PositionStock is an equity holding measured in shares
	PositionStock PositionType = "stock"
	// PositionOption is an option contract holding
	PositionOption PositionType = "option"
	// PositionCash is a cash balance
	PositionCash PositionType = "cash"
)

// OptionType represents the type of option contract
type OptionType string

const (
	// OptionTypeCall represents a call option contract
	OptionTypeCall OptionType = "call"
	// OptionTypePut represents a put option contract
	OptionTypePut OptionType = "put"
)

// Valid returns true if the OptionType is one of the defined constants
func (t OptionType) Valid() bool {
	switch t {
	case OptionTypeCall, OptionTypePut:
		return true
	default:
		return false
	}
}

// RiskLevel is the account-level appetite used by the rule engines.
type RiskLevel string

const (
	// RiskLow favors closing early
	RiskLow RiskLevel = "low"
	// RiskMedium is the default
	RiskMedium RiskLevel = "medium"
	// RiskHigh allows adding to winners
	RiskHigh RiskLevel = "high"
)

// Valid returns true if the RiskLevel is one of the defined constants
func (r RiskLevel) Valid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh:
		return true
	default:
		return false
	}
}

// Position is a single holding owned by an account. Option-only fields are
// pointers because stock and cash rows leave them unset.
type Position struct {
	Expiration      *time.Time   `json:"expiration,omitempty" yaml:"expiration,omitempty"`
	Strike          *float64     `json:"strike,omitempty" yaml:"strike,omitempty"`
	Contracts       *float64     `json:"contracts,omitempty" yaml:"contracts,omitempty"`
	Premium         *float64     `json:"premium,omitempty" yaml:"premium,omitempty"`
	Shares          *float64     `json:"shares,omitempty" yaml:"shares,omitempty"`
	PurchasePrice   *float64     `json:"purchase_price,omitempty" yaml:"purchase_price,omitempty"`
	CurrentPrice    *float64     `json:"current_price,omitempty" yaml:"current_price,omitempty"`
	UnderlyingPrice *float64     `json:"underlying_price,omitempty" yaml:"underlying_price,omitempty"`
	ID              string       `json:"id" yaml:"id"`
	Type            PositionType `json:"type" yaml:"type"`
	Ticker          string       `json:"ticker" yaml:"ticker"`
	OptionType      OptionType   `json:"option_type,omitempty" yaml:"option_type,omitempty"`
}

// Account groups positions with the display and risk settings the engine reads.
type Account struct {
	ID         string     `json:"id" yaml:"id"`
	Name       string     `json:"name" yaml:"name"`
	BrokerName string     `json:"broker_name,omitempty" yaml:"broker_name,omitempty"`
	RiskLevel  RiskLevel  `json:"risk_level,omitempty" yaml:"risk_level,omitempty"`
	Positions  []Position `json:"positions" yaml:"positions"`
}

// DisplayName prefers the broker name over the portfolio name.
func (a *Account) DisplayName() string {
	if strings.TrimSpace(a.BrokerName) != "" {
		return a.BrokerName
	}
	return a.Name
}

// UnderlyingSymbol derives the underlying from an option ticker: everything
// before the first digit, uppercased. Tickers without digits are returned whole.
func UnderlyingSymbol(ticker string) string {
	t := strings.TrimSpace(ticker)
	for i, r := range t {
		if unicode.IsDigit(r) {
			return strings.ToUpper(t[:i])
		}
	}
	return strings.ToUpper(t)
}

// Underlying returns the derived underlying symbol for option positions and the
// uppercased ticker for everything else.
func (p *Position) Underlying() string {
	if p.Type == PositionOption {
		return UnderlyingSymbol(p.Ticker)
	}
	return strings.ToUpper(strings.TrimSpace(p.Ticker))
}

// IsOptionLeg reports whether the position is a call or put with every field
// the pairing and metrics code needs.
func (p *Position) IsOptionLeg() bool {
	if p.Type != PositionOption || !p.OptionType.Valid() {
		return false
	}
	if strings.TrimSpace(p.Ticker) == "" || p.Strike == nil || p.Expiration == nil {
		return false
	}
	return p.ContractCount() > 0
}

// ContractCount returns the number of contracts, or 0 when unset.
func (p *Position) ContractCount() float64 {
	if p.Contracts == nil || math.IsNaN(*p.Contracts) {
		return 0
	}
	return *p.Contracts
}

// ShareCount returns the number of shares, or 0 when unset.
func (p *Position) ShareCount() float64 {
	if p.Shares == nil || math.IsNaN(*p.Shares) {
		return 0
	}
	return *p.Shares
}

// CashBalance returns the dollar balance of a cash position: its current
// value, else what was deposited. Non-cash positions report 0.
func (p *Position) CashBalance() float64 {
	if p.Type != PositionCash {
		return 0
	}
	for _, v := range []*float64{p.CurrentPrice, p.PurchasePrice} {
		if v != nil && !math.IsNaN(*v) && *v > 0 {
			return *v
		}
	}
	return 0
}

// StrikePrice returns the strike, or 0 when unset.
func (p *Position) StrikePrice() float64 {
	if p.Strike == nil {
		return 0
	}
	return *p.Strike
}

// PremiumPerShare returns the premium, or 0 when unset.
func (p *Position) PremiumPerShare() float64 {
	if p.Premium == nil {
		return 0
	}
	return *p.Premium
}

// CostBasis returns the per-share purchase price, or 0 when unset.
func (p *Position) CostBasis() float64 {
	if p.PurchasePrice == nil {
		return 0
	}
	return *p.PurchasePrice
}

// ExpiresOn reports whether the position expires on the same calendar date as t.
func (p *Position) ExpiresOn(t time.Time) bool {
	if p.Expiration == nil {
		return false
	}
	return p.Expiration.UTC().Format("2006-01-02") == t.UTC().Format("2006-01-02")
}

// ExpirationDate returns the expiration formatted as YYYY-MM-DD, or "".
func (p *Position) ExpirationDate() string {
	if p.Expiration == nil {
		return ""
	}
	return p.Expiration.UTC().Format("2006-01-02")
}

// Float returns a pointer to v; handy for building positions in code.
func Float(v float64) *float64 {
	return &v
}

// Date parses a YYYY-MM-DD string into a UTC date pointer; invalid input yields nil.
func Date(s string) *time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil
	}
	return &t
}
