package models

import "time"

// Strategy identifies one of the analyzers.
type Strategy string

const (
	// StrategyOption evaluates every long option leg on its own
	StrategyOption Strategy = "option"
	// StrategyCoveredCall evaluates short calls written against stock
	StrategyCoveredCall Strategy = "covered_call"
	// StrategyProtectivePut evaluates long puts held against stock
	StrategyProtectivePut Strategy = "protective_put"
	// StrategyStraddleStrangle evaluates long call + long put pairs
	StrategyStraddleStrangle Strategy = "straddle_strangle"
	// StrategyCashSecuredPut evaluates short puts secured by cash
	StrategyCashSecuredPut Strategy = "cash_secured_put"
)

// AllStrategies lists every strategy in summary order.
var AllStrategies = []Strategy{
	StrategyOption,
	StrategyCoveredCall,
	StrategyProtectivePut,
	StrategyStraddleStrangle,
	StrategyCashSecuredPut,
}

// Valid returns true if the Strategy is one of the defined constants
func (s Strategy) Valid() bool {
	switch s {
	case StrategyOption, StrategyCoveredCall, StrategyProtectivePut, StrategyStraddleStrangle, StrategyCashSecuredPut:
		return true
	default:
		return false
	}
}

// Title returns the human-readable section title used in summaries.
func (s Strategy) Title() string {
	switch s {
	case StrategyOption:
		return "Options"
	case StrategyCoveredCall:
		return "Covered Calls"
	case StrategyProtectivePut:
		return "Protective Puts"
	case StrategyStraddleStrangle:
		return "Straddles/Strangles"
	case StrategyCashSecuredPut:
		return "Cash-Secured Puts"
	default:
		return string(s)
	}
}

// Action is the recommended next step for a position or opportunity.
type Action string

const (
	ActionHold        Action = "HOLD"
	ActionSellToClose Action = "SELL_TO_CLOSE"
	ActionBuyToClose  Action = "BUY_TO_CLOSE"
	ActionRoll        Action = "ROLL"
	ActionAdd         Action = "ADD"
	ActionSellCall    Action = "SELL_CALL"
	ActionBuyPut      Action = "BUY_PUT"
	ActionSellPut     Action = "SELL_PUT"
	// ActionNone marks an evaluated opportunity that needs nothing; never persisted.
	ActionNone Action = "NONE"
)

var actionable = map[Strategy]map[Action]bool{
	StrategyStraddleStrangle: {ActionSellToClose: true, ActionRoll: true, ActionAdd: true},
	StrategyCoveredCall:      {ActionBuyToClose: true, ActionRoll: true, ActionSellCall: true},
	StrategyProtectivePut:    {ActionSellToClose: true, ActionRoll: true, ActionBuyPut: true},
	StrategyOption:           {ActionSellToClose: true, ActionRoll: true, ActionAdd: true},
	StrategyCashSecuredPut:   {ActionBuyToClose: true, ActionRoll: true, ActionSellPut: true},
}

// IsActionable reports whether action warrants a user-facing alert for s.
func (s Strategy) IsActionable(action Action) bool {
	return actionable[s][action]
}

// Confidence grades how strongly a rule fired.
type Confidence string

const (
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceLow    Confidence = "LOW"
)

// MetricsSnapshot is the derived, per-scan view of one pair or leg. Fields
// that do not apply to a strategy stay at their zero value and are omitted
// from JSON; nullable inputs are pointers.
type MetricsSnapshot struct {
	IVRank                  *float64 `json:"iv_rank,omitempty"`
	IVvsHV                  *float64 `json:"iv_vs_hv,omitempty"`
	AssignmentProbability   *float64 `json:"assignment_probability,omitempty"`
	Delta                   *float64 `json:"delta,omitempty"`
	RSI                     *float64 `json:"rsi,omitempty"`
	Trend                   string   `json:"trend,omitempty"`
	StockPrice              float64  `json:"stock_price"`
	Strike                  float64  `json:"strike,omitempty"`
	CallStrike              float64  `json:"call_strike,omitempty"`
	PutStrike               float64  `json:"put_strike,omitempty"`
	CallBid                 float64  `json:"call_bid,omitempty"`
	CallAsk                 float64  `json:"call_ask,omitempty"`
	PutBid                  float64  `json:"put_bid,omitempty"`
	PutAsk                  float64  `json:"put_ask,omitempty"`
	Bid                     float64  `json:"bid,omitempty"`
	Ask                     float64  `json:"ask,omitempty"`
	Mid                     float64  `json:"mid,omitempty"`
	NetCurrentValue         float64  `json:"net_current_value"`
	EntryCost               float64  `json:"entry_cost"`
	UnrealizedPl            float64  `json:"unrealized_pl"`
	UnrealizedPlPercent     float64  `json:"unrealized_pl_percent"`
	Breakeven               float64  `json:"breakeven,omitempty"`
	UpperBreakeven          float64  `json:"upper_breakeven,omitempty"`
	LowerBreakeven          float64  `json:"lower_breakeven,omitempty"`
	RequiredMovePercent     float64  `json:"required_move_percent,omitempty"`
	ExtrinsicValue          float64  `json:"extrinsic_value,omitempty"`
	ExtrinsicPercentOfEntry float64  `json:"extrinsic_percent_of_entry,omitempty"`
	ExtrinsicPercent        float64  `json:"extrinsic_percent,omitempty"`
	IntrinsicValue          float64  `json:"intrinsic_value,omitempty"`
	PremiumCapturedPercent  float64  `json:"premium_captured_percent,omitempty"`
	ProtectionPercent       float64  `json:"protection_percent,omitempty"`
	StockPlPercent          float64  `json:"stock_pl_percent,omitempty"`
	AnnualizedYieldPercent  float64  `json:"annualized_yield_percent,omitempty"`
	CostPercent             float64  `json:"cost_percent,omitempty"`
	WheelYieldPercent       float64  `json:"wheel_yield_percent,omitempty"`
	Contracts               float64  `json:"contracts,omitempty"`
	RequiredCash            float64  `json:"required_cash,omitempty"`
	IdleCash                float64  `json:"idle_cash,omitempty"`
	DTE                     int      `json:"dte"`
	InTheMoney              bool     `json:"in_the_money,omitempty"`
}

// Recommendation is the immutable output of one analyzer for one pair, leg
// or opportunity. Each scan creates fresh records.
type Recommendation struct {
	CreatedAt      time.Time       `json:"created_at"`
	StoredAt       *time.Time      `json:"stored_at,omitempty"`
	Metrics        MetricsSnapshot `json:"metrics"`
	ID             string          `json:"id"`
	Strategy       Strategy        `json:"strategy"`
	AccountID      string          `json:"account_id"`
	Symbol         string          `json:"symbol"`
	Action         Action          `json:"recommendation"`
	Confidence     Confidence      `json:"confidence"`
	Reason         string          `json:"reason"`
	LegPositionIDs []string        `json:"leg_position_ids"`
	IsStraddle     bool            `json:"is_straddle,omitempty"`
}

// AlertType names the kind of alert produced from a recommendation.
type AlertType string

const (
	AlertOptionRecommendation AlertType = "option-recommendation"
	AlertCoveredCall          AlertType = "covered-call"
	AlertProtectivePut        AlertType = "protective-put"
	AlertStraddleStrangle     AlertType = "straddle-strangle"
	AlertCashSecuredPut       AlertType = "cash-secured-put"
)

// AlertTypeFor maps a strategy to its alert type.
func AlertTypeFor(s Strategy) AlertType {
	switch s {
	case StrategyCoveredCall:
		return AlertCoveredCall
	case StrategyProtectivePut:
		return AlertProtectivePut
	case StrategyStraddleStrangle:
		return AlertStraddleStrangle
	case StrategyCashSecuredPut:
		return AlertCashSecuredPut
	default:
		return AlertOptionRecommendation
	}
}

// SeverityWarning is the only severity the scanner emits.
const SeverityWarning = "warning"

// Alert is the user-facing record derived from an actionable recommendation.
type Alert struct {
	CreatedAt        time.Time       `json:"created_at"`
	Metrics          MetricsSnapshot `json:"metrics"`
	ID               string          `json:"id"`
	Type             AlertType       `json:"type"`
	RecommendationID string          `json:"recommendation_id"`
	AccountID        string          `json:"account_id"`
	AccountName      string          `json:"account_name,omitempty"`
	Symbol           string          `json:"symbol"`
	Recommendation   Action          `json:"recommendation"`
	Reason           string          `json:"reason"`
	Severity         string          `json:"severity"`
	Acknowledged     bool            `json:"acknowledged"`
}
