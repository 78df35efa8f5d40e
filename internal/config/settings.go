package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/eddiefleurent/portfolio_scanner/internal/models"
	"github.com/eddiefleurent/portfolio_scanner/internal/rules"
)

// ErrInvalidScanRequest is returned when a scan request fails to decode or validate.
var ErrInvalidScanRequest = errors.New("invalid scan request")

// StrategySettings is the closed set of per-strategy settings. Only the
// types in this package implement it.
type StrategySettings interface {
	Strategy() models.Strategy
	Risk() models.RiskLevel
	Validate() error
	isStrategySettings()
}

// StraddleStrangleSettings configures the straddle/strangle analyzer.
type StraddleStrangleSettings struct {
	RiskLevel models.RiskLevel `json:"risk_level,omitempty" yaml:"risk_level,omitempty"`
	Disabled  bool             `json:"disabled,omitempty" yaml:"disabled,omitempty"`
}

// CoveredCallSettings configures the covered call analyzer.
type CoveredCallSettings struct {
	rules.CoveredCallParams `yaml:",inline"`

	RiskLevel         models.RiskLevel `json:"risk_level,omitempty" yaml:"risk_level,omitempty"`
	SkipOpportunities bool             `json:"skip_opportunities,omitempty" yaml:"skip_opportunities,omitempty"`
	Disabled          bool             `json:"disabled,omitempty" yaml:"disabled,omitempty"`
}

// ProtectivePutSettings configures the protective put analyzer.
type ProtectivePutSettings struct {
	rules.ProtectivePutParams `yaml:",inline"`

	RiskLevel         models.RiskLevel `json:"risk_level,omitempty" yaml:"risk_level,omitempty"`
	SkipOpportunities bool             `json:"skip_opportunities,omitempty" yaml:"skip_opportunities,omitempty"`
	Disabled          bool             `json:"disabled,omitempty" yaml:"disabled,omitempty"`
}

// OptionSettings configures the single-leg option analyzer.
type OptionSettings struct {
	rules.OptionParams `yaml:",inline"`

	RiskLevel models.RiskLevel `json:"risk_level,omitempty" yaml:"risk_level,omitempty"`
	Disabled  bool             `json:"disabled,omitempty" yaml:"disabled,omitempty"`
}

// CashSecuredPutSettings configures the cash-secured put analyzer. Symbols
// is the watchlist idle cash may write puts on; when empty, the account's
// own stock tickers are used.
type CashSecuredPutSettings struct {
	rules.CashSecuredPutParams `yaml:",inline"`

	Symbols           []string         `json:"symbols,omitempty" yaml:"symbols,omitempty"`
	RiskLevel         models.RiskLevel `json:"risk_level,omitempty" yaml:"risk_level,omitempty"`
	SkipOpportunities bool             `json:"skip_opportunities,omitempty" yaml:"skip_opportunities,omitempty"`
	Disabled          bool             `json:"disabled,omitempty" yaml:"disabled,omitempty"`
}

var (
	_ StrategySettings = StraddleStrangleSettings{}
	_ StrategySettings = CoveredCallSettings{}
	_ StrategySettings = ProtectivePutSettings{}
	_ StrategySettings = OptionSettings{}
	_ StrategySettings = CashSecuredPutSettings{}
)

func (StraddleStrangleSettings) Strategy() models.Strategy { return models.StrategyStraddleStrangle }
func (CoveredCallSettings) Strategy() models.Strategy      { return models.StrategyCoveredCall }
func (ProtectivePutSettings) Strategy() models.Strategy    { return models.StrategyProtectivePut }
func (OptionSettings) Strategy() models.Strategy           { return models.StrategyOption }
func (CashSecuredPutSettings) Strategy() models.Strategy   { return models.StrategyCashSecuredPut }

func (s StraddleStrangleSettings) Risk() models.RiskLevel { return s.RiskLevel }
func (s CoveredCallSettings) Risk() models.RiskLevel      { return s.RiskLevel }
func (s ProtectivePutSettings) Risk() models.RiskLevel    { return s.RiskLevel }
func (s OptionSettings) Risk() models.RiskLevel           { return s.RiskLevel }
func (s CashSecuredPutSettings) Risk() models.RiskLevel   { return s.RiskLevel }

func (StraddleStrangleSettings) isStrategySettings() {}
func (CoveredCallSettings) isStrategySettings()      {}
func (ProtectivePutSettings) isStrategySettings()    {}
func (OptionSettings) isStrategySettings()           {}
func (CashSecuredPutSettings) isStrategySettings()   {}

func validRisk(r models.RiskLevel) error {
	if r != "" && !r.Valid() {
		return fmt.Errorf("risk_level must be low, medium or high, got %q", r)
	}
	return nil
}

// Validate checks the straddle/strangle settings.
func (s StraddleStrangleSettings) Validate() error {
	return validRisk(s.RiskLevel)
}

// Validate checks the covered call thresholds.
func (s CoveredCallSettings) Validate() error {
	if err := validRisk(s.RiskLevel); err != nil {
		return err
	}
	p := s.CoveredCallParams
	if p.MinPremiumCapture <= 0 || p.MinPremiumCapture > 100 {
		return fmt.Errorf("min_premium_capture must be in (0,100]")
	}
	if p.NearStrikeRatio <= 0 || p.NearStrikeRatio > 1 {
		return fmt.Errorf("near_strike_ratio must be in (0,1]")
	}
	if p.TargetOTMPercent < 0 {
		return fmt.Errorf("target_otm_percent must be >= 0")
	}
	if p.MinAnnualizedYield < 0 {
		return fmt.Errorf("min_annualized_yield must be >= 0")
	}
	if p.MinDTE <= 0 || p.MaxDTE < p.MinDTE {
		return fmt.Errorf("dte window [%d,%d] must be positive with min <= max", p.MinDTE, p.MaxDTE)
	}
	return nil
}

// Validate checks the protective put thresholds.
func (s ProtectivePutSettings) Validate() error {
	if err := validRisk(s.RiskLevel); err != nil {
		return err
	}
	p := s.ProtectivePutParams
	if p.StopLossPercent <= 0 {
		return fmt.Errorf("stop_loss_percent must be > 0")
	}
	if p.MinProtection <= 0 || p.MinProtection > 100 {
		return fmt.Errorf("min_protection must be in (0,100]")
	}
	if p.TargetOTMPercent < 0 || p.TargetOTMPercent >= 100 {
		return fmt.Errorf("target_otm_percent must be in [0,100)")
	}
	if p.MinGainToProtect < 0 {
		return fmt.Errorf("min_gain_to_protect must be >= 0")
	}
	if p.MinDTE <= 0 {
		return fmt.Errorf("min_dte must be > 0")
	}
	return nil
}

// Validate checks the option thresholds.
func (s OptionSettings) Validate() error {
	if err := validRisk(s.RiskLevel); err != nil {
		return err
	}
	p := s.OptionParams
	if p.ProfitTarget <= 0 {
		return fmt.Errorf("profit_target must be > 0")
	}
	if p.StopLoss <= 0 || p.StopLoss > 100 {
		return fmt.Errorf("stop_loss must be in (0,100]")
	}
	if p.ExpiringDTE < 0 || p.RollDTE < p.ExpiringDTE {
		return fmt.Errorf("expiring_dte (%d) must be >= 0 and <= roll_dte (%d)", p.ExpiringDTE, p.RollDTE)
	}
	return nil
}

// Validate checks the cash-secured put thresholds.
func (s CashSecuredPutSettings) Validate() error {
	if err := validRisk(s.RiskLevel); err != nil {
		return err
	}
	p := s.CashSecuredPutParams
	if p.MinPremiumCapture <= 0 || p.MinPremiumCapture > 100 {
		return fmt.Errorf("min_premium_capture must be in (0,100]")
	}
	if p.TargetOTMPercent < 0 || p.TargetOTMPercent >= 100 {
		return fmt.Errorf("target_otm_percent must be in [0,100)")
	}
	if p.MinAnnualizedYield < 0 {
		return fmt.Errorf("min_annualized_yield must be >= 0")
	}
	if p.MinCashRatio < 1 {
		return fmt.Errorf("min_cash_ratio must be >= 1")
	}
	if p.MaxContracts < 0 {
		return fmt.Errorf("max_contracts must be >= 0")
	}
	if p.MinDTE <= 0 || p.MaxDTE < p.MinDTE {
		return fmt.Errorf("dte window [%d,%d] must be positive with min <= max", p.MinDTE, p.MaxDTE)
	}
	for _, symbol := range s.Symbols {
		if strings.TrimSpace(symbol) == "" {
			return fmt.Errorf("symbols must not contain blanks")
		}
	}
	return nil
}

// Watchlist returns the configured symbols trimmed and uppercased.
func (s CashSecuredPutSettings) Watchlist() []string {
	out := make([]string, 0, len(s.Symbols))
	for _, symbol := range s.Symbols {
		out = append(out, strings.ToUpper(strings.TrimSpace(symbol)))
	}
	return out
}

// Settings carries one settings value per strategy.
type Settings struct {
	StraddleStrangle StraddleStrangleSettings `json:"straddle_strangle" yaml:"straddle_strangle"`
	CoveredCall      CoveredCallSettings      `json:"covered_call" yaml:"covered_call"`
	ProtectivePut    ProtectivePutSettings    `json:"protective_put" yaml:"protective_put"`
	Option           OptionSettings           `json:"option" yaml:"option"`
	CashSecuredPut   CashSecuredPutSettings   `json:"cash_secured_put" yaml:"cash_secured_put"`
}

// DefaultSettings returns the stock thresholds for every strategy.
func DefaultSettings() Settings {
	return Settings{
		CoveredCall:    CoveredCallSettings{CoveredCallParams: rules.DefaultCoveredCallParams()},
		ProtectivePut:  ProtectivePutSettings{ProtectivePutParams: rules.DefaultProtectivePutParams()},
		Option:         OptionSettings{OptionParams: rules.DefaultOptionParams()},
		CashSecuredPut: CashSecuredPutSettings{CashSecuredPutParams: rules.DefaultCashSecuredPutParams()},
	}
}

// For returns the settings of one strategy.
func (s Settings) For(strategy models.Strategy) StrategySettings {
	switch strategy {
	case models.StrategyStraddleStrangle:
		return s.StraddleStrangle
	case models.StrategyCoveredCall:
		return s.CoveredCall
	case models.StrategyProtectivePut:
		return s.ProtectivePut
	case models.StrategyOption:
		return s.Option
	case models.StrategyCashSecuredPut:
		return s.CashSecuredPut
	default:
		return nil
	}
}

// Enabled reports whether the analyzer of strategy should run.
func (s Settings) Enabled(strategy models.Strategy) bool {
	switch strategy {
	case models.StrategyStraddleStrangle:
		return !s.StraddleStrangle.Disabled
	case models.StrategyCoveredCall:
		return !s.CoveredCall.Disabled
	case models.StrategyProtectivePut:
		return !s.ProtectivePut.Disabled
	case models.StrategyOption:
		return !s.Option.Disabled
	case models.StrategyCashSecuredPut:
		return !s.CashSecuredPut.Disabled
	default:
		return false
	}
}

// WithRisk applies a risk override to every strategy that has none of its own.
func (s Settings) WithRisk(r models.RiskLevel) Settings {
	if r == "" {
		return s
	}
	if s.StraddleStrangle.RiskLevel == "" {
		s.StraddleStrangle.RiskLevel = r
	}
	if s.CoveredCall.RiskLevel == "" {
		s.CoveredCall.RiskLevel = r
	}
	if s.ProtectivePut.RiskLevel == "" {
		s.ProtectivePut.RiskLevel = r
	}
	if s.Option.RiskLevel == "" {
		s.Option.RiskLevel = r
	}
	if s.CashSecuredPut.RiskLevel == "" {
		s.CashSecuredPut.RiskLevel = r
	}
	return s
}

// Validate checks every strategy's settings.
func (s Settings) Validate() error {
	for _, strategy := range models.AllStrategies {
		if err := s.For(strategy).Validate(); err != nil {
			return fmt.Errorf("%s: %w", strategy, err)
		}
	}
	return nil
}

// ScanRequest is the validated input of one unified scan.
type ScanRequest struct {
	Settings     Settings
	AccountID    string
	CreateAlerts bool
}

// scanRequestBody is the wire shape of a scan request. Strategy sections are
// decoded lazily so each lands in its own concrete settings type.
type scanRequestBody struct {
	CreateAlerts *bool                      `json:"create_alerts,omitempty"`
	Strategies   map[string]json.RawMessage `json:"strategies,omitempty"`
	AccountID    string                     `json:"account_id,omitempty"`
	RiskLevel    models.RiskLevel           `json:"risk_level,omitempty"`
}

// NewScanRequest builds a request from the configured defaults.
func (c *Config) NewScanRequest(accountID string, risk models.RiskLevel) (ScanRequest, error) {
	req := ScanRequest{
		AccountID:    strings.TrimSpace(accountID),
		CreateAlerts: c.CreateAlerts(),
		Settings:     c.Strategies.WithRisk(risk),
	}
	if err := validRisk(risk); err != nil {
		return ScanRequest{}, fmt.Errorf("%w: %v", ErrInvalidScanRequest, err)
	}
	if err := req.Settings.Validate(); err != nil {
		return ScanRequest{}, fmt.Errorf("%w: %v", ErrInvalidScanRequest, err)
	}
	return req, nil
}

// DecodeScanRequest reads a JSON scan request, layering each strategy
// section over the configured defaults. An empty body yields the defaults.
func (c *Config) DecodeScanRequest(r io.Reader) (ScanRequest, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return ScanRequest{}, fmt.Errorf("%w: reading body: %v", ErrInvalidScanRequest, err)
	}

	var body scanRequestBody
	if len(bytes.TrimSpace(data)) > 0 {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&body); err != nil {
			return ScanRequest{}, fmt.Errorf("%w: %v", ErrInvalidScanRequest, err)
		}
	}

	settings := c.Strategies
	for name, raw := range body.Strategies {
		if err := decodeSection(&settings, models.Strategy(name), raw); err != nil {
			return ScanRequest{}, fmt.Errorf("%w: strategies.%s: %v", ErrInvalidScanRequest, name, err)
		}
	}
	c2 := *c
	c2.Strategies = settings
	req, err := c2.NewScanRequest(body.AccountID, body.RiskLevel)
	if err != nil {
		return ScanRequest{}, err
	}
	if body.CreateAlerts != nil {
		req.CreateAlerts = *body.CreateAlerts
	}
	return req, nil
}

func decodeSection(s *Settings, strategy models.Strategy, raw json.RawMessage) error {
	var target interface{}
	switch strategy {
	case models.StrategyStraddleStrangle:
		target = &s.StraddleStrangle
	case models.StrategyCoveredCall:
		target = &s.CoveredCall
	case models.StrategyProtectivePut:
		target = &s.ProtectivePut
	case models.StrategyOption:
		target = &s.Option
	case models.StrategyCashSecuredPut:
		target = &s.CashSecuredPut
	default:
		return fmt.Errorf("unknown strategy")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(target)
}
