package risk

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/quantlab/papersim/internal/domain"
)

// RuleType identifies a compliance rule. The exact heuristics are
// policy parameters of the venue, not hard-coded law.
type RuleType string

const (
	RuleOrderSize        RuleType = "order_size"
	RulePatternDayTrader RuleType = "pattern_day_trader"
	RuleWashSale         RuleType = "wash_sale"
)

// ComplianceRule is one pluggable rule evaluated during admission.
// Param's meaning depends on the rule type: maximum order quantity for
// order_size, maximum day trades for pattern_day_trader, and lookback
// window in hours for wash_sale.
type ComplianceRule struct {
	Type    RuleType
	Param   int64
	Enabled bool
}

// Limits holds the venue's position, cash, and concentration ceilings.
type Limits struct {
	MaxPositionQuantity    int64   // per instrument, absolute
	MaxPositionValue       int64   // cents, per instrument
	MaxGlobalPositionValue int64   // cents, across all instruments
	SectorConcentration    float64 // fraction of portfolio value
	FeeRateBps             int64
	MaxAlgoOrderSize       int64
	MaxAlgoDuration        time.Duration
}

// DefaultLimits returns the venue defaults.
func DefaultLimits() Limits {
	return Limits{
		MaxPositionQuantity:    10000,
		MaxPositionValue:       5000000,  // $50,000
		MaxGlobalPositionValue: 25000000, // $250,000
		SectorConcentration:    0.20,
		FeeRateBps:             10,
		MaxAlgoOrderSize:       10000,
		MaxAlgoDuration:        24 * time.Hour,
	}
}

// DefaultRules returns the venue's default compliance rule set.
func DefaultRules() []ComplianceRule {
	return []ComplianceRule{
		{Type: RuleOrderSize, Param: 10000, Enabled: true},
		{Type: RulePatternDayTrader, Param: 3, Enabled: true},
		{Type: RuleWashSale, Param: 720, Enabled: true}, // 30 days
	}
}

// AccountData is read access to a user's cash and activity counters.
type AccountData interface {
	Get(id string) (*domain.Account, error)
}

// PositionData is read access to a user's open positions.
type PositionData interface {
	Get(userID, instrument string) (domain.Position, error)
	ListByUser(userID string) []domain.Position
}

// QuoteSource serves market snapshots for price estimation. Snapshots
// may be stale; the gate falls back to last-known values.
type QuoteSource interface {
	GetSnapshot(instrument string) domain.MarketSnapshot
}

// Gate validates orders and algorithmic orders against position, cash,
// concentration, and compliance rules. It is a pure function of the
// current admission data: no side effects, identical decisions for
// identical inputs.
type Gate struct {
	limits      Limits
	rules       []ComplianceRule
	accounts    AccountData
	positions   PositionData
	instruments *domain.InstrumentRegistry
	quotes      QuoteSource
	logger      *slog.Logger
}

// NewGate creates a risk gate with the given limits and rules.
func NewGate(
	limits Limits,
	rules []ComplianceRule,
	accounts AccountData,
	positions PositionData,
	instruments *domain.InstrumentRegistry,
	quotes QuoteSource,
	logger *slog.Logger,
) *Gate {
	return &Gate{
		limits:      limits,
		rules:       rules,
		accounts:    accounts,
		positions:   positions,
		instruments: instruments,
		quotes:      quotes,
		logger:      logger,
	}
}

// Validate runs all admission checks in order and accumulates
// violations rather than short-circuiting, so the caller sees the full
// violation list. approved is true only when no check failed.
func (g *Gate) Validate(o *domain.Order) domain.RiskDecision {
	d := domain.RiskDecision{}

	g.checkBasicBounds(o, &d)
	g.checkPositionLimits(o, &d)
	g.checkCash(o, &d)
	g.checkCompliance(o, &d)
	g.checkConcentration(o, &d)

	d.Approved = len(d.Violations) == 0
	if !d.Approved {
		g.logger.Debug("order failed risk admission",
			slog.String("order_id", o.OrderID),
			slog.Any("violations", d.Violations),
		)
	}
	return d
}

func (g *Gate) checkBasicBounds(o *domain.Order, d *domain.RiskDecision) {
	if o.Quantity <= 0 {
		d.Violations = append(d.Violations, "quantity must be positive")
	}

	inst, err := g.instruments.Get(o.Instrument)
	if err != nil {
		d.Violations = append(d.Violations, fmt.Sprintf("unknown instrument %s", o.Instrument))
		return
	}
	if !inst.Tradable {
		d.Violations = append(d.Violations, fmt.Sprintf("instrument %s is not tradable", o.Instrument))
	}
	if inst.MinOrderSize > 0 && o.Quantity < inst.MinOrderSize {
		d.Violations = append(d.Violations,
			fmt.Sprintf("quantity %d below venue minimum %d", o.Quantity, inst.MinOrderSize))
	}
	if inst.MaxOrderSize > 0 && o.Quantity > inst.MaxOrderSize {
		d.Violations = append(d.Violations,
			fmt.Sprintf("quantity %d above venue maximum %d", o.Quantity, inst.MaxOrderSize))
	}

	if (o.Type == domain.OrderTypeLimit || o.Type == domain.OrderTypeStopLimit) && o.LimitPrice <= 0 {
		d.Violations = append(d.Violations, "limit price required and positive for limit orders")
	}
	if (o.Type == domain.OrderTypeStop || o.Type == domain.OrderTypeStopLimit) && o.StopPrice <= 0 {
		d.Violations = append(d.Violations, "stop price required and positive for stop orders")
	}
}

// estimatePrice returns the order's limit price when set, otherwise a
// market estimate from the snapshot.
func (g *Gate) estimatePrice(o *domain.Order) int64 {
	if o.LimitPrice > 0 {
		return o.LimitPrice
	}
	snap := g.quotes.GetSnapshot(o.Instrument)
	if mid := snap.Mid(); mid > 0 {
		return mid
	}
	return snap.LastPrice
}

func (g *Gate) checkPositionLimits(o *domain.Order, d *domain.RiskDecision) {
	price := g.estimatePrice(o)
	if price <= 0 {
		// No price reference yet: position projection is meaningless.
		return
	}

	current := int64(0)
	if pos, err := g.positions.Get(o.UserID, o.Instrument); err == nil {
		current = pos.Quantity
	}
	delta := o.Quantity
	if o.Side == domain.OrderSideSell {
		delta = -o.Quantity
	}
	projected := current + delta
	if projected < 0 {
		projected = -projected
	}

	if g.limits.MaxPositionQuantity > 0 && projected > g.limits.MaxPositionQuantity {
		d.Violations = append(d.Violations,
			fmt.Sprintf("projected position %d exceeds quantity limit %d", projected, g.limits.MaxPositionQuantity))
	}
	if g.limits.MaxPositionValue > 0 && projected*price > g.limits.MaxPositionValue {
		d.Violations = append(d.Violations,
			fmt.Sprintf("projected position value %d exceeds per-instrument limit %d",
				projected*price, g.limits.MaxPositionValue))
	}

	if g.limits.MaxGlobalPositionValue > 0 {
		global := projected * price
		for _, pos := range g.positions.ListByUser(o.UserID) {
			if pos.Instrument == o.Instrument {
				continue
			}
			global += pos.MarketValue(g.markPrice(pos))
		}
		if global > g.limits.MaxGlobalPositionValue {
			d.Violations = append(d.Violations,
				fmt.Sprintf("projected portfolio exposure %d exceeds global limit %d",
					global, g.limits.MaxGlobalPositionValue))
		}
	}
}

// markPrice values a position at the current market, falling back to
// its cost basis when no quote exists yet.
func (g *Gate) markPrice(pos domain.Position) int64 {
	snap := g.quotes.GetSnapshot(pos.Instrument)
	if p := snap.Mid(); p > 0 {
		return p
	}
	return pos.AvgCost
}

func (g *Gate) checkCash(o *domain.Order, d *domain.RiskDecision) {
	if o.Side != domain.OrderSideBuy {
		return
	}
	price := g.estimatePrice(o)
	if price <= 0 {
		return
	}

	account, err := g.accounts.Get(o.UserID)
	if err != nil {
		d.Violations = append(d.Violations, fmt.Sprintf("unknown account %s", o.UserID))
		return
	}

	gross := o.Quantity * price
	required := gross + domain.FeeOf(gross, g.limits.FeeRateBps)

	account.Mu.Lock()
	available := account.CashBalance
	account.Mu.Unlock()

	if available < required {
		d.Violations = append(d.Violations,
			fmt.Sprintf("insufficient cash: required %d, available %d", required, available))
	}
}

// checkCompliance evaluates each enabled rule and records a pass/fail
// audit entry per rule.
func (g *Gate) checkCompliance(o *domain.Order, d *domain.RiskDecision) {
	now := time.Now()
	account, accErr := g.accounts.Get(o.UserID)

	for _, rule := range g.rules {
		if !rule.Enabled {
			continue
		}
		check := domain.ComplianceCheck{Rule: string(rule.Type), Passed: true, CheckedAt: now}

		switch rule.Type {
		case RuleOrderSize:
			if o.Quantity > rule.Param {
				check.Passed = false
				check.Detail = fmt.Sprintf("order size %d exceeds ceiling %d", o.Quantity, rule.Param)
			}
		case RulePatternDayTrader:
			// Simplified heuristic: any sell counts as a day trade.
			if o.Side == domain.OrderSideSell && accErr == nil {
				account.Mu.Lock()
				count := account.DayTradeCount
				account.Mu.Unlock()
				if count >= rule.Param {
					check.Passed = false
					check.Detail = fmt.Sprintf("day trade count %d at limit %d", count, rule.Param)
				}
			}
		case RuleWashSale:
			// Buying back within the window of a loss-realizing sell.
			if o.Side == domain.OrderSideBuy && accErr == nil {
				account.Mu.Lock()
				soldAt, sold := account.LossSales[o.Instrument]
				account.Mu.Unlock()
				window := time.Duration(rule.Param) * time.Hour
				if sold && now.Sub(soldAt) < window {
					check.Passed = false
					check.Detail = fmt.Sprintf("buy within %s of loss sale in %s", window, o.Instrument)
				}
			}
		}

		d.Checks = append(d.Checks, check)
		if !check.Passed {
			d.Violations = append(d.Violations, check.Detail)
		}
	}
}

func (g *Gate) checkConcentration(o *domain.Order, d *domain.RiskDecision) {
	if g.limits.SectorConcentration <= 0 || o.Side != domain.OrderSideBuy {
		return
	}
	inst, err := g.instruments.Get(o.Instrument)
	if err != nil || inst.Sector == "" {
		return
	}
	price := g.estimatePrice(o)
	if price <= 0 {
		return
	}

	orderValue := o.Quantity * price
	sectorValue := orderValue
	totalValue := orderValue

	for _, pos := range g.positions.ListByUser(o.UserID) {
		value := pos.MarketValue(g.markPrice(pos))
		totalValue += value
		if posInst, err := g.instruments.Get(pos.Instrument); err == nil && posInst.Sector == inst.Sector {
			sectorValue += value
		}
	}
	if account, err := g.accounts.Get(o.UserID); err == nil {
		account.Mu.Lock()
		totalValue += account.CashBalance
		account.Mu.Unlock()
	}

	if totalValue <= 0 {
		return
	}
	exposure := float64(sectorValue) / float64(totalValue)
	if exposure > g.limits.SectorConcentration {
		d.Violations = append(d.Violations,
			fmt.Sprintf("projected %s exposure %.1f%% exceeds %.1f%% ceiling",
				inst.Sector, exposure*100, g.limits.SectorConcentration*100))
	}
}

// ValidateAlgorithmic is the reduced admission check for algorithmic
// orders: size ceiling, duration ceiling, and cash sufficiency for buys.
func (g *Gate) ValidateAlgorithmic(a *domain.AlgorithmicOrder) domain.RiskDecision {
	d := domain.RiskDecision{}

	if a.TotalQuantity <= 0 {
		d.Violations = append(d.Violations, "total quantity must be positive")
	}
	if g.limits.MaxAlgoOrderSize > 0 && a.TotalQuantity > g.limits.MaxAlgoOrderSize {
		d.Violations = append(d.Violations,
			fmt.Sprintf("total quantity %d exceeds ceiling %d", a.TotalQuantity, g.limits.MaxAlgoOrderSize))
	}

	duration := a.EndTime.Sub(a.StartTime)
	if duration <= 0 {
		d.Violations = append(d.Violations, "end time must be after start time")
	} else if duration > g.limits.MaxAlgoDuration {
		d.Violations = append(d.Violations,
			fmt.Sprintf("duration %s exceeds maximum %s", duration, g.limits.MaxAlgoDuration))
	}

	if a.Side == domain.OrderSideBuy {
		price := a.LimitPrice
		if price <= 0 {
			snap := g.quotes.GetSnapshot(a.Instrument)
			price = snap.Mid()
		}
		if price > 0 {
			if account, err := g.accounts.Get(a.UserID); err == nil {
				gross := a.TotalQuantity * price
				required := gross + domain.FeeOf(gross, g.limits.FeeRateBps)
				account.Mu.Lock()
				available := account.CashBalance
				account.Mu.Unlock()
				if available < required {
					d.Violations = append(d.Violations,
						fmt.Sprintf("insufficient cash: required %d, available %d", required, available))
				}
			} else {
				d.Violations = append(d.Violations, fmt.Sprintf("unknown account %s", a.UserID))
			}
		}
	}

	d.Approved = len(d.Violations) == 0
	return d
}
