package engine

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quantlab/papersim/internal/domain"
	"github.com/quantlab/papersim/internal/store"
)

// MarketMakerAccountID owns the synthetic counterparty side of every
// trade against the market-maker quote. It has no cash or positions;
// its fills exist only as audit records.
const MarketMakerAccountID = "MARKET_MAKER"

// RiskGate validates an order before it may trade. Implemented by the
// risk package.
type RiskGate interface {
	Validate(o *domain.Order) domain.RiskDecision
}

// EventPublisher receives domain events from the engine. Publish
// failures are the bus's concern; the engine treats delivery as
// best-effort.
type EventPublisher interface {
	Publish(ctx context.Context, ev *domain.Event) error
}

// SubmitResult reports the admission outcome of an order submission.
type SubmitResult struct {
	Accepted   bool
	Reason     string
	Violations []string
}

// Matcher implements the matching engine. Every submitted order passes
// risk admission, then matches against the best opposite-side liquidity:
// the synthetic market-maker quote or user orders resting on the book,
// whichever prices better. Execution is always at the resting price.
type Matcher struct {
	books      *BookManager
	mm         *MarketMaker
	gate       RiskGate
	accounts   *store.AccountStore
	orders     *store.OrderStore
	trades     *store.TradeStore
	fills      *store.FillStore
	positions  *store.PositionStore
	events     EventPublisher
	feeRateBps int64
	logger     *slog.Logger
}

// NewMatcher creates a new Matcher with the given dependencies.
func NewMatcher(
	books *BookManager,
	mm *MarketMaker,
	gate RiskGate,
	accounts *store.AccountStore,
	orders *store.OrderStore,
	trades *store.TradeStore,
	fills *store.FillStore,
	positions *store.PositionStore,
	events EventPublisher,
	feeRateBps int64,
	logger *slog.Logger,
) *Matcher {
	return &Matcher{
		books:      books,
		mm:         mm,
		gate:       gate,
		accounts:   accounts,
		orders:     orders,
		trades:     trades,
		fills:      fills,
		positions:  positions,
		events:     events,
		feeRateBps: feeRateBps,
		logger:     logger,
	}
}

// Submit runs an order through risk admission and, on approval, the
// matching engine. Rejected orders transition to rejected and have no
// further effect. The per-instrument write lock is held for the entire
// matching pass; events are published after it is released.
//
// The caller provides an Order with UserID, Instrument, Type, Side,
// Quantity, and pricing fields set. The matcher assigns OrderID,
// CreatedAt, and manages all status transitions.
func (m *Matcher) Submit(ctx context.Context, order *domain.Order) (*SubmitResult, error) {
	if order.OrderID == "" {
		order.OrderID = uuid.New().String()
	}
	order.CreatedAt = time.Now()
	order.Status = domain.OrderStatusPending
	order.Fills = []*domain.Fill{}

	m.orders.Create(order)

	// Risk admission. A denied order is terminal with no market effect.
	decision := m.gate.Validate(order)
	if !decision.Approved {
		order.Status = domain.OrderStatusRejected
		order.RejectReason = strings.Join(decision.Violations, "; ")
		m.logger.Info("order rejected",
			slog.String("order_id", order.OrderID),
			slog.String("reason", order.RejectReason),
		)
		m.publish(ctx, domain.EventOrderRejected, domain.PriorityHigh, order, order.UserID)
		m.publish(ctx, domain.EventRiskAlert, domain.PriorityCritical, decision, order.UserID)
		return &SubmitResult{
			Accepted:   false,
			Reason:     domain.ErrRiskRejected.Error(),
			Violations: decision.Violations,
		}, nil
	}

	now := time.Now()
	order.Status = domain.OrderStatusSubmitted
	order.SubmittedAt = &now

	book := m.books.GetOrCreate(order.Instrument)

	book.mu.Lock()
	order.Status = domain.OrderStatusAcknowledged
	events := m.match(order, book)
	book.mu.Unlock()

	m.publish(ctx, domain.EventOrderCreated, domain.PriorityNormal, order, order.UserID)
	for _, ev := range events {
		m.events.Publish(ctx, ev)
	}

	return &SubmitResult{Accepted: true}, nil
}

// match runs the matching loop for an acknowledged order. The caller
// holds the book write lock. Returns events to publish after the lock
// is released.
func (m *Matcher) match(order *domain.Order, book *Book) []*domain.Event {
	var events []*domain.Event

	// Stop orders park until the last price crosses their trigger. An
	// already-crossed trigger executes immediately.
	if order.Type == domain.OrderTypeStop || order.Type == domain.OrderTypeStopLimit {
		if !stopTriggered(order, book.lastPrice) {
			book.addStop(order)
			return events
		}
	}

	// Fill-or-kill: cancel outright unless the full quantity is
	// available at an acceptable price.
	if order.TimeInForce == domain.TimeInForceFOK && m.availableAt(order, book) < order.Quantity {
		now := time.Now()
		order.Status = domain.OrderStatusCancelled
		order.CompletedAt = &now
		return events
	}

	tradedAny := false
	for order.RemainingQuantity() > 0 {
		src, price, size, entry := m.bestOpposite(order, book)
		if src == srcNone {
			break
		}

		// Limit orders only cross compatible prices. Execution is at
		// the resting price, so price improvement goes to the aggressor.
		if limitPriced(order) {
			if order.Side == domain.OrderSideBuy && order.LimitPrice < price {
				break
			}
			if order.Side == domain.OrderSideSell && order.LimitPrice > price {
				break
			}
		}

		// Self-trade prevention, cancel-newest: an order about to trade
		// with the same user's resting order is cancelled instead of
		// trading with it or resting crossed against it.
		if src == srcResting && entry.Order.UserID == order.UserID {
			now := time.Now()
			order.Status = domain.OrderStatusCancelled
			order.RejectReason = "self-trade prevented"
			order.CompletedAt = &now
			events = append(events,
				m.event(domain.EventOrderCancelled, domain.PriorityNormal, order, order.UserID, order.Instrument))
			break
		}

		fillQty := order.RemainingQuantity()
		if size < fillQty {
			fillQty = size
		}

		if src == srcQuote {
			events = append(events, m.executeAgainstQuote(book, order, price, fillQty)...)
		} else {
			events = append(events, m.executeAgainstResting(book, order, entry.Order, price, fillQty)...)
			if entry.Order.RemainingQuantity() == 0 {
				book.Remove(entry.OrderID)
			}
		}
		tradedAny = true
	}

	// Unfilled remainder: IOC cancels, limit orders rest on the book,
	// market orders stay acknowledged awaiting the next quote refresh.
	// A remainder already cancelled by self-trade prevention never rests.
	if order.RemainingQuantity() > 0 && order.IsActive() {
		switch {
		case order.TimeInForce == domain.TimeInForceIOC:
			now := time.Now()
			order.Status = domain.OrderStatusCancelled
			order.CompletedAt = &now
		case limitPriced(order):
			book.insertRemainder(order)
		}
	}

	// A trade moves the reference price: refresh the synthetic quote,
	// resolve any crossing with resting user orders, then release stop
	// orders whose trigger the new price crossed.
	if tradedAny {
		m.mm.refresh(book, book.lastPrice)
		events = append(events, m.uncross(book)...)
		events = append(events, m.releaseStops(book)...)
	}

	return events
}

// limitPriced reports whether an order constrains its execution price.
// Triggered stop-limit orders match like limit orders; plain stops
// match like market orders.
func limitPriced(o *domain.Order) bool {
	return o.Type == domain.OrderTypeLimit || o.Type == domain.OrderTypeStopLimit
}

// releaseStops feeds parked stop orders whose trigger has been crossed
// back through the matching loop. Executions inside the loop can move
// the last price and trigger further stops; the loop drains until no
// parked order is triggered. Caller holds the book write lock.
func (m *Matcher) releaseStops(book *Book) []*domain.Event {
	var events []*domain.Event
	for {
		order, ok := book.popTriggeredStop()
		if !ok {
			return events
		}
		m.logger.Debug("stop order triggered",
			slog.String("order_id", order.OrderID),
			slog.Int64("stop_price", order.StopPrice),
			slog.Int64("last_price", book.lastPrice),
		)
		events = append(events, m.match(order, book)...)
	}
}

// insertRemainder rests an order's unfilled remainder on its side of
// the book. Caller holds the book write lock.
func (b *Book) insertRemainder(order *domain.Order) {
	entry := BookEntry{
		Price:     order.LimitPrice,
		CreatedAt: order.CreatedAt,
		OrderID:   order.OrderID,
		Order:     order,
	}
	if order.Side == domain.OrderSideBuy {
		b.InsertBid(entry)
	} else {
		b.InsertAsk(entry)
	}
}

// liquiditySource identifies where the best opposite-side liquidity is.
type liquiditySource int

const (
	srcNone liquiditySource = iota
	srcQuote
	srcResting
)

// bestOpposite finds the best-priced opposite liquidity for an order.
// On a price tie, resting user orders take priority over the synthetic
// quote: they were on the book first.
func (m *Matcher) bestOpposite(order *domain.Order, book *Book) (liquiditySource, int64, int64, BookEntry) {
	var (
		quotePrice, quoteSize int64
		entry                 BookEntry
		haveEntry             bool
	)

	if order.Side == domain.OrderSideBuy {
		quotePrice, quoteSize = book.quoteAsk, book.quoteAskSize
		entry, haveEntry = book.BestUserAsk()
	} else {
		quotePrice, quoteSize = book.quoteBid, book.quoteBidSize
		entry, haveEntry = book.BestUserBid()
	}
	haveQuote := quotePrice > 0 && quoteSize > 0

	switch {
	case !haveQuote && !haveEntry:
		return srcNone, 0, 0, BookEntry{}
	case !haveQuote:
		return srcResting, entry.Price, entry.Order.RemainingQuantity(), entry
	case !haveEntry:
		return srcQuote, quotePrice, quoteSize, BookEntry{}
	}

	quoteBetter := quotePrice < entry.Price
	if order.Side == domain.OrderSideSell {
		quoteBetter = quotePrice > entry.Price
	}
	if quoteBetter {
		return srcQuote, quotePrice, quoteSize, BookEntry{}
	}
	return srcResting, entry.Price, entry.Order.RemainingQuantity(), entry
}

// availableAt sums the opposite-side liquidity an order could take at
// its price, for fill-or-kill feasibility.
func (m *Matcher) availableAt(order *domain.Order, book *Book) int64 {
	var total int64

	acceptable := func(price int64) bool {
		if !limitPriced(order) {
			return true
		}
		if order.Side == domain.OrderSideBuy {
			return order.LimitPrice >= price
		}
		return order.LimitPrice <= price
	}

	// The walk follows matching order and stops at the user's own
	// resting order: under cancel-newest self-trade prevention,
	// liquidity at or behind it is unreachable.
	var (
		ownPrice  int64
		ownBlocks bool
	)
	count := func(e BookEntry) bool {
		if !acceptable(e.Price) {
			return false
		}
		if e.Order.UserID == order.UserID {
			ownPrice, ownBlocks = e.Price, true
			return false
		}
		total += e.Order.RemainingQuantity()
		return true
	}

	if order.Side == domain.OrderSideBuy {
		book.asks.Ascend(count)
		if book.quoteAsk > 0 && book.quoteAskSize > 0 && acceptable(book.quoteAsk) &&
			(!ownBlocks || book.quoteAsk < ownPrice) {
			total += book.quoteAskSize
		}
	} else {
		book.bids.Ascend(count)
		if book.quoteBid > 0 && book.quoteBidSize > 0 && acceptable(book.quoteBid) &&
			(!ownBlocks || book.quoteBid > ownPrice) {
			total += book.quoteBidSize
		}
	}
	return total
}

// executeAgainstQuote trades an aggressor order against the synthetic
// market-maker quote: one counterparty order, one trade, one fill per
// side. Caller holds the book write lock.
func (m *Matcher) executeAgainstQuote(book *Book, order *domain.Order, price, qty int64) []*domain.Event {
	executedAt := time.Now()

	// The synthetic counterparty fills completely in the same instant.
	counter := &domain.Order{
		OrderID:       uuid.New().String(),
		UserID:        MarketMakerAccountID,
		ClientOrderID: "MM_" + order.OrderID,
		Instrument:    order.Instrument,
		Type:          domain.OrderTypeLimit,
		Side:          order.Side.Opposite(),
		Quantity:      qty,
		LimitPrice:    price,
		Status:        domain.OrderStatusAcknowledged,
		CreatedAt:     executedAt,
		Fills:         []*domain.Fill{},
	}
	m.orders.Create(counter)

	if order.Side == domain.OrderSideBuy {
		book.quoteAskSize -= qty
	} else {
		book.quoteBidSize -= qty
	}

	return m.settleTrade(book, order, counter, price, qty, order.Side, executedAt)
}

// executeAgainstResting trades an aggressor order against a user order
// resting on the book. Caller holds the book write lock.
func (m *Matcher) executeAgainstResting(book *Book, order, resting *domain.Order, price, qty int64) []*domain.Event {
	return m.settleTrade(book, order, resting, price, qty, order.Side, time.Now())
}

// settleTrade creates the trade and per-side fills, applies them to
// both orders, settles cash and positions for real accounts, and
// records book statistics. aggressorSide is the taker side. Caller
// holds the book write lock.
func (m *Matcher) settleTrade(book *Book, aggressor, resting *domain.Order, price, qty int64, aggressorSide domain.OrderSide, executedAt time.Time) []*domain.Event {
	var buyOrder, sellOrder *domain.Order
	if aggressor.Side == domain.OrderSideBuy {
		buyOrder, sellOrder = aggressor, resting
	} else {
		buyOrder, sellOrder = resting, aggressor
	}

	trade := &domain.Trade{
		TradeID:       uuid.New().String(),
		Instrument:    aggressor.Instrument,
		BuyOrderID:    buyOrder.OrderID,
		SellOrderID:   sellOrder.OrderID,
		Price:         price,
		Quantity:      qty,
		AggressorSide: aggressorSide,
		ExecutedAt:    executedAt,
	}
	m.trades.Append(trade)

	aggFill := domain.NewFill(uuid.New().String(), aggressor.OrderID, trade, qty, price,
		domain.LiquidityTaker, aggressor.Side, m.feeRateBps)
	restFill := domain.NewFill(uuid.New().String(), resting.OrderID, trade, qty, price,
		domain.LiquidityMaker, resting.Side, m.feeRateBps)

	aggressor.ApplyFill(aggFill)
	resting.ApplyFill(restFill)
	m.fills.Append(aggFill)
	m.fills.Append(restFill)

	book.recordTrade(price, qty)

	events := []*domain.Event{
		m.event(domain.EventOrderFilled, domain.PriorityHigh, aggFill, aggressor.UserID, aggressor.Instrument),
	}
	if resting.UserID != MarketMakerAccountID {
		events = append(events,
			m.event(domain.EventOrderFilled, domain.PriorityHigh, restFill, resting.UserID, resting.Instrument))
	}

	for _, side := range []struct {
		order *domain.Order
		fill  *domain.Fill
	}{{aggressor, aggFill}, {resting, restFill}} {
		if side.order.UserID == MarketMakerAccountID {
			continue
		}
		pos := m.settleAccount(side.order, side.fill, executedAt)
		events = append(events,
			m.event(domain.EventPortfolioUpdated, domain.PriorityNormal, pos, side.order.UserID, side.order.Instrument))
	}

	events = append(events,
		m.event(domain.EventMarketDataUpdated, domain.PriorityLow, book.snapshotLocked(), "", trade.Instrument))
	return events
}

// settleAccount applies one fill to its owner's cash and position, and
// maintains the day-trade and loss-sale counters the compliance rules
// read. Returns the updated position.
func (m *Matcher) settleAccount(order *domain.Order, fill *domain.Fill, at time.Time) domain.Position {
	var before int64
	if prev, err := m.positions.Get(order.UserID, order.Instrument); err == nil {
		before = prev.RealizedPnL
	}
	pos := m.positions.Apply(order.UserID, order.Instrument, order.Side, fill.Quantity, fill.Price, at)

	account, err := m.accounts.Get(order.UserID)
	if err != nil {
		m.logger.Error("fill settled against unknown account",
			slog.String("order_id", order.OrderID),
			slog.String("user_id", order.UserID),
		)
		return pos
	}

	account.Mu.Lock()
	if order.Side == domain.OrderSideBuy {
		account.CashBalance -= fill.Net
	} else {
		account.CashBalance += fill.Net
		// Simplified venue heuristic: any sell counts as a day trade.
		account.DayTradeCount++
		if pos.RealizedPnL < before {
			account.LossSales[order.Instrument] = at
		}
	}
	account.Mu.Unlock()

	return pos
}

// uncross resolves crossings between a freshly refreshed synthetic
// quote and resting user orders: the resting order fills against the
// quote at its own resting price. The loop terminates because each pass
// consumes quote size or removes a resting order. The quote is not
// refreshed again inside the loop. Caller holds the book write lock.
func (m *Matcher) uncross(book *Book) []*domain.Event {
	var events []*domain.Event

	for {
		if entry, ok := book.BestUserBid(); ok &&
			book.quoteAsk > 0 && book.quoteAskSize > 0 && entry.Price >= book.quoteAsk {
			qty := entry.Order.RemainingQuantity()
			if book.quoteAskSize < qty {
				qty = book.quoteAskSize
			}
			events = append(events, m.fillRestingFromQuote(book, entry.Order, domain.OrderSideSell, qty)...)
			continue
		}
		if entry, ok := book.BestUserAsk(); ok &&
			book.quoteBid > 0 && book.quoteBidSize > 0 && entry.Price <= book.quoteBid {
			qty := entry.Order.RemainingQuantity()
			if book.quoteBidSize < qty {
				qty = book.quoteBidSize
			}
			events = append(events, m.fillRestingFromQuote(book, entry.Order, domain.OrderSideBuy, qty)...)
			continue
		}
		return events
	}
}

// fillRestingFromQuote executes a resting user order against the
// synthetic quote. The market maker is the aggressor; execution is at
// the resting order's price. Caller holds the book write lock.
func (m *Matcher) fillRestingFromQuote(book *Book, resting *domain.Order, mmSide domain.OrderSide, qty int64) []*domain.Event {
	executedAt := time.Now()

	counter := &domain.Order{
		OrderID:       uuid.New().String(),
		UserID:        MarketMakerAccountID,
		ClientOrderID: "MM_" + resting.OrderID,
		Instrument:    resting.Instrument,
		Type:          domain.OrderTypeLimit,
		Side:          mmSide,
		Quantity:      qty,
		LimitPrice:    resting.LimitPrice,
		Status:        domain.OrderStatusAcknowledged,
		CreatedAt:     executedAt,
		Fills:         []*domain.Fill{},
	}
	m.orders.Create(counter)

	if mmSide == domain.OrderSideSell {
		book.quoteAskSize -= qty
	} else {
		book.quoteBidSize -= qty
	}

	events := m.settleTrade(book, counter, resting, resting.LimitPrice, qty, mmSide, executedAt)
	if resting.RemainingQuantity() == 0 {
		book.Remove(resting.OrderID)
	}
	return events
}

// Cancel cancels an order with the given reason. Cancellation is legal
// from pending, submitted, acknowledged, and partially_filled; any
// other state returns domain.ErrInvalidStateTransition.
func (m *Matcher) Cancel(ctx context.Context, orderID, reason string) (*domain.Order, error) {
	order, err := m.orders.Get(orderID)
	if err != nil {
		return nil, domain.ErrOrderNotFound
	}

	if !order.IsActive() {
		return nil, domain.ErrInvalidStateTransition
	}

	book := m.books.GetOrCreate(order.Instrument)
	book.mu.Lock()

	// Re-check status under lock (another goroutine may have changed it).
	if !order.IsActive() {
		book.mu.Unlock()
		return nil, domain.ErrInvalidStateTransition
	}

	book.Remove(order.OrderID)

	now := time.Now()
	order.Status = domain.OrderStatusCancelled
	order.RejectReason = reason
	order.CompletedAt = &now

	book.mu.Unlock()

	m.publish(ctx, domain.EventOrderCancelled, domain.PriorityNormal, order, order.UserID)
	return order, nil
}

// Expire transitions a resting order to expired at session end. The
// expiry manager calls this; status is re-checked under the book lock.
func (m *Matcher) Expire(ctx context.Context, order *domain.Order) bool {
	book := m.books.GetOrCreate(order.Instrument)
	book.mu.Lock()

	switch order.Status {
	case domain.OrderStatusAcknowledged, domain.OrderStatusPartiallyFilled:
		// Still eligible for expiration.
	default:
		book.mu.Unlock()
		return false
	}

	book.Remove(order.OrderID)
	now := time.Now()
	order.Status = domain.OrderStatusExpired
	order.CompletedAt = &now
	book.mu.Unlock()

	m.publish(ctx, domain.EventOrderExpired, domain.PriorityNormal, order, order.UserID)
	return true
}

// SeedReference initializes the synthetic quote for an instrument
// around a reference price, so the book has liquidity before its first
// trade.
func (m *Matcher) SeedReference(instrument string, price int64) {
	book := m.books.GetOrCreate(instrument)
	book.mu.Lock()
	defer book.mu.Unlock()
	if book.lastPrice == 0 {
		book.lastPrice = price
	}
	m.mm.refresh(book, price)
}

func (m *Matcher) event(typ domain.EventType, pri domain.EventPriority, payload any, userID, instrument string) *domain.Event {
	return &domain.Event{
		EventID:    uuid.New().String(),
		Type:       typ,
		Priority:   pri,
		Instrument: instrument,
		UserID:     userID,
		Payload:    payload,
		OccurredAt: time.Now(),
	}
}

func (m *Matcher) publish(ctx context.Context, typ domain.EventType, pri domain.EventPriority, payload any, userID string) {
	instrument := ""
	if o, ok := payload.(*domain.Order); ok {
		instrument = o.Instrument
	}
	m.events.Publish(ctx, m.event(typ, pri, payload, userID, instrument))
}
