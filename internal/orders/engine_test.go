package orders

import (
	"errors"
	"sync"
	"testing"
	"time"

	"etodesk/internal/domain"
	"etodesk/internal/ledger"

	"github.com/shopspring/decimal"
)

type stubQuotes struct {
	mu     sync.Mutex
	quotes map[string]domain.Quote
}

func newStubQuotes() *stubQuotes {
	return &stubQuotes{quotes: make(map[string]domain.Quote)}
}

func (s *stubQuotes) set(symbol string, price, liquidity float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes[symbol] = domain.Quote{
		Symbol:    symbol,
		Price:     decimal.NewFromFloat(price),
		Liquidity: decimal.NewFromFloat(liquidity),
	}
}

func (s *stubQuotes) Quote(symbol string) (domain.Quote, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.quotes[symbol]
	return q, ok
}

func newTestEngine() (*Engine, *ledger.Ledger, *stubQuotes) {
	l := ledger.New([]ledger.AssetSpec{
		{Symbol: "USDC", Name: "USD Coin", Decimals: 6, Balance: decimal.NewFromInt(10000), Price: decimal.NewFromInt(1)},
		{Symbol: "MAANG", Name: "MAANG Index", Decimals: 8, Balance: decimal.NewFromInt(50), Price: decimal.NewFromInt(100)},
	})
	quotes := newStubQuotes()
	quotes.set("MAANG", 100, 1000)
	e := NewEngine(l, quotes, decimal.NewFromFloat(0.001), nil)
	return e, l, quotes
}

func TestEngine_MarketBuyFills(t *testing.T) {
	e, l, _ := newTestEngine()

	o, res, err := e.Place(MarketBuy("MAANG", decimal.NewFromInt(10)))
	if err != nil {
		t.Fatalf("Place failed: %v", err)
	}
	if !res.IsValid {
		t.Fatalf("validation failed: %v", res.Errors)
	}

	if o.Status != domain.StatusFilled {
		t.Errorf("status = %s, want filled", o.Status)
	}
	if !o.Filled.Equal(decimal.NewFromInt(10)) || !o.Remaining.IsZero() {
		t.Errorf("filled = %s remaining = %s, want 10 and 0", o.Filled, o.Remaining)
	}

	// Fills must sum exactly to the order amount.
	sum := decimal.Zero
	for _, f := range o.Fills {
		sum = sum.Add(f.Amount)
		if f.TxHash == "" {
			t.Error("fill missing tx hash")
		}
	}
	if !sum.Equal(o.Amount) {
		t.Errorf("fill sum = %s, want %s", sum, o.Amount)
	}

	// 10 * 100 = 1000 cost + 1 fee; no hold may remain.
	usdc := l.Balance("USDC")
	if !usdc.Balance.Equal(decimal.NewFromInt(8999)) {
		t.Errorf("USDC balance = %s, want 8999", usdc.Balance)
	}
	if !usdc.Reserved.IsZero() {
		t.Errorf("USDC reserved = %s, want 0", usdc.Reserved)
	}
	if maang := l.Balance("MAANG"); !maang.Balance.Equal(decimal.NewFromInt(60)) {
		t.Errorf("MAANG balance = %s, want 60", maang.Balance)
	}
}

func TestEngine_MarketSellFills(t *testing.T) {
	e, l, _ := newTestEngine()

	o, _, err := e.Place(MarketSell("MAANG", decimal.NewFromInt(20)))
	if err != nil {
		t.Fatalf("Place failed: %v", err)
	}
	if o.Status != domain.StatusFilled {
		t.Errorf("status = %s, want filled", o.Status)
	}

	// 20 * 100 = 2000 proceeds - 2 fee.
	if usdc := l.Balance("USDC"); !usdc.Balance.Equal(decimal.NewFromInt(11998)) {
		t.Errorf("USDC balance = %s, want 11998", usdc.Balance)
	}
	if maang := l.Balance("MAANG"); !maang.Balance.Equal(decimal.NewFromInt(30)) {
		t.Errorf("MAANG balance = %s, want 30", maang.Balance)
	}
}

func TestEngine_MarketPartialLiquidity(t *testing.T) {
	e, l, quotes := newTestEngine()
	quotes.set("MAANG", 100, 4)

	o, _, err := e.Place(MarketBuy("MAANG", decimal.NewFromInt(10)))
	if err != nil {
		t.Fatalf("Place failed: %v", err)
	}

	if o.Status != domain.StatusPartiallyFilled {
		t.Errorf("status = %s, want partially_filled", o.Status)
	}
	if !o.Filled.Equal(decimal.NewFromInt(4)) || !o.Remaining.Equal(decimal.NewFromInt(6)) {
		t.Errorf("filled = %s remaining = %s, want 4 and 6", o.Filled, o.Remaining)
	}

	// The remainder must still be backed by a hold.
	usdc := l.Balance("USDC")
	if usdc.Reserved.IsZero() {
		t.Error("remaining exposure left unreserved")
	}
	if !usdc.Available().Equal(usdc.Balance.Sub(usdc.Reserved)) {
		t.Error("availability invariant broken")
	}

	// More liquidity arrives; the order finishes.
	quotes.set("MAANG", 100, 1000)
	e.OnPrice("MAANG")

	final := e.Order(o.ID)
	if final.Status != domain.StatusFilled {
		t.Errorf("status after refill = %s, want filled", final.Status)
	}
	if reserved := l.Balance("USDC").Reserved; !reserved.IsZero() {
		t.Errorf("reserved after fill = %s, want 0", reserved)
	}
}

func TestEngine_IOCCancelsRemainder(t *testing.T) {
	e, l, quotes := newTestEngine()
	quotes.set("MAANG", 100, 4)

	p := MarketBuy("MAANG", decimal.NewFromInt(10))
	p.TimeInForce = domain.TIFImmediate
	o, _, err := e.Place(p)
	if err != nil {
		t.Fatalf("Place failed: %v", err)
	}

	if o.Status != domain.StatusCancelled {
		t.Errorf("status = %s, want cancelled", o.Status)
	}
	if !o.Filled.Equal(decimal.NewFromInt(4)) {
		t.Errorf("filled = %s, want 4", o.Filled)
	}
	if reserved := l.Balance("USDC").Reserved; !reserved.IsZero() {
		t.Errorf("reserved = %s, want 0 after IOC terminalization", reserved)
	}
}

func TestEngine_FOKRejectsOnThinLiquidity(t *testing.T) {
	e, l, quotes := newTestEngine()
	quotes.set("MAANG", 100, 4)

	before := l.Balance("USDC").Balance

	p := MarketBuy("MAANG", decimal.NewFromInt(10))
	p.TimeInForce = domain.TIFFillOrKill
	o, res, err := e.Place(p)
	if !errors.Is(err, domain.ErrOrderRejected) {
		t.Fatalf("expected ErrOrderRejected, got %v", err)
	}
	if res.IsValid {
		t.Error("validation result should be invalid")
	}
	if o.Status != domain.StatusRejected {
		t.Errorf("status = %s, want rejected", o.Status)
	}
	if len(o.Fills) != 0 {
		t.Errorf("fills = %d, want 0", len(o.Fills))
	}
	if got := l.Balance("USDC").Balance; !got.Equal(before) {
		t.Errorf("balance changed: %s -> %s", before, got)
	}
}

func TestEngine_ValidationRejections(t *testing.T) {
	e, _, _ := newTestEngine()

	cases := []struct {
		name string
		p    CreateOrderParams
	}{
		{"non-positive amount", MarketBuy("MAANG", decimal.Zero)},
		{"missing limit price", CreateOrderParams{
			Type: domain.OrderTypeLimit, Side: domain.SideBuy, Asset: "MAANG",
			Amount: decimal.NewFromInt(1),
		}},
		{"missing stop price", CreateOrderParams{
			Type: domain.OrderTypeStop, Side: domain.SideSell, Asset: "MAANG",
			Amount: decimal.NewFromInt(1),
		}},
		{"insufficient quote balance", MarketBuy("MAANG", decimal.NewFromInt(500))},
		{"insufficient base balance", MarketSell("MAANG", decimal.NewFromInt(500))},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o, res, err := e.Place(tc.p)
			if !errors.Is(err, domain.ErrOrderRejected) {
				t.Fatalf("expected ErrOrderRejected, got %v", err)
			}
			if res.IsValid || len(res.Errors) == 0 {
				t.Error("expected an invalid result with errors")
			}
			if o.Status != domain.StatusRejected {
				t.Errorf("status = %s, want rejected", o.Status)
			}
		})
	}
}

func TestEngine_ValidationWarnings(t *testing.T) {
	e, _, quotes := newTestEngine()
	quotes.set("MAANG", 100, 50)

	// 40 of 50 visible liquidity: 80% impact, well past both thresholds.
	res := e.Validate(MarketSell("MAANG", decimal.NewFromInt(40)))
	if !res.IsValid {
		t.Fatalf("expected valid result, errors: %v", res.Errors)
	}
	if len(res.Warnings) == 0 {
		t.Error("expected liquidity warnings")
	}
	if !res.PriceImpact.Equal(decimal.NewFromInt(80)) {
		t.Errorf("PriceImpact = %s, want 80", res.PriceImpact)
	}
}

func TestEngine_LimitOrderRestsAndTriggers(t *testing.T) {
	e, l, quotes := newTestEngine()

	o, _, err := e.Place(Limit(domain.SideBuy, "MAANG", decimal.NewFromInt(5), decimal.NewFromInt(90)))
	if err != nil {
		t.Fatalf("Place failed: %v", err)
	}
	if o.Status != domain.StatusOpen {
		t.Fatalf("status = %s, want open at market 100", o.Status)
	}

	// Reservation sized at the limit price: 5 * 90 * 1.001.
	if reserved := l.Balance("USDC").Reserved; !reserved.Equal(decimal.NewFromFloat(450.45)) {
		t.Errorf("reserved = %s, want 450.45", reserved)
	}

	// Price crosses the limit; the order executes at the better market price.
	quotes.set("MAANG", 85, 1000)
	e.OnPrice("MAANG")

	final := e.Order(o.ID)
	if final.Status != domain.StatusFilled {
		t.Fatalf("status = %s, want filled", final.Status)
	}
	if !final.AverageFillPrice.Equal(decimal.NewFromInt(85)) {
		t.Errorf("fill price = %s, want 85", final.AverageFillPrice)
	}
}

func TestEngine_StopOrderTriggers(t *testing.T) {
	e, _, quotes := newTestEngine()

	o, _, err := e.Place(Stop(domain.SideSell, "MAANG", decimal.NewFromInt(5), decimal.NewFromInt(95)))
	if err != nil {
		t.Fatalf("Place failed: %v", err)
	}
	if o.Status != domain.StatusOpen {
		t.Fatalf("status = %s, want open", o.Status)
	}

	// Still above the trigger.
	quotes.set("MAANG", 97, 1000)
	e.OnPrice("MAANG")
	if got := e.Order(o.ID); got.Status != domain.StatusOpen {
		t.Fatalf("status = %s, want still open at 97", got.Status)
	}

	quotes.set("MAANG", 94, 1000)
	e.OnPrice("MAANG")
	final := e.Order(o.ID)
	if final.Status != domain.StatusFilled {
		t.Errorf("status = %s, want filled after trigger", final.Status)
	}
	if !final.Triggered {
		t.Error("order should be marked triggered")
	}
}

func TestEngine_StopLimitTwoPhase(t *testing.T) {
	e, _, quotes := newTestEngine()

	p := CreateOrderParams{
		Type: domain.OrderTypeStopLimit, Side: domain.SideSell, Asset: "MAANG",
		Amount: decimal.NewFromInt(5), Price: decimal.NewFromInt(93), StopPrice: decimal.NewFromInt(95),
	}
	o, _, err := e.Place(p)
	if err != nil {
		t.Fatalf("Place failed: %v", err)
	}

	// Gap straight through the limit: trigger fires but the limit holds.
	quotes.set("MAANG", 90, 1000)
	e.OnPrice("MAANG")
	mid := e.Order(o.ID)
	if !mid.Triggered {
		t.Fatal("trigger should have fired at 90")
	}
	if mid.Status != domain.StatusOpen {
		t.Fatalf("status = %s, want open below limit", mid.Status)
	}

	quotes.set("MAANG", 94, 1000)
	e.OnPrice("MAANG")
	if final := e.Order(o.ID); final.Status != domain.StatusFilled {
		t.Errorf("status = %s, want filled at 94 >= limit 93", final.Status)
	}
}

func TestEngine_TrailingStopRatchets(t *testing.T) {
	e, _, quotes := newTestEngine()

	p := CreateOrderParams{
		Type: domain.OrderTypeTrailingStop, Side: domain.SideSell, Asset: "MAANG",
		Amount: decimal.NewFromInt(5), TrailAmount: decimal.NewFromInt(10),
	}
	o, _, err := e.Place(p)
	if err != nil {
		t.Fatalf("Place failed: %v", err)
	}
	if _, ok := e.Order(o.ID).Detail.(*domain.TrailingStopDetail); !ok {
		t.Fatal("trailing detail not attached at placement")
	}

	// Rally to 130 ratchets the trigger to 120.
	quotes.set("MAANG", 120, 1000)
	e.OnPrice("MAANG")
	quotes.set("MAANG", 130, 1000)
	e.OnPrice("MAANG")

	// A dip to 125 stays above the 120 trigger.
	quotes.set("MAANG", 125, 1000)
	e.OnPrice("MAANG")
	if got := e.Order(o.ID); got.Status != domain.StatusOpen {
		t.Fatalf("status = %s, want open at 125", got.Status)
	}

	// Retrace through the trigger executes.
	quotes.set("MAANG", 119, 1000)
	e.OnPrice("MAANG")
	if final := e.Order(o.ID); final.Status != domain.StatusFilled {
		t.Errorf("status = %s, want filled after trail breach", final.Status)
	}
}

func TestEngine_StopBuyCancelsWhenQuoteGapsPastHold(t *testing.T) {
	e, l, quotes := newTestEngine()

	o, _, err := e.Place(Stop(domain.SideBuy, "MAANG", decimal.NewFromInt(5), decimal.NewFromInt(105)))
	if err != nil {
		t.Fatalf("Place failed: %v", err)
	}
	// Hold sized from the 105 trigger: 5 * 105 * 1.001.
	if usdc := l.Balance("USDC"); !usdc.Reserved.Equal(decimal.NewFromFloat(525.525)) {
		t.Fatalf("USDC reserved = %s, want 525.525", usdc.Reserved)
	}

	// The quote gaps clean through the trigger; a fill at 120 would cost
	// more than the hold guarantees, so the order dies instead.
	quotes.set("MAANG", 120, 1000)
	e.OnPrice("MAANG")

	got := e.Order(o.ID)
	if got.Status != domain.StatusCancelled {
		t.Fatalf("status = %s, want cancelled", got.Status)
	}
	if !got.Filled.IsZero() {
		t.Errorf("filled = %s, want 0", got.Filled)
	}
	usdc := l.Balance("USDC")
	if !usdc.Balance.Equal(decimal.NewFromInt(10000)) {
		t.Errorf("USDC balance = %s, want untouched 10000", usdc.Balance)
	}
	if !usdc.Reserved.IsZero() {
		t.Errorf("USDC reserved = %s, want 0", usdc.Reserved)
	}
	if maang := l.Balance("MAANG"); !maang.Balance.Equal(decimal.NewFromInt(50)) {
		t.Errorf("MAANG balance = %s, want 50", maang.Balance)
	}
}

func TestEngine_SnapshotDetailIsIsolated(t *testing.T) {
	e, _, quotes := newTestEngine()

	p := CreateOrderParams{
		Type: domain.OrderTypeTrailingStop, Side: domain.SideSell, Asset: "MAANG",
		Amount: decimal.NewFromInt(5), TrailAmount: decimal.NewFromInt(10),
	}
	o, _, err := e.Place(p)
	if err != nil {
		t.Fatalf("Place failed: %v", err)
	}
	snap := e.Order(o.ID).Detail.(*domain.TrailingStopDetail)
	if !snap.ReferencePrice.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("reference = %s, want 100 at placement", snap.ReferencePrice)
	}

	// Ratcheting the live order must not write through earlier snapshots.
	quotes.set("MAANG", 120, 1000)
	e.OnPrice("MAANG")

	if !snap.ReferencePrice.Equal(decimal.NewFromInt(100)) {
		t.Errorf("snapshot reference = %s, want still 100", snap.ReferencePrice)
	}
	live := e.Order(o.ID).Detail.(*domain.TrailingStopDetail)
	if !live.ReferencePrice.Equal(decimal.NewFromInt(120)) {
		t.Errorf("live reference = %s, want 120", live.ReferencePrice)
	}
}

func TestEngine_Cancel(t *testing.T) {
	e, l, _ := newTestEngine()

	o, _, err := e.Place(Limit(domain.SideBuy, "MAANG", decimal.NewFromInt(5), decimal.NewFromInt(90)))
	if err != nil {
		t.Fatalf("Place failed: %v", err)
	}

	if !e.Cancel(o.ID) {
		t.Fatal("Cancel should succeed for a resting order")
	}
	if got := e.Order(o.ID); got.Status != domain.StatusCancelled {
		t.Errorf("status = %s, want cancelled", got.Status)
	}
	if reserved := l.Balance("USDC").Reserved; !reserved.IsZero() {
		t.Errorf("reserved = %s, want 0 after cancel", reserved)
	}

	t.Run("cancel is not repeatable", func(t *testing.T) {
		if e.Cancel(o.ID) {
			t.Error("second cancel should return false")
		}
	})

	t.Run("cancel unknown order", func(t *testing.T) {
		if e.Cancel("nope") {
			t.Error("cancel of unknown ID should return false")
		}
	})

	t.Run("cancel filled order is a no-op", func(t *testing.T) {
		filled, _, err := e.Place(MarketBuy("MAANG", decimal.NewFromInt(2)))
		if err != nil {
			t.Fatalf("Place failed: %v", err)
		}
		usdcBefore := l.Balance("USDC").Balance
		if e.Cancel(filled.ID) {
			t.Error("cancelling a filled order should return false")
		}
		if got := l.Balance("USDC").Balance; !got.Equal(usdcBefore) {
			t.Errorf("balance changed by no-op cancel: %s -> %s", usdcBefore, got)
		}
		if after := e.Order(filled.ID); len(after.Fills) != len(filled.Fills) {
			t.Error("fills changed by no-op cancel")
		}
	})
}

func TestEngine_Modify(t *testing.T) {
	e, l, _ := newTestEngine()

	o, _, err := e.Place(Limit(domain.SideBuy, "MAANG", decimal.NewFromInt(5), decimal.NewFromInt(90)))
	if err != nil {
		t.Fatalf("Place failed: %v", err)
	}

	t.Run("amount change swaps the hold", func(t *testing.T) {
		amount := decimal.NewFromInt(10)
		mod, res, err := e.Modify(o.ID, ModifyParams{Amount: &amount})
		if err != nil {
			t.Fatalf("Modify failed: %v", err)
		}
		if !res.IsValid {
			t.Fatalf("validation failed: %v", res.Errors)
		}
		if !mod.Amount.Equal(amount) || !mod.Remaining.Equal(amount) {
			t.Errorf("amount = %s remaining = %s, want 10 and 10", mod.Amount, mod.Remaining)
		}
		// New hold: 10 * 90 * 1.001 = 900.9; exactly one hold may exist.
		if reserved := l.Balance("USDC").Reserved; !reserved.Equal(decimal.NewFromFloat(900.9)) {
			t.Errorf("reserved = %s, want 900.9", reserved)
		}
	})

	t.Run("rejected modification keeps the original hold", func(t *testing.T) {
		amount := decimal.NewFromInt(1000) // Far beyond the balance
		_, res, err := e.Modify(o.ID, ModifyParams{Amount: &amount})
		if !errors.Is(err, domain.ErrOrderRejected) {
			t.Fatalf("expected ErrOrderRejected, got %v", err)
		}
		if res.IsValid {
			t.Error("expected invalid result")
		}
		current := e.Order(o.ID)
		if !current.Amount.Equal(decimal.NewFromInt(10)) {
			t.Errorf("amount = %s, want unchanged 10", current.Amount)
		}
		if current.Status != domain.StatusOpen {
			t.Errorf("status = %s, want open", current.Status)
		}
		if reserved := l.Balance("USDC").Reserved; !reserved.Equal(decimal.NewFromFloat(900.9)) {
			t.Errorf("reserved = %s, want restored 900.9", reserved)
		}
	})

	t.Run("terminal orders cannot be modified", func(t *testing.T) {
		e.Cancel(o.ID)
		amount := decimal.NewFromInt(1)
		if _, _, err := e.Modify(o.ID, ModifyParams{Amount: &amount}); !errors.Is(err, domain.ErrOrderNotModifiable) {
			t.Errorf("expected ErrOrderNotModifiable, got %v", err)
		}
	})

	t.Run("unknown order", func(t *testing.T) {
		amount := decimal.NewFromInt(1)
		if _, _, err := e.Modify("nope", ModifyParams{Amount: &amount}); !errors.Is(err, domain.ErrOrderNotFound) {
			t.Errorf("expected ErrOrderNotFound, got %v", err)
		}
	})
}

func TestEngine_DayOrderExpires(t *testing.T) {
	e, l, _ := newTestEngine()

	clock := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	e.SetClock(func() time.Time { return clock })

	p := Limit(domain.SideBuy, "MAANG", decimal.NewFromInt(5), decimal.NewFromInt(90))
	p.TimeInForce = domain.TIFDay
	o, _, err := e.Place(p)
	if err != nil {
		t.Fatalf("Place failed: %v", err)
	}

	// Still the same day: nothing expires.
	clock = clock.Add(6 * time.Hour)
	if n := e.Sweep(); n != 0 {
		t.Errorf("Sweep = %d transitions, want 0", n)
	}

	// Past midnight the sweep reaps it and releases the hold.
	clock = clock.Add(7 * time.Hour)
	if n := e.Sweep(); n != 1 {
		t.Errorf("Sweep = %d transitions, want 1", n)
	}
	if got := e.Order(o.ID); got.Status != domain.StatusExpired {
		t.Errorf("status = %s, want expired", got.Status)
	}
	if reserved := l.Balance("USDC").Reserved; !reserved.IsZero() {
		t.Errorf("reserved = %s, want 0", reserved)
	}
}

func TestEngine_LazyExpiryOnAccess(t *testing.T) {
	e, _, _ := newTestEngine()

	clock := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	e.SetClock(func() time.Time { return clock })

	p := Limit(domain.SideSell, "MAANG", decimal.NewFromInt(5), decimal.NewFromInt(120))
	p.TimeInForce = domain.TIFDay
	o, _, err := e.Place(p)
	if err != nil {
		t.Fatalf("Place failed: %v", err)
	}

	clock = clock.Add(24 * time.Hour)
	// No explicit Sweep: the query itself must reap the stale order.
	if got := e.Order(o.ID); got.Status != domain.StatusExpired {
		t.Errorf("status = %s, want expired via lazy check", got.Status)
	}
}

func TestEngine_Queries(t *testing.T) {
	e, _, _ := newTestEngine()

	a, _, _ := e.Place(Limit(domain.SideBuy, "MAANG", decimal.NewFromInt(2), decimal.NewFromInt(90)))
	b, _, _ := e.Place(MarketBuy("MAANG", decimal.NewFromInt(3)))

	if all := e.Orders(); len(all) != 2 {
		t.Errorf("Orders = %d, want 2", len(all))
	}
	if open := e.OpenOrders(); len(open) != 1 || open[0].ID != a.ID {
		t.Errorf("OpenOrders should contain only the resting limit order")
	}
	if filled := e.OrdersByStatus(domain.StatusFilled); len(filled) != 1 || filled[0].ID != b.ID {
		t.Errorf("OrdersByStatus(filled) should contain the market order")
	}
	if byAsset := e.OrdersByAsset("MAANG"); len(byAsset) != 2 {
		t.Errorf("OrdersByAsset = %d, want 2", len(byAsset))
	}
	if todays := e.TodaysOrders(); len(todays) != 2 {
		t.Errorf("TodaysOrders = %d, want 2", len(todays))
	}
	if e.Order("missing") != nil {
		t.Error("unknown ID should return nil")
	}
}
