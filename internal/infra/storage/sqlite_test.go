package storage

import (
	"testing"
	"time"

	"etodesk/internal/domain"

	"github.com/shopspring/decimal"
)

func setupTestDB(t *testing.T) *Storage {
	s, err := NewStorage("")
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	return s
}

func TestArchiveOrderAndHistory(t *testing.T) {
	s := setupTestDB(t)

	rec := domain.OrderRecord{
		ID:        "ord-1",
		Type:      "limit",
		Side:      "buy",
		Status:    "filled",
		Asset:     "MAANG",
		Quote:     "USDC",
		Amount:    decimal.NewFromInt(5),
		Filled:    decimal.NewFromInt(5),
		AvgPrice:  decimal.NewFromInt(100),
		TotalFees: decimal.NewFromFloat(0.5),
		CreatedAt: time.Now().Add(-time.Minute),
		ClosedAt:  time.Now(),
	}
	if err := s.ArchiveOrder(rec); err != nil {
		t.Fatalf("ArchiveOrder failed: %v", err)
	}

	history, err := s.OrderHistory(10)
	if err != nil {
		t.Fatalf("OrderHistory failed: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("history length = %d, want 1", len(history))
	}
	got := history[0]
	if got.ID != "ord-1" || got.Status != "filled" {
		t.Errorf("got %s/%s, want ord-1/filled", got.ID, got.Status)
	}
	if !got.Amount.Equal(decimal.NewFromInt(5)) {
		t.Errorf("amount = %s, want 5", got.Amount)
	}
}

func TestArchiveOrderUpsert(t *testing.T) {
	s := setupTestDB(t)

	rec := domain.OrderRecord{ID: "ord-1", Status: "partially_filled"}
	s.ArchiveOrder(rec)

	rec.Status = "cancelled"
	if err := s.ArchiveOrder(rec); err != nil {
		t.Fatalf("second archive failed: %v", err)
	}

	history, _ := s.OrderHistory(0)
	if len(history) != 1 {
		t.Fatalf("history length = %d, want 1 after upsert", len(history))
	}
	if history[0].Status != "cancelled" {
		t.Errorf("status = %s, want cancelled", history[0].Status)
	}
}

func TestFillsForOrder(t *testing.T) {
	s := setupTestDB(t)

	base := time.Now()
	for i, amt := range []int64{4, 6} {
		err := s.SaveFill(domain.FillRecord{
			ID:        "fill-" + string(rune('a'+i)),
			OrderID:   "ord-1",
			Amount:    decimal.NewFromInt(amt),
			Price:     decimal.NewFromInt(100),
			Timestamp: base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("SaveFill failed: %v", err)
		}
	}
	s.SaveFill(domain.FillRecord{ID: "fill-other", OrderID: "ord-2", Timestamp: base})

	fills, err := s.FillsForOrder("ord-1")
	if err != nil {
		t.Fatalf("FillsForOrder failed: %v", err)
	}
	if len(fills) != 2 {
		t.Fatalf("fills = %d, want 2", len(fills))
	}
	if !fills[0].Amount.Equal(decimal.NewFromInt(4)) {
		t.Errorf("first fill amount = %s, want 4 (time order)", fills[0].Amount)
	}
}

func TestSavePosition(t *testing.T) {
	s := setupTestDB(t)

	rec := domain.PositionRecord{
		ID:           "pos-1",
		Symbol:       "MAANG",
		Amount:       decimal.NewFromInt(1000),
		LockMonths:   6,
		EffectiveAPY: decimal.NewFromFloat(11.5),
		Status:       "active",
		StakedAt:     time.Now(),
	}
	if err := s.SavePosition(rec); err != nil {
		t.Fatalf("SavePosition failed: %v", err)
	}

	history, err := s.PositionHistory()
	if err != nil {
		t.Fatalf("PositionHistory failed: %v", err)
	}
	if len(history) != 1 || history[0].ID != "pos-1" {
		t.Fatal("position not persisted")
	}
	if !history[0].EffectiveAPY.Equal(decimal.NewFromFloat(11.5)) {
		t.Errorf("apy = %s, want 11.5", history[0].EffectiveAPY)
	}
}

func TestFaucetClaimRoundTrip(t *testing.T) {
	s := setupTestDB(t)

	// Fresh address has no claim and no error.
	claim, err := s.GetClaim("0xabc")
	if err != nil {
		t.Fatalf("GetClaim failed: %v", err)
	}
	if claim != nil {
		t.Fatal("expected nil claim for fresh address")
	}

	now := time.Now().UTC().Truncate(time.Second)
	err = s.UpsertClaim(&domain.FaucetClaim{
		Address:     "0xabc",
		LastClaimAt: now,
		ClaimCount:  1,
		Dispensed:   decimal.NewFromInt(100),
	})
	if err != nil {
		t.Fatalf("UpsertClaim failed: %v", err)
	}

	claim, err = s.GetClaim("0xabc")
	if err != nil {
		t.Fatalf("GetClaim failed: %v", err)
	}
	if claim == nil {
		t.Fatal("claim not found after upsert")
	}
	if claim.ClaimCount != 1 || !claim.LastClaimAt.Equal(now) {
		t.Errorf("claim = %+v, want count 1 at %s", claim, now)
	}

	// Second claim increments.
	claim.ClaimCount++
	claim.Dispensed = claim.Dispensed.Add(decimal.NewFromInt(100))
	if err := s.UpsertClaim(claim); err != nil {
		t.Fatalf("second UpsertClaim failed: %v", err)
	}
	claim, _ = s.GetClaim("0xabc")
	if claim.ClaimCount != 2 || !claim.Dispensed.Equal(decimal.NewFromInt(200)) {
		t.Errorf("claim = %+v, want count 2 dispensed 200", claim)
	}
}

func TestSaveAndLoadConfig(t *testing.T) {
	s := setupTestDB(t)

	if err := s.SaveConfig("theme", "dark"); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}
	s.SaveConfig("quote", "USDC")
	s.SaveConfig("theme", "light") // Overwrite

	m, err := s.LoadConfigMap()
	if err != nil {
		t.Fatalf("LoadConfigMap failed: %v", err)
	}
	if len(m) != 2 {
		t.Errorf("config map size = %d, want 2", len(m))
	}
	if m["theme"] != "light" {
		t.Errorf("theme = %s, want light", m["theme"])
	}
}
