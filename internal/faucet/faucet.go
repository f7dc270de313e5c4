package faucet

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"etodesk/internal/domain"
	"etodesk/internal/infra"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// ClaimStore persists per-address cooldown state across restarts.
type ClaimStore interface {
	GetClaim(address string) (*domain.FaucetClaim, error)
	UpsertClaim(claim *domain.FaucetClaim) error
}

// Crediter applies the dispensed amount to an account. The ledger's signed
// Apply satisfies it.
type Crediter interface {
	Apply(symbol string, delta decimal.Decimal) error
}

// Options configures a faucet service.
type Options struct {
	Asset      string
	Amount     decimal.Decimal
	Cooldown   time.Duration
	RatePerSec float64 // Per-address request rate; 0 disables the limiter
	Burst      int
}

// Service dispenses starter funds over HTTP, one claim per address per
// cooldown window.
type Service struct {
	opts     Options
	store    ClaimStore
	crediter Crediter
	log      *slog.Logger
	now      func() time.Time
	idleTTL  time.Duration

	mu        sync.Mutex
	limiters  map[string]*addrLimiter
	lastPrune time.Time
}

// addrLimiter pairs a token bucket with its last use so idle entries can be
// pruned instead of accumulating one per address ever seen.
type addrLimiter struct {
	bucket   *rate.Limiter
	lastSeen time.Time
}

// NewService creates a faucet backed by the given claim store and ledger.
func NewService(opts Options, store ClaimStore, crediter Crediter, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	// An idle bucket is safe to drop once it would have refilled anyway.
	idleTTL := 15 * time.Minute
	if opts.RatePerSec > 0 {
		if refill := time.Duration(float64(opts.Burst) / opts.RatePerSec * float64(time.Second)); refill > idleTTL {
			idleTTL = refill
		}
	}
	return &Service{
		opts:     opts,
		store:    store,
		crediter: crediter,
		log:      log,
		now:      time.Now,
		idleTTL:  idleTTL,
		limiters: make(map[string]*addrLimiter),
	}
}

// SetClock overrides the time source. Tests only.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

type claimRequest struct {
	Address string `json:"address"`
}

type claimResponse struct {
	Success bool   `json:"success"`
	TxHash  string `json:"txHash,omitempty"`
	Message string `json:"message,omitempty"`
}

type cooldownResponse struct {
	Error         string `json:"error"`
	TimeRemaining int64  `json:"timeRemaining"` // Seconds until the next claim
}

// Handler returns the HTTP mux serving the faucet endpoints.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/faucet", s.handleClaim)
	mux.HandleFunc("/api/faucet/status", s.handleStatus)
	return mux
}

func (s *Service) handleClaim(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, claimResponse{Message: "POST required"})
		return
	}

	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, claimResponse{Message: "invalid request body"})
		return
	}
	address := strings.TrimSpace(req.Address)
	if address == "" {
		writeJSON(w, http.StatusBadRequest, claimResponse{Message: "address is required"})
		return
	}

	if !s.allow(address) {
		writeJSON(w, http.StatusTooManyRequests, cooldownResponse{
			Error:         "rate limit exceeded",
			TimeRemaining: 1,
		})
		return
	}

	claim, err := s.store.GetClaim(address)
	if err != nil {
		s.log.Error("claim lookup failed", slog.Any("error", err))
		infra.GlobalMetrics.RecordError()
		writeJSON(w, http.StatusInternalServerError, claimResponse{Message: "internal error"})
		return
	}

	now := s.now()
	if claim != nil {
		nextAt := claim.LastClaimAt.Add(s.opts.Cooldown)
		if now.Before(nextAt) {
			remaining := int64(nextAt.Sub(now).Seconds())
			if remaining < 1 {
				remaining = 1
			}
			writeJSON(w, http.StatusTooManyRequests, cooldownResponse{
				Error:         "cooldown active",
				TimeRemaining: remaining,
			})
			return
		}
	} else {
		claim = &domain.FaucetClaim{Address: address}
	}

	if err := s.crediter.Apply(s.opts.Asset, s.opts.Amount); err != nil {
		s.log.Error("faucet credit failed", slog.Any("error", err))
		infra.GlobalMetrics.RecordError()
		writeJSON(w, http.StatusInternalServerError, claimResponse{Message: "internal error"})
		return
	}

	claim.LastClaimAt = now
	claim.ClaimCount++
	claim.Dispensed = claim.Dispensed.Add(s.opts.Amount)
	if err := s.store.UpsertClaim(claim); err != nil {
		// Funds are already credited; log and carry on rather than clawing
		// back. The address gets a free retry of its cooldown at worst.
		s.log.Warn("claim persist failed", slog.Any("error", err))
	}

	txHash := syntheticTxHash(address, claim.ClaimCount, now)
	s.log.Info("faucet claim dispensed",
		slog.String("address", address),
		slog.String("asset", s.opts.Asset),
		slog.String("amount", s.opts.Amount.String()))

	writeJSON(w, http.StatusOK, claimResponse{
		Success: true,
		TxHash:  txHash,
		Message: fmt.Sprintf("%s %s sent", s.opts.Amount, s.opts.Asset),
	})
}

// handleStatus reports the cooldown state without claiming.
func (s *Service) handleStatus(w http.ResponseWriter, r *http.Request) {
	address := strings.TrimSpace(r.URL.Query().Get("address"))
	if address == "" {
		writeJSON(w, http.StatusBadRequest, claimResponse{Message: "address is required"})
		return
	}

	claim, err := s.store.GetClaim(address)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, claimResponse{Message: "internal error"})
		return
	}

	var remaining int64
	if claim != nil {
		if until := claim.LastClaimAt.Add(s.opts.Cooldown).Sub(s.now()); until > 0 {
			remaining = int64(until.Seconds())
			if remaining < 1 {
				remaining = 1
			}
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"address":       address,
		"canClaim":      remaining == 0,
		"timeRemaining": remaining,
	})
}

// allow applies the per-address token bucket.
func (s *Service) allow(address string) bool {
	if s.opts.RatePerSec <= 0 {
		return true
	}
	now := s.now()
	s.mu.Lock()
	s.pruneLimitersLocked(now)
	l, ok := s.limiters[address]
	if !ok {
		l = &addrLimiter{bucket: rate.NewLimiter(rate.Limit(s.opts.RatePerSec), s.opts.Burst)}
		s.limiters[address] = l
	}
	l.lastSeen = now
	s.mu.Unlock()
	return l.bucket.Allow()
}

// pruneLimitersLocked drops buckets that have sat unused past the idle TTL.
// Runs at most once per TTL window.
func (s *Service) pruneLimitersLocked(now time.Time) {
	if now.Sub(s.lastPrune) < s.idleTTL {
		return
	}
	s.lastPrune = now
	for addr, l := range s.limiters {
		if now.Sub(l.lastSeen) >= s.idleTTL {
			delete(s.limiters, addr)
		}
	}
}

func syntheticTxHash(address string, nonce int, at time.Time) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%d", address, nonce, at.UnixNano())))
	return "0x" + hex.EncodeToString(sum[:])
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Warn("response encode failed", slog.Any("error", err))
	}
}
