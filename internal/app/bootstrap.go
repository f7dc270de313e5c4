package app

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"etodesk/internal/domain"
	"etodesk/internal/faucet"
	"etodesk/internal/infra"
	"etodesk/internal/infra/storage"
	"etodesk/internal/ledger"
	"etodesk/internal/orders"
	"etodesk/internal/service"
	"etodesk/internal/staking"

	"github.com/shopspring/decimal"
)

// Bootstrap orchestrates the application startup sequence.
type Bootstrap struct {
	Config    *infra.Config
	Storage   *storage.Storage
	Ledger    *ledger.Ledger
	Portfolio *service.Portfolio
	Engine    *orders.Engine
	Staking   *staking.Book
	Faucet    *faucet.Service
}

// NewBootstrap creates a new Bootstrap instance.
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize wires the whole system: config, logger, storage, ledger,
// portfolio, order engine, staking book, faucet.
func (b *Bootstrap) Initialize(configPath string) error {
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)
	slog.Info("bootstrapping",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version))

	store, err := storage.NewStorage(defaultDBPath())
	if err != nil {
		return err
	}
	b.Storage = store
	slog.Info("journal database initialized")

	catalog := make([]ledger.AssetSpec, 0, len(cfg.Assets))
	for _, a := range cfg.Assets {
		catalog = append(catalog, ledger.AssetSpec{
			Symbol:   a.Symbol,
			Name:     a.Name,
			Decimals: a.Decimals,
			Balance:  a.Balance,
			Price:    a.Price,
		})
	}
	b.Ledger = ledger.New(catalog)

	// The portfolio feeds prices to the engine; the engine quotes from the
	// portfolio. Break the cycle with a late-bound callback.
	var eng *orders.Engine
	b.Portfolio = service.NewPortfolio(b.Ledger, func(symbol string) {
		if eng != nil {
			eng.OnPrice(symbol)
		}
	})
	eng = orders.NewEngine(b.Ledger, b.Portfolio, cfg.Trading.FeeRate, logger)
	eng.SetJournal(store)
	b.Engine = eng

	stakingCatalog := make([]domain.StakingAsset, 0, len(cfg.Staking.Assets))
	for _, s := range cfg.Staking.Assets {
		stakingCatalog = append(stakingCatalog, domain.StakingAsset{
			ID:          s.ID,
			Symbol:      s.Symbol,
			Name:        s.Name,
			BaseAPY:     s.BaseAPY,
			MinStake:    s.MinStake,
			MaxStake:    s.MaxStake,
			LockPeriods: s.LockPeriods,
			TVL:         s.TVL,
			Risk:        domain.RiskLevel(s.Risk),
		})
	}
	b.Staking = staking.NewBook(b.Ledger, stakingCatalog, logger)
	b.Staking.SetJournal(store)

	if cfg.Faucet.ListenAddr != "" {
		b.Faucet = faucet.NewService(faucet.Options{
			Asset:      cfg.Faucet.Asset,
			Amount:     cfg.Faucet.Amount,
			Cooldown:   secondsToDuration(cfg.Faucet.CooldownSec),
			RatePerSec: cfg.Faucet.RatePerSec,
			Burst:      cfg.Faucet.Burst,
		}, store, b.Ledger, logger)
	}

	slog.Info("bootstrap complete",
		slog.Int("assets", len(catalog)),
		slog.Int("staking_assets", len(stakingCatalog)),
		slog.String("quote", cfg.Trading.Quote),
		slog.String("fee_rate", cfg.Trading.FeeRate.String()))
	return nil
}

// TotalSeeded returns the combined USD value of the seeded balances. Used
// by the startup banner.
func (b *Bootstrap) TotalSeeded() decimal.Decimal {
	if b.Ledger == nil {
		return decimal.Zero
	}
	return b.Ledger.PortfolioValue()
}

func defaultDBPath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join("data", "etodesk.db")
	}
	return filepath.Join(configDir, "Etodesk", "data", "etodesk.db")
}

func secondsToDuration(sec int) time.Duration {
	return time.Duration(sec) * time.Second
}
