package app

import (
	"log/slog"
	"time"

	"github.com/mycho0012/tradingview-loagreen/internal/domain"
	"github.com/mycho0012/tradingview-loagreen/internal/infra"
	"github.com/mycho0012/tradingview-loagreen/internal/infra/kis"
	"github.com/mycho0012/tradingview-loagreen/internal/infra/notion"
	"github.com/mycho0012/tradingview-loagreen/internal/infra/storage"
	"github.com/mycho0012/tradingview-loagreen/internal/infra/upbit"
	"github.com/mycho0012/tradingview-loagreen/internal/infra/yahoo"
	"github.com/mycho0012/tradingview-loagreen/internal/server"
	"github.com/mycho0012/tradingview-loagreen/internal/service"
)

// priceCacheMaxAge bounds how long a streamed tick may stand in for a live
// quote before the REST fallback takes over.
const priceCacheMaxAge = 30 * time.Second

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config *infra.Config
	Log    *slog.Logger
	Store  *storage.Store
	Server *server.Server

	// Worker is nil when no ticker symbols are configured.
	Worker *upbit.Worker
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize loads config and wires every adapter the config enables.
// Unconfigured exchanges stay nil; their dispatch paths reject with 500.
func (b *Bootstrap) Initialize(configPath string) error {
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err
	}
	b.Config = cfg

	log := infra.NewLogger(cfg)
	slog.SetDefault(log)
	b.Log = log

	store, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return err
	}
	b.Store = store
	log.Info("✅ Trade history database ready", slog.String("path", cfg.Storage.Path))

	prices := service.NewPriceCache(priceCacheMaxAge)

	var (
		crypto      domain.CryptoExchange
		candles     domain.CandleSource
		upbitClient *upbit.Client
	)
	if cfg.UpbitConfigured() {
		upbitClient = upbit.NewClient(cfg.API.Upbit.RestURL, cfg.API.Upbit.AccessKey, cfg.API.Upbit.SecretKey, log)
		crypto = upbitClient
		candles = upbitClient
		log.Info("✅ Upbit client ready")
	} else {
		log.Warn("Upbit keys missing, crypto orders disabled")
	}

	var (
		equity    domain.EquityBroker
		kisClient *kis.Client
	)
	if cfg.KISConfigured() {
		tokens := kis.NewFileTokenProvider(cfg.API.KIS.BaseURL, cfg.API.KIS.AppKey, cfg.API.KIS.AppSecret, cfg.API.KIS.TokenFile, log)
		kisClient = kis.NewClient(cfg.API.KIS.BaseURL, cfg.API.KIS.AppKey, cfg.API.KIS.AppSecret,
			cfg.API.KIS.AccountPrefix, cfg.API.KIS.AccountSuffix, tokens, log)
		equity = kisClient
		log.Info("✅ KIS client ready")
	} else {
		log.Warn("KIS keys missing, equity orders disabled")
	}

	var journal domain.Journal
	if cfg.NotionConfigured() {
		journal = notion.NewJournal(cfg.API.Notion.BaseURL, cfg.API.Notion.APIKey, cfg.API.Notion.DatabaseID, log)
		log.Info("✅ Notion journal ready")
	} else {
		log.Warn("Notion keys missing, journaling disabled")
	}

	estimator := service.NewEstimator(candles, yahoo.NewClient(cfg.API.Yahoo.BaseURL, log), log)

	dispatcher := service.NewDispatcher(service.DispatcherConfig{
		Crypto:            crypto,
		Equity:            equity,
		Sizer:             service.NewSizer(estimator, log),
		Journal:           journal,
		Store:             store,
		Hours:             service.NewMarketHours(cfg.Trading.Timezone, log),
		Prices:            prices,
		Passphrase:        cfg.Server.Passphrase,
		AllowDuplicateBuy: cfg.Trading.AllowDuplicateBuy,
		MinCryptoOrderKRW: cfg.Trading.MinCryptoOrderKRW,
		MinEquityOrderKRW: cfg.Trading.MinEquityOrderKRW,
	}, log)

	b.Server = &server.Server{
		Dispatcher: dispatcher,
		Crypto:     crypto,
		KIS:        kisClient,
		Store:      store,
		Log:        log,
		AppName:    cfg.App.Name,
		AppVersion: cfg.App.Version,
	}

	if len(cfg.API.Upbit.TickerSymbols) > 0 {
		b.Worker = upbit.NewWorker(cfg.API.Upbit.WSURL, cfg.API.Upbit.TickerSymbols, prices, log)
	}

	return nil
}
