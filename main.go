package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"os/signal"
	"syscall"
	"time"

	"jinktrader/config"
	"jinktrader/internal/adapters/binance"
	"jinktrader/internal/adapters/bittrex"
	"jinktrader/internal/adapters/coordapi"
	"jinktrader/internal/adapters/kucoin"
	"jinktrader/internal/adapters/logger"
	"jinktrader/internal/adapters/sqlite"
	"jinktrader/internal/app"
	"jinktrader/internal/domain"
	"jinktrader/internal/engine"
	"jinktrader/internal/httpx"
	"jinktrader/internal/metrics"
	"jinktrader/internal/ports"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	// 2. Initialize Logger
	appLogger, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	defer appLogger.Sync()
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel})

	// 3. Initialize Trade Journal (Database Adapter)
	journal, err := sqlite.NewJournal(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize trade journal")
		log.Fatalf("FATAL: Failed to initialize trade journal: %v", err)
	}
	defer func() {
		if err := journal.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing trade journal")
		}
	}()

	// 4. Initialize Exchange Clients. Venues without credentials stay out of
	// the map; the service disables failing ones at startup.
	httpClient := httpx.NewClient(cfg.FillWait + 10*time.Second)
	venues := make(map[domain.Exchange]ports.ExchangeClient)

	if cfg.Binance.Configured() {
		client, err := binance.New(binance.Config{
			APIKey:    cfg.Binance.APIKey,
			SecretKey: cfg.Binance.APISecret,
			Logger:    appLogger,
		})
		if err != nil {
			appLogger.Error(context.Background(), err, "FATAL: Failed to initialize Binance client")
			log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
		}
		venues[domain.ExchangeBinance] = client
	}
	if cfg.Bittrex.Configured() {
		client, err := bittrex.New(bittrex.Config{
			APIKey:    cfg.Bittrex.APIKey,
			APISecret: cfg.Bittrex.APISecret,
			Deviation: cfg.Deviation,
			FillWait:  cfg.FillWait,
			HTTP:      httpClient,
			Logger:    appLogger,
		})
		if err != nil {
			appLogger.Error(context.Background(), err, "FATAL: Failed to initialize Bittrex client")
			log.Fatalf("FATAL: Failed to initialize Bittrex client: %v", err)
		}
		venues[domain.ExchangeBittrex] = client
	}
	if cfg.Kucoin.Configured() {
		client, err := kucoin.New(kucoin.Config{
			APIKey:     cfg.Kucoin.APIKey,
			APISecret:  cfg.Kucoin.APISecret,
			Passphrase: cfg.Kucoin.Passphrase,
			Deviation:  cfg.Deviation,
			FillWait:   cfg.FillWait,
			HTTP:       httpClient,
			Logger:     appLogger,
		})
		if err != nil {
			appLogger.Error(context.Background(), err, "FATAL: Failed to initialize KuCoin client")
			log.Fatalf("FATAL: Failed to initialize KuCoin client: %v", err)
		}
		venues[domain.ExchangeKucoin] = client
	}
	if len(venues) == 0 {
		log.Fatalf("FATAL: No exchange credentials configured")
	}
	appLogger.Info(context.Background(), "Exchange clients initialized", map[string]interface{}{"venues": len(venues)})

	// 5. Initialize Coordination Service Client
	coordinator, err := coordapi.New(coordapi.Config{
		APIURL:     cfg.JinkAPIURL,
		APIKey:     cfg.JinkAPIKey,
		ClientID:   cfg.JinkClientID,
		Production: cfg.Production,
		HTTP:       httpx.NewClient(15 * time.Second),
		Logger:     appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize coordination client")
		log.Fatalf("FATAL: Failed to initialize coordination client: %v", err)
	}

	// 6. Initialize the Trade Machine
	machine, err := engine.New(engine.Config{
		Production:     cfg.Production,
		SellFee:        cfg.SellFee,
		CertaintyLimit: cfg.CertaintyLimit,
		Logger:         appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize trade machine")
		log.Fatalf("FATAL: Failed to initialize trade machine: %v", err)
	}

	// 7. Metrics endpoint
	metricsServer := metrics.Serve(cfg.MetricsAddr, appLogger)
	defer metricsServer.Close()

	// 8. Initialize and start the Application Service
	service, err := app.NewService(cfg, appLogger, coordinator, journal, machine, venues)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize trading service")
		log.Fatalf("FATAL: Failed to initialize trading service: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := service.Start(ctx); err != nil {
		appLogger.Error(context.Background(), err, "Trading service exited with error")
		log.Fatalf("FATAL: Trading service exited with error: %v", err)
	}
	appLogger.Info(context.Background(), "Application finished gracefully.")
}
