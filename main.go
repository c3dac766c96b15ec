package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"execution-core/internal/api"
	"execution-core/internal/breaker"
	"execution-core/internal/events"
	"execution-core/internal/market"
	"execution-core/internal/mode"
	"execution-core/internal/paper"
	"execution-core/internal/risk"
	"execution-core/internal/swarm"
	"execution-core/pkg/cache"
	"execution-core/pkg/config"
	"execution-core/pkg/crypto"
	"execution-core/pkg/db"
	"execution-core/pkg/exchanges/binance"
	"execution-core/pkg/exchanges/common"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		log.Fatalf("apply migrations: %v", err)
	}

	var keyring *crypto.Keyring
	if len(cfg.EncryptionKeys) > 0 {
		keyring, err = crypto.NewKeyring(cfg.EncryptionKeys)
		if err != nil {
			log.Fatalf("load encryption keys: %v", err)
		}
		log.Printf("crypto: keyring ready, current version v%d", keyring.CurrentVersion())
	} else {
		log.Printf("crypto: no MASTER_ENCRYPTION_KEY set, connection storage disabled")
	}

	bus := events.NewBus()
	prices := cache.New()

	paperCfg := paper.DefaultConfig()
	paperCfg.Seed = map[string]float64{cfg.PaperSeedCurrency: cfg.PaperSeedAmount}
	paperCfg.FeeRate = cfg.PaperFeeRate
	engine := paper.NewEngine(paperCfg, prices)

	breakerCfg := breaker.Config{
		FailureThreshold: cfg.BreakerFailureThreshold,
		SuccessThreshold: cfg.BreakerSuccessThreshold,
		ResetTimeout:     cfg.BreakerResetTimeout,
		Timeout:          cfg.BreakerCallTimeout,
	}
	modes := mode.NewManager(engine, mode.NewSQLiteAudit(database), bus, breakerCfg)

	liveFactory := func(apiKey, apiSecret string, testnet bool) common.Adapter {
		return binance.New(binance.Config{APIKey: apiKey, APISecret: apiSecret, Testnet: testnet})
	}

	// Rehydrate per-user live adapters from stored connections.
	if keyring != nil {
		restoreConnections(database, keyring, modes, liveFactory)
	}

	// Keep the mark-price cache warm from the public Binance feed; a
	// key-less adapter can reach the ticker endpoints.
	feedCtx, cancelFeed := context.WithCancel(context.Background())
	defer cancelFeed()
	feed := &market.Feed{
		Venue:   binance.New(binance.Config{Testnet: cfg.BinanceTestnet}),
		Prices:  prices,
		Bus:     bus,
		Symbols: cfg.FeedSymbols,
	}
	feed.Start(feedCtx)

	coordinator := swarm.NewCoordinator(bus)
	if cfg.SwarmRosterPath != "" {
		n, err := swarm.LoadRoster(cfg.SwarmRosterPath, coordinator)
		if err != nil {
			log.Fatalf("load swarm roster: %v", err)
		}
		log.Printf("swarm: loaded %d agents from %s", n, cfg.SwarmRosterPath)
	}

	advisor := risk.NewAdvisor(bus)

	server := api.NewServer(api.Deps{
		Bus:       bus,
		DB:        database,
		Modes:     modes,
		Paper:     engine,
		Swarm:     coordinator,
		Risk:      advisor,
		Keys:      keyring,
		Prices:    prices,
		JWTSecret: cfg.JWTSecret,
		Meta:      api.SystemMeta{Venue: "binance", Version: version},

		LiveFactory: liveFactory,
	})

	// Evict paper accounts idle past the TTL.
	cleanupCtx, cancelCleanup := context.WithCancel(context.Background())
	defer cancelCleanup()
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := engine.CleanupIdle(cfg.AccountIdleTTL); n > 0 {
					log.Printf("paper: evicted %d idle accounts", n)
				}
			case <-cleanupCtx.Done():
				return
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		log.Printf("api: listening on :%s", cfg.Port)
		errCh <- server.Start(":" + cfg.Port)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		log.Printf("main: received %v, shutting down", sig)
	case err := <-errCh:
		log.Printf("main: server stopped: %v", err)
	}
}

// restoreConnections decrypts stored exchange credentials and registers live
// adapters so routing works across restarts. Rows that fail to decrypt are
// skipped; the user can re-create the connection.
func restoreConnections(database *db.Database, keyring *crypto.Keyring, modes *mode.Manager, factory func(k, s string, testnet bool) common.Adapter) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rows, err := database.DB.QueryContext(ctx, `SELECT DISTINCT user_id FROM connections WHERE is_active = 1`)
	if err != nil {
		log.Printf("main: list connection users: %v", err)
		return
	}
	var userIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			log.Printf("main: scan connection user: %v", err)
			return
		}
		userIDs = append(userIDs, id)
	}
	rows.Close()

	restored := 0
	for _, userID := range userIDs {
		conns, err := database.ListConnectionsByUser(ctx, userID)
		if err != nil {
			log.Printf("main: list connections for %s: %v", userID, err)
			continue
		}
		for _, c := range conns {
			if !c.IsActive {
				continue
			}
			apiKey, err := keyring.Decrypt(c.APIKeyEncrypted)
			if err != nil {
				log.Printf("main: decrypt connection %s: %v", c.ID, err)
				break
			}
			apiSecret, err := keyring.Decrypt(c.APISecretEncrypted)
			if err != nil {
				log.Printf("main: decrypt connection %s: %v", c.ID, err)
				break
			}
			modes.SetLiveAdapter(userID, factory(apiKey, apiSecret, c.Testnet))
			restored++
			break // newest active connection wins
		}
	}
	if restored > 0 {
		log.Printf("main: restored %d live connections", restored)
	}
}
