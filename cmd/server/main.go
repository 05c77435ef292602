package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fortressbank/bankd/internal/auth"
	"github.com/fortressbank/bankd/internal/bank"
	"github.com/fortressbank/bankd/internal/cache"
	"github.com/fortressbank/bankd/internal/config"
	"github.com/fortressbank/bankd/internal/metrics"
	"github.com/fortressbank/bankd/internal/notify"
	"github.com/fortressbank/bankd/internal/replication"
	"github.com/fortressbank/bankd/internal/server"
	"github.com/fortressbank/bankd/internal/session"
	"github.com/fortressbank/bankd/migrations"
	"github.com/fortressbank/bankd/pkg/logger"
	"github.com/fortressbank/bankd/pkg/redis"
	"github.com/fortressbank/bankd/pkg/store"
)

const (
	nodePrimary = "primary"
	nodeBackup  = "backup"
)

func main() {
	node := nodeArg()
	if node == "" {
		logger.Error("usage: bankd <primary|backup> [--env=PATH]")
		os.Exit(1)
	}

	if err := config.Load(argContainsEnvPath()); err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	c := config.Get()

	if c.MetricsAddr != "" {
		metrics.Enable(c.PromNamespace)
		go func() {
			if err := metrics.ListenAndServe(c.MetricsAddr); err != nil {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	localConf := store.Config{Driver: c.StoreDriver, DSN: c.PrimaryDSN}
	remoteConf := store.Config{Driver: c.StoreDriver, DSN: c.BackupDSN}
	listenAddr := c.PrimaryListenAddr
	if node == nodeBackup {
		localConf, remoteConf = remoteConf, localConf
		listenAddr = c.BackupListenAddr
	}

	if err := store.Migrate(localConf, migrations.FS, migrations.Dir(c.StoreDriver)); err != nil {
		logger.Error("failed to migrate local store", "error", err)
		os.Exit(1)
	}

	withDebug := c.AppEnv == "dev"
	localDB, err := store.Open(localConf, withDebug)
	if err != nil {
		logger.Error("failed to open local store", "error", err)
		os.Exit(1)
	}

	var redisAdap redis.RedisAdapter
	if c.RedisAddr != "" {
		redisAdap, err = redis.NewRedisAdapter("default", c.RedisUniversalKeyPrefix, &redis.Options{
			Addrs:      []string{c.RedisAddr},
			ClientName: "default",
			DB:         c.RedisDatabase,
			Username:   c.RedisUsername,
			Password:   c.RedisPassword,
		})
		if err != nil {
			logger.Error("failed connecting to redis, continuing without cache", "error", err)
			redisAdap = nil
		}
	}
	tableCache := cache.New(redisAdap, c.CacheTTL)
	tableCache.Clear()

	var notifier bank.Notifier
	var sms *notify.SMSNotifier
	if c.SMSProviderURL != "" {
		sms = notify.New(notify.Config{
			ProviderURL: c.SMSProviderURL,
			Workers:     c.SMSWorkers,
			QueueSize:   c.SMSQueueSize,
		})
		sms.Start()
		notifier = sms
	}

	ledger := bank.NewLedgerService(localDB, tableCache, notifier, c.StartingBalance)

	// The backup gets the administrator credential through replication,
	// so only the primary seeds it. Seeding both sides would produce two
	// different hashes for the same identity.
	var engine *replication.Engine
	if node == nodePrimary {
		if err := ledger.Bootstrap(context.Background(), c.AdminPassword); err != nil {
			logger.Error("failed to bootstrap administrator", "error", err)
			os.Exit(1)
		}

		if err := store.Migrate(remoteConf, migrations.FS, migrations.Dir(c.StoreDriver)); err != nil {
			logger.Error("failed to migrate backup store", "error", err)
			os.Exit(1)
		}
		remoteDB, err := store.Open(remoteConf, withDebug)
		if err != nil {
			logger.Error("failed to open backup store", "error", err)
			os.Exit(1)
		}

		engine = replication.New(localDB, remoteDB, tableCache, c.SyncInterval)
		engine.Start()
	}

	gate := auth.NewGate(ledger.Credentials())
	handler := session.NewHandler(ledger, gate, c.SessionTimeout, c.MaxFrameSize)

	srv := server.New(listenAddr, handler)
	if err := srv.Start(); err != nil {
		logger.Error("failed to start server", "error", err)
		os.Exit(1)
	}
	logger.Info("bankd running", "node", node, "addr", listenAddr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("shutting down..")
	srv.Shutdown()
	if engine != nil {
		engine.Stop()
	}
	if sms != nil {
		sms.Stop()
	}
}

func nodeArg() string {
	for _, v := range os.Args[1:] {
		if v == nodePrimary || v == nodeBackup {
			return v
		}
	}
	return ""
}

func argContainsEnvPath() string {
	for _, v := range os.Args {
		if strings.Contains(v, "--env=") {
			s := strings.Split(v, "=")
			if _, err := os.Open(s[1]); err != nil {
				logger.Error("failed to open the passed env file, got error" + err.Error())
				return ""
			}
			return s[1]
		}
	}
	return ""
}
