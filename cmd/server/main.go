package main

import (
	"fmt"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/ethereum/go-ethereum/common"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/spendsave/engine/api"
	"github.com/spendsave/engine/config"
	"github.com/spendsave/engine/internal/dca"
	"github.com/spendsave/engine/internal/oracle"
	"github.com/spendsave/engine/internal/scheduler"
	"github.com/spendsave/engine/internal/uniswap"
	"github.com/spendsave/engine/service"
	"github.com/spendsave/engine/storage"
	"github.com/spendsave/engine/storage/postgres"
)

func main() {
	cfg, err := config.GetConfigure()
	if err != nil {
		panic(err)
	}
	logger := logrus.StandardLogger()

	sdClient, err := statsd.New(cfg.Datadog.Host + ":" + cfg.Datadog.Port)
	if err != nil {
		panic(err)
	}

	db, err := postgres.NewPostgresBackend(false, cfg.Server.Database.DSN)
	if err != nil {
		panic(fmt.Errorf("fail to connect to database: %w", err))
	}

	tickCache, err := storage.NewRedisTickCache(cfg.Redis, logger)
	if err != nil {
		panic(fmt.Errorf("fail to connect to redis: %w", err))
	}

	pools := make(map[string]common.Address, len(cfg.Eth.Pools))
	for key, addr := range cfg.Eth.Pools {
		pools[key] = common.HexToAddress(addr)
	}
	tickOracle, err := oracle.NewEthereumOracle(cfg.Eth.Rpc, pools)
	if err != nil {
		panic(fmt.Errorf("fail to initialize tick oracle: %w", err))
	}

	swapper, err := uniswap.NewExecutor(cfg.Eth.Rpc, cfg.Eth.Uniswap, logger)
	if err != nil {
		panic(fmt.Errorf("fail to initialize swap executor: %w", err))
	}

	slippage, err := dca.NewStoredSlippagePolicy(db, db, cfg.Engine.DefaultSlippageBps, logger)
	if err != nil {
		panic(fmt.Errorf("fail to initialize slippage policy: %w", err))
	}

	engine, err := dca.NewEngine(dca.Config{
		Orchestrator:   common.HexToAddress(cfg.Engine.Orchestrator),
		Trigger:        common.HexToAddress(cfg.Engine.Trigger),
		FeeCollector:   common.HexToAddress(cfg.Engine.FeeCollector),
		ProtocolFeeBps: cfg.Engine.ProtocolFeeBps,
	}, db, db, tickOracle, swapper, slippage,
		storage.ReceiptAdapter{DB: db},
		storage.HistorySink{DB: db},
		tickCache,
		logger,
	)
	if err != nil {
		panic(fmt.Errorf("fail to initialize engine: %w", err))
	}

	strategyService, err := service.NewStrategyService(db, logrus.WithField("service", "strategy").Logger)
	if err != nil {
		panic(fmt.Errorf("fail to initialize strategy service: %w", err))
	}

	redisOptions := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Host + ":" + cfg.Redis.Port,
		Username: cfg.Redis.User,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	queueClient := asynq.NewClient(redisOptions)

	triggerService, err := scheduler.NewTriggerService(db, queueClient, cfg.Engine.TriggerCron,
		logrus.WithField("service", "scheduler").Logger)
	if err != nil {
		panic(fmt.Errorf("fail to initialize trigger service: %w", err))
	}
	if err := triggerService.Start(); err != nil {
		panic(fmt.Errorf("fail to start trigger service: %w", err))
	}
	logger.Info("trigger scheduler started")

	server := api.NewServer(cfg, db, engine, strategyService, queueClient, sdClient, logger)
	if err := server.StartServer(); err != nil {
		panic(fmt.Errorf("fail to start server: %w", err))
	}
}
