package main

import (
	"fmt"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/ethereum/go-ethereum/common"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/spendsave/engine/config"
	"github.com/spendsave/engine/internal/dca"
	"github.com/spendsave/engine/internal/oracle"
	"github.com/spendsave/engine/internal/tasks"
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
	logger := logrus.WithField("service", "keeper").Logger

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

	worker, err := service.NewWorker(engine, common.HexToAddress(cfg.Engine.Trigger), sdClient, logger)
	if err != nil {
		panic(fmt.Errorf("fail to initialize worker: %w", err))
	}

	redisOptions := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Host + ":" + cfg.Redis.Port,
		Username: cfg.Redis.User,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	srv := asynq.NewServer(
		redisOptions,
		asynq.Config{
			Logger:      logger,
			Concurrency: 10,
			Queues: map[string]int{
				tasks.QUEUE_NAME: 10,
			},
		},
	)
	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeUserSweep, worker.HandleUserSweep)
	mux.HandleFunc(tasks.TypeMultiSweep, worker.HandleMultiSweep)
	if err := srv.Run(mux); err != nil {
		panic(fmt.Errorf("could not run server: %w", err))
	}
}
