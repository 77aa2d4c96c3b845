package api

import (
	"fmt"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/sirupsen/logrus"

	"github.com/spendsave/engine/config"
	"github.com/spendsave/engine/internal/dca"
	"github.com/spendsave/engine/service"
	"github.com/spendsave/engine/storage"
)

type Server struct {
	cfg         *config.Config
	db          storage.DatabaseStorage
	engine      *dca.Engine
	strategy    service.Strategy
	queueClient *asynq.Client
	sdClient    *statsd.Client
	logger      *logrus.Logger
}

type requestValidator struct {
	validator *validator.Validate
}

func (v *requestValidator) Validate(i interface{}) error {
	if err := v.validator.Struct(i); err != nil {
		return echo.NewHTTPError(400, err.Error())
	}
	return nil
}

// NewServer returns a new server.
func NewServer(
	cfg *config.Config,
	db storage.DatabaseStorage,
	engine *dca.Engine,
	strategy service.Strategy,
	queueClient *asynq.Client,
	sdClient *statsd.Client,
	logger *logrus.Logger,
) *Server {
	return &Server{
		cfg:         cfg,
		db:          db,
		engine:      engine,
		strategy:    strategy,
		queueClient: queueClient,
		sdClient:    sdClient,
		logger:      logger,
	}
}

func (s *Server) StartServer() error {
	e := echo.New()
	e.Logger.SetLevel(log.DEBUG)
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("2M")) // set maximum allowed size for a request body to 2M
	e.Use(s.statsdMiddleware)
	e.Use(middleware.CORS())
	limiterStore := middleware.NewRateLimiterMemoryStoreWithConfig(
		middleware.RateLimiterMemoryStoreConfig{Rate: 5, Burst: 30, ExpiresIn: 5 * time.Minute},
	)
	e.Use(middleware.RateLimiter(limiterStore))

	e.Validator = &requestValidator{validator: validator.New()}

	e.GET("/ping", s.Ping)

	grp := e.Group("/dca")
	grp.POST("/strategy", s.UpsertStrategy)
	grp.GET("/strategy/:user", s.GetStrategy)
	grp.POST("/config", s.UpsertConfig)
	grp.GET("/config/:user", s.GetConfig)
	grp.POST("/slippage", s.SetPairSlippage)
	grp.POST("/queue", s.EnqueueOrder)
	grp.GET("/queue/:user", s.GetQueue)
	grp.POST("/execute", s.ExecuteOrder)
	grp.POST("/sweep", s.SweepUser)
	grp.POST("/sweep/batch", s.EnqueueBatchSweep)
	grp.GET("/history/:user", s.GetHistory)
	grp.GET("/ledger/:user/:token", s.GetLedgerBalance)

	return e.Start(fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port))
}

func (s *Server) Ping(c echo.Context) error {
	return c.String(200, "spendsave dca engine is running")
}
