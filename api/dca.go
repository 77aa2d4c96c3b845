package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"

	enginecommon "github.com/spendsave/engine/common"
	"github.com/spendsave/engine/internal/tasks"
	"github.com/spendsave/engine/internal/types"
)

type ErrorResponse struct {
	Message string `json:"message"`
}

func NewErrorResponse(message string) ErrorResponse {
	return ErrorResponse{
		Message: message,
	}
}

// caller extracts the authenticated caller identity. The engine performs
// the authoritative authorization check against the order's owner.
func (s *Server) caller(c echo.Context) (common.Address, error) {
	raw := c.Request().Header.Get("X-Caller")
	if raw == "" {
		return common.Address{}, fmt.Errorf("missing X-Caller header")
	}
	return enginecommon.ParseAddress(raw)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrUnauthorizedCaller):
		return http.StatusForbidden
	case errors.Is(err, types.ErrSameToken),
		errors.Is(err, types.ErrInvalidTickRange),
		errors.Is(err, types.ErrZeroAmountSwap),
		errors.Is(err, types.ErrInvalidDCAExecution),
		errors.Is(err, types.ErrInsufficientSavings):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrReentrantCall):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c echo.Context, err error) error {
	return c.JSON(statusFor(err), NewErrorResponse(err.Error()))
}

type StrategyRequest struct {
	User               string `json:"user" validate:"required"`
	TickDelta          int64  `json:"tick_delta"`
	TickExpirySeconds  int64  `json:"tick_expiry_seconds" validate:"gte=0"`
	OnlyImprovePrice   bool   `json:"only_improve_price"`
	MinTickImprovement int64  `json:"min_tick_improvement" validate:"gte=0"`
	DynamicSizing      bool   `json:"dynamic_sizing"`
	CustomSlippageBps  uint16 `json:"custom_slippage_bps" validate:"lte=10000"`
}

func (s *Server) UpsertStrategy(c echo.Context) error {
	var req StrategyRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("fail to parse request"))
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	user, err := enginecommon.ParseAddress(req.User)
	if err != nil {
		return s.fail(c, err)
	}

	strategy := types.TickStrategy{
		UserAddress:        user,
		TickDelta:          req.TickDelta,
		TickExpiry:         time.Duration(req.TickExpirySeconds) * time.Second,
		OnlyImprovePrice:   req.OnlyImprovePrice,
		MinTickImprovement: req.MinTickImprovement,
		DynamicSizing:      req.DynamicSizing,
		CustomSlippageBps:  req.CustomSlippageBps,
	}
	if err := s.strategy.UpsertTickStrategy(c.Request().Context(), strategy); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, strategy)
}

func (s *Server) GetStrategy(c echo.Context) error {
	user, err := enginecommon.ParseAddress(c.Param("user"))
	if err != nil {
		return s.fail(c, err)
	}
	strategy, err := s.strategy.GetTickStrategy(c.Request().Context(), user)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, strategy)
}

type ConfigRequest struct {
	User           string `json:"user" validate:"required"`
	Enabled        bool   `json:"enabled"`
	TargetToken    string `json:"target_token"`
	MinAmount      string `json:"min_amount"`
	MaxSlippageBps uint16 `json:"max_slippage_bps" validate:"lte=10000"`
	LowerTick      int64  `json:"lower_tick"`
	UpperTick      int64  `json:"upper_tick"`
	SlippageAction string `json:"slippage_action" validate:"omitempty,oneof=abort continue"`
}

func (s *Server) UpsertConfig(c echo.Context) error {
	var req ConfigRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("fail to parse request"))
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	user, err := enginecommon.ParseAddress(req.User)
	if err != nil {
		return s.fail(c, err)
	}

	minAmount := big.NewInt(0)
	if req.MinAmount != "" {
		var ok bool
		minAmount, ok = new(big.Int).SetString(req.MinAmount, 10)
		if !ok || minAmount.Sign() < 0 {
			return c.JSON(http.StatusBadRequest, NewErrorResponse("invalid min_amount"))
		}
	}

	cfg := types.DCAConfig{
		UserAddress:    user,
		Enabled:        req.Enabled,
		TargetToken:    common.HexToAddress(req.TargetToken),
		MinAmount:      minAmount,
		MaxSlippageBps: req.MaxSlippageBps,
		LowerTick:      req.LowerTick,
		UpperTick:      req.UpperTick,
		SlippageAction: types.SlippageAction(req.SlippageAction),
	}
	if err := s.strategy.UpsertDCAConfig(c.Request().Context(), cfg); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, cfg)
}

func (s *Server) GetConfig(c echo.Context) error {
	user, err := enginecommon.ParseAddress(c.Param("user"))
	if err != nil {
		return s.fail(c, err)
	}
	cfg, err := s.strategy.GetDCAConfig(c.Request().Context(), user)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, cfg)
}

type PairSlippageRequest struct {
	User         string `json:"user" validate:"required"`
	FromToken    string `json:"from_token" validate:"required"`
	ToToken      string `json:"to_token" validate:"required"`
	ToleranceBps uint16 `json:"tolerance_bps" validate:"lte=10000"`
}

func (s *Server) SetPairSlippage(c echo.Context) error {
	var req PairSlippageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("fail to parse request"))
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	user, err := enginecommon.ParseAddress(req.User)
	if err != nil {
		return s.fail(c, err)
	}
	fromToken, err := enginecommon.ParseAddress(req.FromToken)
	if err != nil {
		return s.fail(c, err)
	}
	toToken, err := enginecommon.ParseAddress(req.ToToken)
	if err != nil {
		return s.fail(c, err)
	}
	pair := types.Pair{FromToken: fromToken, ToToken: toToken}
	if err := s.strategy.SetPairSlippage(c.Request().Context(), user, pair, req.ToleranceBps); err != nil {
		return s.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type EnqueueRequest struct {
	User              string `json:"user" validate:"required"`
	FromToken         string `json:"from_token" validate:"required"`
	ToToken           string `json:"to_token" validate:"required"`
	Amount            string `json:"amount" validate:"required"`
	CustomSlippageBps uint16 `json:"custom_slippage_bps" validate:"lte=10000"`
}

func (s *Server) EnqueueOrder(c echo.Context) error {
	caller, err := s.caller(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse(err.Error()))
	}
	var req EnqueueRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("fail to parse request"))
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	user, err := enginecommon.ParseAddress(req.User)
	if err != nil {
		return s.fail(c, err)
	}
	fromToken, err := enginecommon.ParseAddress(req.FromToken)
	if err != nil {
		return s.fail(c, err)
	}
	toToken, err := enginecommon.ParseAddress(req.ToToken)
	if err != nil {
		return s.fail(c, err)
	}
	amount, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("invalid amount"))
	}

	item, err := s.engine.Enqueue(c.Request().Context(), caller, user, fromToken, toToken, amount, req.CustomSlippageBps)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusCreated, item)
}

func (s *Server) GetQueue(c echo.Context) error {
	user, err := enginecommon.ParseAddress(c.Param("user"))
	if err != nil {
		return s.fail(c, err)
	}
	ctx := c.Request().Context()
	length, err := s.db.QueueLength(ctx, user)
	if err != nil {
		return s.fail(c, err)
	}
	items := make([]types.QueueItem, 0, length)
	for i := 0; i < length; i++ {
		item, err := s.db.QueueItem(ctx, user, i)
		if err != nil {
			return s.fail(c, err)
		}
		items = append(items, item)
	}
	return c.JSON(http.StatusOK, items)
}

type ExecuteRequest struct {
	User  string `json:"user" validate:"required"`
	Index int    `json:"index" validate:"gte=0"`
}

func (s *Server) ExecuteOrder(c echo.Context) error {
	caller, err := s.caller(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse(err.Error()))
	}
	var req ExecuteRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("fail to parse request"))
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	user, err := enginecommon.ParseAddress(req.User)
	if err != nil {
		return s.fail(c, err)
	}

	receipt, err := s.engine.Execute(c.Request().Context(), caller, user, req.Index)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, receipt)
}

type SweepRequest struct {
	User string `json:"user" validate:"required"`
}

func (s *Server) SweepUser(c echo.Context) error {
	caller, err := s.caller(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse(err.Error()))
	}
	var req SweepRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("fail to parse request"))
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	user, err := enginecommon.ParseAddress(req.User)
	if err != nil {
		return s.fail(c, err)
	}

	result, err := s.engine.SweepUser(c.Request().Context(), caller, user)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

type BatchSweepRequest struct {
	Users []string `json:"users" validate:"required,min=1,dive,required"`
}

// EnqueueBatchSweep hands a multi-user sweep to the keeper queue instead of
// running it inline; keepers retry on later invocations, the engine never
// does.
func (s *Server) EnqueueBatchSweep(c echo.Context) error {
	var req BatchSweepRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("fail to parse request"))
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	for _, raw := range req.Users {
		if _, err := enginecommon.ParseAddress(raw); err != nil {
			return c.JSON(http.StatusBadRequest, NewErrorResponse(err.Error()))
		}
	}

	buf, err := json.Marshal(tasks.MultiSweepPayload{Users: req.Users})
	if err != nil {
		return s.fail(c, err)
	}
	ti, err := s.queueClient.Enqueue(
		asynq.NewTask(tasks.TypeMultiSweep, buf),
		asynq.MaxRetry(0),
		asynq.Timeout(5*time.Minute),
		asynq.Retention(10*time.Minute),
		asynq.Queue(tasks.QUEUE_NAME),
	)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusAccepted, map[string]string{"task_id": ti.ID})
}

func (s *Server) GetHistory(c echo.Context) error {
	user, err := enginecommon.ParseAddress(c.Param("user"))
	if err != nil {
		return s.fail(c, err)
	}
	history, err := s.strategy.GetExecutionHistory(c.Request().Context(), user, c.QueryParam("sort"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, history)
}

func (s *Server) GetLedgerBalance(c echo.Context) error {
	user, err := enginecommon.ParseAddress(c.Param("user"))
	if err != nil {
		return s.fail(c, err)
	}
	token, err := enginecommon.ParseAddress(c.Param("token"))
	if err != nil {
		return s.fail(c, err)
	}
	balance, err := s.db.Balance(c.Request().Context(), user, token)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{
		"user":    user.Hex(),
		"token":   token.Hex(),
		"balance": balance.String(),
	})
}
