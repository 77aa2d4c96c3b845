package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/ethereum/go-ethereum/common"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	enginecommon "github.com/spendsave/engine/common"
	"github.com/spendsave/engine/internal/dca"
	"github.com/spendsave/engine/internal/tasks"
)

// WorkerService consumes sweep tasks and drives the batch coordinator on
// behalf of the designated trigger identity. Per-item failures stay inside
// the sweep report; a handler only fails when the sweep itself aborts.
type WorkerService struct {
	engine   *dca.Engine
	trigger  common.Address
	logger   *logrus.Logger
	sdClient *statsd.Client
}

func NewWorker(engine *dca.Engine, trigger common.Address, sdClient *statsd.Client, logger *logrus.Logger) (*WorkerService, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if logger == nil {
		logger = logrus.WithField("service", "worker").Logger
	}
	return &WorkerService{
		engine:   engine,
		trigger:  trigger,
		logger:   logger,
		sdClient: sdClient,
	}, nil
}

func (s *WorkerService) incCounter(name string, tags []string) {
	if s.sdClient == nil {
		return
	}
	if err := s.sdClient.Count(name, 1, tags, 1); err != nil {
		s.logger.Errorf("fail to count metric, err: %v", err)
	}
}

func (s *WorkerService) measureTime(name string, start time.Time, tags []string) {
	if s.sdClient == nil {
		return
	}
	if err := s.sdClient.Timing(name, time.Since(start), tags, 1); err != nil {
		s.logger.Errorf("fail to measure time metric, err: %v", err)
	}
}

func (s *WorkerService) HandleUserSweep(ctx context.Context, t *asynq.Task) error {
	var payload tasks.UserSweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}
	user, err := enginecommon.ParseAddress(payload.User)
	if err != nil {
		return fmt.Errorf("invalid sweep payload: %v: %w", err, asynq.SkipRetry)
	}

	defer s.measureTime("keeper.sweep.user.latency", time.Now(), []string{})
	s.incCounter("keeper.sweep.user", []string{})
	s.logger.WithField("user", user.Hex()).Info("running user sweep")

	result, err := s.engine.SweepUser(ctx, s.trigger, user)
	if err != nil {
		s.logger.Errorf("sweep failed: %v", err)
		return fmt.Errorf("sweep failed: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"user":     user.Hex(),
		"executed": result.Executed(),
		"skipped":  len(result.Skips),
	}).Info("user sweep completed")
	s.incCounter("keeper.sweep.executed", []string{fmt.Sprintf("count:%d", result.Executed())})

	resultBytes, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("json.Marshal failed: %v: %w", err, asynq.SkipRetry)
	}
	if _, err := t.ResultWriter().Write(resultBytes); err != nil {
		return fmt.Errorf("t.ResultWriter.Write failed: %v: %w", err, asynq.SkipRetry)
	}
	return nil
}

func (s *WorkerService) HandleMultiSweep(ctx context.Context, t *asynq.Task) error {
	var payload tasks.MultiSweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}
	users := make([]common.Address, 0, len(payload.Users))
	for _, raw := range payload.Users {
		user, err := enginecommon.ParseAddress(raw)
		if err != nil {
			return fmt.Errorf("invalid sweep payload: %v: %w", err, asynq.SkipRetry)
		}
		users = append(users, user)
	}

	defer s.measureTime("keeper.sweep.multi.latency", time.Now(), []string{})
	s.incCounter("keeper.sweep.multi", []string{})
	s.logger.WithField("users", len(users)).Info("running multi-user sweep")

	result, err := s.engine.SweepUsers(ctx, s.trigger, users)
	if err != nil {
		s.logger.Errorf("multi sweep failed: %v", err)
		return fmt.Errorf("multi sweep failed: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"users":    len(users),
		"executed": result.Executed(),
		"skipped":  len(result.Skips),
	}).Info("multi-user sweep completed")

	resultBytes, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("json.Marshal failed: %v: %w", err, asynq.SkipRetry)
	}
	if _, err := t.ResultWriter().Write(resultBytes); err != nil {
		return fmt.Errorf("t.ResultWriter.Write failed: %v: %w", err, asynq.SkipRetry)
	}
	return nil
}
