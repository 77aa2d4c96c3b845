// Package scheduler periodically enqueues sweep tasks for every user with
// conversions enabled, so keepers pick them up without anyone having to call
// the API.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/spendsave/engine/internal/tasks"
	"github.com/spendsave/engine/storage"
)

type TriggerService struct {
	db          storage.DatabaseStorage
	queueClient *asynq.Client
	logger      *logrus.Logger
	cron        *cron.Cron
	spec        string
}

// NewTriggerService builds the cron-driven trigger scanner. spec is a cron
// expression; empty means every minute.
func NewTriggerService(db storage.DatabaseStorage, queueClient *asynq.Client, spec string, logger *logrus.Logger) (*TriggerService, error) {
	if db == nil {
		return nil, fmt.Errorf("database storage cannot be nil")
	}
	if queueClient == nil {
		return nil, fmt.Errorf("queue client cannot be nil")
	}
	if spec == "" {
		spec = "* * * * *"
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &TriggerService{
		db:          db,
		queueClient: queueClient,
		logger:      logger,
		cron:        cron.New(),
		spec:        spec,
	}, nil
}

func (s *TriggerService) Start() error {
	if _, err := s.cron.AddFunc(s.spec, s.scan); err != nil {
		return fmt.Errorf("failed to schedule trigger scan: %w", err)
	}
	s.cron.Start()
	s.logger.WithField("spec", s.spec).Info("trigger scheduler started")
	return nil
}

func (s *TriggerService) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *TriggerService) scan() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	users, err := s.db.EnabledUsers(ctx)
	if err != nil {
		s.logger.Errorf("db.EnabledUsers failed: %v", err)
		return
	}
	if len(users) == 0 {
		return
	}

	payload := tasks.MultiSweepPayload{Users: make([]string, 0, len(users))}
	for _, user := range users {
		payload.Users = append(payload.Users, user.Hex())
	}
	buf, err := json.Marshal(payload)
	if err != nil {
		s.logger.Errorf("json.Marshal failed: %v", err)
		return
	}

	ti, err := s.queueClient.Enqueue(
		asynq.NewTask(tasks.TypeMultiSweep, buf),
		asynq.MaxRetry(0),
		asynq.Timeout(5*time.Minute),
		asynq.Retention(10*time.Minute),
		asynq.Queue(tasks.QUEUE_NAME),
	)
	if err != nil {
		s.logger.Errorf("failed to enqueue sweep task: %v", err)
		return
	}
	s.logger.WithFields(logrus.Fields{
		"task_id": ti.ID,
		"users":   len(users),
	}).Info("sweep task enqueued")
}
