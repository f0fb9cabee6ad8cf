package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/clubstack/memberhub/internal/config"
	"github.com/clubstack/memberhub/internal/models"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// StatusNotification describes a join-request decision to deliver to the
// applicant. It is built inside the allocation transaction but only ever
// dispatched after commit.
type StatusNotification struct {
	RequestID    string               `json:"request_id"`
	MemberID     string               `json:"member_id"`
	MemberName   string               `json:"member_name"`
	MemberEmail  string               `json:"member_email"`
	ProjectTitle string               `json:"project_title"`
	Semester     string               `json:"semester"`
	Status       models.RequestStatus `json:"status"`
	ActorID      string               `json:"actor_id"`
}

// Notifier delivers status-change notifications. Implementations must treat
// delivery as best-effort: the allocation decision is already committed.
type Notifier interface {
	NotifyStatusChange(ctx context.Context, n *StatusNotification) error
}

// EmailNotifier delivers synchronously over SMTP.
type EmailNotifier struct {
	email *EmailService
}

func NewEmailNotifier(email *EmailService) *EmailNotifier {
	return &EmailNotifier{email: email}
}

func (e *EmailNotifier) NotifyStatusChange(ctx context.Context, n *StatusNotification) error {
	return e.email.SendStatusEmail(n)
}

// TaskTypeStatusEmail is the asynq task type for queued status email.
const TaskTypeStatusEmail = "email:status"

// QueuedNotifier enqueues status email onto Redis via asynq so SMTP latency
// stays out of the request path. A Worker consumes the queue.
type QueuedNotifier struct {
	client *asynq.Client
}

func NewQueuedNotifier(cfg *config.RedisConfig) *QueuedNotifier {
	client := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &QueuedNotifier{client: client}
}

func (q *QueuedNotifier) NotifyStatusChange(ctx context.Context, n *StatusNotification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	task := asynq.NewTask(TaskTypeStatusEmail, payload)
	_, err = q.client.EnqueueContext(ctx, task,
		asynq.TaskID(uuid.NewString()),
		asynq.MaxRetry(3),
		asynq.Queue("default"),
	)
	return err
}

// Close releases the underlying Redis connection.
func (q *QueuedNotifier) Close() error {
	return q.client.Close()
}
