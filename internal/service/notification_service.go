package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/thesis-flow-api/pkg/jobs"
)

// Notification is a templated message handed to the external dispatcher.
type Notification struct {
	RecipientID string
	Template    string
	Subject     string
	Params      map[string]string
}

// Notification templates emitted by the workflow engine.
const (
	NotificationDocumentSubmitted  = "document_submitted"
	NotificationDocumentReviewed   = "document_reviewed"
	NotificationPlagiarismResolved = "plagiarism_resolved"
	NotificationJuryDecision       = "jury_decision"
)

// NotificationService queues fire-and-forget messages after workflow
// transitions. Dispatch failures are logged and retried by the queue; they
// never roll back the state transition that produced them.
type NotificationService struct {
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewNotificationService constructs the service and its backing queue.
func NewNotificationService(logger *zap.Logger, cfg jobs.QueueConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &NotificationService{logger: logger}
	svc.queue = jobs.NewQueue("notifications", svc.deliver, cfg)
	return svc
}

// Start begins queue consumption.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// Notify enqueues a notification. Errors are swallowed after logging.
func (s *NotificationService) Notify(ctx context.Context, n Notification) {
	job := jobs.Job{
		ID:      uuid.NewString(),
		Type:    n.Template,
		Payload: n,
	}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Warn("failed to enqueue notification",
			zap.String("template", n.Template),
			zap.String("recipient_id", n.RecipientID),
			zap.Error(err))
	}
}

// deliver hands the message to the external dispatcher. The transport itself
// is a boundary collaborator; here delivery is recorded in the log.
func (s *NotificationService) deliver(ctx context.Context, job jobs.Job) error {
	n, ok := job.Payload.(Notification)
	if !ok {
		return fmt.Errorf("unexpected notification payload type %T", job.Payload)
	}
	s.logger.Info("notification dispatched",
		zap.String("template", n.Template),
		zap.String("recipient_id", n.RecipientID),
		zap.String("subject", n.Subject),
		zap.Any("params", n.Params))
	return nil
}
