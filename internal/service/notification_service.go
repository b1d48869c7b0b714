package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campus-hub/campus-ops-api/internal/models"
	appErrors "github.com/campus-hub/campus-ops-api/pkg/errors"
	"github.com/campus-hub/campus-ops-api/pkg/jobs"
)

// Event is a lifecycle occurrence fanned out as notifications. Recipients
// are addressed directly; FanOutRoles additionally reaches every enabled
// user holding one of the roles.
type Event struct {
	Type          models.NotificationType
	Title         string
	Message       string
	Recipients    []string
	FanOutRoles   []models.UserRole
	ReferenceID   string
	ReferenceType string
}

// Dispatcher decouples lifecycle transitions from notification delivery.
// Dispatch must never fail the calling operation.
type Dispatcher interface {
	Dispatch(event Event)
}

type notificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	ListByUser(ctx context.Context, userID string, unreadOnly bool) ([]models.Notification, error)
	FindByID(ctx context.Context, id string) (*models.Notification, error)
	CountUnread(ctx context.Context, userID string) (int64, error)
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	Delete(ctx context.Context, id string) error
}

type roleDirectory interface {
	ListIDsByRole(ctx context.Context, roles ...models.UserRole) ([]string, error)
}

type unreadCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// NotificationService owns the notification store and the background
// dispatch queue. Writes happen only through Dispatch; the HTTP surface is
// read/mark/delete scoped to the calling principal.
type NotificationService struct {
	repo      notificationRepository
	directory roleDirectory
	cache     unreadCache
	logger    *zap.Logger

	queue     *jobs.Queue
	unreadTTL time.Duration
}

// NotificationQueueConfig tunes the dispatch worker pool.
type NotificationQueueConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
	UnreadTTL  time.Duration
}

// NewNotificationService constructs the service and its dispatch queue.
// Start must be called before events are dispatched.
func NewNotificationService(repo notificationRepository, directory roleDirectory, cache unreadCache, logger *zap.Logger, cfg NotificationQueueConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.UnreadTTL <= 0 {
		cfg.UnreadTTL = time.Minute
	}
	svc := &NotificationService{
		repo:      repo,
		directory: directory,
		cache:     cache,
		logger:    logger,
		unreadTTL: cfg.UnreadTTL,
	}
	svc.queue = jobs.NewQueue("notifications", svc.handleEvent, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return svc
}

// Start launches the dispatch workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the dispatch workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// Dispatch enqueues the event for background delivery. Failures are logged
// and never surface to the caller; a lifecycle transition must not fail
// because a notification could not be written.
func (s *NotificationService) Dispatch(event Event) {
	job := jobs.Job{ID: uuid.NewString(), Type: string(event.Type), Payload: event}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Warn("notification event dropped",
			zap.String("type", string(event.Type)),
			zap.Error(err))
	}
}

func (s *NotificationService) handleEvent(ctx context.Context, job jobs.Job) error {
	event, ok := job.Payload.(Event)
	if !ok {
		s.logger.Error("unexpected notification payload", zap.String("job_id", job.ID))
		return nil
	}

	recipients := map[string]struct{}{}
	for _, id := range event.Recipients {
		if id != "" {
			recipients[id] = struct{}{}
		}
	}
	if len(event.FanOutRoles) > 0 {
		ids, err := s.directory.ListIDsByRole(ctx, event.FanOutRoles...)
		if err != nil {
			return fmt.Errorf("resolve fan-out recipients: %w", err)
		}
		for _, id := range ids {
			recipients[id] = struct{}{}
		}
	}

	for userID := range recipients {
		n := &models.Notification{
			UserID:  userID,
			Title:   event.Title,
			Message: event.Message,
			Type:    event.Type,
		}
		if event.ReferenceID != "" {
			refID, refType := event.ReferenceID, event.ReferenceType
			n.ReferenceID = &refID
			n.ReferenceType = &refType
		}
		if err := s.repo.Create(ctx, n); err != nil {
			return fmt.Errorf("deliver notification to %s: %w", userID, err)
		}
		s.invalidateUnread(ctx, userID)
	}
	return nil
}

// List returns the principal's notifications, newest first.
func (s *NotificationService) List(ctx context.Context, principal models.Principal, unreadOnly bool) ([]models.Notification, error) {
	notifications, err := s.repo.ListByUser(ctx, principal.ID, unreadOnly)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	return notifications, nil
}

// UnreadCount returns the principal's unread count, served from Redis when
// warm.
func (s *NotificationService) UnreadCount(ctx context.Context, principal models.Principal) (int64, error) {
	key := unreadCountKey(principal.ID)
	var cached int64
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		return cached, nil
	} else if !errors.Is(err, appErrors.ErrCacheMiss) {
		s.logger.Warn("unread count cache read failed", zap.Error(err))
	}

	count, err := s.repo.CountUnread(ctx, principal.ID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count notifications")
	}
	if err := s.cache.Set(ctx, key, count, s.unreadTTL); err != nil {
		s.logger.Warn("unread count cache write failed", zap.Error(err))
	}
	return count, nil
}

// MarkRead flags one of the principal's notifications as read.
func (s *NotificationService) MarkRead(ctx context.Context, principal models.Principal, id string) error {
	notification, err := s.findOwned(ctx, principal, id)
	if err != nil {
		return err
	}
	if err := s.repo.MarkRead(ctx, notification.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notification read")
	}
	s.invalidateUnread(ctx, principal.ID)
	return nil
}

// MarkAllRead flags all of the principal's notifications as read and
// returns how many changed.
func (s *NotificationService) MarkAllRead(ctx context.Context, principal models.Principal) (int64, error) {
	changed, err := s.repo.MarkAllRead(ctx, principal.ID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notifications read")
	}
	s.invalidateUnread(ctx, principal.ID)
	return changed, nil
}

// Delete removes one of the principal's notifications.
func (s *NotificationService) Delete(ctx context.Context, principal models.Principal, id string) error {
	notification, err := s.findOwned(ctx, principal, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, notification.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete notification")
	}
	s.invalidateUnread(ctx, principal.ID)
	return nil
}

// findOwned loads the notification and enforces ownership. Admins get no
// special access here: notifications are strictly private.
func (s *NotificationService) findOwned(ctx context.Context, principal models.Principal, id string) (*models.Notification, error) {
	notification, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "notification not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load notification")
	}
	if notification.UserID != principal.ID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "notification belongs to another user")
	}
	return notification, nil
}

func (s *NotificationService) invalidateUnread(ctx context.Context, userID string) {
	if err := s.cache.Delete(ctx, unreadCountKey(userID)); err != nil {
		s.logger.Warn("unread count cache invalidation failed", zap.Error(err))
	}
}

func unreadCountKey(userID string) string {
	return "notifications:unread:" + userID
}
