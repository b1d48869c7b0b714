package service

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus-hub/campus-ops-api/internal/models"
	appErrors "github.com/campus-hub/campus-ops-api/pkg/errors"
	"github.com/campus-hub/campus-ops-api/pkg/jobs"
)

type notificationRepoStub struct {
	mu            sync.Mutex
	notifications map[string]*models.Notification
	seq           int
	countCalls    int
	err           error
}

func newNotificationRepoStub() *notificationRepoStub {
	return &notificationRepoStub{notifications: map[string]*models.Notification{}}
}

func (r *notificationRepoStub) add(n models.Notification) *models.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	if n.ID == "" {
		n.ID = fmt.Sprintf("nt-%d", r.seq)
	}
	r.notifications[n.ID] = &n
	return r.notifications[n.ID]
}

func (r *notificationRepoStub) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.notifications)
}

func (r *notificationRepoStub) Create(_ context.Context, n *models.Notification) error {
	if r.err != nil {
		return r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	n.ID = fmt.Sprintf("nt-%d", r.seq)
	n.CreatedAt = time.Now()
	stored := *n
	r.notifications[n.ID] = &stored
	return nil
}

func (r *notificationRepoStub) ListByUser(_ context.Context, userID string, unreadOnly bool) ([]models.Notification, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Notification
	for _, n := range r.notifications {
		if n.UserID != userID {
			continue
		}
		if unreadOnly && n.Read {
			continue
		}
		out = append(out, *n)
	}
	return out, nil
}

func (r *notificationRepoStub) FindByID(_ context.Context, id string) (*models.Notification, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if n, ok := r.notifications[id]; ok {
		copied := *n
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (r *notificationRepoStub) CountUnread(_ context.Context, userID string) (int64, error) {
	if r.err != nil {
		return 0, r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.countCalls++
	var count int64
	for _, n := range r.notifications {
		if n.UserID == userID && !n.Read {
			count++
		}
	}
	return count, nil
}

func (r *notificationRepoStub) MarkRead(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n, ok := r.notifications[id]; ok {
		n.Read = true
	}
	return nil
}

func (r *notificationRepoStub) MarkAllRead(_ context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var changed int64
	for _, n := range r.notifications {
		if n.UserID == userID && !n.Read {
			n.Read = true
			changed++
		}
	}
	return changed, nil
}

func (r *notificationRepoStub) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.notifications, id)
	return nil
}

type roleDirectoryStub struct {
	byRole map[models.UserRole][]string
	err    error
}

func (d *roleDirectoryStub) ListIDsByRole(_ context.Context, roles ...models.UserRole) ([]string, error) {
	if d.err != nil {
		return nil, d.err
	}
	var out []string
	for _, role := range roles {
		out = append(out, d.byRole[role]...)
	}
	return out, nil
}

func newNotificationServiceForTest(repo *notificationRepoStub, directory *roleDirectoryStub, cache *cacheStub) *NotificationService {
	return NewNotificationService(repo, directory, cache, nil, NotificationQueueConfig{
		Workers:    2,
		BufferSize: 8,
		RetryDelay: 10 * time.Millisecond,
	})
}

func TestNotificationHandleEventDedupesRecipients(t *testing.T) {
	repo := newNotificationRepoStub()
	directory := &roleDirectoryStub{byRole: map[models.UserRole][]string{
		models.RoleAdmin: {"admin-1", "user-1"},
	}}
	cache := newCacheStub()
	svc := newNotificationServiceForTest(repo, directory, cache)

	event := Event{
		Type:          models.NotifyBookingCreated,
		Title:         "New Booking Request",
		Message:       "Dewi requested Lecture Hall A",
		Recipients:    []string{"user-1", "user-1", ""},
		FanOutRoles:   []models.UserRole{models.RoleAdmin},
		ReferenceID:   "bk-1",
		ReferenceType: models.ReferenceBooking,
	}
	require.NoError(t, svc.handleEvent(context.Background(), jobs.Job{ID: "job-1", Payload: event}))

	// user-1 appears both directly and via the admin fan-out, once only.
	assert.Equal(t, 2, repo.count())
	for _, n := range repo.notifications {
		assert.Equal(t, models.NotifyBookingCreated, n.Type)
		require.NotNil(t, n.ReferenceID)
		assert.Equal(t, "bk-1", *n.ReferenceID)
	}
}

func TestNotificationDispatchDelivers(t *testing.T) {
	repo := newNotificationRepoStub()
	directory := &roleDirectoryStub{}
	svc := newNotificationServiceForTest(repo, directory, newCacheStub())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	defer svc.Stop()

	svc.Dispatch(Event{
		Type:       models.NotifyTicketAssigned,
		Title:      "Ticket Assigned",
		Message:    "You were assigned a ticket",
		Recipients: []string{"tech-1"},
	})

	assert.Eventually(t, func() bool {
		return repo.count() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestNotificationUnreadCountCacheAside(t *testing.T) {
	repo := newNotificationRepoStub()
	repo.add(models.Notification{UserID: "user-1"})
	repo.add(models.Notification{UserID: "user-1"})
	repo.add(models.Notification{UserID: "user-2"})
	cache := newCacheStub()
	svc := newNotificationServiceForTest(repo, &roleDirectoryStub{}, cache)

	principal := models.Principal{ID: "user-1"}

	count, err := svc.UnreadCount(context.Background(), principal)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.Equal(t, 1, repo.countCalls)

	// Second read is served from the cache.
	count, err = svc.UnreadCount(context.Background(), principal)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.Equal(t, 1, repo.countCalls)
}

func TestNotificationMarkReadOwnership(t *testing.T) {
	repo := newNotificationRepoStub()
	n := repo.add(models.Notification{UserID: "user-1"})
	cache := newCacheStub()
	svc := newNotificationServiceForTest(repo, &roleDirectoryStub{}, cache)

	// Even an admin cannot touch someone else's notification.
	err := svc.MarkRead(context.Background(), models.Principal{ID: "admin-1", Roles: models.RoleSet{models.RoleAdmin}}, n.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	owner := models.Principal{ID: "user-1"}
	cache.values[unreadCountKey(owner.ID)] = int64(1)
	require.NoError(t, svc.MarkRead(context.Background(), owner, n.ID))
	assert.True(t, repo.notifications[n.ID].Read)
	_, cached := cache.values[unreadCountKey(owner.ID)]
	assert.False(t, cached, "unread cache is invalidated on mark")
}

func TestNotificationMarkAllRead(t *testing.T) {
	repo := newNotificationRepoStub()
	repo.add(models.Notification{UserID: "user-1"})
	repo.add(models.Notification{UserID: "user-1", Read: true})
	repo.add(models.Notification{UserID: "user-2"})
	svc := newNotificationServiceForTest(repo, &roleDirectoryStub{}, newCacheStub())

	changed, err := svc.MarkAllRead(context.Background(), models.Principal{ID: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), changed)
}

func TestNotificationDeleteUnknown(t *testing.T) {
	svc := newNotificationServiceForTest(newNotificationRepoStub(), &roleDirectoryStub{}, newCacheStub())

	err := svc.Delete(context.Background(), models.Principal{ID: "user-1"}, "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	repo := newNotificationRepoStub()
	n := repo.add(models.Notification{UserID: "user-1"})
	svc = newNotificationServiceForTest(repo, &roleDirectoryStub{}, newCacheStub())
	require.NoError(t, svc.Delete(context.Background(), models.Principal{ID: "user-1"}, n.ID))
	assert.Equal(t, 0, repo.count())
}
