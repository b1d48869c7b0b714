package service

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/campus-hub/campus-ops-api/internal/models"
	appErrors "github.com/campus-hub/campus-ops-api/pkg/errors"
)

type dispatcherStub struct {
	mu     sync.Mutex
	events []Event
}

func (d *dispatcherStub) Dispatch(event Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
}

func (d *dispatcherStub) all() []Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Event, len(d.events))
	copy(out, d.events)
	return out
}

type auditStub struct {
	logs []*models.AuditLog
}

func (a *auditStub) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

type facilityReaderStub struct {
	facilities map[string]models.Facility
	err        error
}

func (f *facilityReaderStub) FindByID(_ context.Context, id string) (*models.Facility, error) {
	if f.err != nil {
		return nil, f.err
	}
	if facility, ok := f.facilities[id]; ok {
		return &facility, nil
	}
	return nil, sql.ErrNoRows
}

type cacheStub struct {
	mu     sync.Mutex
	values map[string]interface{}
	gets   int
	sets   int
}

func newCacheStub() *cacheStub {
	return &cacheStub{values: map[string]interface{}{}}
}

func (c *cacheStub) Get(_ context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	value, ok := c.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	switch d := dest.(type) {
	case *int64:
		*d = value.(int64)
	case *models.DashboardStats:
		*d = value.(models.DashboardStats)
	}
	return nil
}

func (c *cacheStub) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	switch v := value.(type) {
	case *models.DashboardStats:
		c.values[key] = *v
	default:
		c.values[key] = value
	}
	return nil
}

func (c *cacheStub) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key)
	return nil
}

func strPtr(s string) *string { return &s }
