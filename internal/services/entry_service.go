// Package services orchestrates the persistence layer and the optional
// event publisher. The dialog engine talks to EntryService only; it never
// touches storage or AMQP directly.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"spendingcalc/internal/core"
	"spendingcalc/internal/events"
	"spendingcalc/internal/storage"
)

// EntryService wraps the repository and publishes a mutation event after
// each successful write. Event publishing is optional and never fails the
// caller: the entry is already persisted when publishing happens.
type EntryService struct {
	storage *storage.Repository
	events  *events.Client
}

func NewEntryService(storage *storage.Repository, eventsClient *events.Client) *EntryService {
	return &EntryService{
		storage: storage,
		events:  eventsClient,
	}
}

// ListCategories returns all category names the owner has created.
func (s *EntryService) ListCategories(ctx context.Context, owner int64) ([]string, error) {
	return s.storage.ListCategories(ctx, owner)
}

// CreateCategory creates the category for the owner; an existing name is a
// no-op.
func (s *EntryService) CreateCategory(ctx context.Context, owner int64, name string) error {
	return s.storage.CreateCategory(ctx, owner, name)
}

// CreateEntry persists one expense and announces it.
func (s *EntryService) CreateEntry(ctx context.Context, owner int64, category string, value core.Money, date core.Date, comment string) (int64, error) {
	id, err := s.storage.CreateEntry(ctx, owner, category, value, date, comment)
	if err != nil {
		return 0, fmt.Errorf("save entry: %w", err)
	}

	s.publish(ctx, events.NewEntryEventMessage(events.EventCreated, id, owner))
	return id, nil
}

// Aggregate returns per-category totals for the owner's window.
func (s *EntryService) Aggregate(ctx context.Context, owner int64, category string, period core.Period, now time.Time) ([]core.CategorySum, error) {
	return s.storage.Aggregate(ctx, owner, category, period, now)
}

// ListEntries returns the owner's entries for the window, oldest first.
func (s *EntryService) ListEntries(ctx context.Context, owner int64, category string, period core.Period, now time.Time) ([]core.Entry, error) {
	return s.storage.ListEntries(ctx, owner, category, period, now)
}

// GetEntry loads one entry by id.
func (s *EntryService) GetEntry(ctx context.Context, id int64) (core.Entry, error) {
	return s.storage.GetEntry(ctx, id)
}

// UpdateEntry replaces the stored entry and announces the edit.
func (s *EntryService) UpdateEntry(ctx context.Context, owner int64, e core.Entry) error {
	if err := s.storage.UpdateEntry(ctx, e); err != nil {
		return err
	}

	s.publish(ctx, events.NewEntryEventMessage(events.EventUpdated, e.ID, owner))
	return nil
}

// DeleteEntry permanently removes the entry and announces the deletion.
func (s *EntryService) DeleteEntry(ctx context.Context, owner, id int64) error {
	if err := s.storage.DeleteEntry(ctx, id); err != nil {
		return err
	}

	s.publish(ctx, events.NewEntryEventMessage(events.EventDeleted, id, owner))
	return nil
}

func (s *EntryService) publish(ctx context.Context, msg *events.EntryEventMessage) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishEntryEvent(ctx, msg); err != nil {
		// The write already succeeded; losing the event is acceptable.
		slog.ErrorContext(ctx, "Failed to publish entry event",
			"event", msg.Event, "entry_id", msg.EntryID, "error", err)
	}
}

// Close closes the repository and the event publisher.
func (s *EntryService) Close() error {
	var errs []error

	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if s.events != nil {
		if err := s.events.Close(); err != nil {
			errs = append(errs, fmt.Errorf("events: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close entry service: %v", errs)
	}
	return nil
}
