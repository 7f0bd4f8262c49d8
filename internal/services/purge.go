package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"potluck/internal/domain"
)

type purgeService struct {
	store     domain.EventStore
	archiver  domain.EventArchiver
	protected map[string]struct{}
	metrics   domain.MetricsRecorder
	logger    *slog.Logger
}

// NewPurgeService returns the account purge coordinator. Identities in
// protected are never purged. archiver may be nil.
func NewPurgeService(
	store domain.EventStore,
	archiver domain.EventArchiver,
	protected []string,
	metrics domain.MetricsRecorder,
	logger *slog.Logger,
) domain.PurgeService {
	set := make(map[string]struct{}, len(protected))
	for _, id := range protected {
		if id != "" {
			set[id] = struct{}{}
		}
	}
	return &purgeService{
		store:     store,
		archiver:  archiver,
		protected: set,
		metrics:   recorderOrNoop(metrics),
		logger:    logger,
	}
}

// PurgeAccount removes the user's footprint from every event. The user's
// claims in foreign events are removed one event at a time inside UpdateEvent,
// so each item total is reversed by the claim quantities present when that
// transaction commits. Events the user organized and the profile record are
// then deleted in one batch. The scan that selects events is not linearizable
// against concurrent writes: a claim the user makes in a new event after the
// scan survives the purge.
func (s *purgeService) PurgeAccount(ctx context.Context, userID string) (report *domain.PurgeReport, err error) {
	defer observe(ctx, s.metrics, opPurgeAccount, time.Now(), &err)

	if err := requireID("user id", userID); err != nil {
		return nil, err
	}
	if _, ok := s.protected[userID]; ok {
		s.logger.Warn("refusing to purge protected identity", "user_id", userID)
		return nil, domain.ErrProtectedIdentity
	}

	events, err := s.store.ListEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	report = &domain.PurgeReport{UserID: userID, DeletedEvents: []string{}}
	var organized, foreign []*domain.Event
	for _, ev := range events {
		switch {
		case ev.OrganizerID == userID:
			organized = append(organized, ev)
		case hasFootprint(ev, userID):
			foreign = append(foreign, ev)
		}
	}

	// Archive before any write so a failing archive leaves everything in place.
	if s.archiver != nil {
		for _, ev := range organized {
			if err := s.archiver.ArchiveEvent(ctx, ev); err != nil {
				return nil, fmt.Errorf("archive event %s: %w", ev.ID, err)
			}
		}
	}

	for _, ev := range foreign {
		var removed footprint
		err := updateEvent(ctx, s.store, ev.ID, func(current *domain.Event) error {
			removed = removeFootprint(current, userID)
			if removed.writes == 0 {
				return errUnchanged
			}
			return nil
		})
		if isNotFound(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("remove %s from event %s: %w", userID, ev.ID, err)
		}
		report.DeletedAssignments += removed.assignments
		report.DeletedParticipants += removed.participants
		report.Writes += removed.writes
	}

	var batch domain.Batch
	for _, ev := range organized {
		batch.Delete(domain.EventPath(ev.ID))
		report.DeletedEvents = append(report.DeletedEvents, ev.ID)
	}
	batch.Delete(domain.UserPath(userID))
	report.Writes += batch.Len()

	if err := s.store.ApplyBatch(ctx, &batch); err != nil {
		return nil, fmt.Errorf("apply purge batch: %w", err)
	}
	s.logger.Info("account purged",
		"user_id", userID,
		"deleted_events", len(report.DeletedEvents),
		"deleted_assignments", report.DeletedAssignments,
		"deleted_participants", report.DeletedParticipants,
		"writes", report.Writes)
	return report, nil
}

// footprint counts what removeFootprint changed in one event.
type footprint struct {
	assignments  int
	participants int
	writes       int
}

func hasFootprint(ev *domain.Event, userID string) bool {
	if _, ok := ev.Participants[userID]; ok {
		return true
	}
	if _, ok := ev.UserItemCounts[userID]; ok {
		return true
	}
	for _, a := range ev.Assignments {
		if a.UserID == userID {
			return true
		}
	}
	for _, item := range ev.MenuItems {
		if item.LegacyAssignedTo != nil && *item.LegacyAssignedTo == userID {
			return true
		}
	}
	return false
}

// removeFootprint strips the user's claims, participant record, item counter
// and legacy assignment markers from an event organized by someone else.
// Each removed claim is reversed on its item total.
func removeFootprint(ev *domain.Event, userID string) footprint {
	var fp footprint
	ids := make([]string, 0)
	for id, a := range ev.Assignments {
		if a.UserID == userID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	for _, id := range ids {
		a := ev.Assignments[id]
		delete(ev.Assignments, id)
		fp.assignments++
		fp.writes++
		if item, ok := ev.MenuItems[a.MenuItemID]; ok {
			item.TotalAssignedQuantity -= a.Quantity
			if item.TotalAssignedQuantity < 0 {
				item.TotalAssignedQuantity = 0
			}
			fp.writes++
		}
	}

	for _, itemID := range sortedKeys(ev.MenuItems) {
		item := ev.MenuItems[itemID]
		if item.LegacyAssignedTo == nil || *item.LegacyAssignedTo != userID {
			continue
		}
		item.LegacyAssignedTo = nil
		item.LegacyAssignedToName = nil
		item.LegacyAssignedAt = nil
		fp.writes += 3
	}

	if _, ok := ev.Participants[userID]; ok {
		delete(ev.Participants, userID)
		fp.participants++
		fp.writes++
	}
	if _, ok := ev.UserItemCounts[userID]; ok {
		delete(ev.UserItemCounts, userID)
		fp.writes++
	}
	return fp
}
