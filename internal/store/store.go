package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"potluck/internal/domain"
)

// Compile-time contract assertion.
var _ domain.EventStore = (*EntityStore)(nil)

// EntityStore is the typed entity store over a document Backend.
type EntityStore struct {
	backend Backend
	logger  *slog.Logger
}

// New wraps backend.
func New(backend Backend, logger *slog.Logger) *EntityStore {
	return &EntityStore{backend: backend, logger: logger}
}

func eventKey(id string) Key { return Key{Collection: domain.CollectionEvents, ID: id} }
func userKey(id string) Key  { return Key{Collection: domain.CollectionUsers, ID: id} }

func decodeEvent(id string, raw []byte) (*domain.Event, error) {
	var ev domain.Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, fmt.Errorf("decode event %s: %w", id, err)
	}
	ev.Normalize(id)
	return &ev, nil
}

func (s *EntityStore) CreateEvent(ctx context.Context, event *domain.Event) error {
	if event.ID == "" {
		return fmt.Errorf("%w: event id is required", domain.ErrInvalidInput)
	}
	event.Normalize(event.ID)
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	key := eventKey(event.ID)
	return s.backend.Transact(ctx, []Key{key}, func(cur map[Key][]byte) (map[Key][]byte, error) {
		if cur[key] != nil {
			return nil, fmt.Errorf("%w: event %s already exists", domain.ErrInvalidInput, event.ID)
		}
		return map[Key][]byte{key: payload}, nil
	})
}

func (s *EntityStore) GetEvent(ctx context.Context, eventID string) (*domain.Event, error) {
	raw, err := s.backend.Get(ctx, eventKey(eventID))
	if err != nil {
		return nil, err
	}
	return decodeEvent(eventID, raw)
}

func (s *EntityStore) ListEvents(ctx context.Context) ([]*domain.Event, error) {
	docs, err := s.backend.List(ctx, domain.CollectionEvents)
	if err != nil {
		return nil, err
	}
	events := make([]*domain.Event, 0, len(docs))
	for id, raw := range docs {
		ev, err := decodeEvent(id, raw)
		if err != nil {
			// One corrupt document must not hide every other event from
			// the purge scan or the auditor.
			s.logger.Warn("skipping undecodable event", "event_id", id, "err", err)
			continue
		}
		events = append(events, ev)
	}
	sort.Slice(events, func(i, j int) bool {
		if !events[i].CreatedAt.Equal(events[j].CreatedAt) {
			return events[i].CreatedAt.After(events[j].CreatedAt)
		}
		return events[i].ID < events[j].ID
	})
	return events, nil
}

func (s *EntityStore) ListEventsByOrganizer(ctx context.Context, organizerID string) ([]*domain.Event, error) {
	all, err := s.ListEvents(ctx)
	if err != nil {
		return nil, err
	}
	events := make([]*domain.Event, 0)
	for _, ev := range all {
		if ev.OrganizerID == organizerID {
			events = append(events, ev)
		}
	}
	return events, nil
}

func (s *EntityStore) DeleteEvent(ctx context.Context, eventID string) error {
	key := eventKey(eventID)
	return s.backend.Transact(ctx, []Key{key}, func(cur map[Key][]byte) (map[Key][]byte, error) {
		if cur[key] == nil {
			return nil, domain.ErrNotFound
		}
		return map[Key][]byte{key: nil}, nil
	})
}

func (s *EntityStore) UpdateEvent(ctx context.Context, eventID string, fn func(*domain.Event) error) error {
	key := eventKey(eventID)
	return s.backend.Transact(ctx, []Key{key}, func(cur map[Key][]byte) (map[Key][]byte, error) {
		raw := cur[key]
		if raw == nil {
			return nil, domain.ErrNotFound
		}
		ev, err := decodeEvent(eventID, raw)
		if err != nil {
			return nil, err
		}
		if err := fn(ev); err != nil {
			return nil, err
		}
		ev.ID = eventID
		payload, err := json.Marshal(ev)
		if err != nil {
			return nil, fmt.Errorf("encode event %s: %w", eventID, err)
		}
		return map[Key][]byte{key: payload}, nil
	})
}

// ApplyBatch groups the batch by document and applies every operation in one
// backend transaction.
func (s *EntityStore) ApplyBatch(ctx context.Context, batch *domain.Batch) error {
	if batch == nil || batch.Len() == 0 {
		return nil
	}
	type step struct {
		key  Key
		segs []string
		op   domain.BatchOp
	}
	steps := make([]step, 0, batch.Len())
	var keys []Key
	for _, op := range batch.Ops() {
		key, segs, err := splitPath(op.Path)
		if err != nil {
			return err
		}
		steps = append(steps, step{key: key, segs: segs, op: op})
		keys = append(keys, key)
	}
	keys = SortKeys(keys)

	return s.backend.Transact(ctx, keys, func(cur map[Key][]byte) (map[Key][]byte, error) {
		docs := make(map[Key]map[string]any, len(keys))
		for _, k := range keys {
			if raw := cur[k]; raw != nil {
				var doc map[string]any
				if err := json.Unmarshal(raw, &doc); err != nil {
					return nil, fmt.Errorf("decode %s: %w", k, err)
				}
				docs[k] = doc
			} else {
				docs[k] = nil
			}
		}
		for _, st := range steps {
			next, err := applyOp(docs[st.key], st.segs, st.op)
			if err != nil {
				return nil, err
			}
			docs[st.key] = next
		}
		writes := make(map[Key][]byte, len(docs))
		for k, doc := range docs {
			if doc == nil {
				if cur[k] != nil {
					writes[k] = nil
				}
				continue
			}
			payload, err := json.Marshal(doc)
			if err != nil {
				return nil, fmt.Errorf("encode %s: %w", k, err)
			}
			writes[k] = payload
		}
		return writes, nil
	})
}

// WatchEvent calls onChange with the current event and again after every
// change; nil is delivered while the event does not exist. onChange runs on
// a single goroutine. The returned function stops delivery and waits for an
// in-flight callback to return, so it must not be called from onChange.
func (s *EntityStore) WatchEvent(ctx context.Context, eventID string, onChange func(*domain.Event)) (func(), error) {
	ctx, cancel := context.WithCancel(ctx)
	signals, unsubscribe, err := s.backend.Subscribe(ctx, eventKey(eventID))
	if err != nil {
		cancel()
		return nil, err
	}

	done := make(chan struct{})
	deliver := func() {
		ev, err := s.GetEvent(ctx, eventID)
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrNotFound):
			ev = nil
		default:
			if ctx.Err() == nil {
				s.logger.Warn("watch read failed", "event_id", eventID, "err", err)
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		onChange(ev)
	}

	go func() {
		defer close(done)
		deliver()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-signals:
				if !ok {
					return
				}
				deliver()
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			unsubscribe()
			<-done
		})
	}, nil
}

func (s *EntityStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	raw, err := s.backend.Get(ctx, userKey(userID))
	if err != nil {
		return nil, err
	}
	var u domain.User
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, fmt.Errorf("decode user %s: %w", userID, err)
	}
	if u.ID == "" {
		u.ID = userID
	}
	return &u, nil
}

func (s *EntityStore) PutUser(ctx context.Context, user *domain.User) error {
	if user.ID == "" {
		return fmt.Errorf("%w: user id is required", domain.ErrInvalidInput)
	}
	var batch domain.Batch
	batch.Set(domain.UserPath(user.ID), user)
	return s.ApplyBatch(ctx, &batch)
}
