package store

import (
	"encoding/json"
	"fmt"
	"strings"

	"potluck/internal/domain"
)

// splitPath turns "events/e1/menu_items/m1" into the document key and the
// segments inside the document.
func splitPath(path string) (Key, []string, error) {
	segs := strings.Split(strings.Trim(path, "/"), "/")
	if len(segs) < 2 {
		return Key{}, nil, fmt.Errorf("%w: path %q must address a document", domain.ErrInvalidInput, path)
	}
	for _, s := range segs {
		if s == "" {
			return Key{}, nil, fmt.Errorf("%w: path %q has an empty segment", domain.ErrInvalidInput, path)
		}
	}
	switch segs[0] {
	case domain.CollectionEvents, domain.CollectionUsers:
	default:
		return Key{}, nil, fmt.Errorf("%w: unknown collection %q", domain.ErrInvalidInput, segs[0])
	}
	return Key{Collection: segs[0], ID: segs[1]}, segs[2:], nil
}

// toTree converts an arbitrary value into the generic JSON shape used for
// path writes.
func toTree(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// applyOp applies one batch operation to a decoded document. doc is nil when
// the document does not exist. Writes below the document root are skipped
// for missing documents, so a batch computed from a stale read never
// resurrects a deleted event as a partial record.
func applyOp(doc map[string]any, segs []string, op domain.BatchOp) (map[string]any, error) {
	if len(segs) == 0 {
		switch op.Kind {
		case domain.BatchDelete:
			return nil, nil
		case domain.BatchSet:
			if op.Value == nil {
				return nil, nil
			}
			v, err := toTree(op.Value)
			if err != nil {
				return doc, fmt.Errorf("encode %s: %w", op.Path, err)
			}
			m, ok := v.(map[string]any)
			if !ok {
				return doc, fmt.Errorf("%w: document %s must be an object", domain.ErrInvalidInput, op.Path)
			}
			return m, nil
		default:
			return doc, fmt.Errorf("%w: cannot increment document %s", domain.ErrInvalidInput, op.Path)
		}
	}
	if doc == nil {
		return nil, nil
	}

	parent := doc
	for _, seg := range segs[:len(segs)-1] {
		child, ok := parent[seg].(map[string]any)
		if !ok {
			if op.Kind != domain.BatchSet {
				return doc, nil
			}
			child = map[string]any{}
			parent[seg] = child
		}
		parent = child
	}
	leaf := segs[len(segs)-1]

	switch op.Kind {
	case domain.BatchDelete:
		delete(parent, leaf)
	case domain.BatchSet:
		if op.Value == nil {
			delete(parent, leaf)
			return doc, nil
		}
		v, err := toTree(op.Value)
		if err != nil {
			return doc, fmt.Errorf("encode %s: %w", op.Path, err)
		}
		parent[leaf] = v
	case domain.BatchIncrement:
		cur, _ := parent[leaf].(float64)
		next := cur + op.Delta
		if next < 0 {
			next = 0
		}
		parent[leaf] = next
	}
	return doc, nil
}
