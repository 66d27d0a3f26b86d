package moderation

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"greendesk/internal/domain"
)

// Backend is the slice of the marketplace client the workflow needs.
type Backend interface {
	ListReviews(ctx context.Context) ([]domain.Review, error)
	DeleteReview(ctx context.Context, id string) error
}

var (
	// ErrUnknownReview means the id is not in the held collection.
	ErrUnknownReview = errors.New("review not found")
	// ErrUnknownToken means the confirmation token was never issued or was
	// already consumed.
	ErrUnknownToken = errors.New("unknown confirmation token")
	// ErrDeleteInFlight rejects a second delete on an id mid-deletion.
	ErrDeleteInFlight = errors.New("delete already in flight")
)

// Workflow manages review listing and confirmed deletion. Deletion is a
// two-step protocol: RequestDelete issues a confirmation token and only
// ConfirmDelete performs the destructive backend call, so no UI can delete by
// accident. The held collection changes only after the backend acknowledges.
type Workflow struct {
	backend Backend

	mu       sync.Mutex
	reviews  []domain.Review
	seq      uint64            // list requests issued
	applied  uint64            // newest list request applied
	pending  map[string]string // confirmation token -> review id
	byReview map[string]string // review id -> outstanding token
	deleting map[string]bool   // review id -> backend call in flight

	newToken func() string
}

// New builds a workflow over the given backend.
func New(backend Backend) *Workflow {
	return &Workflow{
		backend:  backend,
		pending:  make(map[string]string),
		byReview: make(map[string]string),
		deleting: make(map[string]bool),
		newToken: uuid.NewString,
	}
}

// List fetches reviews and replaces the held collection wholesale, keeping
// the backend's order. Responses of superseded calls are discarded: when two
// List calls overlap, the collection ends up reflecting the last-issued call
// no matter which response arrives first. A failed call advances the
// watermark without touching the collection, so an older response that
// straggles in after it is discarded rather than applied.
func (w *Workflow) List(ctx context.Context) ([]domain.Review, error) {
	w.mu.Lock()
	w.seq++
	seq := w.seq
	w.mu.Unlock()

	reviews, err := w.backend.ListReviews(ctx)

	w.mu.Lock()
	defer w.mu.Unlock()
	if seq > w.applied {
		w.applied = seq
		if err == nil {
			w.reviews = reviews
		}
	}
	if err != nil {
		return nil, err
	}
	return snapshot(w.reviews), nil
}

// Reviews returns a copy of the held collection.
func (w *Workflow) Reviews() []domain.Review {
	w.mu.Lock()
	defer w.mu.Unlock()
	return snapshot(w.reviews)
}

// RequestDelete starts the delete protocol for a held review and returns a
// confirmation token. Requesting again for the same id replaces the earlier
// token. No backend call happens here.
func (w *Workflow) RequestDelete(id string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.deleting[id] {
		return "", ErrDeleteInFlight
	}
	if !w.holds(id) {
		return "", ErrUnknownReview
	}
	if prev, ok := w.byReview[id]; ok {
		delete(w.pending, prev)
	}
	token := w.newToken()
	w.pending[token] = id
	w.byReview[id] = token
	return token, nil
}

// CancelDelete discards a pending confirmation token.
func (w *Workflow) CancelDelete(token string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if id, ok := w.pending[token]; ok {
		delete(w.pending, token)
		delete(w.byReview, id)
	}
}

// ConfirmDelete consumes a token and performs the destructive backend call,
// returning the id of the deleted review. On success exactly the entry with
// that id is removed from the held collection, all others unchanged and in
// the same relative order; on failure the collection is left untouched and
// the error returned. Reconciliation is by id, never by index, so an
// overlapping refresh cannot shift the target.
func (w *Workflow) ConfirmDelete(ctx context.Context, token string) (string, error) {
	w.mu.Lock()
	id, ok := w.pending[token]
	if !ok {
		w.mu.Unlock()
		return "", ErrUnknownToken
	}
	if w.deleting[id] {
		w.mu.Unlock()
		return "", ErrDeleteInFlight
	}
	delete(w.pending, token)
	delete(w.byReview, id)
	w.deleting[id] = true
	w.mu.Unlock()

	err := w.backend.DeleteReview(ctx, id)

	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.deleting, id)
	if err != nil {
		return "", err
	}
	kept := w.reviews[:0:0]
	for _, rv := range w.reviews {
		if rv.ID != id {
			kept = append(kept, rv)
		}
	}
	w.reviews = kept
	return id, nil
}

func (w *Workflow) holds(id string) bool {
	for _, rv := range w.reviews {
		if rv.ID == id {
			return true
		}
	}
	return false
}

func snapshot(reviews []domain.Review) []domain.Review {
	out := make([]domain.Review, len(reviews))
	copy(out, reviews)
	return out
}
