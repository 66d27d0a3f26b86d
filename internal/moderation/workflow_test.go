package moderation

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"greendesk/internal/domain"
)

type fakeBackend struct {
	mu          sync.Mutex
	listFn      func(call int) ([]domain.Review, error)
	deleteFn    func(id string) error
	listCalls   int
	deleteCalls []string
}

func (f *fakeBackend) ListReviews(ctx context.Context) ([]domain.Review, error) {
	f.mu.Lock()
	f.listCalls++
	call := f.listCalls
	fn := f.listFn
	f.mu.Unlock()
	return fn(call)
}

func (f *fakeBackend) DeleteReview(ctx context.Context, id string) error {
	f.mu.Lock()
	f.deleteCalls = append(f.deleteCalls, id)
	fn := f.deleteFn
	f.mu.Unlock()
	if fn != nil {
		return fn(id)
	}
	return nil
}

func (f *fakeBackend) deleted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.deleteCalls))
	copy(out, f.deleteCalls)
	return out
}

func review(id string) domain.Review {
	return domain.Review{ID: id, OrderID: "o-" + id, Stars: 4, Text: "lovely fern", CreatedAt: "2025-03-01T00:00:00Z"}
}

func fixedReviews(reviews ...domain.Review) func(int) ([]domain.Review, error) {
	return func(int) ([]domain.Review, error) {
		out := make([]domain.Review, len(reviews))
		copy(out, reviews)
		return out, nil
	}
}

func loadedWorkflow(t *testing.T, backend *fakeBackend) *Workflow {
	t.Helper()
	w := New(backend)
	if _, err := w.List(context.Background()); err != nil {
		t.Fatalf("list: %v", err)
	}
	return w
}

func TestConfirmGate(t *testing.T) {
	backend := &fakeBackend{listFn: fixedReviews(review("r1"), review("r2"))}
	w := loadedWorkflow(t, backend)

	token, err := w.RequestDelete("r1")
	if err != nil {
		t.Fatalf("request delete: %v", err)
	}
	if calls := backend.deleted(); len(calls) != 0 {
		t.Fatalf("backend called before confirmation: %v", calls)
	}
	if _, err := w.ConfirmDelete(context.Background(), token); err != nil {
		t.Fatalf("confirm delete: %v", err)
	}
	if calls := backend.deleted(); !reflect.DeepEqual(calls, []string{"r1"}) {
		t.Fatalf("backend calls = %v, want [r1]", calls)
	}
}

func TestConfirmDeleteRemovesExactlyOne(t *testing.T) {
	backend := &fakeBackend{listFn: fixedReviews(review("r1"), review("r2"), review("r3"))}
	w := loadedWorkflow(t, backend)

	token, err := w.RequestDelete("r2")
	if err != nil {
		t.Fatalf("request delete: %v", err)
	}
	if _, err := w.ConfirmDelete(context.Background(), token); err != nil {
		t.Fatalf("confirm delete: %v", err)
	}
	got := w.Reviews()
	want := []domain.Review{review("r1"), review("r3")}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("collection = %+v, want %+v", got, want)
	}
}

func TestBackendFailureLeavesCollectionUntouched(t *testing.T) {
	backend := &fakeBackend{
		listFn:   fixedReviews(review("r1"), review("r2")),
		deleteFn: func(string) error { return errors.New("already deleted") },
	}
	w := loadedWorkflow(t, backend)
	before := w.Reviews()

	token, _ := w.RequestDelete("r1")
	if _, err := w.ConfirmDelete(context.Background(), token); err == nil {
		t.Fatal("expected backend failure to surface")
	}
	if !reflect.DeepEqual(w.Reviews(), before) {
		t.Fatalf("collection changed after failed delete: %+v", w.Reviews())
	}
	// The token is consumed; a retry needs a fresh request.
	if _, err := w.ConfirmDelete(context.Background(), token); !errors.Is(err, ErrUnknownToken) {
		t.Fatalf("reused token error = %v, want ErrUnknownToken", err)
	}
}

func TestRequestDeleteUnknownReview(t *testing.T) {
	backend := &fakeBackend{listFn: fixedReviews(review("r1"))}
	w := loadedWorkflow(t, backend)
	if _, err := w.RequestDelete("nope"); !errors.Is(err, ErrUnknownReview) {
		t.Fatalf("err = %v, want ErrUnknownReview", err)
	}
}

func TestCancelDelete(t *testing.T) {
	backend := &fakeBackend{listFn: fixedReviews(review("r1"))}
	w := loadedWorkflow(t, backend)
	token, _ := w.RequestDelete("r1")
	w.CancelDelete(token)
	if _, err := w.ConfirmDelete(context.Background(), token); !errors.Is(err, ErrUnknownToken) {
		t.Fatalf("err = %v, want ErrUnknownToken", err)
	}
	if calls := backend.deleted(); len(calls) != 0 {
		t.Fatalf("backend called after cancel: %v", calls)
	}
}

func TestDeleteInFlightRejected(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	backend := &fakeBackend{
		listFn: fixedReviews(review("r1")),
		deleteFn: func(string) error {
			close(started)
			<-release
			return nil
		},
	}
	w := loadedWorkflow(t, backend)

	token, _ := w.RequestDelete("r1")
	done := make(chan error, 1)
	go func() {
		_, err := w.ConfirmDelete(context.Background(), token)
		done <- err
	}()
	<-started

	if _, err := w.RequestDelete("r1"); !errors.Is(err, ErrDeleteInFlight) {
		t.Fatalf("err = %v, want ErrDeleteInFlight", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first delete: %v", err)
	}
}

func TestStaleListResponseDropped(t *testing.T) {
	listA := []domain.Review{review("old-1"), review("old-2")}
	listB := []domain.Review{review("new-1")}
	firstEntered := make(chan struct{})
	releaseFirst := make(chan struct{})
	backend := &fakeBackend{
		listFn: func(call int) ([]domain.Review, error) {
			if call == 1 {
				close(firstEntered)
				<-releaseFirst
				return listA, nil
			}
			return listB, nil
		},
	}
	w := New(backend)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = w.List(context.Background()) // call1, will finish late
	}()
	<-firstEntered

	if _, err := w.List(context.Background()); err != nil { // call2
		t.Fatalf("second list: %v", err)
	}
	close(releaseFirst)
	<-done

	if got := w.Reviews(); !reflect.DeepEqual(got, listB) {
		t.Fatalf("collection = %+v, want call2 result %+v", got, listB)
	}
}

func TestSlowResponseDroppedAfterFailedRefresh(t *testing.T) {
	listA := []domain.Review{review("old-1"), review("old-2")}
	firstEntered := make(chan struct{})
	releaseFirst := make(chan struct{})
	backend := &fakeBackend{
		listFn: func(call int) ([]domain.Review, error) {
			if call == 1 {
				close(firstEntered)
				<-releaseFirst
				return listA, nil
			}
			return nil, errors.New("backend down")
		},
	}
	w := New(backend)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = w.List(context.Background()) // call1, will finish late
	}()
	<-firstEntered

	if _, err := w.List(context.Background()); err == nil { // call2 fails fast
		t.Fatal("expected second list to fail")
	}
	close(releaseFirst)
	<-done

	// call1 was superseded by call2 even though call2 failed; its late
	// response must not be applied.
	if got := w.Reviews(); len(got) != 0 {
		t.Fatalf("collection = %+v, want superseded response dropped", got)
	}
}

func TestListReplacesWholesale(t *testing.T) {
	backend := &fakeBackend{listFn: fixedReviews(review("r1"), review("r2"))}
	w := loadedWorkflow(t, backend)

	backend.mu.Lock()
	backend.listFn = fixedReviews(review("r3"))
	backend.mu.Unlock()

	got, err := w.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !reflect.DeepEqual(got, []domain.Review{review("r3")}) {
		t.Fatalf("refresh did not replace wholesale: %+v", got)
	}
}
