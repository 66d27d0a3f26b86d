package marketplace

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

func newBackend(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL)
}

func TestGetOrderRejectsNegativeQty(t *testing.T) {
	c := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"o-1","items":[{"name":"Fern","qty":-1,"price":10}]}`))
	})
	if _, err := c.GetOrder(context.Background(), "o-1"); err == nil {
		t.Fatal("expected negative qty to be rejected")
	}
}

func TestGetOrderRejectsNegativePrice(t *testing.T) {
	c := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"o-1","items":[{"name":"Fern","qty":1,"price":-10}]}`))
	})
	if _, err := c.GetOrder(context.Background(), "o-1"); err == nil {
		t.Fatal("expected negative price to be rejected")
	}
}

func TestPendingPaymentsRejectsNegativeAmount(t *testing.T) {
	c := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"order_id":"o-1","customer":"Ada","amount":-5,"placed_at":"2025-03-01T00:00:00Z"}]`))
	})
	if _, err := c.PendingPayments(context.Background()); err == nil {
		t.Fatal("expected negative amount to be rejected")
	}
}

func TestPendingPaymentsRequiresOrderID(t *testing.T) {
	c := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"customer":"Ada","amount":5,"placed_at":"2025-03-01T00:00:00Z"}]`))
	})
	if _, err := c.PendingPayments(context.Background()); err == nil {
		t.Fatal("expected missing order_id to be rejected")
	}
}

func TestConcurrentFetchesShareOneClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()
	c := New(srv.URL)

	// One client serves all domain fetches of an aggregation cycle at once.
	var wg sync.WaitGroup
	errs := make([]error, 3)
	wg.Add(3)
	go func() {
		defer wg.Done()
		_, errs[0] = c.PendingPayments(context.Background())
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = c.PendingShipments(context.Background())
	}()
	go func() {
		defer wg.Done()
		_, errs[2] = c.UnsettledAuctions(context.Background())
	}()
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
	}
}

func TestNon2xxBecomesAPIError(t *testing.T) {
	c := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend down", http.StatusServiceUnavailable)
	})
	_, err := c.ListReviews(context.Background())
	var ae *APIError
	if !errors.As(err, &ae) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if ae.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", ae.StatusCode)
	}
}

func TestAuthHeaders(t *testing.T) {
	var gotAuthz, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuthz = r.Header.Get("Authorization")
		gotKey = r.Header.Get("X-Api-Key")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.APIKey = "mk-secret"
	if _, err := c.ListReviews(context.Background()); err != nil {
		t.Fatalf("list: %v", err)
	}
	if gotKey != "mk-secret" || gotAuthz != "" {
		t.Fatalf("headers = authz %q key %q, want api key only", gotAuthz, gotKey)
	}

	// Bearer token takes precedence over the api key.
	c.BearerToken = "tok"
	if _, err := c.ListReviews(context.Background()); err != nil {
		t.Fatalf("list: %v", err)
	}
	if gotAuthz != "Bearer tok" {
		t.Fatalf("authz = %q, want Bearer tok", gotAuthz)
	}
}

func TestDeleteReviewEscapesID(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := New(srv.URL)
	if err := c.DeleteReview(context.Background(), "r/1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if gotPath != "/admin/reviews/r%2F1" {
		t.Fatalf("path = %q", gotPath)
	}
}
