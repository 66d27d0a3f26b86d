package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"greendesk/internal/audit"
	"greendesk/internal/db"
	"greendesk/internal/domain"
	"greendesk/internal/migrate"
	"greendesk/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store.Store{DB: conn}
}

func sampleReceipt(no string) domain.Receipt {
	return domain.Receipt{
		ReceiptNo: no,
		Date:      "2025-03-10T12:00:00Z",
		Customer:  domain.Customer{Name: "Ada", Phone: "555-1234", Address: "1 Fern Way"},
		Items: []domain.LineItem{
			{Name: "Monstera", Qty: 2, Price: 100},
			{Name: "Pot", Qty: 1, Price: 50},
		},
		Total:         250,
		PaymentMethod: "card",
	}
}

func TestArchiveAndGetReceipt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	aud := audit.Writer{DB: s.DB, Now: func() time.Time { return time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC) }}

	if err := s.ArchiveReceipt(ctx, "o-1", sampleReceipt("R-1"), "ops", aud); err != nil {
		t.Fatalf("archive: %v", err)
	}
	got, err := s.GetReceipt(ctx, "R-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Total != 250 || len(got.Items) != 2 || got.Customer.Name != "Ada" {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	events, err := s.LatestAuditEvents(ctx, 10, "receipt.compose")
	if err != nil {
		t.Fatalf("audit events: %v", err)
	}
	if len(events) != 1 || events[0].EntityID != "R-1" {
		t.Fatalf("expected one receipt.compose entry, got %+v", events)
	}
}

func TestGetReceiptNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetReceipt(context.Background(), "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestArchiveReceiptReplaces(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	aud := audit.Writer{DB: s.DB}

	if err := s.ArchiveReceipt(ctx, "o-1", sampleReceipt("R-1"), "ops", aud); err != nil {
		t.Fatalf("archive: %v", err)
	}
	updated := sampleReceipt("R-1")
	updated.Total = 300
	if err := s.ArchiveReceipt(ctx, "o-1", updated, "ops", aud); err != nil {
		t.Fatalf("re-archive: %v", err)
	}
	got, err := s.GetReceipt(ctx, "R-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Total != 300 {
		t.Fatalf("total = %v, want replaced 300", got.Total)
	}
	receipts, err := s.ListReceipts(ctx, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(receipts) != 1 {
		t.Fatalf("expected 1 receipt after replace, got %d", len(receipts))
	}
}

func TestAPIKeyRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := domain.APIKey{ID: "k-1", Operator: "ops", Name: "dashboard", KeyHash: store.HashAPIKey("secret")}
	if err := s.InsertAPIKey(ctx, key); err != nil {
		t.Fatalf("insert: %v", err)
	}
	got, err := s.GetAPIKeyByHash(ctx, store.HashAPIKey("secret"))
	if err != nil {
		t.Fatalf("get by hash: %v", err)
	}
	if got.Operator != "ops" || got.Name != "dashboard" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if _, err := s.GetAPIKeyByHash(ctx, store.HashAPIKey("wrong")); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestAuditEventsAfter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	aud := audit.Writer{DB: s.DB}
	for _, id := range []string{"r1", "r2", "r3"} {
		if err := aud.Append(ctx, nil, "review.delete", "review", id, "ops", nil); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	all, err := s.AuditEventsAfter(ctx, 0, 0)
	if err != nil {
		t.Fatalf("events after: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 events, got %d", len(all))
	}
	tail, err := s.AuditEventsAfter(ctx, 0, all[1].ID)
	if err != nil {
		t.Fatalf("events after cursor: %v", err)
	}
	if len(tail) != 1 || tail[0].EntityID != "r3" {
		t.Fatalf("cursor slice = %+v", tail)
	}
}
