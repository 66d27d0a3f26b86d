package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"greendesk/internal/config"
	"greendesk/internal/domain"
	"greendesk/internal/marketplace"
)

var testNow = func() time.Time { return time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC) }

type fakePayments struct {
	items []marketplace.PendingPayment
	err   error
}

func (f fakePayments) PendingPayments(ctx context.Context) ([]marketplace.PendingPayment, error) {
	return f.items, f.err
}

type fakeShipments struct {
	items []marketplace.PendingShipment
	err   error
}

func (f fakeShipments) PendingShipments(ctx context.Context) ([]marketplace.PendingShipment, error) {
	return f.items, f.err
}

type fakeAuctions struct {
	items []marketplace.UnsettledAuction
	err   error
}

func (f fakeAuctions) UnsettledAuctions(ctx context.Context) ([]marketplace.UnsettledAuction, error) {
	return f.items, f.err
}

func paymentCfg() config.PaymentQueueConfig {
	return config.PaymentQueueConfig{BasePriority: 8, UrgencyStepHours: 24, MinPriority: 4}
}

func TestPaymentPriorityScalesWithAge(t *testing.T) {
	src := PaymentSource{
		Backend: fakePayments{items: []marketplace.PendingPayment{
			{OrderID: "fresh", Customer: "Ada", Amount: 120, PlacedAt: "2025-03-10T09:00:00Z"},
			{OrderID: "day-old", Customer: "Bea", Amount: 80, PlacedAt: "2025-03-09T09:00:00Z"},
			{OrderID: "ancient", Customer: "Cal", Amount: 300, PlacedAt: "2025-02-01T09:00:00Z"},
		}},
		Cfg: paymentCfg(),
		Now: testNow,
	}
	tasks, err := src.FetchTasks(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	got := map[string]int{}
	for _, task := range tasks {
		got[task.ID] = task.Priority
		if task.Domain != domain.DomainPayment || task.Status != domain.TaskPending {
			t.Fatalf("bad normalization: %+v", task)
		}
	}
	if got["fresh"] != 8 {
		t.Errorf("fresh order priority = %d, want 8", got["fresh"])
	}
	if got["day-old"] != 7 {
		t.Errorf("day-old order priority = %d, want 7", got["day-old"])
	}
	if got["ancient"] != 4 {
		t.Errorf("ancient order priority = %d, want clamped 4", got["ancient"])
	}
}

func TestShipmentOverdueEscalation(t *testing.T) {
	src := ShipmentSource{
		Backend: fakeShipments{items: []marketplace.PendingShipment{
			{OrderID: "routine", Destination: "Ghent", PaidAt: "2025-03-09T12:00:00Z"},
			{OrderID: "late", Destination: "Lyon", PaidAt: "2025-03-01T12:00:00Z"},
		}},
		Cfg: config.ShipmentQueueConfig{Priority: 5, OverdueAfterHours: 48, OverduePriority: 2},
		Now: testNow,
	}
	tasks, err := src.FetchTasks(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	for _, task := range tasks {
		switch task.ID {
		case "routine":
			if task.Priority != 5 {
				t.Errorf("routine shipment priority = %d, want 5", task.Priority)
			}
		case "late":
			if task.Priority != 2 {
				t.Errorf("overdue shipment priority = %d, want 2", task.Priority)
			}
		}
	}
}

func TestAuctionFixedPriority(t *testing.T) {
	src := AuctionSource{
		Backend: fakeAuctions{items: []marketplace.UnsettledAuction{
			{AuctionID: "au-1", PlantName: "Monstera albo", Winner: "Dot", FinalBid: 1500, ClosedAt: "2025-03-08T20:00:00Z"},
		}},
		Cfg: config.AuctionQueueConfig{Priority: 3},
	}
	tasks, err := src.FetchTasks(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Priority != 3 {
		t.Fatalf("tasks = %+v", tasks)
	}
	if tasks[0].Summary == "" {
		t.Fatal("expected a human-readable summary")
	}
}

func TestSourceErrorPropagates(t *testing.T) {
	src := PaymentSource{Backend: fakePayments{err: errors.New("boom")}, Cfg: paymentCfg(), Now: testNow}
	if _, err := src.FetchTasks(context.Background()); err == nil {
		t.Fatal("expected fetch error")
	}
}

func TestSourceRejectsMalformedTimestamp(t *testing.T) {
	src := PaymentSource{
		Backend: fakePayments{items: []marketplace.PendingPayment{
			{OrderID: "bad", PlacedAt: "yesterday"},
		}},
		Cfg: paymentCfg(),
		Now: testNow,
	}
	if _, err := src.FetchTasks(context.Background()); err == nil {
		t.Fatal("expected parse error for malformed placed_at")
	}
}
