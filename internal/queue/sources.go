package queue

import (
	"context"
	"fmt"
	"time"

	"greendesk/internal/config"
	"greendesk/internal/domain"
	"greendesk/internal/marketplace"
	"greendesk/internal/money"
)

// Source produces pending Tasks for one operational domain. New domains plug
// into the Aggregator by implementing this interface.
type Source interface {
	Domain() string
	FetchTasks(ctx context.Context) ([]domain.Task, error)
}

// PaymentBackend is the slice of the marketplace client the payment source needs.
type PaymentBackend interface {
	PendingPayments(ctx context.Context) ([]marketplace.PendingPayment, error)
}

// ShipmentBackend lists paid orders not yet shipped.
type ShipmentBackend interface {
	PendingShipments(ctx context.Context) ([]marketplace.PendingShipment, error)
}

// AuctionBackend lists closed auctions with unsettled winners.
type AuctionBackend interface {
	UnsettledAuctions(ctx context.Context) ([]marketplace.UnsettledAuction, error)
}

// PaymentSource normalizes outstanding payment confirmations. Priority scales
// inversely with elapsed time since placement: one step of urgency per
// UrgencyStepHours, clamped at MinPriority.
type PaymentSource struct {
	Backend PaymentBackend
	Cfg     config.PaymentQueueConfig
	Now     func() time.Time
}

func (s PaymentSource) Domain() string { return domain.DomainPayment }

func (s PaymentSource) FetchTasks(ctx context.Context) ([]domain.Task, error) {
	items, err := s.Backend.PendingPayments(ctx)
	if err != nil {
		return nil, err
	}
	now := clock(s.Now)
	tasks := make([]domain.Task, 0, len(items))
	for _, p := range items {
		placed, err := time.Parse(time.RFC3339, p.PlacedAt)
		if err != nil {
			return nil, fmt.Errorf("payment %s: placed_at: %w", p.OrderID, err)
		}
		steps := int(now.Sub(placed).Hours()) / s.Cfg.UrgencyStepHours
		priority := s.Cfg.BasePriority - steps
		if priority < s.Cfg.MinPriority {
			priority = s.Cfg.MinPriority
		}
		tasks = append(tasks, domain.Task{
			ID:        p.OrderID,
			Domain:    domain.DomainPayment,
			Priority:  priority,
			CreatedAt: placed.UTC().Format(time.RFC3339),
			Summary:   fmt.Sprintf("Confirm payment of %s for order %s (%s)", money.FormatAmount(p.Amount), p.OrderID, p.Customer),
			Status:    domain.TaskPending,
		})
	}
	return tasks, nil
}

// ShipmentSource normalizes paid-but-unshipped orders. Routine shipments get
// the configured priority; once older than OverdueAfterHours they escalate to
// OverduePriority.
type ShipmentSource struct {
	Backend ShipmentBackend
	Cfg     config.ShipmentQueueConfig
	Now     func() time.Time
}

func (s ShipmentSource) Domain() string { return domain.DomainShipment }

func (s ShipmentSource) FetchTasks(ctx context.Context) ([]domain.Task, error) {
	items, err := s.Backend.PendingShipments(ctx)
	if err != nil {
		return nil, err
	}
	now := clock(s.Now)
	overdueAfter := time.Duration(s.Cfg.OverdueAfterHours) * time.Hour
	tasks := make([]domain.Task, 0, len(items))
	for _, sh := range items {
		paid, err := time.Parse(time.RFC3339, sh.PaidAt)
		if err != nil {
			return nil, fmt.Errorf("shipment %s: paid_at: %w", sh.OrderID, err)
		}
		priority := s.Cfg.Priority
		summary := fmt.Sprintf("Dispatch order %s to %s", sh.OrderID, sh.Destination)
		if now.Sub(paid) > overdueAfter {
			priority = s.Cfg.OverduePriority
			summary = fmt.Sprintf("OVERDUE: dispatch order %s to %s", sh.OrderID, sh.Destination)
		}
		tasks = append(tasks, domain.Task{
			ID:        sh.OrderID,
			Domain:    domain.DomainShipment,
			Priority:  priority,
			CreatedAt: paid.UTC().Format(time.RFC3339),
			Summary:   summary,
			Status:    domain.TaskPending,
		})
	}
	return tasks, nil
}

// AuctionSource normalizes closed auctions with unsettled winners. The
// priority is fixed and, per config validation, always outranks routine
// shipments because settlement blocks downstream payment collection.
type AuctionSource struct {
	Backend AuctionBackend
	Cfg     config.AuctionQueueConfig
}

func (s AuctionSource) Domain() string { return domain.DomainAuction }

func (s AuctionSource) FetchTasks(ctx context.Context) ([]domain.Task, error) {
	items, err := s.Backend.UnsettledAuctions(ctx)
	if err != nil {
		return nil, err
	}
	tasks := make([]domain.Task, 0, len(items))
	for _, a := range items {
		closed, err := time.Parse(time.RFC3339, a.ClosedAt)
		if err != nil {
			return nil, fmt.Errorf("auction %s: closed_at: %w", a.AuctionID, err)
		}
		tasks = append(tasks, domain.Task{
			ID:        a.AuctionID,
			Domain:    domain.DomainAuction,
			Priority:  s.Cfg.Priority,
			CreatedAt: closed.UTC().Format(time.RFC3339),
			Summary:   fmt.Sprintf("Settle %s with winner %s at %s", a.PlantName, a.Winner, money.FormatAmount(a.FinalBid)),
			Status:    domain.TaskPending,
		})
	}
	return tasks, nil
}

func clock(now func() time.Time) time.Time {
	if now != nil {
		return now()
	}
	return time.Now()
}
