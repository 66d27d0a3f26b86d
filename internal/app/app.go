package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"greendesk/internal/audit"
	"greendesk/internal/config"
	"greendesk/internal/domain"
	"greendesk/internal/marketplace"
	"greendesk/internal/moderation"
	"greendesk/internal/queue"
	"greendesk/internal/receipt"
	"greendesk/internal/store"
)

// App wires the marketplace client, task aggregator, moderation workflow,
// and local archive behind one handle. The HTTP server and the CLI both run
// on top of it.
type App struct {
	DB         *sql.DB
	Store      store.Store
	Audit      audit.Writer
	Config     *config.Config
	Market     *marketplace.Client
	Queue      *queue.Aggregator
	Moderation *moderation.Workflow

	Now          func() time.Time
	NewReceiptNo func() string
}

// New builds the app from an open database and validated config.
func New(conn *sql.DB, cfg *config.Config) *App {
	client := marketplace.New(cfg.Marketplace.BaseURL)
	client.APIKey = cfg.Marketplace.APIKey
	if cfg.Marketplace.TimeoutSeconds > 0 {
		client.Timeout = time.Duration(cfg.Marketplace.TimeoutSeconds) * time.Second
	}
	a := &App{
		DB:           conn,
		Store:        store.Store{DB: conn},
		Audit:        audit.Writer{DB: conn},
		Config:       cfg,
		Market:       client,
		Now:          time.Now,
		NewReceiptNo: func() string { return "R-" + uuid.NewString() },
	}
	a.Queue = queue.NewAggregator(
		queue.PaymentSource{Backend: client, Cfg: cfg.Queue.Payment, Now: a.now},
		queue.ShipmentSource{Backend: client, Cfg: cfg.Queue.Shipment, Now: a.now},
		queue.AuctionSource{Backend: client, Cfg: cfg.Queue.Auction},
	)
	a.Moderation = moderation.New(client)
	return a
}

func (a *App) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

// Dashboard runs one aggregation cycle over all task sources.
func (a *App) Dashboard(ctx context.Context) queue.Result {
	return a.Queue.Aggregate(ctx)
}

// ComposeReceipt fetches the order snapshot, composes a receipt from it, and
// archives the result with an audit entry. The composer itself stays pure;
// all I/O happens here.
func (a *App) ComposeReceipt(ctx context.Context, orderID, operator string) (domain.Receipt, error) {
	order, err := a.Market.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Receipt{}, fmt.Errorf("fetch order %s: %w", orderID, err)
	}
	receiptNo := order.ReceiptNo
	if receiptNo == "" {
		receiptNo = a.NewReceiptNo()
	}
	date := a.now().UTC().Format(time.RFC3339)
	rc := receipt.Compose(receipt.FromOrder(order, receiptNo, date))
	if err := a.Store.ArchiveReceipt(ctx, order.ID, rc, operator, a.Audit); err != nil {
		return domain.Receipt{}, fmt.Errorf("archive receipt: %w", err)
	}
	return rc, nil
}

// DeleteReview confirms a pending delete request and records the action in
// the audit log once the backend acknowledges.
func (a *App) DeleteReview(ctx context.Context, token, operator string) (string, error) {
	id, err := a.Moderation.ConfirmDelete(ctx, token)
	if err != nil {
		return "", err
	}
	return id, a.Audit.Append(ctx, nil, "review.delete", "review", id, operator, audit.Payload{"review_id": id})
}
