package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"greendesk/internal/domain"
)

// Client talks to the marketplace backend that owns orders, payments,
// shipments, auctions, and reviews. Greendesk never writes to that system
// except to delete a review.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// APIError wraps non-2xx responses from the marketplace backend.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("marketplace: status=%d body=%s", e.StatusCode, e.Body)
}

// PendingPayment is an order whose payment confirmation is outstanding.
type PendingPayment struct {
	OrderID  string  `json:"order_id"`
	Customer string  `json:"customer"`
	Amount   float64 `json:"amount"`
	PlacedAt string  `json:"placed_at"`
}

// PendingShipment is a paid order not yet marked shipped.
type PendingShipment struct {
	OrderID     string `json:"order_id"`
	Destination string `json:"destination"`
	PaidAt      string `json:"paid_at"`
}

// UnsettledAuction is a closed auction whose winner has not been settled.
type UnsettledAuction struct {
	AuctionID string  `json:"auction_id"`
	PlantName string  `json:"plant_name"`
	Winner    string  `json:"winner"`
	FinalBid  float64 `json:"final_bid"`
	ClosedAt  string  `json:"closed_at"`
}

// ListReviews fetches all reviews pending moderation, in backend order.
func (c *Client) ListReviews(ctx context.Context) ([]domain.Review, error) {
	var reviews []domain.Review
	if err := c.do(ctx, http.MethodGet, "admin/reviews", nil, &reviews); err != nil {
		return nil, err
	}
	for i, rv := range reviews {
		if rv.ID == "" {
			return nil, fmt.Errorf("review %d: missing id", i)
		}
	}
	return reviews, nil
}

// DeleteReview deletes a review by id. Destructive and final; callers gate it
// behind explicit confirmation.
func (c *Client) DeleteReview(ctx context.Context, id string) error {
	endpoint := "admin/reviews/" + url.PathEscape(id)
	return c.do(ctx, http.MethodDelete, endpoint, nil, nil)
}

// PendingPayments lists orders awaiting payment confirmation.
func (c *Client) PendingPayments(ctx context.Context) ([]PendingPayment, error) {
	var items []PendingPayment
	if err := c.do(ctx, http.MethodGet, "admin/orders/pending-payment", nil, &items); err != nil {
		return nil, err
	}
	for i, p := range items {
		if p.OrderID == "" {
			return nil, fmt.Errorf("pending payment %d: missing order_id", i)
		}
		if err := validAmount(p.Amount); err != nil {
			return nil, fmt.Errorf("pending payment %s: amount: %w", p.OrderID, err)
		}
	}
	return items, nil
}

// PendingShipments lists paid orders not yet shipped.
func (c *Client) PendingShipments(ctx context.Context) ([]PendingShipment, error) {
	var items []PendingShipment
	if err := c.do(ctx, http.MethodGet, "admin/orders/unshipped", nil, &items); err != nil {
		return nil, err
	}
	for i, s := range items {
		if s.OrderID == "" {
			return nil, fmt.Errorf("pending shipment %d: missing order_id", i)
		}
	}
	return items, nil
}

// UnsettledAuctions lists closed auctions awaiting winner settlement.
func (c *Client) UnsettledAuctions(ctx context.Context) ([]UnsettledAuction, error) {
	var items []UnsettledAuction
	if err := c.do(ctx, http.MethodGet, "admin/auctions/unsettled", nil, &items); err != nil {
		return nil, err
	}
	for i, a := range items {
		if a.AuctionID == "" {
			return nil, fmt.Errorf("unsettled auction %d: missing auction_id", i)
		}
		if err := validAmount(a.FinalBid); err != nil {
			return nil, fmt.Errorf("unsettled auction %s: final_bid: %w", a.AuctionID, err)
		}
	}
	return items, nil
}

// GetOrder fetches the order snapshot feeding the receipt composer. Line item
// quantities and prices are validated here so malformed numerics never reach
// total computation.
func (c *Client) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	var order domain.Order
	endpoint := "admin/orders/" + url.PathEscape(id)
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &order); err != nil {
		return domain.Order{}, err
	}
	if order.ID == "" {
		order.ID = id
	}
	for i, it := range order.Items {
		if it.Qty < 0 {
			return domain.Order{}, fmt.Errorf("order %s item %d: negative qty %d", id, i, it.Qty)
		}
		if err := validAmount(it.Price); err != nil {
			return domain.Order{}, fmt.Errorf("order %s item %d: price: %w", id, i, err)
		}
	}
	return order, nil
}

func validAmount(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("not finite")
	}
	if v < 0 {
		return fmt.Errorf("negative value %v", v)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	// Never write back to c here: one client serves concurrent fetches.
	client := c.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
