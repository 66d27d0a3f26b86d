package domain

// Task domains.
const (
	DomainPayment  = "payment"
	DomainShipment = "shipment"
	DomainAuction  = "auction"
)

// Task statuses.
const (
	TaskPending  = "pending"
	TaskResolved = "resolved"
)

// Task is a normalized unit of pending administrative work drawn from one
// operational domain. The aggregate key is (Domain, ID); lower Priority is
// more urgent, CreatedAt breaks ties.
type Task struct {
	ID        string `json:"id"`
	Domain    string `json:"domain" enum:"payment,shipment,auction"`
	Priority  int    `json:"priority"`
	CreatedAt string `json:"created_at" format:"date-time"`
	Summary   string `json:"summary"`
	Status    string `json:"status" enum:"pending,resolved"`
}

// Key returns the aggregate key of the task.
func (t Task) Key() TaskKey {
	return TaskKey{Domain: t.Domain, ID: t.ID}
}

type TaskKey struct {
	Domain string `json:"domain"`
	ID     string `json:"id"`
}

// Review is customer feedback tied to one order. Reviews are owned by the
// marketplace backend; this service holds request-scoped copies and may
// delete them, nothing else. Stars is display-only and not range-checked.
type Review struct {
	ID        string `json:"id"`
	OrderID   string `json:"order_id"`
	Stars     int    `json:"stars"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// Customer contact fields printed on a receipt.
type Customer struct {
	Name    string `json:"name"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

// LineItem is one ordered position of an order snapshot.
type LineItem struct {
	Name  string  `json:"name"`
	Qty   int     `json:"qty"`
	Price float64 `json:"price"`
}

// Order is the snapshot of a marketplace order as returned by the backend.
type Order struct {
	ID            string     `json:"id"`
	ReceiptNo     string     `json:"receipt_no,omitempty"`
	Customer      Customer   `json:"customer"`
	Items         []LineItem `json:"items"`
	PaymentMethod string     `json:"payment_method"`
	PlacedAt      string     `json:"placed_at" format:"date-time"`
}

// Receipt is a printable document derived from an order snapshot. It is a
// value object: Total always equals the sum of Qty*Price over Items, computed
// at composition time, and a composed receipt is never mutated.
type Receipt struct {
	ReceiptNo     string     `json:"receipt_no"`
	Date          string     `json:"date" format:"date-time"`
	Customer      Customer   `json:"customer"`
	Items         []LineItem `json:"items"`
	Total         float64    `json:"total"`
	PaymentMethod string     `json:"payment_method"`
}

// APIKey grants an operator access to the admin API.
type APIKey struct {
	ID        string `json:"id"`
	Operator  string `json:"operator"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// AuditEvent records an admin action in the local audit log.
type AuditEvent struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	Operator   string `json:"operator"`
	Payload    string `json:"payload_json"`
}
