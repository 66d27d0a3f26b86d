package server

import (
	"greendesk/internal/domain"
	"greendesk/internal/money"
	"greendesk/internal/queue"
)

type TaskResponse struct {
	ID        string `json:"id"`
	Domain    string `json:"domain"`
	Priority  int    `json:"priority"`
	CreatedAt string `json:"created_at"`
	Summary   string `json:"summary"`
	Status    string `json:"status"`
}

// DashboardResponse is one aggregation cycle over all task sources. Tasks is
// fully ordered; FailedDomains names sources whose fetch failed this cycle.
type DashboardResponse struct {
	Tasks         []TaskResponse `json:"tasks"`
	FailedDomains []string       `json:"failed_domains"`
	Counts        map[string]int `json:"counts"`
}

type ReviewResponse struct {
	ID        string `json:"id"`
	OrderID   string `json:"order_id"`
	Stars     int    `json:"stars"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"`
}

type ReviewListResponse struct {
	Items []ReviewResponse `json:"items"`
}

type DeleteRequestResponse struct {
	Token    string `json:"token"`
	ReviewID string `json:"review_id"`
}

type DeleteConfirmResponse struct {
	ReviewID string `json:"review_id"`
	Deleted  bool   `json:"deleted"`
}

type LineItemResponse struct {
	Name  string  `json:"name"`
	Qty   int     `json:"qty"`
	Price float64 `json:"price"`
}

type CustomerResponse struct {
	Name    string `json:"name"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

type ReceiptResponse struct {
	ReceiptNo     string             `json:"receipt_no"`
	Date          string             `json:"date"`
	Customer      CustomerResponse   `json:"customer"`
	Items         []LineItemResponse `json:"items"`
	Total         float64            `json:"total"`
	TotalDisplay  string             `json:"total_display"`
	PaymentMethod string             `json:"payment_method,omitempty"`
}

type ReceiptListResponse struct {
	Items []ReceiptResponse `json:"items"`
}

type AuditEventResponse struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	Operator   string `json:"operator"`
	Payload    string `json:"payload,omitempty"`
}

type AuditLogResponse struct {
	Items []AuditEventResponse `json:"items"`
}

func taskResponse(t domain.Task) TaskResponse {
	return TaskResponse{
		ID:        t.ID,
		Domain:    t.Domain,
		Priority:  t.Priority,
		CreatedAt: t.CreatedAt,
		Summary:   t.Summary,
		Status:    t.Status,
	}
}

func dashboardResponse(res queue.Result) DashboardResponse {
	out := DashboardResponse{
		Tasks:         make([]TaskResponse, 0, len(res.Tasks)),
		FailedDomains: res.FailedDomains,
		Counts:        res.Counts,
	}
	for _, t := range res.Tasks {
		out.Tasks = append(out.Tasks, taskResponse(t))
	}
	return out
}

func reviewResponse(rv domain.Review) ReviewResponse {
	return ReviewResponse{
		ID:        rv.ID,
		OrderID:   rv.OrderID,
		Stars:     rv.Stars,
		Text:      rv.Text,
		CreatedAt: rv.CreatedAt,
	}
}

func mapReviews(reviews []domain.Review) []ReviewResponse {
	out := make([]ReviewResponse, 0, len(reviews))
	for _, rv := range reviews {
		out = append(out, reviewResponse(rv))
	}
	return out
}

func receiptResponse(rc domain.Receipt) ReceiptResponse {
	items := make([]LineItemResponse, 0, len(rc.Items))
	for _, it := range rc.Items {
		items = append(items, LineItemResponse{Name: it.Name, Qty: it.Qty, Price: it.Price})
	}
	return ReceiptResponse{
		ReceiptNo: rc.ReceiptNo,
		Date:      rc.Date,
		Customer: CustomerResponse{
			Name:    rc.Customer.Name,
			Phone:   rc.Customer.Phone,
			Address: rc.Customer.Address,
		},
		Items:         items,
		Total:         rc.Total,
		TotalDisplay:  money.FormatAmount(rc.Total),
		PaymentMethod: rc.PaymentMethod,
	}
}

func mapReceipts(receipts []domain.Receipt) []ReceiptResponse {
	out := make([]ReceiptResponse, 0, len(receipts))
	for _, rc := range receipts {
		out = append(out, receiptResponse(rc))
	}
	return out
}

func auditEventResponse(ev domain.AuditEvent) AuditEventResponse {
	return AuditEventResponse{
		ID:         ev.ID,
		TS:         ev.TS,
		Type:       ev.Type,
		EntityKind: ev.EntityKind,
		EntityID:   ev.EntityID,
		Operator:   ev.Operator,
		Payload:    ev.Payload,
	}
}

func mapAuditEvents(events []domain.AuditEvent) []AuditEventResponse {
	out := make([]AuditEventResponse, 0, len(events))
	for _, ev := range events {
		out = append(out, auditEventResponse(ev))
	}
	return out
}
