package receipt

import (
	"greendesk/internal/domain"
	"greendesk/internal/money"
)

// Input is an already-resolved order snapshot. Compose performs no I/O, so
// callers fetch the order (and mint a receipt number if the backend has none)
// before composing.
type Input struct {
	ReceiptNo     string
	Date          string
	Customer      domain.Customer
	Items         []domain.LineItem
	PaymentMethod string
}

// Compose builds a printable receipt from the snapshot. The total is always
// computed here from the line items in order; a caller-supplied total would
// be free to drift from the items, so none is accepted. Empty items yield a
// valid receipt with total 0. The input is never mutated.
func Compose(in Input) domain.Receipt {
	items := make([]domain.LineItem, len(in.Items))
	copy(items, in.Items)

	var total float64
	for _, it := range items {
		total += money.LineTotal(it.Qty, it.Price)
	}
	return domain.Receipt{
		ReceiptNo:     in.ReceiptNo,
		Date:          in.Date,
		Customer:      in.Customer,
		Items:         items,
		Total:         total,
		PaymentMethod: in.PaymentMethod,
	}
}

// FromOrder builds a composer input from a marketplace order snapshot.
func FromOrder(order domain.Order, receiptNo, date string) Input {
	if receiptNo == "" {
		receiptNo = order.ReceiptNo
	}
	return Input{
		ReceiptNo:     receiptNo,
		Date:          date,
		Customer:      order.Customer,
		Items:         order.Items,
		PaymentMethod: order.PaymentMethod,
	}
}
