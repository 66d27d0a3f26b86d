package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"greendesk/internal/audit"
	"greendesk/internal/domain"
)

// Store is the workspace-local archive. Receipts are the only state this
// service owns; everything else lives in the marketplace backend.
type Store struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// ArchiveReceipt stores a composed receipt and its audit entry in one
// transaction. Archiving the same receipt number again replaces the copy;
// receipts are value objects, so a changed order produces a new number.
func (s Store) ArchiveReceipt(ctx context.Context, orderID string, rc domain.Receipt, operator string, aud audit.Writer) error {
	items, err := json.Marshal(rc.Items)
	if err != nil {
		return fmt.Errorf("marshal items: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	_, err = tx.ExecContext(ctx, `INSERT INTO receipts(receipt_no,order_id,date,customer_name,customer_phone,customer_address,items_json,total,payment_method,created_at)
VALUES (?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(receipt_no) DO UPDATE SET order_id=excluded.order_id, date=excluded.date, customer_name=excluded.customer_name,
customer_phone=excluded.customer_phone, customer_address=excluded.customer_address, items_json=excluded.items_json,
total=excluded.total, payment_method=excluded.payment_method`,
		rc.ReceiptNo, orderID, rc.Date, rc.Customer.Name, nullable(rc.Customer.Phone), nullable(rc.Customer.Address),
		string(items), rc.Total, rc.PaymentMethod, now)
	if err != nil {
		return fmt.Errorf("insert receipt: %w", err)
	}
	if err := aud.Append(ctx, tx, "receipt.compose", "receipt", rc.ReceiptNo, operator, audit.Payload{
		"order_id": orderID,
		"total":    rc.Total,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

func scanReceipt(scan func(dest ...any) error) (domain.Receipt, error) {
	var rc domain.Receipt
	var phone, address sql.NullString
	var itemsJSON string
	err := scan(&rc.ReceiptNo, &rc.Date, &rc.Customer.Name, &phone, &address, &itemsJSON, &rc.Total, &rc.PaymentMethod)
	if err == sql.ErrNoRows {
		return rc, ErrNotFound
	}
	if err != nil {
		return rc, err
	}
	if phone.Valid {
		rc.Customer.Phone = phone.String
	}
	if address.Valid {
		rc.Customer.Address = address.String
	}
	if err := json.Unmarshal([]byte(itemsJSON), &rc.Items); err != nil {
		return rc, fmt.Errorf("decode items: %w", err)
	}
	return rc, nil
}

const receiptColumns = `receipt_no,date,customer_name,customer_phone,customer_address,items_json,total,payment_method`

// GetReceipt returns an archived receipt by number.
func (s Store) GetReceipt(ctx context.Context, receiptNo string) (domain.Receipt, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+receiptColumns+` FROM receipts WHERE receipt_no=?`, receiptNo)
	return scanReceipt(row.Scan)
}

// ListReceipts returns archived receipts, newest first.
func (s Store) ListReceipts(ctx context.Context, limit int) ([]domain.Receipt, error) {
	query := `SELECT ` + receiptColumns + ` FROM receipts ORDER BY created_at DESC, receipt_no DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var receipts []domain.Receipt
	for rows.Next() {
		rc, err := scanReceipt(rows.Scan)
		if err != nil {
			return nil, err
		}
		receipts = append(receipts, rc)
	}
	return receipts, rows.Err()
}

// LatestAuditEvents returns the newest audit entries, optionally filtered by type.
func (s Store) LatestAuditEvents(ctx context.Context, limit int, evtType string) ([]domain.AuditEvent, error) {
	query := `SELECT id,ts,type,entity_kind,COALESCE(entity_id,''),operator,payload_json FROM audit_events`
	var args []any
	if evtType != "" {
		query += ` WHERE type=?`
		args = append(args, evtType)
	}
	query += ` ORDER BY id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryAuditEvents(ctx, query, args...)
}

// AuditEventsAfter returns audit entries with id greater than cursor, oldest
// first, for webhook dispatch.
func (s Store) AuditEventsAfter(ctx context.Context, limit int, cursor int64) ([]domain.AuditEvent, error) {
	query := `SELECT id,ts,type,entity_kind,COALESCE(entity_id,''),operator,payload_json FROM audit_events WHERE id>? ORDER BY id ASC`
	args := []any{cursor}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryAuditEvents(ctx, query, args...)
}

// LatestAuditEventID returns the id of the newest audit entry, 0 when the
// log is empty. Webhook dispatch starts its cursor here so restarts do not
// replay history.
func (s Store) LatestAuditEventID(ctx context.Context) (int64, error) {
	var id sql.NullInt64
	if err := s.DB.QueryRowContext(ctx, `SELECT MAX(id) FROM audit_events`).Scan(&id); err != nil {
		return 0, err
	}
	return id.Int64, nil
}

func (s Store) queryAuditEvents(ctx context.Context, query string, args ...any) ([]domain.AuditEvent, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var events []domain.AuditEvent
	for rows.Next() {
		var ev domain.AuditEvent
		if err := rows.Scan(&ev.ID, &ev.TS, &ev.Type, &ev.EntityKind, &ev.EntityID, &ev.Operator, &ev.Payload); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func nullable(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
