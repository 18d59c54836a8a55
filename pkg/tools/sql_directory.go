package tools

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// SQLDirectory reads customers, tickets and payments from Postgres.
type SQLDirectory struct {
	db *sql.DB
}

// OpenSQLDirectory opens a pgx-backed connection pool.
func OpenSQLDirectory(ctx context.Context, dsn string) (*SQLDirectory, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &SQLDirectory{db: db}, nil
}

// NewSQLDirectory wraps an existing handle.
func NewSQLDirectory(db *sql.DB) *SQLDirectory {
	return &SQLDirectory{db: db}
}

// Close releases the pool.
func (d *SQLDirectory) Close() error {
	return d.db.Close()
}

// Customer implements Directory.
func (d *SQLDirectory) Customer(ctx context.Context, customerID string) (CustomerRecord, error) {
	var c CustomerRecord
	var joined time.Time
	err := d.db.QueryRowContext(ctx,
		`SELECT customer_id, name, email, tier, account_status, joined_at
		   FROM customers WHERE customer_id = $1`, customerID,
	).Scan(&c.CustomerID, &c.Name, &c.Email, &c.Tier, &c.AccountStatus, &joined)
	if errors.Is(err, sql.ErrNoRows) {
		return CustomerRecord{}, fmt.Errorf("customer %s: %w", customerID, ErrNotFound)
	}
	if err != nil {
		return CustomerRecord{}, fmt.Errorf("query customer: %w", err)
	}
	c.JoinedDate = joined.Format(time.DateOnly)
	return c, nil
}

// Tickets implements Directory.
func (d *SQLDirectory) Tickets(ctx context.Context, customerID string, limit int) ([]TicketRecord, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT ticket_id, opened_at, subject, status, resolution_hours
		   FROM tickets WHERE customer_id = $1
		  ORDER BY opened_at DESC LIMIT $2`, customerID, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query tickets: %w", err)
	}
	defer rows.Close()

	var out []TicketRecord
	for rows.Next() {
		var t TicketRecord
		var opened time.Time
		if err := rows.Scan(&t.TicketID, &opened, &t.Subject, &t.Status, &t.ResolutionTimeHours); err != nil {
			return nil, fmt.Errorf("scan ticket: %w", err)
		}
		t.Date = opened.Format(time.DateOnly)
		out = append(out, t)
	}
	return out, rows.Err()
}

// Payments implements Directory.
func (d *SQLDirectory) Payments(ctx context.Context, customerID string, limit int) ([]PaymentRecord, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT payment_id, paid_at, amount, status, description
		   FROM payments WHERE customer_id = $1
		  ORDER BY paid_at DESC LIMIT $2`, customerID, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query payments: %w", err)
	}
	defer rows.Close()

	var out []PaymentRecord
	for rows.Next() {
		var p PaymentRecord
		var paid time.Time
		if err := rows.Scan(&p.PaymentID, &paid, &p.Amount, &p.Status, &p.Description); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		p.Date = paid.Format(time.DateOnly)
		out = append(out, p)
	}
	return out, rows.Err()
}

func sqlLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	return limit
}
