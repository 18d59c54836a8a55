package tools

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDirectory(t *testing.T) (*SQLDirectory, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQLDirectory(db), mock
}

func TestSQLDirectoryCustomer(t *testing.T) {
	dir, mock := newMockDirectory(t)
	joined := time.Date(2023, 1, 15, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT customer_id, name, email, tier, account_status, joined_at\s+FROM customers`).
		WithArgs("C12345").
		WillReturnRows(sqlmock.NewRows([]string{"customer_id", "name", "email", "tier", "account_status", "joined_at"}).
			AddRow("C12345", "John Doe", "john.doe@example.com", "pro", "active", joined))

	c, err := dir.Customer(context.Background(), "C12345")
	require.NoError(t, err)
	assert.Equal(t, "pro", c.Tier)
	assert.Equal(t, "2023-01-15", c.JoinedDate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLDirectoryCustomerNotFound(t *testing.T) {
	dir, mock := newMockDirectory(t)
	mock.ExpectQuery(`FROM customers`).WithArgs("NOPE").WillReturnError(sql.ErrNoRows)

	_, err := dir.Customer(context.Background(), "NOPE")
	assert.ErrorIs(t, err, ErrNotFound)

	out := NewDatabaseTool(dir).Execute(context.Background(), DatabaseInput{QueryType: QueryCustomerInfo, CustomerID: "x"})
	assert.False(t, out.Succeeded, "unexpected query")
}

func TestSQLDirectoryPayments(t *testing.T) {
	dir, mock := newMockDirectory(t)
	paid := time.Date(2024, 12, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM payments WHERE customer_id = \$1\s+ORDER BY paid_at DESC LIMIT \$2`).
		WithArgs("C12345", 5).
		WillReturnRows(sqlmock.NewRows([]string{"payment_id", "paid_at", "amount", "status", "description"}).
			AddRow("PAY-002", paid, 49.99, "completed", "Pro subscription - December").
			AddRow("PAY-001", paid.AddDate(0, -1, 0), 49.99, "completed", "Pro subscription - November"))

	payments, err := dir.Payments(context.Background(), "C12345", 5)
	require.NoError(t, err)
	require.Len(t, payments, 2)
	assert.Equal(t, "PAY-002", payments[0].PaymentID)
	assert.Equal(t, "2024-12-01", payments[0].Date)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLDirectoryTicketsDefaultLimit(t *testing.T) {
	dir, mock := newMockDirectory(t)
	mock.ExpectQuery(`FROM tickets`).
		WithArgs("C1", 100).
		WillReturnRows(sqlmock.NewRows([]string{"ticket_id", "opened_at", "subject", "status", "resolution_hours"}))

	tickets, err := dir.Tickets(context.Background(), "C1", 0)
	require.NoError(t, err)
	assert.Empty(t, tickets)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLDirectoryQueryError(t *testing.T) {
	dir, mock := newMockDirectory(t)
	mock.ExpectQuery(`FROM payments`).WillReturnError(errors.New("connection reset"))

	out := NewDatabaseTool(dir).Execute(context.Background(), DatabaseInput{QueryType: QueryPaymentHistory, CustomerID: "C1", Limit: 5})
	assert.False(t, out.Succeeded)
	assert.Contains(t, out.Error, "connection reset")
}
