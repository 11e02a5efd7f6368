package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"caregate/internal/notification/models"
	id "caregate/pkg/domain"
	"caregate/pkg/platform/sentinel"
	txcontext "caregate/pkg/platform/tx"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Create(ctx context.Context, delivery *models.Delivery) error {
	payload, err := json.Marshal(delivery.Payload)
	if err != nil {
		return fmt.Errorf("marshal delivery payload: %w", err)
	}

	const query = `
		INSERT INTO notification_deliveries (id, event_type, target, payload, status,
		                                     attempts, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	if _, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(delivery.ID),
		delivery.EventType,
		delivery.Target,
		payload,
		string(delivery.Status),
		delivery.Attempts,
		delivery.LastError,
		delivery.CreatedAt,
		delivery.UpdatedAt,
	); err != nil {
		return fmt.Errorf("insert delivery: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, deliveryID id.DeliveryID) (*models.Delivery, error) {
	const query = `
		SELECT id, event_type, target, payload, status, attempts, last_error,
		       created_at, updated_at, delivered_at
		FROM notification_deliveries
		WHERE id = $1
	`
	return scanDelivery(s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(deliveryID)))
}

func (s *PostgresStore) Update(ctx context.Context, delivery *models.Delivery) error {
	const query = `
		UPDATE notification_deliveries
		SET status = $1, attempts = $2, last_error = $3, updated_at = $4, delivered_at = $5
		WHERE id = $6
	`
	result, err := s.execer(ctx).ExecContext(ctx, query,
		string(delivery.Status),
		delivery.Attempts,
		delivery.LastError,
		delivery.UpdatedAt,
		delivery.DeliveredAt,
		uuid.UUID(delivery.ID),
	)
	if err != nil {
		return fmt.Errorf("update delivery: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update delivery: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListFailed(ctx context.Context) ([]*models.Delivery, error) {
	const query = `
		SELECT id, event_type, target, payload, status, attempts, last_error,
		       created_at, updated_at, delivered_at
		FROM notification_deliveries
		WHERE status = $1
		ORDER BY created_at ASC
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, string(models.StatusFailed))
	if err != nil {
		return nil, fmt.Errorf("query failed deliveries: %w", err)
	}
	defer rows.Close()

	var out []*models.Delivery
	for rows.Next() {
		delivery, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, delivery)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deliveries: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDelivery(row rowScanner) (*models.Delivery, error) {
	var (
		delivery    models.Delivery
		deliveryID  uuid.UUID
		payload     []byte
		status      string
		lastError   sql.NullString
		deliveredAt sql.NullTime
	)
	err := row.Scan(
		&deliveryID,
		&delivery.EventType,
		&delivery.Target,
		&payload,
		&status,
		&delivery.Attempts,
		&lastError,
		&delivery.CreatedAt,
		&delivery.UpdatedAt,
		&deliveredAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan delivery: %w", err)
	}

	delivery.ID = id.DeliveryID(deliveryID)
	delivery.Status = models.Status(status)
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &delivery.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal delivery payload: %w", err)
		}
	}
	if lastError.Valid {
		delivery.LastError = lastError.String
	}
	if deliveredAt.Valid {
		at := deliveredAt.Time
		delivery.DeliveredAt = &at
	}
	return &delivery, nil
}
