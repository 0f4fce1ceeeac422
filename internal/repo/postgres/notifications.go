package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/indexr-labs/indexr-go/internal/domain"
	"github.com/indexr-labs/indexr-go/internal/repo"
)

const markReadQuery = `UPDATE notifications
	SET read = TRUE
	WHERE id = $1
	  AND wallet_address = $2`

type NotificationStore struct {
	db DB
}

func NewNotificationStore(db DB) *NotificationStore {
	if db == nil {
		return nil
	}
	return &NotificationStore{db: db}
}

func (s *NotificationStore) Append(ctx context.Context, n domain.Notification) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("notification store not initialized")
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if err := n.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO notifications (
			id, wallet_address, plan_id, kind, title, message, read, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		n.ID,
		n.WalletAddress,
		nullString(n.PlanID),
		string(n.Kind),
		n.Title,
		n.Message,
		n.Read,
		normalizeTime(n.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *NotificationStore) List(ctx context.Context, filter repo.NotificationFilter) ([]domain.Notification, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("notification store not initialized")
	}
	wallet := domain.NormalizeWallet(filter.WalletAddress)
	if wallet == "" {
		return nil, fmt.Errorf("wallet address is required")
	}
	query := `SELECT id, wallet_address, plan_id, kind, title, message, read, created_at
		FROM notifications
		WHERE wallet_address = $1`
	args := []any{wallet}
	if filter.UnreadOnly {
		query += " AND read = FALSE"
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.Notification
	for rows.Next() {
		var (
			n      domain.Notification
			planID sql.NullString
			kind   string
		)
		if err := rows.Scan(&n.ID, &n.WalletAddress, &planID, &kind, &n.Title, &n.Message, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		if planID.Valid {
			n.PlanID = planID.String
		}
		n.Kind = domain.NotificationKind(kind)
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *NotificationStore) MarkRead(ctx context.Context, id, walletAddress string) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("notification store not initialized")
	}
	id = strings.TrimSpace(id)
	wallet := domain.NormalizeWallet(walletAddress)
	if id == "" || wallet == "" {
		return false, fmt.Errorf("notification id and wallet address are required")
	}
	res, err := s.db.ExecContext(ctx, markReadQuery, id, wallet)
	if err != nil {
		return false, fmt.Errorf("mark notification read: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark notification read: %w", err)
	}
	return affected == 1, nil
}
