package domain

import (
	"errors"
	"strings"
	"time"
)

// NotificationKind classifies a user-facing notification.
type NotificationKind string

const (
	NotificationLowBalance                NotificationKind = "low_balance"
	NotificationInsufficientAuthorization NotificationKind = "insufficient_authorization"
	NotificationExecuted                  NotificationKind = "executed"
	NotificationFailed                    NotificationKind = "failed"
)

// Notification is an immutable append-only record. Only the read flag
// may change later, and only by the owner, outside the engine.
type Notification struct {
	ID            string
	WalletAddress string
	PlanID        string
	Kind          NotificationKind
	Title         string
	Message       string
	Read          bool
	CreatedAt     time.Time
}

func (n Notification) Validate() error {
	if strings.TrimSpace(n.ID) == "" {
		return errors.New("notification id is required")
	}
	if strings.TrimSpace(n.WalletAddress) == "" {
		return errors.New("wallet address is required")
	}
	switch n.Kind {
	case NotificationLowBalance, NotificationInsufficientAuthorization,
		NotificationExecuted, NotificationFailed:
	default:
		return errors.New("notification kind is invalid")
	}
	if strings.TrimSpace(n.Title) == "" {
		return errors.New("notification title is required")
	}
	if strings.TrimSpace(n.Message) == "" {
		return errors.New("notification message is required")
	}
	return nil
}
