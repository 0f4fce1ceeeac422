package postgres

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/indexr-labs/indexr-go/internal/domain"
)

func TestMarkReadScopedToWallet(t *testing.T) {
	if !strings.Contains(markReadQuery, "wallet_address = $2") {
		t.Fatalf("mark-read must be scoped to the owning wallet")
	}

	db := &fakeDB{affected: 0}
	store := NewNotificationStore(db)
	ok, err := store.MarkRead(context.Background(), "n1", "0xABC")
	if err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if ok {
		t.Fatalf("zero affected rows must report not updated")
	}
	if got := db.lastArgs[1].(string); got != "0xabc" {
		t.Fatalf("wallet arg = %q, want normalized lower-case", got)
	}
}

func TestMarkReadRequiresIDAndWallet(t *testing.T) {
	store := NewNotificationStore(&fakeDB{affected: 1})
	if _, err := store.MarkRead(context.Background(), "", "0xabc"); err == nil {
		t.Fatalf("expected error for blank id")
	}
	if _, err := store.MarkRead(context.Background(), "n1", "  "); err == nil {
		t.Fatalf("expected error for blank wallet")
	}
}

func TestAppendValidatesNotification(t *testing.T) {
	db := &fakeDB{affected: 1}
	store := NewNotificationStore(db)

	err := store.Append(context.Background(), domain.Notification{ID: "n1"})
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if db.lastQuery != "" {
		t.Fatalf("invalid notification must not reach the database")
	}
}

func TestAppendDefaultsCreatedAt(t *testing.T) {
	db := &fakeDB{affected: 1}
	store := NewNotificationStore(db)

	err := store.Append(context.Background(), domain.Notification{
		ID:            "n1",
		WalletAddress: "0xabc0000000000000000000000000000000000001",
		Kind:          domain.NotificationExecuted,
		Title:         "Auto-Invest Executed",
		Message:       "$25 was invested into defi-blue-chips",
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	createdAt, ok := db.lastArgs[7].(time.Time)
	if !ok || createdAt.IsZero() {
		t.Fatalf("created_at must default to now, got %v", db.lastArgs[7])
	}
}
