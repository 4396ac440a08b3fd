package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/sakif/pollquest/internal/model"
	"github.com/sakif/pollquest/internal/repository"
)

// newTestDB returns a fresh in-memory database. The pool is pinned to one
// connection, so every query in the test sees the same ":memory:" instance.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrate_IsIdempotent(t *testing.T) {
	db := newTestDB(t)
	if err := db.migrate(); err != nil {
		t.Fatalf("second migrate() error = %v", err)
	}
}

func TestPing(t *testing.T) {
	db := newTestDB(t)
	if err := db.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
}

func TestWithinTx_RollsBackOnError(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := db.WithinTx(ctx, func(tx repository.Store) error {
		if err := tx.CreateUser(ctx, &model.User{Username: "ghost", Email: "ghost@example.com", PasswordHash: "x"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithinTx() error = %v, want %v", err, boom)
	}

	users, err := db.ListUsersByXP(ctx, 10)
	if err != nil {
		t.Fatalf("ListUsersByXP() error = %v", err)
	}
	if len(users) != 0 {
		t.Errorf("rolled back insert is visible: %d users", len(users))
	}
}

func TestWithinTx_RollsBackOnPanic(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("expected panic to propagate")
			}
		}()
		_ = db.WithinTx(ctx, func(tx repository.Store) error {
			_ = tx.CreateUser(ctx, &model.User{Username: "ghost", Email: "ghost@example.com", PasswordHash: "x"})
			panic("mid-transaction")
		})
	}()

	if _, err := db.GetUserByEmail(ctx, "ghost@example.com"); err == nil {
		t.Error("insert from panicking transaction was committed")
	}
}

func TestWithinTx_NestedJoinsOuter(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	boom := errors.New("outer fails after inner succeeds")

	err := db.WithinTx(ctx, func(tx repository.Store) error {
		inner := tx.WithinTx(ctx, func(tx repository.Store) error {
			return tx.CreateUser(ctx, &model.User{Username: "nested", Email: "nested@example.com", PasswordHash: "x"})
		})
		if inner != nil {
			return inner
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithinTx() error = %v, want %v", err, boom)
	}

	if _, err := db.GetUserByEmail(ctx, "nested@example.com"); err == nil {
		t.Error("inner transaction committed independently of the outer one")
	}
}
