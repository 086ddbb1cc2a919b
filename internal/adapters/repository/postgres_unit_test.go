package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestPostgresRepository_Unit(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("failed to open sqlmock: %s", err)
	}
	defer db.Close()

	repo := NewPostgresRepository(db)
	ctx := context.Background()

	// 1. Test GetAllAdmins
	t.Run("GetAllAdmins", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"id"}).AddRow(1001).AddRow(1002)

		mock.ExpectQuery(`SELECT id FROM users WHERE is_admin = TRUE ORDER BY id`).
			WillReturnRows(rows)

		admins, err := repo.GetAllAdmins(ctx)
		if err != nil {
			t.Fatalf("GetAllAdmins failed: %v", err)
		}
		if len(admins) != 2 || admins[0].UserID != 1001 || admins[1].UserID != 1002 {
			t.Errorf("Unexpected admins: %+v", admins)
		}
		for _, a := range admins {
			if !a.IsAdmin {
				t.Errorf("Expected IsAdmin on %+v", a)
			}
		}
	})

	// 2. Test SetAdminFlag
	t.Run("SetAdminFlag", func(t *testing.T) {
		mock.ExpectExec(`INSERT INTO users \(id, is_admin, added_at\) VALUES \(\$1, \$2, NOW\(\)\)`).
			WithArgs(int64(1003), true).
			WillReturnResult(sqlmock.NewResult(0, 1))

		if err := repo.SetAdminFlag(ctx, 1003, true); err != nil {
			t.Errorf("SetAdminFlag failed: %v", err)
		}
	})

	// 3. Test GetUser
	t.Run("GetUser", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"id", "username", "first_name", "last_name", "is_admin", "added_at"}).
			AddRow(1001, "alice", "Alice", nil, true, time.Now())

		mock.ExpectQuery(`SELECT (.+) FROM users WHERE id = \$1`).
			WithArgs(int64(1001)).
			WillReturnRows(rows)

		u, err := repo.GetUser(ctx, 1001)
		if err != nil {
			t.Fatalf("GetUser failed: %v", err)
		}
		if u == nil || u.Username != "alice" || u.FirstName != "Alice" || u.LastName != "" {
			t.Errorf("Unexpected user: %+v", u)
		}
	})

	// 4. Test GetUser not found
	t.Run("GetUserNotFound", func(t *testing.T) {
		mock.ExpectQuery(`SELECT (.+) FROM users WHERE id = \$1`).
			WithArgs(int64(5)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "username", "first_name", "last_name", "is_admin", "added_at"}))

		u, err := repo.GetUser(ctx, 5)
		if err != nil || u != nil {
			t.Errorf("Expected nil, nil; got %+v, %v", u, err)
		}
	})

	// 5. Test Ping
	t.Run("Ping", func(t *testing.T) {
		mock.ExpectPing()
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestPostgresRepository_Errors(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %s", err)
	}
	defer db.Close()

	repo := NewPostgresRepository(db)
	ctx := context.Background()
	dbErr := errors.New("connection refused")

	mock.ExpectQuery(`SELECT id FROM users`).WillReturnError(dbErr)
	if _, err := repo.GetAllAdmins(ctx); !errors.Is(err, dbErr) {
		t.Errorf("expected wrapped db error, got %v", err)
	}

	mock.ExpectQuery(`SELECT id FROM users`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("not-a-number"))
	if _, err := repo.GetAllAdmins(ctx); err == nil {
		t.Error("expected scan error")
	}

	mock.ExpectExec(`INSERT INTO users`).WithArgs(int64(7), false).WillReturnError(dbErr)
	if err := repo.SetAdminFlag(ctx, 7, false); !errors.Is(err, dbErr) {
		t.Errorf("expected wrapped db error, got %v", err)
	}

	mock.ExpectQuery(`SELECT (.+) FROM users WHERE id = \$1`).WithArgs(int64(7)).WillReturnError(dbErr)
	if _, err := repo.GetUser(ctx, 7); err == nil {
		t.Error("expected GetUser error")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}
