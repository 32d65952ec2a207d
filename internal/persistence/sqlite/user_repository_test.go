package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/example/live-sessions/internal/persistence"
)

func TestUserRepository(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := openTestStorage(t)
	repo := storage.Users

	user := persistence.User{
		ID:           "user-1",
		Email:        "  Teacher@Example.com ",
		DisplayName:  "Teacher",
		Role:         "instructor",
		PasswordHash: "hash",
		CreatedAt:    baseTime,
		UpdatedAt:    baseTime,
	}
	if err := repo.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	t.Run("lookup by normalised email", func(t *testing.T) {
		got, err := repo.GetUserByEmail(ctx, "teacher@example.com")
		if err != nil {
			t.Fatalf("GetUserByEmail failed: %v", err)
		}
		if got.ID != "user-1" || got.Email != "teacher@example.com" || got.Role != "instructor" {
			t.Fatalf("unexpected user %#v", got)
		}
		if !got.CreatedAt.Equal(baseTime) {
			t.Fatalf("expected created_at %v, got %v", baseTime, got.CreatedAt)
		}
	})

	t.Run("duplicate email", func(t *testing.T) {
		dupe := user
		dupe.ID = "user-2"
		dupe.Email = "TEACHER@example.com"
		if err := repo.CreateUser(ctx, dupe); !errors.Is(err, persistence.ErrDuplicate) {
			t.Fatalf("expected ErrDuplicate, got %v", err)
		}
	})

	t.Run("invalid role", func(t *testing.T) {
		bad := user
		bad.ID = "user-3"
		bad.Email = "other@example.com"
		bad.Role = "janitor"
		if err := repo.CreateUser(ctx, bad); !errors.Is(err, persistence.ErrConstraintViolation) {
			t.Fatalf("expected ErrConstraintViolation, got %v", err)
		}
	})

	t.Run("disable", func(t *testing.T) {
		if err := repo.SetUserDisabled(ctx, "user-1", true, baseTime); err != nil {
			t.Fatalf("SetUserDisabled failed: %v", err)
		}
		got, err := repo.GetUser(ctx, "user-1")
		if err != nil || !got.Disabled {
			t.Fatalf("expected disabled user, got %#v err=%v", got, err)
		}
		if err := repo.SetUserDisabled(ctx, "missing", true, baseTime); !errors.Is(err, persistence.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("missing", func(t *testing.T) {
		if _, err := repo.GetUser(ctx, "nobody"); !errors.Is(err, persistence.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if _, err := repo.GetUserByEmail(ctx, " "); !errors.Is(err, persistence.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestUserRepository_ListUsersOrdersByCreation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := openTestStorage(t).Users

	for i, id := range []string{"b", "a", "c"} {
		user := persistence.User{
			ID:           id,
			Email:        id + "@example.com",
			DisplayName:  id,
			Role:         "student",
			PasswordHash: "hash",
			CreatedAt:    baseTime,
			UpdatedAt:    baseTime,
		}
		if i == 2 {
			user.CreatedAt = baseTime.Add(-1)
		}
		if err := repo.CreateUser(ctx, user); err != nil {
			t.Fatalf("CreateUser failed: %v", err)
		}
	}

	users, err := repo.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers failed: %v", err)
	}
	var ids []string
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	if len(ids) != 3 || ids[0] != "c" || ids[1] != "a" || ids[2] != "b" {
		t.Fatalf("unexpected order %v", ids)
	}
}
