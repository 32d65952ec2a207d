package application

import (
	"context"
	"errors"
	"testing"

	"github.com/example/live-sessions/internal/persistence"
)

type userRepoStub struct {
	users []UserCredentials
}

func (r *userRepoStub) CreateUser(ctx context.Context, creds UserCredentials) (User, error) {
	for _, existing := range r.users {
		if existing.User.Email == creds.User.Email {
			return User{}, persistence.ErrDuplicate
		}
	}
	r.users = append(r.users, creds)
	return creds.User, nil
}

func (r *userRepoStub) ListUsers(ctx context.Context) ([]User, error) {
	out := make([]User, 0, len(r.users))
	for _, c := range r.users {
		out = append(out, c.User)
	}
	return out, nil
}

func TestUserService_CreateUser(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	admin := Principal{UserID: "admin-1", Role: RoleAdmin}
	repo := &userRepoStub{}
	svc := NewUserService(repo, sequence("user"), newFakeClock(referenceTime).Now, nil)
	svc.hash = func(password string) (string, error) { return "hashed:" + password, nil }

	user, err := svc.CreateUser(ctx, CreateUserParams{Principal: admin, Input: UserInput{
		Email: " Zoe@Example.com ", DisplayName: "Zoe", Password: "long enough",
	}})
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if user.Email != "zoe@example.com" || user.Role != RoleStudent {
		t.Fatalf("expected normalised email and default role, got %#v", user)
	}
	if repo.users[0].PasswordHash != "hashed:long enough" {
		t.Fatalf("expected password to be hashed, got %q", repo.users[0].PasswordHash)
	}

	_, err = svc.CreateUser(ctx, CreateUserParams{Principal: admin, Input: UserInput{
		Email: "zoe@example.com", DisplayName: "Zoe", Password: "long enough",
	}})
	var vErr *ValidationError
	if !errors.Is(err, ErrAlreadyExists) || !errors.As(err, &vErr) || vErr.FieldErrors["email"] == "" {
		t.Fatalf("expected duplicate email error, got %v", err)
	}

	_, err = svc.CreateUser(ctx, CreateUserParams{Principal: admin, Input: UserInput{
		Email: "bad", Role: "janitor", Password: "short",
	}})
	if !errors.As(err, &vErr) || len(vErr.FieldErrors) != 4 {
		t.Fatalf("expected four field errors, got %v", err)
	}

	if _, err := svc.CreateUser(ctx, CreateUserParams{Principal: instructor("inst-1")}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestUserService_ListUsers(t *testing.T) {
	t.Parallel()

	repo := &userRepoStub{users: []UserCredentials{
		{User: User{ID: "2", Email: "b@example.com"}},
		{User: User{ID: "1", Email: "A@example.com"}},
	}}
	svc := NewUserService(repo, nil, nil, nil)

	users, err := svc.ListUsers(context.Background(), SystemPrincipal)
	if err != nil {
		t.Fatalf("ListUsers failed: %v", err)
	}
	if len(users) != 2 || users[0].ID != "1" {
		t.Fatalf("expected users ordered by email, got %#v", users)
	}
	if _, err := svc.ListUsers(context.Background(), student("s")); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}
