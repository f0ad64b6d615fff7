package users

import (
	"context"
	"testing"

	"github.com/rankboard/rankboard/internal/app/storage/memory"
	"github.com/rankboard/rankboard/internal/errors"
	"github.com/rankboard/rankboard/internal/logging"
)

func newService() *Service {
	return NewService(memory.New(), logging.New("test"))
}

func TestRegisterAndLogin(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	u, err := svc.Register(ctx, "Alice@Example.com", "alice", "hunter2hunter2")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if u.Email != "alice@example.com" {
		t.Fatalf("email not normalized: %q", u.Email)
	}
	if u.PasswordHash == "hunter2hunter2" {
		t.Fatal("password stored in clear")
	}

	got, err := svc.Login(ctx, "alice@example.com", "hunter2hunter2")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if got.ID != u.ID {
		t.Fatalf("login returned wrong user: %s != %s", got.ID, u.ID)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	cases := []struct {
		name              string
		email, user, pass string
	}{
		{"bad email", "nope", "alice", "hunter2hunter2"},
		{"empty username", "a@b.c", "", "hunter2hunter2"},
		{"short password", "a@b.c", "alice", "short"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tc.email, tc.user, tc.pass)
			se := errors.GetServiceError(err)
			if se == nil || se.Code != errors.CodeInvalidInput {
				t.Fatalf("expected invalid input, got %v", err)
			}
		})
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	if _, err := svc.Register(ctx, "a@b.c", "alice", "hunter2hunter2"); err != nil {
		t.Fatalf("register: %v", err)
	}
	_, err := svc.Register(ctx, "A@B.C", "alice2", "hunter2hunter2")
	se := errors.GetServiceError(err)
	if se == nil || se.Code != errors.CodeConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	if _, err := svc.Register(ctx, "a@b.c", "alice", "hunter2hunter2"); err != nil {
		t.Fatalf("register: %v", err)
	}

	for name, attempt := range map[string][2]string{
		"wrong password": {"a@b.c", "wrong-password"},
		"unknown email":  {"ghost@b.c", "hunter2hunter2"},
	} {
		_, err := svc.Login(ctx, attempt[0], attempt[1])
		se := errors.GetServiceError(err)
		if se == nil || se.Code != errors.CodeUnauthorized {
			t.Fatalf("%s: expected unauthorized, got %v", name, err)
		}
	}
}
