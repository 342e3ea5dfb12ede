package identity

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/wardtrack/wardtrack/internal/platform/store"
)

func newTestService() *Service {
	return NewService(store.NewMemoryStore(), zerolog.Nop())
}

func TestEnsureUsersSeedsDefaults(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	if err := svc.EnsureUsers(ctx, []string{"anna", "bruno", "carla"}); err != nil {
		t.Fatalf("EnsureUsers: %v", err)
	}
	names, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(names) != 3 || names[0] != "anna" || names[1] != "bruno" || names[2] != "carla" {
		t.Errorf("roster = %v", names)
	}
	ok, err := svc.Authenticate(ctx, "anna", DefaultPassword)
	if err != nil || !ok {
		t.Errorf("default password rejected: ok=%v err=%v", ok, err)
	}
}

func TestEnsureUsersKeepsExistingPasswords(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	if err := svc.EnsureUsers(ctx, []string{"anna"}); err != nil {
		t.Fatalf("EnsureUsers: %v", err)
	}
	if err := svc.ChangePassword(ctx, "anna", DefaultPassword, "nuova"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if err := svc.EnsureUsers(ctx, []string{"anna", "bruno"}); err != nil {
		t.Fatalf("EnsureUsers again: %v", err)
	}
	ok, err := svc.Authenticate(ctx, "anna", "nuova")
	if err != nil || !ok {
		t.Errorf("changed password lost after re-seed: ok=%v err=%v", ok, err)
	}
	names, _ := svc.List(ctx)
	if len(names) != 2 {
		t.Errorf("roster = %v, want 2 users", names)
	}
}

func TestEnsureUsersSkipsBlankNames(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	if err := svc.EnsureUsers(ctx, []string{"", "  ", "anna"}); err != nil {
		t.Fatalf("EnsureUsers: %v", err)
	}
	names, _ := svc.List(ctx)
	if len(names) != 1 || names[0] != "anna" {
		t.Errorf("roster = %v", names)
	}
}

func TestAuthenticate(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	if err := svc.EnsureUsers(ctx, []string{"anna"}); err != nil {
		t.Fatalf("EnsureUsers: %v", err)
	}

	tests := []struct {
		name     string
		user     string
		password string
		want     bool
	}{
		{"correct", "anna", DefaultPassword, true},
		{"wrong password", "anna", "x", false},
		{"unknown user", "zoe", DefaultPassword, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := svc.Authenticate(ctx, tt.user, tt.password)
			if err != nil {
				t.Fatalf("Authenticate: %v", err)
			}
			if ok != tt.want {
				t.Errorf("got %v, want %v", ok, tt.want)
			}
		})
	}
}

func TestChangePassword(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	if err := svc.EnsureUsers(ctx, []string{"anna"}); err != nil {
		t.Fatalf("EnsureUsers: %v", err)
	}

	if err := svc.ChangePassword(ctx, "anna", "wrong", "new"); err == nil {
		t.Error("expected error on wrong old password")
	}
	if err := svc.ChangePassword(ctx, "anna", DefaultPassword, "  "); err == nil {
		t.Error("expected error on blank new password")
	}
	if err := svc.ChangePassword(ctx, "zoe", DefaultPassword, "new"); err != ErrUnknownUser {
		t.Errorf("got %v, want ErrUnknownUser", err)
	}

	if err := svc.ChangePassword(ctx, "anna", DefaultPassword, "new"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if ok, _ := svc.Authenticate(ctx, "anna", "new"); !ok {
		t.Error("new password rejected")
	}
	if ok, _ := svc.Authenticate(ctx, "anna", DefaultPassword); ok {
		t.Error("old password still accepted")
	}
}

func TestResetPassword(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	if err := svc.EnsureUsers(ctx, []string{"anna"}); err != nil {
		t.Fatalf("EnsureUsers: %v", err)
	}
	if err := svc.ChangePassword(ctx, "anna", DefaultPassword, "new"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}

	if err := svc.ResetPassword(ctx, "anna"); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}
	if ok, _ := svc.Authenticate(ctx, "anna", DefaultPassword); !ok {
		t.Error("default password rejected after reset")
	}

	if err := svc.ResetPassword(ctx, "zoe"); err != ErrUnknownUser {
		t.Errorf("got %v, want ErrUnknownUser", err)
	}
}

func TestRosterSurvivesCorruptDocument(t *testing.T) {
	mem := store.NewMemoryStore()
	svc := NewService(mem, zerolog.Nop())
	ctx := context.Background()

	if err := mem.Save(ctx, store.UsersKey, []byte("not json")); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := svc.EnsureUsers(ctx, []string{"anna"}); err != nil {
		t.Fatalf("EnsureUsers: %v", err)
	}
	names, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(names) != 1 || names[0] != "anna" {
		t.Errorf("roster = %v", names)
	}
}
