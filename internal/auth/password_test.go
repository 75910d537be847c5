package auth

import (
	"errors"
	"testing"
)

func TestHashPassword(t *testing.T) {
	h, err := HashPassword("koktajl-2024")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !CheckPassword(h, "koktajl-2024") {
		t.Error("correct password rejected")
	}
	if CheckPassword(h, "koktajl-2025") {
		t.Error("wrong password accepted")
	}
	if CheckPassword("", "koktajl-2024") {
		t.Error("empty hash accepted")
	}
}

func TestHashPassword_TooShort(t *testing.T) {
	if _, err := HashPassword("short"); !errors.Is(err, ErrWeakPassword) {
		t.Errorf("err = %v, want ErrWeakPassword", err)
	}
}

func TestGeneratePassword(t *testing.T) {
	a, err := GeneratePassword(24)
	if err != nil {
		t.Fatal(err)
	}
	b, err := GeneratePassword(24)
	if err != nil {
		t.Fatal(err)
	}
	if len(a) != 24 {
		t.Errorf("len = %d, want 24", len(a))
	}
	if a == b {
		t.Error("two generated passwords are identical")
	}
	if _, err := GeneratePassword(0); err == nil {
		t.Error("expected error for zero length")
	}
}

func TestRole(t *testing.T) {
	tests := []struct {
		role  Role
		valid bool
	}{
		{RoleAdmin, true},
		{RoleEditor, true},
		{RoleCustomer, true},
		{"root", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := tt.role.Valid(); got != tt.valid {
			t.Errorf("Role(%q).Valid() = %v, want %v", tt.role, got, tt.valid)
		}
	}
	if !RoleEditor.In(RoleAdmin, RoleEditor) {
		t.Error("editor should be in {admin, editor}")
	}
	if RoleCustomer.In(RoleAdmin, RoleEditor) {
		t.Error("customer should not be in {admin, editor}")
	}
}
