package auth

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

// newTestPasswordService uses the minimum bcrypt cost so tests stay fast.
func newTestPasswordService() *PasswordService {
	return NewPasswordService(bcrypt.MinCost)
}

// =========================================================================
// HASH TESTS
// =========================================================================

func TestHash_LooksLikeBcrypt(t *testing.T) {
	p := newTestPasswordService()

	hash, err := p.Hash("hunter2")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if !strings.HasPrefix(hash, "$2a$") {
		t.Errorf("Hash() = %q, want a $2a$ bcrypt hash", hash)
	}
}

func TestHash_Salted(t *testing.T) {
	p := newTestPasswordService()

	a, _ := p.Hash("hunter2")
	b, _ := p.Hash("hunter2")
	if a == b {
		t.Error("identical passwords produced identical hashes")
	}
}

func TestHash_LengthLimit(t *testing.T) {
	p := newTestPasswordService()

	if _, err := p.Hash(strings.Repeat("a", 72)); err != nil {
		t.Errorf("Hash(72 bytes) error = %v", err)
	}
	if _, err := p.Hash(strings.Repeat("a", 73)); err == nil {
		t.Error("Hash(73 bytes) should fail")
	}
}

func TestNewPasswordService_DefaultCost(t *testing.T) {
	if got := NewPasswordService(0).cost; got != DefaultPasswordCost {
		t.Errorf("cost = %d, want %d", got, DefaultPasswordCost)
	}
}

// =========================================================================
// VERIFY TESTS
// =========================================================================

func TestVerify(t *testing.T) {
	p := newTestPasswordService()
	hash, err := p.Hash("hunter2")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}

	tests := []struct {
		name     string
		hash     string
		password string
		wantErr  error
		anyErr   bool
	}{
		{name: "correct", hash: hash, password: "hunter2"},
		{name: "wrong", hash: hash, password: "hunter3", wantErr: ErrPasswordMismatch},
		{name: "empty", hash: hash, password: "", wantErr: ErrPasswordMismatch},
		{name: "garbage hash", hash: "not-a-hash", password: "hunter2", anyErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := p.Verify(tc.hash, tc.password)
			switch {
			case tc.anyErr:
				if err == nil || errors.Is(err, ErrPasswordMismatch) {
					t.Errorf("Verify() error = %v, want a non-mismatch error", err)
				}
			case tc.wantErr != nil:
				if !errors.Is(err, tc.wantErr) {
					t.Errorf("Verify() error = %v, want %v", err, tc.wantErr)
				}
			default:
				if err != nil {
					t.Errorf("Verify() error = %v", err)
				}
			}
		})
	}
}
