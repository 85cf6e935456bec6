package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"

	"github.com/sakif/device-manager/internal/apperror"
	"github.com/sakif/device-manager/internal/model"
)

// =========================================================================
// FAKES
// =========================================================================

type fakeUsers struct {
	users map[string]*model.User
	err   error
}

func (f *fakeUsers) GetUser(_ context.Context, id string) (*model.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	return u, nil
}

// =========================================================================
// PRINCIPAL TESTS
// =========================================================================

func TestPrincipal_FromUser(t *testing.T) {
	p := FromUser(&model.User{ID: 7, ExternalID: "123", Username: "U", Email: "u@x.com", AvatarURL: "http://pic"})

	if p.GetID() != "123" {
		t.Errorf("GetID() = %q, want %q", p.GetID(), "123")
	}
	if !p.IsAuthenticated() || !p.IsActive() || p.IsAnonymous() {
		t.Errorf("flags = (auth %v, active %v, anon %v), want (true, true, false)",
			p.IsAuthenticated(), p.IsActive(), p.IsAnonymous())
	}
	if p.Name != "U" || p.Email != "u@x.com" || p.AvatarURL != "http://pic" {
		t.Errorf("profile = %+v", p)
	}
}

func TestPrincipalContext(t *testing.T) {
	if _, ok := PrincipalFromContext(context.Background()); ok {
		t.Fatal("empty context should carry no principal")
	}

	want := &Principal{ID: "123", Active: true}
	got, ok := PrincipalFromContext(WithPrincipal(context.Background(), want))
	if !ok || got != want {
		t.Errorf("PrincipalFromContext() = %v, %v", got, ok)
	}

	if _, ok := PrincipalFromContext(WithPrincipal(context.Background(), nil)); ok {
		t.Error("nil principal should read back as absent")
	}
}

// =========================================================================
// LOADER TESTS
// =========================================================================

func TestLoader_Load(t *testing.T) {
	users := &fakeUsers{users: map[string]*model.User{
		"123": {ExternalID: "123", Username: "U", Email: "u@x.com"},
	}}
	l := NewLoader(users)

	p, err := l.Load(context.Background(), "123")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if p.GetID() != "123" {
		t.Errorf("GetID() = %q, want %q", p.GetID(), "123")
	}
}

func TestLoader_Load_Errors(t *testing.T) {
	storeErr := apperror.StoreQuery("get user", errors.New("disk I/O error"))

	tests := []struct {
		name    string
		id      string
		err     error
		wantErr error
	}{
		{name: "unknown id", id: "999", wantErr: ErrNoSession},
		{name: "empty id", id: "", wantErr: ErrNoSession},
		{name: "store failure", id: "123", err: storeErr, wantErr: apperror.ErrStoreQuery},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			l := NewLoader(&fakeUsers{users: map[string]*model.User{}, err: tc.err})

			p, err := l.Load(context.Background(), tc.id)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("Load() error = %v, want %v", err, tc.wantErr)
			}
			if p != nil {
				t.Errorf("Load() principal = %+v, want nil", p)
			}
		})
	}

	// a broken store must not be mistaken for a logged-out user
	_, err := NewLoader(&fakeUsers{err: storeErr}).Load(context.Background(), "123")
	if errors.Is(err, ErrNoSession) {
		t.Error("store failure reported as ErrNoSession")
	}
}

// =========================================================================
// REVOKER TESTS
// =========================================================================

func TestRedisRevoker(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	r := NewRedisRevoker(rdb)
	ctx := context.Background()

	mock.ExpectGet("devicemgr:revoked:abc").RedisNil()
	mock.ExpectSet("devicemgr:revoked:abc", "1", time.Hour).SetVal("OK")
	mock.ExpectGet("devicemgr:revoked:abc").SetVal("1")

	revoked, err := r.IsRevoked(ctx, "abc")
	if err != nil || revoked {
		t.Fatalf("IsRevoked() before = %v, %v; want false, nil", revoked, err)
	}
	if err := r.Revoke(ctx, "abc", time.Hour); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	revoked, err = r.IsRevoked(ctx, "abc")
	if err != nil || !revoked {
		t.Fatalf("IsRevoked() after = %v, %v; want true, nil", revoked, err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet redis expectations: %v", err)
	}
}

func TestRedisRevoker_Errors(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	r := NewRedisRevoker(rdb)
	ctx := context.Background()

	mock.ExpectGet("devicemgr:revoked:abc").SetErr(errors.New("connection refused"))
	mock.ExpectSet("devicemgr:revoked:abc", "1", time.Minute).SetErr(errors.New("READONLY"))

	if _, err := r.IsRevoked(ctx, "abc"); err == nil {
		t.Error("IsRevoked() should surface redis errors")
	}
	if err := r.Revoke(ctx, "abc", time.Minute); err == nil {
		t.Error("Revoke() should surface redis errors")
	}

	// empty ids and expired tokens never reach redis
	if err := r.Revoke(ctx, "", time.Minute); err != nil {
		t.Errorf("Revoke(\"\") error = %v", err)
	}
	if err := r.Revoke(ctx, "old", -time.Second); err != nil {
		t.Errorf("Revoke(expired) error = %v", err)
	}
	if revoked, err := r.IsRevoked(ctx, ""); err != nil || revoked {
		t.Errorf("IsRevoked(\"\") = %v, %v", revoked, err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet redis expectations: %v", err)
	}
}

func TestMemoryRevoker(t *testing.T) {
	m := NewMemoryRevoker()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	if revoked, _ := m.IsRevoked(ctx, "abc"); revoked {
		t.Fatal("unknown jti reported as revoked")
	}

	if err := m.Revoke(ctx, "abc", time.Minute); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	if revoked, _ := m.IsRevoked(ctx, "abc"); !revoked {
		t.Fatal("revoked jti not reported")
	}

	// past the token's lifetime the entry is irrelevant
	now = now.Add(2 * time.Minute)
	if revoked, _ := m.IsRevoked(ctx, "abc"); revoked {
		t.Error("entry should lapse after its ttl")
	}

	// and the next write sweeps it out
	if err := m.Revoke(ctx, "def", time.Minute); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	if _, ok := m.expires["abc"]; ok {
		t.Error("expired entry was not swept")
	}
}
