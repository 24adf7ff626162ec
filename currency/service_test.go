package currency

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestService_AddRequiresAdmin(t *testing.T) {
	reg := newFakeRegistry()
	svc := NewService(reg, fakeAdmin{"admin-1": true})

	ctx := context.Background()
	if _, err := svc.Add(ctx, "user-1", "usdc", "USDC", 6); !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("expected ErrNotAdmin, got %v", err)
	}
	if len(reg.entries) != 0 {
		t.Fatalf("expected no registry writes, got %d", len(reg.entries))
	}

	meta, err := svc.Add(ctx, "admin-1", "usdc", "USDC", 6)
	if err != nil {
		t.Fatalf("admin add: %v", err)
	}
	if meta.Token != "usdc" || meta.Decimals != 6 || !meta.Supported {
		t.Fatalf("unexpected metadata: %+v", meta)
	}
}

func TestService_AddDuplicate(t *testing.T) {
	reg := newFakeRegistry()
	svc := NewService(reg, fakeAdmin{"admin-1": true})

	ctx := context.Background()
	if _, err := svc.Add(ctx, "admin-1", "usdc", "USDC", 6); err != nil {
		t.Fatalf("first add: %v", err)
	}
	if _, err := svc.Add(ctx, "admin-1", "usdc", "USDC", 6); !errors.Is(err, ErrDuplicateToken) {
		t.Fatalf("expected ErrDuplicateToken, got %v", err)
	}
}

func TestService_RetireRequiresAdmin(t *testing.T) {
	reg := newFakeRegistry()
	svc := NewService(reg, fakeAdmin{"admin-1": true})

	ctx := context.Background()
	if _, err := svc.Add(ctx, "admin-1", "usdc", "USDC", 6); err != nil {
		t.Fatalf("add: %v", err)
	}

	if err := svc.Retire(ctx, "user-1", "usdc"); !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("expected ErrNotAdmin, got %v", err)
	}
	if err := svc.Retire(ctx, "admin-1", "usdc"); err != nil {
		t.Fatalf("retire: %v", err)
	}

	supported, err := svc.IsSupported(ctx, "usdc")
	if err != nil {
		t.Fatalf("is supported: %v", err)
	}
	if supported {
		t.Fatal("expected token unsupported after retire")
	}

	// Metadata stays readable for campaigns still settling in the token.
	meta, err := svc.MetadataOf(ctx, "usdc")
	if err != nil {
		t.Fatalf("metadata of retired token: %v", err)
	}
	if meta.Supported {
		t.Fatal("expected supported=false on retired token")
	}
}

func TestService_MetadataOfUnknownToken(t *testing.T) {
	svc := NewService(newFakeRegistry(), fakeAdmin{})

	if _, err := svc.MetadataOf(context.Background(), "doge"); !errors.Is(err, ErrUnsupportedCurrency) {
		t.Fatalf("expected ErrUnsupportedCurrency, got %v", err)
	}
}

type fakeRegistry struct {
	entries map[string]Metadata
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{entries: make(map[string]Metadata)}
}

func (f *fakeRegistry) Add(ctx context.Context, token, symbol string, decimals int) (Metadata, error) {
	if m, ok := f.entries[token]; ok && m.Supported {
		return Metadata{}, ErrDuplicateToken
	}
	meta := Metadata{Token: token, Symbol: symbol, Decimals: decimals, Supported: true, CreatedAt: time.Now().UTC()}
	f.entries[token] = meta
	return meta, nil
}

func (f *fakeRegistry) Retire(ctx context.Context, token string) error {
	m, ok := f.entries[token]
	if !ok {
		return ErrUnsupportedCurrency
	}
	m.Supported = false
	f.entries[token] = m
	return nil
}

func (f *fakeRegistry) MetadataOf(ctx context.Context, token string) (Metadata, error) {
	m, ok := f.entries[token]
	if !ok {
		return Metadata{}, ErrUnsupportedCurrency
	}
	return m, nil
}

func (f *fakeRegistry) IsSupported(ctx context.Context, token string) (bool, error) {
	m, ok := f.entries[token]
	return ok && m.Supported, nil
}

func (f *fakeRegistry) List(ctx context.Context) ([]Metadata, error) {
	out := make([]Metadata, 0, len(f.entries))
	for _, m := range f.entries {
		out = append(out, m)
	}
	return out, nil
}

type fakeAdmin map[string]bool

func (f fakeAdmin) IsAdmin(ctx context.Context, userID string) (bool, error) {
	return f[userID], nil
}
