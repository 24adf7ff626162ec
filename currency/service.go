package currency

import (
	"context"
	"errors"
)

// ErrNotAdmin signals the caller lacks registry administration rights.
var ErrNotAdmin = errors.New("currency: caller is not an admin")

// Registry abstracts repository operations for the service.
type Registry interface {
	Add(ctx context.Context, token, symbol string, decimals int) (Metadata, error)
	Retire(ctx context.Context, token string) error
	MetadataOf(ctx context.Context, token string) (Metadata, error)
	IsSupported(ctx context.Context, token string) (bool, error)
	List(ctx context.Context) ([]Metadata, error)
}

// AdminChecker reports whether an identity holds the owner capability that
// gates registry mutation.
type AdminChecker interface {
	IsAdmin(ctx context.Context, userID string) (bool, error)
}

// Service exposes the currency registry with admin gating on mutations.
type Service struct {
	repo  Registry
	admin AdminChecker
}

// NewService builds a Service using the provided repository and admin oracle.
func NewService(repo Registry, admin AdminChecker) *Service {
	return &Service{repo: repo, admin: admin}
}

// Add registers a token; only admins may call it.
func (s *Service) Add(ctx context.Context, actorID, token, symbol string, decimals int) (Metadata, error) {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return Metadata{}, err
	}
	return s.repo.Add(ctx, token, symbol, decimals)
}

// Retire drops a token from the supported set; only admins may call it.
func (s *Service) Retire(ctx context.Context, actorID, token string) error {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return err
	}
	return s.repo.Retire(ctx, token)
}

// MetadataOf returns metadata for the token.
func (s *Service) MetadataOf(ctx context.Context, token string) (Metadata, error) {
	return s.repo.MetadataOf(ctx, token)
}

// IsSupported reports whether the token accepts new deposits.
func (s *Service) IsSupported(ctx context.Context, token string) (bool, error) {
	return s.repo.IsSupported(ctx, token)
}

// List returns every registered currency.
func (s *Service) List(ctx context.Context) ([]Metadata, error) {
	return s.repo.List(ctx)
}

func (s *Service) requireAdmin(ctx context.Context, actorID string) error {
	ok, err := s.admin.IsAdmin(ctx, actorID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAdmin
	}
	return nil
}
