package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tbourn/go-alliance-bot/internal/domain"
	"github.com/tbourn/go-alliance-bot/internal/repo"
)

// LedgerReader is the read side of the request ledger used for audit views.
type LedgerReader interface {
	Get(ctx context.Context, communityID, requestID string) (*domain.VerificationRequest, error)
	List(ctx context.Context, communityID string, filter domain.RequestFilter) ([]domain.VerificationRequest, error)
}

// RequestService exposes the ledger read-only to administrators.
type RequestService struct {
	Repo LedgerReader
}

// Get returns one request or ErrNotFound.
func (s *RequestService) Get(ctx context.Context, communityID, requestID string) (*domain.VerificationRequest, error) {
	r, err := s.Repo.Get(ctx, communityID, requestID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, fmt.Errorf("request %s: %w", requestID, ErrNotFound)
	}
	return r, err
}

// List returns requests newest first. An unknown status is ErrInvalidInput;
// status matching is case-insensitive.
func (s *RequestService) List(ctx context.Context, communityID string, f domain.RequestFilter) ([]domain.VerificationRequest, error) {
	if f.Status != "" {
		f.Status = domain.RequestStatus(strings.ToUpper(string(f.Status)))
		if !f.Status.Valid() {
			return nil, fmt.Errorf("status %q: %w", f.Status, ErrInvalidInput)
		}
	}
	if f.Limit < 0 {
		return nil, fmt.Errorf("limit must not be negative: %w", ErrInvalidInput)
	}
	out, err := s.Repo.List(ctx, communityID, f)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []domain.VerificationRequest{}
	}
	return out, nil
}
