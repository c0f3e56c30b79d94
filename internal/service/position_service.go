package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/signalguard/internal/domain"
)

// PositionDetail is a position with its take-profit slices.
type PositionDetail struct {
	domain.Position
	PartialCloses []domain.PartialClose `json:"partial_closes"`
}

// PositionService is the read side of positions for the API.
type PositionService struct {
	positions domain.PositionStore
	partials  domain.PartialCloseStore
	logger    *slog.Logger
}

// NewPositionService creates a PositionService.
func NewPositionService(positions domain.PositionStore, partials domain.PartialCloseStore, logger *slog.Logger) *PositionService {
	return &PositionService{
		positions: positions,
		partials:  partials,
		logger:    logger.With(slog.String("component", "positions")),
	}
}

// List returns positions filtered by account (0 for all) and status (empty
// for all), newest first.
func (s *PositionService) List(ctx context.Context, accountID int64, status domain.PositionStatus, opts domain.ListOpts) ([]domain.Position, error) {
	switch status {
	case "", domain.PositionStatusOpen, domain.PositionStatusClosed:
	default:
		return nil, fmt.Errorf("positions: unknown status %q: %w", status, domain.ErrInvalidSignal)
	}
	out, err := s.positions.List(ctx, accountID, status, opts)
	if err != nil {
		return nil, fmt.Errorf("positions: list: %w", err)
	}
	return out, nil
}

// Get returns one position with its partial closes.
func (s *PositionService) Get(ctx context.Context, id string) (PositionDetail, error) {
	p, err := s.positions.GetByID(ctx, id)
	if err != nil {
		return PositionDetail{}, fmt.Errorf("positions: get %s: %w", id, err)
	}
	partials, err := s.partials.ListByPosition(ctx, id)
	if err != nil {
		return PositionDetail{}, fmt.Errorf("positions: partials of %s: %w", id, err)
	}
	if partials == nil {
		partials = []domain.PartialClose{}
	}
	return PositionDetail{Position: p, PartialCloses: partials}, nil
}
