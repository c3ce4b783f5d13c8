package trips

import (
	"context"

	"github.com/google/uuid"
)

// Service interface defines the contract for trip lookup and master data
type Service interface {
	GetTrip(ctx context.Context, id uuid.UUID) (*Trip, error)
	CreateTrip(ctx context.Context, req CreateTripRequest) (*Trip, error)
	ListTrips(ctx context.Context, limit, offset int) ([]Trip, int64, error)
}

type service struct {
	repo Repository
}

// NewService creates a new trip service instance
func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (s *service) GetTrip(ctx context.Context, id uuid.UUID) (*Trip, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) CreateTrip(ctx context.Context, req CreateTripRequest) (*Trip, error) {
	trip := &Trip{
		Name:        req.Name,
		Origin:      req.Origin,
		Destination: req.Destination,
		DepartureAt: req.DepartureAt,
		Status:      "SCHEDULED",
		SeatPrices:  req.SeatPrices,
	}
	if err := s.repo.Create(ctx, trip); err != nil {
		return nil, err
	}
	return trip, nil
}

func (s *service) ListTrips(ctx context.Context, limit, offset int) ([]Trip, int64, error) {
	return s.repo.List(ctx, limit, offset)
}
