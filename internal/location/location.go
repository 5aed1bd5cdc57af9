// Package location is the registry of campus check-in points. Each
// location has a center and an admission radius.
package location

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"campusattend/internal/apperr"
	"campusattend/internal/clock"
	"campusattend/internal/geo"
)

type Location struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Center       geo.Point `json:"-"`
	RadiusMeters int       `json:"radius_m"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Repository is the persistence contract for locations. Get returns an
// apperr NotFound error for unknown ids.
type Repository interface {
	Get(ctx context.Context, id string) (Location, error)
	List(ctx context.Context) ([]Location, error)
	Insert(ctx context.Context, loc Location) error
	Update(ctx context.Context, loc Location) error
}

// Input carries the editable fields of a location.
type Input struct {
	Name         string  `json:"name" validate:"required,max=120"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	RadiusMeters int     `json:"radius_m" validate:"gt=0"`
}

type Registry struct {
	repo     Repository
	clock    clock.Clock
	validate *validator.Validate
}

func NewRegistry(repo Repository, clk clock.Clock) *Registry {
	return &Registry{repo: repo, clock: clk, validate: validator.New()}
}

func (r *Registry) Resolve(ctx context.Context, id string) (Location, error) {
	if strings.TrimSpace(id) == "" {
		return Location{}, apperr.InvalidInput("location id is required")
	}
	return r.repo.Get(ctx, id)
}

func (r *Registry) ListAll(ctx context.Context) ([]Location, error) {
	return r.repo.List(ctx)
}

func (r *Registry) Create(ctx context.Context, in Input) (Location, error) {
	center, err := r.check(in)
	if err != nil {
		return Location{}, err
	}
	now := r.clock.Now().UTC()
	loc := Location{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(in.Name),
		Center:       center,
		RadiusMeters: in.RadiusMeters,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := r.repo.Insert(ctx, loc); err != nil {
		return Location{}, err
	}
	return loc, nil
}

// Update replaces the editable fields of an existing location.
func (r *Registry) Update(ctx context.Context, id string, in Input) (Location, error) {
	center, err := r.check(in)
	if err != nil {
		return Location{}, err
	}
	loc, err := r.Resolve(ctx, id)
	if err != nil {
		return Location{}, err
	}
	loc.Name = strings.TrimSpace(in.Name)
	loc.Center = center
	loc.RadiusMeters = in.RadiusMeters
	loc.UpdatedAt = r.clock.Now().UTC()
	if err := r.repo.Update(ctx, loc); err != nil {
		return Location{}, err
	}
	return loc, nil
}

func (r *Registry) check(in Input) (geo.Point, error) {
	if err := r.validate.Struct(in); err != nil {
		return geo.Point{}, apperr.Validation(err)
	}
	return geo.NewPoint(in.Latitude, in.Longitude)
}

func notFound(id string) error {
	return apperr.Newf(apperr.CodeNotFound, "location %q not found", id)
}
