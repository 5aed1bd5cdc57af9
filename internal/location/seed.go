package location

import (
	"context"
	"strings"
)

// DefaultSites are the labs a fresh deployment starts with.
var DefaultSites = []Input{
	{Name: "ICT Lab", Latitude: 6.5244, Longitude: 3.3792, RadiusMeters: 50},
	{Name: "Hardware Lab", Latitude: 6.5245, Longitude: 3.3793, RadiusMeters: 50},
	{Name: "Software Lab", Latitude: 6.5246, Longitude: 3.3794, RadiusMeters: 50},
}

// Seed creates each input whose name is not registered yet, compared case
// insensitively, and returns the locations it created. Existing locations
// are left as they are.
func (r *Registry) Seed(ctx context.Context, inputs []Input) ([]Location, error) {
	existing, err := r.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[string]bool, len(existing))
	for _, l := range existing {
		names[strings.ToLower(l.Name)] = true
	}

	var created []Location
	for _, in := range inputs {
		key := strings.ToLower(strings.TrimSpace(in.Name))
		if names[key] {
			continue
		}
		loc, err := r.Create(ctx, in)
		if err != nil {
			return created, err
		}
		names[key] = true
		created = append(created, loc)
	}
	return created, nil
}
