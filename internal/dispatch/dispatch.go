// Package dispatch ranks open requests by distance from a mechanic.
package dispatch

import (
	"sort"

	"roadassist/internal/geo"
	"roadassist/internal/models"
)

// Rank keeps candidates within maxDistanceKm of origin and orders them nearest
// first. Ties break on creation time, then id, so paging is stable.
func Rank(origin models.Location, candidates []*models.ServiceRequest, maxDistanceKm float64) []*models.RequestMatch {
	type scored struct {
		req  *models.ServiceRequest
		dist float64
	}

	kept := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		d := geo.DistanceKm(origin.Latitude, origin.Longitude, c.Latitude, c.Longitude)
		if d > maxDistanceKm {
			continue
		}
		kept = append(kept, scored{req: c, dist: d})
	}

	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].dist != kept[j].dist {
			return kept[i].dist < kept[j].dist
		}
		if !kept[i].req.CreatedAt.Equal(kept[j].req.CreatedAt) {
			return kept[i].req.CreatedAt.Before(kept[j].req.CreatedAt)
		}
		return kept[i].req.ID < kept[j].req.ID
	})

	out := make([]*models.RequestMatch, len(kept))
	for i, s := range kept {
		out[i] = &models.RequestMatch{
			ServiceRequest:         *s.req,
			DistanceKm:             geo.RoundKm(s.dist),
			EstimatedTravelMinutes: geo.EstimatedTravelMinutes(s.dist),
		}
	}
	return out
}

// Page normalises page/pageSize against the configured bounds.
func Page(page, pageSize, defaultSize, maxSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultSize
	}
	if pageSize > maxSize {
		pageSize = maxSize
	}
	return page, pageSize
}

// Paginate slices items for page/pageSize (both already normalised).
func Paginate[T any](items []T, page, pageSize int) ([]T, models.Pagination) {
	total := len(items)
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return items[start:end], models.NewPagination(page, pageSize, total)
}
