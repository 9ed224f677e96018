// Package match evaluates listing change events against saved search
// predicates. The matcher is stateless; predicates run as a short-circuit
// AND chain and an absent criterion always passes.
package match

import (
	"context"
	"log/slog"
	"strings"

	"github.com/homescout/alert-engine/internal/event"
	"github.com/homescout/alert-engine/internal/search"
)

// Score attached to every match. Constant for now, reserved for ranking.
const defaultMatchScore = 1.0

// Statuses accepted when a search has no explicit status filter.
var defaultStatuses = []string{"Active", "Coming Soon"}

// SchoolDirectory is the schools collaborator. Lookups that fail degrade
// the school predicate to a pass rather than suppressing the match.
type SchoolDirectory interface {
	RatingNear(ctx context.Context, lat, lng float64) (float64, error)
}

// Result is the outcome of evaluating one event against one search.
type Result struct {
	Matched   bool
	MatchType string
	Score     float64
}

// Matcher evaluates events against saved searches.
type Matcher struct {
	schools SchoolDirectory
	logger  *slog.Logger
}

// New creates a Matcher. schools may be nil; school filters then pass.
func New(schools SchoolDirectory, logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{schools: schools, logger: logger}
}

// Matches evaluates one event against one search.
func (m *Matcher) Matches(ctx context.Context, ev event.Event, s search.Search) Result {
	miss := Result{MatchType: string(ev.Type)}

	// Freshness: a search never matches inventory that predates it.
	if s.CreatedAt.After(ev.Listing.ModifiedAt) {
		return miss
	}

	// Update events notify only when the diff is significant.
	if ev.IsUpdate() && !ev.HasSignificantChange() {
		return miss
	}

	f := s.Filters
	l := ev.Listing

	checks := []func() bool{
		func() bool { return matchPrice(f, l) },
		func() bool { return matchLocation(f, l) },
		func() bool { return matchPropertyType(f, l) },
		func() bool { return matchBedsBaths(f, l) },
		func() bool { return matchSqft(f, l) },
		func() bool { return matchYearBuilt(f, l) },
		func() bool { return matchPolygons(s.Polygons, l) },
		func() bool { return matchStatus(f, l) },
		func() bool { return m.matchSchools(ctx, f, l) },
		func() bool { return matchLotSize(f, l) },
		func() bool { return matchParking(f, l) },
		func() bool { return matchAmenities(f, l) },
		func() bool { return matchRental(f, l) },
		func() bool { return matchSpecial(f, ev) },
	}
	for _, check := range checks {
		if !check() {
			return miss
		}
	}

	return Result{Matched: true, MatchType: string(ev.Type), Score: defaultMatchScore}
}

// --------------------------------------------------------------------------
// Predicates
// --------------------------------------------------------------------------

func matchPrice(f search.Filters, l event.Listing) bool {
	if f.PriceMin > 0 && l.Price < f.PriceMin {
		return false
	}
	if f.PriceMax > 0 && l.Price > f.PriceMax {
		return false
	}
	return true
}

// matchLocation treats the union of city, zip, and neighborhood alias lists
// as one constraint; an empty union is unconstrained.
func matchLocation(f search.Filters, l event.Listing) bool {
	if len(f.Cities) == 0 && len(f.Zips) == 0 && len(f.Neighborhoods) == 0 {
		return true
	}
	return containsFold(f.Cities, l.City) ||
		containsFold(f.Zips, l.Zip) ||
		containsFold(f.Neighborhoods, l.Neighborhood)
}

func matchPropertyType(f search.Filters, l event.Listing) bool {
	if len(f.PropertyTypes) > 0 && !containsFold(f.PropertyTypes, l.PropertyType) {
		return false
	}
	if len(f.PropertySubtypes) > 0 && !containsFold(f.PropertySubtypes, l.PropertySubtype) {
		return false
	}
	return true
}

func matchBedsBaths(f search.Filters, l event.Listing) bool {
	if f.BedsMin > 0 && l.Beds < f.BedsMin {
		return false
	}
	if f.BathsMin > 0 && l.Baths < f.BathsMin {
		return false
	}
	return true
}

func matchSqft(f search.Filters, l event.Listing) bool {
	if f.SqftMin > 0 && l.Sqft < f.SqftMin {
		return false
	}
	if f.SqftMax > 0 && l.Sqft > f.SqftMax {
		return false
	}
	return true
}

func matchYearBuilt(f search.Filters, l event.Listing) bool {
	if f.YearBuiltMin > 0 && l.YearBuilt < f.YearBuiltMin {
		return false
	}
	if f.YearBuiltMax > 0 && l.YearBuilt > f.YearBuiltMax {
		return false
	}
	return true
}

// matchPolygons passes when any polygon of the geofence contains the
// listing. A listing without coordinates fails closed.
func matchPolygons(polygons []search.Polygon, l event.Listing) bool {
	if len(polygons) == 0 {
		return true
	}
	if !l.HasCoordinates() {
		return false
	}
	for _, poly := range polygons {
		if poly.Contains(*l.Latitude, *l.Longitude) {
			return true
		}
	}
	return false
}

// matchStatus fails closed on an empty or unknown listing status.
func matchStatus(f search.Filters, l event.Listing) bool {
	if l.Status == "" {
		return false
	}
	accepted := f.Statuses
	if len(accepted) == 0 {
		accepted = defaultStatuses
	}
	return containsFold(accepted, l.Status)
}

// matchSchools degrades to pass when the directory is absent, the listing
// has no coordinates to query with, or the lookup fails.
func (m *Matcher) matchSchools(ctx context.Context, f search.Filters, l event.Listing) bool {
	if f.MinSchoolRating <= 0 {
		return true
	}
	if m.schools == nil || !l.HasCoordinates() {
		return true
	}
	rating, err := m.schools.RatingNear(ctx, *l.Latitude, *l.Longitude)
	if err != nil {
		m.logger.Debug("school lookup unavailable, passing filter",
			"listing_id", l.ID, "error", err)
		return true
	}
	return rating >= f.MinSchoolRating
}

func matchLotSize(f search.Filters, l event.Listing) bool {
	if f.LotSqftMin > 0 && l.LotSqft < f.LotSqftMin {
		return false
	}
	if f.LotSqftMax > 0 && l.LotSqft > f.LotSqftMax {
		return false
	}
	return true
}

func matchParking(f search.Filters, l event.Listing) bool {
	return f.ParkingMin <= 0 || l.ParkingSpaces >= f.ParkingMin
}

func matchAmenities(f search.Filters, l event.Listing) bool {
	if f.RequireGarage && !l.HasGarage {
		return false
	}
	if f.RequirePool && !l.HasPool {
		return false
	}
	if f.RequireWaterfront && !l.HasWaterfront {
		return false
	}
	if f.RequireAC && !l.HasAC {
		return false
	}
	if f.RequireBasement && !l.HasBasement {
		return false
	}
	return true
}

// matchRental applies rental-only filters, and only to lease listings.
func matchRental(f search.Filters, l event.Listing) bool {
	if !l.IsLease() {
		return true
	}
	if f.PetsAllowed != nil && (l.PetsAllowed == nil || *l.PetsAllowed != *f.PetsAllowed) {
		return false
	}
	if f.Furnished != nil && (l.Furnished == nil || *l.Furnished != *f.Furnished) {
		return false
	}
	if f.MaxLeaseTermMonths > 0 && l.LeaseTermMonths > f.MaxLeaseTermMonths {
		return false
	}
	return true
}

func matchSpecial(f search.Filters, ev event.Event) bool {
	l := ev.Listing
	if f.MinExclusiveID > 0 && l.ExclusiveID < f.MinExclusiveID {
		return false
	}
	if f.PriceReducedOnly && !ev.PriceReduced() {
		return false
	}
	if f.DaysOnMarketMin > 0 && l.DaysOnMarket < f.DaysOnMarketMin {
		return false
	}
	if f.DaysOnMarketMax > 0 && l.DaysOnMarket > f.DaysOnMarketMax {
		return false
	}
	if f.OpenHouseOnly && l.OpenHouseAt == nil {
		return false
	}
	return true
}

func containsFold(list []string, v string) bool {
	if v == "" {
		return false
	}
	for _, item := range list {
		if strings.EqualFold(item, v) {
			return true
		}
	}
	return false
}
