// Package search defines saved searches and their structured filter
// predicates. Only active searches with instant frequency are evaluated
// synchronously against incoming events; other frequencies are digest
// material and never enter the real-time path.
package search

import (
	"time"
)

// Frequency controls how a saved search is delivered.
type Frequency string

const (
	FrequencyInstant Frequency = "instant"
	FrequencyHourly  Frequency = "hourly"
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
)

// Point is a geographic coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Polygon is a closed ring of vertices. The closing edge from the last
// vertex back to the first is implicit.
type Polygon []Point

// Filters is the structured predicate set of a saved search. The zero
// value of every field means "no constraint"; matching is a vacuous pass
// for absent criteria.
type Filters struct {
	PriceMin int64 `json:"price_min,omitempty"`
	PriceMax int64 `json:"price_max,omitempty"`

	// Location aliases; the union of all three lists is one constraint.
	Cities        []string `json:"cities,omitempty"`
	Zips          []string `json:"zips,omitempty"`
	Neighborhoods []string `json:"neighborhoods,omitempty"`

	PropertyTypes    []string `json:"property_types,omitempty"`
	PropertySubtypes []string `json:"property_subtypes,omitempty"`

	BedsMin  int     `json:"beds_min,omitempty"`
	BathsMin float64 `json:"baths_min,omitempty"`

	SqftMin int `json:"sqft_min,omitempty"`
	SqftMax int `json:"sqft_max,omitempty"`

	YearBuiltMin int `json:"year_built_min,omitempty"`
	YearBuiltMax int `json:"year_built_max,omitempty"`

	// Empty means the default accepted set (Active, Coming Soon).
	Statuses []string `json:"statuses,omitempty"`

	MinSchoolRating float64 `json:"min_school_rating,omitempty"`

	LotSqftMin int `json:"lot_sqft_min,omitempty"`
	LotSqftMax int `json:"lot_sqft_max,omitempty"`

	ParkingMin int `json:"parking_min,omitempty"`

	RequireGarage     bool `json:"require_garage,omitempty"`
	RequirePool       bool `json:"require_pool,omitempty"`
	RequireWaterfront bool `json:"require_waterfront,omitempty"`
	RequireAC         bool `json:"require_ac,omitempty"`
	RequireBasement   bool `json:"require_basement,omitempty"`

	// Rental-only filters; applied only when the listing is a lease type.
	PetsAllowed        *bool `json:"pets_allowed,omitempty"`
	Furnished          *bool `json:"furnished,omitempty"`
	MaxLeaseTermMonths int   `json:"max_lease_term_months,omitempty"`

	// Special filters.
	MinExclusiveID   int64 `json:"min_exclusive_id,omitempty"`
	PriceReducedOnly bool  `json:"price_reduced_only,omitempty"`
	DaysOnMarketMin  int   `json:"days_on_market_min,omitempty"`
	DaysOnMarketMax  int   `json:"days_on_market_max,omitempty"`
	OpenHouseOnly    bool  `json:"open_house_only,omitempty"`
}

// Search is a user's saved search subscription.
type Search struct {
	ID             int64
	UserID         string
	Name           string
	Filters        Filters
	Polygons       []Polygon
	Frequency      Frequency
	IsActive       bool
	CreatedAt      time.Time
	LastNotifiedAt *time.Time
}
