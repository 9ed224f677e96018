// Package event defines the canonical listing change event consumed by the
// matching pipeline. Feed payloads spell several attributes two ways
// (price/list_price, beds/bedrooms, ...); Parse collapses them once at the
// ingestion boundary so nothing downstream branches on naming.
package event

import (
	"fmt"
	"strconv"
	"time"
)

// Type classifies a listing lifecycle event.
type Type string

const (
	TypeNewListing      Type = "new_listing"
	TypeUpdated         Type = "updated"
	TypePriceDrop       Type = "price_drop"
	TypePriceIncrease   Type = "price_increase"
	TypeStatusChange    Type = "status_change"
	TypeBackOnMarket    Type = "back_on_market"
	TypeOpenHouse       Type = "open_house"
	TypeComingSoon      Type = "coming_soon"
	TypePropertyUpdated Type = "property_updated"
)

var validTypes = map[Type]bool{
	TypeNewListing:      true,
	TypeUpdated:         true,
	TypePriceDrop:       true,
	TypePriceIncrease:   true,
	TypeStatusChange:    true,
	TypeBackOnMarket:    true,
	TypeOpenHouse:       true,
	TypeComingSoon:      true,
	TypePropertyUpdated: true,
}

// ParseType validates a raw event type string.
func ParseType(s string) (Type, error) {
	t := Type(s)
	if !validTypes[t] {
		return "", fmt.Errorf("unknown event type %q", s)
	}
	return t, nil
}

// Significant attributes for update events. Cosmetic-only diffs
// (photos, remarks, ...) never re-trigger a notification.
var significantFields = map[string]bool{
	"price":  true,
	"status": true,
	"beds":   true,
	"baths":  true,
}

// Listing is the canonical attribute payload carried by every event.
type Listing struct {
	ID              string     `json:"id"`
	Address         string     `json:"address"`
	City            string     `json:"city"`
	Zip             string     `json:"zip"`
	Neighborhood    string     `json:"neighborhood"`
	PropertyType    string     `json:"property_type"`
	PropertySubtype string     `json:"property_subtype"`
	Status          string     `json:"status"`
	Price           int64      `json:"price"`
	Beds            int        `json:"beds"`
	Baths           float64    `json:"baths"`
	Sqft            int        `json:"sqft"`
	YearBuilt       int        `json:"year_built"`
	LotSqft         int        `json:"lot_sqft"`
	ParkingSpaces   int        `json:"parking_spaces"`
	DaysOnMarket    int        `json:"days_on_market"`
	Latitude        *float64   `json:"latitude,omitempty"`
	Longitude       *float64   `json:"longitude,omitempty"`
	HasGarage       bool       `json:"has_garage"`
	HasPool         bool       `json:"has_pool"`
	HasWaterfront   bool       `json:"has_waterfront"`
	HasAC           bool       `json:"has_ac"`
	HasBasement     bool       `json:"has_basement"`
	PetsAllowed     *bool      `json:"pets_allowed,omitempty"`
	Furnished       *bool      `json:"furnished,omitempty"`
	LeaseTermMonths int        `json:"lease_term_months,omitempty"`
	OpenHouseAt     *time.Time `json:"open_house_at,omitempty"`
	ExclusiveID     int64      `json:"exclusive_id,omitempty"`
	URL             string     `json:"url,omitempty"`
	ModifiedAt      time.Time  `json:"modified_at"`
}

// Lease property types; rental-only filters apply to these.
var leaseTypes = map[string]bool{
	"rental":            true,
	"residential_lease": true,
	"apartment":         true,
	"room":              true,
	"sublet":            true,
}

// IsLease reports whether rental-only filters apply to the listing.
func (l Listing) IsLease() bool {
	return leaseTypes[l.PropertyType]
}

// HasCoordinates reports whether a geofence test is possible.
func (l Listing) HasCoordinates() bool {
	return l.Latitude != nil && l.Longitude != nil
}

// Change is a before/after pair for one canonical attribute.
type Change struct {
	Old string `json:"old"`
	New string `json:"new"`
}

// Event is a normalized listing change event.
type Event struct {
	ListingID  string            `json:"listing_id"`
	Type       Type              `json:"event_type"`
	Listing    Listing           `json:"listing"`
	Changes    map[string]Change `json:"changes,omitempty"`
	Source     string            `json:"source,omitempty"`
	ReceivedAt time.Time         `json:"received_at"`
}

// IsUpdate reports whether the event is a generic update that must pass
// the significance gate before notifying.
func (e Event) IsUpdate() bool {
	return e.Type == TypeUpdated || e.Type == TypePropertyUpdated
}

// HasSignificantChange reports whether the diff touches price, status,
// bed count, or bath count.
func (e Event) HasSignificantChange() bool {
	for field := range e.Changes {
		if significantFields[field] {
			return true
		}
	}
	return false
}

// PriceReduced reports whether the event represents a price reduction,
// either by type or by a decreasing price diff.
func (e Event) PriceReduced() bool {
	if e.Type == TypePriceDrop {
		return true
	}
	c, ok := e.Changes["price"]
	if !ok {
		return false
	}
	oldP, err1 := strconv.ParseInt(c.Old, 10, 64)
	newP, err2 := strconv.ParseInt(c.New, 10, 64)
	return err1 == nil && err2 == nil && newP < oldP
}
