package event

import (
	"encoding/json"
	"fmt"
	"time"
)

// rawListing mirrors the wire payload. Several logical fields arrive under
// two spellings depending on the upstream feed; both are decoded and the
// first non-nil wins.
type rawListing struct {
	ID              string   `json:"id"`
	ListingID       string   `json:"listing_id"`
	Address         string   `json:"address"`
	City            string   `json:"city"`
	Zip             string   `json:"zip"`
	PostalCode      string   `json:"postal_code"`
	Neighborhood    string   `json:"neighborhood"`
	Area            string   `json:"area"`
	PropertyType    string   `json:"property_type"`
	PropertySubtype string   `json:"property_subtype"`
	Status          string   `json:"status"`
	Price           *int64   `json:"price"`
	ListPrice       *int64   `json:"list_price"`
	Beds            *int     `json:"beds"`
	Bedrooms        *int     `json:"bedrooms"`
	Baths           *float64 `json:"baths"`
	Bathrooms       *float64 `json:"bathrooms"`
	Sqft            *int     `json:"sqft"`
	SquareFeet      *int     `json:"square_feet"`
	YearBuilt       *int     `json:"year_built"`
	YrBuilt         *int     `json:"yr_built"`
	LotSqft         *int     `json:"lot_sqft"`
	LotSize         *int     `json:"lot_size"`
	ParkingSpaces   *int     `json:"parking_spaces"`
	Parking         *int     `json:"parking"`
	DaysOnMarket    *int     `json:"days_on_market"`
	DOM             *int     `json:"dom"`
	Latitude        *float64 `json:"latitude"`
	Lat             *float64 `json:"lat"`
	Longitude       *float64 `json:"longitude"`
	Lng             *float64 `json:"lng"`
	HasGarage       bool     `json:"has_garage"`
	HasPool         bool     `json:"has_pool"`
	HasWaterfront   bool     `json:"has_waterfront"`
	HasAC           bool     `json:"has_ac"`
	HasBasement     bool     `json:"has_basement"`
	PetsAllowed     *bool    `json:"pets_allowed"`
	Furnished       *bool    `json:"furnished"`
	LeaseTermMonths int      `json:"lease_term_months"`
	OpenHouseAt     *string  `json:"open_house_at"`
	ExclusiveID     int64    `json:"exclusive_id"`
	URL             string   `json:"url"`
	ModifiedAt      *string  `json:"modified_at"`
	ModificationTS  *string  `json:"modification_timestamp"`
}

type rawEvent struct {
	ListingID string            `json:"listing_id"`
	EventType string            `json:"event_type"`
	Listing   rawListing        `json:"listing"`
	Changes   map[string]Change `json:"changes"`
	Source    string            `json:"source"`
}

// Parse decodes a wire payload into a canonical Event. It is the only place
// that knows about dual-named attributes.
func Parse(data []byte) (Event, error) {
	var raw rawEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}

	evType, err := ParseType(raw.EventType)
	if err != nil {
		return Event{}, err
	}

	listingID := raw.ListingID
	if listingID == "" {
		listingID = firstString(raw.Listing.ID, raw.Listing.ListingID)
	}
	if listingID == "" {
		return Event{}, fmt.Errorf("event missing listing_id")
	}

	modifiedAt, err := parseTimestamp(firstPtr(raw.Listing.ModifiedAt, raw.Listing.ModificationTS))
	if err != nil {
		return Event{}, fmt.Errorf("listing %s: %w", listingID, err)
	}

	var openHouse *time.Time
	if raw.Listing.OpenHouseAt != nil {
		t, err := time.Parse(time.RFC3339, *raw.Listing.OpenHouseAt)
		if err != nil {
			return Event{}, fmt.Errorf("listing %s: parse open_house_at: %w", listingID, err)
		}
		openHouse = &t
	}

	listing := Listing{
		ID:              listingID,
		Address:         raw.Listing.Address,
		City:            raw.Listing.City,
		Zip:             firstString(raw.Listing.Zip, raw.Listing.PostalCode),
		Neighborhood:    firstString(raw.Listing.Neighborhood, raw.Listing.Area),
		PropertyType:    raw.Listing.PropertyType,
		PropertySubtype: raw.Listing.PropertySubtype,
		Status:          raw.Listing.Status,
		Price:           firstInt64(raw.Listing.Price, raw.Listing.ListPrice),
		Beds:            firstInt(raw.Listing.Beds, raw.Listing.Bedrooms),
		Baths:           firstFloat(raw.Listing.Baths, raw.Listing.Bathrooms),
		Sqft:            firstInt(raw.Listing.Sqft, raw.Listing.SquareFeet),
		YearBuilt:       firstInt(raw.Listing.YearBuilt, raw.Listing.YrBuilt),
		LotSqft:         firstInt(raw.Listing.LotSqft, raw.Listing.LotSize),
		ParkingSpaces:   firstInt(raw.Listing.ParkingSpaces, raw.Listing.Parking),
		DaysOnMarket:    firstInt(raw.Listing.DaysOnMarket, raw.Listing.DOM),
		Latitude:        firstFloatPtr(raw.Listing.Latitude, raw.Listing.Lat),
		Longitude:       firstFloatPtr(raw.Listing.Longitude, raw.Listing.Lng),
		HasGarage:       raw.Listing.HasGarage,
		HasPool:         raw.Listing.HasPool,
		HasWaterfront:   raw.Listing.HasWaterfront,
		HasAC:           raw.Listing.HasAC,
		HasBasement:     raw.Listing.HasBasement,
		PetsAllowed:     raw.Listing.PetsAllowed,
		Furnished:       raw.Listing.Furnished,
		LeaseTermMonths: raw.Listing.LeaseTermMonths,
		OpenHouseAt:     openHouse,
		ExclusiveID:     raw.Listing.ExclusiveID,
		URL:             raw.Listing.URL,
		ModifiedAt:      modifiedAt,
	}

	return Event{
		ListingID:  listingID,
		Type:       evType,
		Listing:    listing,
		Changes:    raw.Changes,
		Source:     raw.Source,
		ReceivedAt: time.Now(),
	}, nil
}

func parseTimestamp(s *string) (time.Time, error) {
	if s == nil || *s == "" {
		return time.Time{}, fmt.Errorf("missing modification timestamp")
	}
	t, err := time.Parse(time.RFC3339, *s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse modification timestamp: %w", err)
	}
	return t, nil
}

func firstString(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstPtr(vals ...*string) *string {
	for _, v := range vals {
		if v != nil && *v != "" {
			return v
		}
	}
	return nil
}

func firstInt64(vals ...*int64) int64 {
	for _, v := range vals {
		if v != nil {
			return *v
		}
	}
	return 0
}

func firstInt(vals ...*int) int {
	for _, v := range vals {
		if v != nil {
			return *v
		}
	}
	return 0
}

func firstFloat(vals ...*float64) float64 {
	for _, v := range vals {
		if v != nil {
			return *v
		}
	}
	return 0
}

func firstFloatPtr(vals ...*float64) *float64 {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}
