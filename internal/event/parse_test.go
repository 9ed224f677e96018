package event

import (
	"testing"
	"time"
)

func TestParseCollapsesAliasFields(t *testing.T) {
	payload := `{
		"listing_id": "mls-100",
		"event_type": "new_listing",
		"listing": {
			"list_price": 525000,
			"bedrooms": 3,
			"bathrooms": 2.5,
			"square_feet": 1900,
			"postal_code": "78704",
			"area": "Zilker",
			"lat": 30.26,
			"lng": -97.77,
			"yr_built": 1998,
			"lot_size": 7200,
			"parking": 2,
			"dom": 4,
			"modification_timestamp": "2026-08-30T12:00:00Z"
		}
	}`

	ev, err := Parse([]byte(payload))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	l := ev.Listing
	if l.Price != 525000 {
		t.Errorf("Price = %d, want 525000", l.Price)
	}
	if l.Beds != 3 {
		t.Errorf("Beds = %d, want 3", l.Beds)
	}
	if l.Baths != 2.5 {
		t.Errorf("Baths = %v, want 2.5", l.Baths)
	}
	if l.Sqft != 1900 {
		t.Errorf("Sqft = %d, want 1900", l.Sqft)
	}
	if l.Zip != "78704" {
		t.Errorf("Zip = %q, want 78704", l.Zip)
	}
	if l.Neighborhood != "Zilker" {
		t.Errorf("Neighborhood = %q, want Zilker", l.Neighborhood)
	}
	if !l.HasCoordinates() || *l.Latitude != 30.26 || *l.Longitude != -97.77 {
		t.Errorf("coordinates = %v/%v, want 30.26/-97.77", l.Latitude, l.Longitude)
	}
	if l.YearBuilt != 1998 || l.LotSqft != 7200 || l.ParkingSpaces != 2 || l.DaysOnMarket != 4 {
		t.Errorf("alias ints = %d/%d/%d/%d", l.YearBuilt, l.LotSqft, l.ParkingSpaces, l.DaysOnMarket)
	}
	want := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	if !l.ModifiedAt.Equal(want) {
		t.Errorf("ModifiedAt = %v, want %v", l.ModifiedAt, want)
	}
}

func TestParsePrimaryNamesWinOverAliases(t *testing.T) {
	payload := `{
		"listing_id": "mls-101",
		"event_type": "price_drop",
		"listing": {
			"price": 480000,
			"list_price": 500000,
			"beds": 4,
			"bedrooms": 3,
			"modified_at": "2026-08-30T12:00:00Z"
		}
	}`

	ev, err := Parse([]byte(payload))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if ev.Listing.Price != 480000 {
		t.Errorf("Price = %d, want primary field 480000", ev.Listing.Price)
	}
	if ev.Listing.Beds != 4 {
		t.Errorf("Beds = %d, want primary field 4", ev.Listing.Beds)
	}
}

func TestParseRejections(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{
			name:    "unknown event type",
			payload: `{"listing_id": "x", "event_type": "listing_photographed", "listing": {"modified_at": "2026-08-30T12:00:00Z"}}`,
		},
		{
			name:    "missing listing id",
			payload: `{"event_type": "new_listing", "listing": {"modified_at": "2026-08-30T12:00:00Z"}}`,
		},
		{
			name:    "missing modification timestamp",
			payload: `{"listing_id": "x", "event_type": "new_listing", "listing": {}}`,
		},
		{
			name:    "malformed json",
			payload: `{"listing_id": `,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.payload)); err == nil {
				t.Error("Parse() error = nil, want error")
			}
		})
	}
}

func TestParseListingIDFallsBackToListingBlock(t *testing.T) {
	payload := `{
		"event_type": "updated",
		"listing": {"id": "mls-200", "modified_at": "2026-08-30T12:00:00Z"},
		"changes": {"price": {"old": "500000", "new": "490000"}}
	}`
	ev, err := Parse([]byte(payload))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if ev.ListingID != "mls-200" {
		t.Errorf("ListingID = %q, want mls-200", ev.ListingID)
	}
}

func TestHasSignificantChange(t *testing.T) {
	tests := []struct {
		name    string
		changes map[string]Change
		want    bool
	}{
		{"price change", map[string]Change{"price": {Old: "500000", New: "490000"}}, true},
		{"status change", map[string]Change{"status": {Old: "Active", New: "Pending"}}, true},
		{"beds change", map[string]Change{"beds": {Old: "3", New: "4"}}, true},
		{"cosmetic only", map[string]Change{"photos": {Old: "12", New: "18"}, "remarks": {}}, false},
		{"mixed", map[string]Change{"photos": {}, "baths": {Old: "2", New: "2.5"}}, true},
		{"no changes", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := Event{Type: TypeUpdated, Changes: tt.changes}
			if got := ev.HasSignificantChange(); got != tt.want {
				t.Errorf("HasSignificantChange() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPriceReduced(t *testing.T) {
	tests := []struct {
		name string
		ev   Event
		want bool
	}{
		{"price drop type", Event{Type: TypePriceDrop}, true},
		{"decreasing diff", Event{Type: TypeUpdated, Changes: map[string]Change{"price": {Old: "500000", New: "480000"}}}, true},
		{"increasing diff", Event{Type: TypeUpdated, Changes: map[string]Change{"price": {Old: "480000", New: "500000"}}}, false},
		{"no price diff", Event{Type: TypeUpdated}, false},
		{"unparseable diff", Event{Type: TypeUpdated, Changes: map[string]Change{"price": {Old: "n/a", New: "480000"}}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ev.PriceReduced(); got != tt.want {
				t.Errorf("PriceReduced() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsLease(t *testing.T) {
	if !(Listing{PropertyType: "rental"}).IsLease() {
		t.Error("rental should be a lease type")
	}
	if (Listing{PropertyType: "Single Family"}).IsLease() {
		t.Error("Single Family should not be a lease type")
	}
}
