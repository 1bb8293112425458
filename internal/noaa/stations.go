package noaa

import "github.com/talgya/tidewater/internal/tide"

// Stations returns the built-in stations a fresh server is seeded with.
func Stations() []tide.Station {
	return []tide.Station{
		{ID: "9414290", Name: "San Francisco, CA", State: "California", Latitude: 37.8063, Longitude: -122.4659, TimezoneOffset: "-8"},
		{ID: "8518750", Name: "The Battery, NY", State: "New York", Latitude: 40.7006, Longitude: -74.0142, TimezoneOffset: "-5"},
		{ID: "8443970", Name: "Boston, MA", State: "Massachusetts", Latitude: 42.3539, Longitude: -71.0503, TimezoneOffset: "-5"},
		{ID: "8638863", Name: "Chesapeake Bay Bridge, VA", State: "Virginia", Latitude: 36.9677, Longitude: -76.1129, TimezoneOffset: "-5"},
		{ID: "8724580", Name: "Key West, FL", State: "Florida", Latitude: 24.5557, Longitude: -81.8079, TimezoneOffset: "-5"},
		{ID: "9447130", Name: "Seattle, WA", State: "Washington", Latitude: 47.6026, Longitude: -122.3393, TimezoneOffset: "-8"},
		{ID: "8661070", Name: "Wilmington, NC", State: "North Carolina", Latitude: 34.2275, Longitude: -77.9536, TimezoneOffset: "-5"},
		{ID: "9410170", Name: "San Diego, CA", State: "California", Latitude: 32.7142, Longitude: -117.1736, TimezoneOffset: "-8"},
		{ID: "9455920", Name: "Anchorage, AK", State: "Alaska", Latitude: 61.2381, Longitude: -149.9261, TimezoneOffset: "-9"},
		{ID: "1611400", Name: "Honolulu, HI", State: "Hawaii", Latitude: 21.3067, Longitude: -157.867, TimezoneOffset: "-10"},
	}
}
