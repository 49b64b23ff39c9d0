package collection

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/wanderhost/browse-api/internal/pkg/validator"
)

// FilterKey names one recognized filter.
type FilterKey string

const (
	FilterLocation FilterKey = "location"
	FilterCategory FilterKey = "category"
	FilterMinPrice FilterKey = "minPrice"
	FilterMaxPrice FilterKey = "maxPrice"
	FilterQuery    FilterKey = "querySearch"
	FilterDate     FilterKey = "date"
	FilterGuests   FilterKey = "guests"
)

// FilterKeys is the full recognized key set in wire order.
var FilterKeys = []FilterKey{
	FilterLocation,
	FilterCategory,
	FilterMinPrice,
	FilterMaxPrice,
	FilterQuery,
	FilterDate,
	FilterGuests,
}

// FilterSet is the complete set of query constraints applied to a collection.
// Every recognized key is a field, so a FilterSet can never be partial.
// An empty string means the filter is unset.
type FilterSet struct {
	Location string `json:"location" validate:"max=120"`
	Category string `json:"category" validate:"max=60"`
	MinPrice string `json:"minPrice" validate:"omitempty,price"`
	MaxPrice string `json:"maxPrice" validate:"omitempty,price"`
	Query    string `json:"querySearch" validate:"max=200"`
	Date     string `json:"date" validate:"omitempty,iso_date"`
	Guests   string `json:"guests" validate:"omitempty,party_size"`
}

// ParseFilterKey reports whether name is a recognized filter key.
func ParseFilterKey(name string) (FilterKey, bool) {
	for _, k := range FilterKeys {
		if string(k) == name {
			return k, true
		}
	}
	return "", false
}

func (f *FilterSet) field(key FilterKey) *string {
	switch key {
	case FilterLocation:
		return &f.Location
	case FilterCategory:
		return &f.Category
	case FilterMinPrice:
		return &f.MinPrice
	case FilterMaxPrice:
		return &f.MaxPrice
	case FilterQuery:
		return &f.Query
	case FilterDate:
		return &f.Date
	case FilterGuests:
		return &f.Guests
	}
	return nil
}

// Get returns the value for key, or "" for unknown keys.
func (f FilterSet) Get(key FilterKey) string {
	if p := f.field(key); p != nil {
		return *p
	}
	return ""
}

// Merge returns a copy of f with the keys present in partial overwritten.
// Keys absent from partial keep their value. An unrecognized key fails the
// whole merge and f is returned unchanged.
func (f FilterSet) Merge(partial map[string]string) (FilterSet, error) {
	merged := f
	for name, value := range partial {
		key, ok := ParseFilterKey(name)
		if !ok {
			return f, fmt.Errorf("%w: %q", ErrUnknownFilterKey, name)
		}
		*merged.field(key) = value
	}
	return merged, nil
}

// Map returns all recognized keys, set or not.
func (f FilterSet) Map() map[string]string {
	m := make(map[string]string, len(FilterKeys))
	for _, k := range FilterKeys {
		m[string(k)] = f.Get(k)
	}
	return m
}

// Values encodes the set filters as URL query values.
func (f FilterSet) Values() url.Values {
	q := url.Values{}
	for _, k := range FilterKeys {
		if v := f.Get(k); v != "" {
			q.Set(string(k), v)
		}
	}
	return q
}

// IsEmpty reports whether no filter is set.
func (f FilterSet) IsEmpty() bool {
	return f == FilterSet{}
}

// Validate checks filter values and returns a *ValidationError on failure.
func (f FilterSet) Validate() error {
	fields := validator.Validate(&f)

	if f.MinPrice != "" && f.MaxPrice != "" && fields[string(FilterMinPrice)] == "" && fields[string(FilterMaxPrice)] == "" {
		lo, _ := strconv.ParseFloat(f.MinPrice, 64)
		hi, _ := strconv.ParseFloat(f.MaxPrice, 64)
		if lo > hi {
			if fields == nil {
				fields = make(map[string]string)
			}
			fields[string(FilterMinPrice)] = "Value must not exceed maxPrice"
		}
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}
