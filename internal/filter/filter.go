// Package filter selects forecast items matching a set of optional bounds.
package filter

import "github.com/kjstillabower/weather-cache-proxy/internal/models"

// Criteria holds optional bounds. A nil field places no constraint.
// Bounds are inclusive; an inverted range (min > max) matches nothing.
type Criteria struct {
	MinTemp          *float64
	MaxTemp          *float64
	MinHumidity      *int
	MaxHumidity      *int
	WeatherCondition *string
}

// IsZero reports whether no bound is set.
func (c Criteria) IsZero() bool {
	return c.MinTemp == nil && c.MaxTemp == nil &&
		c.MinHumidity == nil && c.MaxHumidity == nil &&
		c.WeatherCondition == nil
}

// Match reports whether item satisfies every set bound.
func (c Criteria) Match(item models.ForecastItem) bool {
	if c.WeatherCondition != nil && item.Condition() != *c.WeatherCondition {
		return false
	}
	temp := item.Temp()
	if c.MinTemp != nil && temp < *c.MinTemp {
		return false
	}
	if c.MaxTemp != nil && temp > *c.MaxTemp {
		return false
	}
	humidity := item.Humidity()
	if c.MinHumidity != nil && humidity < *c.MinHumidity {
		return false
	}
	if c.MaxHumidity != nil && humidity > *c.MaxHumidity {
		return false
	}
	return true
}

// Apply returns the items matching c, in input order. The result is never nil.
func Apply(items []models.ForecastItem, c Criteria) []models.ForecastItem {
	out := make([]models.ForecastItem, 0, len(items))
	for _, item := range items {
		if c.Match(item) {
			out = append(out, item)
		}
	}
	return out
}
