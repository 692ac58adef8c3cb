package models

import (
	"encoding/json"
	"strconv"
	"time"
)

// Query identifies a city either by name or by its OpenWeather city id.
// Exactly one of City or CityID is set.
type Query struct {
	City   string
	CityID int64
}

// ByName returns a Query for a city name.
func ByName(city string) Query {
	return Query{City: city}
}

// ByID returns a Query for a numeric OpenWeather city id.
func ByID(id int64) Query {
	return Query{CityID: id}
}

// IsID reports whether the query addresses a city by id.
func (q Query) IsID() bool {
	return q.CityID > 0
}

func (q Query) String() string {
	if q.IsID() {
		return "id:" + strconv.FormatInt(q.CityID, 10)
	}
	return q.City
}

// Condition is one entry of the upstream "weather" array.
type Condition struct {
	ID          int    `json:"id"`
	Main        string `json:"main"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

// MainData holds temperature (Celsius, units=metric), pressure and humidity.
type MainData struct {
	Temp      float64 `json:"temp"`
	FeelsLike float64 `json:"feels_like"`
	TempMin   float64 `json:"temp_min"`
	TempMax   float64 `json:"temp_max"`
	Pressure  float64 `json:"pressure"`
	Humidity  int     `json:"humidity"`
}

type Wind struct {
	Speed float64 `json:"speed"`
	Deg   float64 `json:"deg"`
	Gust  float64 `json:"gust,omitempty"`
}

type Coord struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// CurrentWeather is the upstream current-weather document. Only the fields the
// service reads are decoded; the full upstream body is re-emitted on marshal.
type CurrentWeather struct {
	ID         int64       `json:"id"`
	Name       string      `json:"name"`
	Coord      Coord       `json:"coord"`
	Weather    []Condition `json:"weather" validate:"required"`
	Main       *MainData   `json:"main" validate:"required"`
	Wind       Wind        `json:"wind"`
	Visibility int         `json:"visibility"`
	Dt         int64       `json:"dt"`
	Timezone   int         `json:"timezone"`

	raw json.RawMessage
}

// Condition returns the primary condition label, or "Unknown" when absent.
func (c CurrentWeather) Condition() string {
	return primaryCondition(c.Weather)
}

func (c *CurrentWeather) UnmarshalJSON(b []byte) error {
	type plain CurrentWeather
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*c = CurrentWeather(p)
	c.raw = append(json.RawMessage(nil), b...)
	return nil
}

func (c CurrentWeather) MarshalJSON() ([]byte, error) {
	if len(c.raw) > 0 {
		return c.raw, nil
	}
	type plain CurrentWeather
	return json.Marshal(plain(c))
}

// ForecastItem is one 3-hour forecast interval.
type ForecastItem struct {
	Dt         int64       `json:"dt" validate:"required"`
	Main       *MainData   `json:"main" validate:"required"`
	Weather    []Condition `json:"weather"`
	Wind       Wind        `json:"wind"`
	Visibility int         `json:"visibility"`
	Pop        float64     `json:"pop"`
	DtTxt      string      `json:"dt_txt"`

	raw json.RawMessage
}

// Condition returns the primary condition label (weather[0].main), or "Unknown".
func (f ForecastItem) Condition() string {
	return primaryCondition(f.Weather)
}

// Temp returns the forecast temperature in Celsius.
func (f ForecastItem) Temp() float64 {
	if f.Main == nil {
		return 0
	}
	return f.Main.Temp
}

// Humidity returns the forecast relative humidity in percent.
func (f ForecastItem) Humidity() int {
	if f.Main == nil {
		return 0
	}
	return f.Main.Humidity
}

// Time returns the forecast timestamp in UTC.
func (f ForecastItem) Time() time.Time {
	return time.Unix(f.Dt, 0).UTC()
}

func (f *ForecastItem) UnmarshalJSON(b []byte) error {
	type plain ForecastItem
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*f = ForecastItem(p)
	f.raw = append(json.RawMessage(nil), b...)
	return nil
}

func (f ForecastItem) MarshalJSON() ([]byte, error) {
	if len(f.raw) > 0 {
		return f.raw, nil
	}
	type plain ForecastItem
	return json.Marshal(plain(f))
}

type City struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Coord    Coord  `json:"coord"`
	Country  string `json:"country"`
	Timezone int    `json:"timezone"`
	Sunrise  int64  `json:"sunrise"`
	Sunset   int64  `json:"sunset"`
}

// Forecast is the upstream 5 day / 3 hour forecast document.
type Forecast struct {
	Cnt  int            `json:"cnt"`
	List []ForecastItem `json:"list" validate:"required,dive"`
	City *City          `json:"city" validate:"required"`

	raw json.RawMessage
}

func (f *Forecast) UnmarshalJSON(b []byte) error {
	type plain Forecast
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*f = Forecast(p)
	f.raw = append(json.RawMessage(nil), b...)
	return nil
}

func (f Forecast) MarshalJSON() ([]byte, error) {
	if len(f.raw) > 0 {
		return f.raw, nil
	}
	type plain Forecast
	return json.Marshal(plain(f))
}

// Cached wraps a response document with its cache provenance.
// It is the response envelope of every data-returning route.
type Cached[T any] struct {
	Data     T          `json:"data"`
	Cached   bool       `json:"cached"`
	CachedAt *time.Time `json:"cached_at"`
}

func primaryCondition(conds []Condition) string {
	if len(conds) == 0 {
		return "Unknown"
	}
	return conds[0].Main
}
