package validation

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// MaxCityLength bounds city names in runes.
const MaxCityLength = 100

// DefaultForecastCount is used when cnt is omitted: 40 items, five days of 3-hour steps.
const DefaultForecastCount = 40

// ErrCityEmpty is returned when city is empty or whitespace-only after trim.
var ErrCityEmpty = errors.New("city is required")

// ErrCityTooLong is returned when city length exceeds MaxCityLength.
var ErrCityTooLong = errors.New("city too long")

// ErrCityInvalidChars is returned when city contains disallowed characters.
var ErrCityInvalidChars = errors.New("city contains invalid characters")

// ParamError reports an invalid query or path parameter.
type ParamError struct {
	Param   string
	Message string
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Param, e.Message)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("query"); name != "" {
			return name
		}
		return f.Name
	})
	return v
}

// Struct validates s against its `validate` tags.
func Struct(s any) error {
	return validate.Struct(s)
}

// ValidateCity trims the input, enforces the length bound, and restricts to letters (Unicode),
// digits, space, comma, hyphen, period and apostrophe. Case is preserved; the cache layer lowercases.
func ValidateCity(input string) (string, error) {
	s := strings.TrimSpace(input)
	r := []rune(s)
	if len(r) == 0 {
		return "", ErrCityEmpty
	}
	if len(r) > MaxCityLength {
		return "", ErrCityTooLong
	}
	for _, c := range r {
		if !isAllowedCityRune(c) {
			return "", ErrCityInvalidChars
		}
	}
	return s, nil
}

func isAllowedCityRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) {
		return true
	}
	switch r {
	case ' ', ',', '-', '.', '\'':
		return true
	}
	return false
}

// ParseCityID parses a positive OpenWeather city id.
func ParseCityID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, &ParamError{Param: "city_id", Message: "must be a positive integer"}
	}
	return id, nil
}

// ForecastParams are the query parameters of the forecast routes.
type ForecastParams struct {
	Count int `query:"cnt" validate:"min=1,max=40"`
}

// FilterParams are the query parameters of the filtered forecast route.
type FilterParams struct {
	Count            int      `query:"cnt" validate:"min=1,max=40"`
	WeatherCondition *string  `query:"weather_condition"`
	MinTemp          *float64 `query:"min_temp"`
	MaxTemp          *float64 `query:"max_temp"`
	MinHumidity      *int     `query:"min_humidity" validate:"omitempty,min=0,max=100"`
	MaxHumidity      *int     `query:"max_humidity" validate:"omitempty,min=0,max=100"`
}

// ParseForecastParams reads cnt, defaulting to DefaultForecastCount.
func ParseForecastParams(values url.Values) (ForecastParams, error) {
	cnt, err := parseCount(values)
	if err != nil {
		return ForecastParams{}, err
	}
	p := ForecastParams{Count: cnt}
	if err := Struct(p); err != nil {
		return ForecastParams{}, paramError(err)
	}
	return p, nil
}

// ParseFilterParams reads the filter bounds. Absent or empty parameters impose no constraint.
// Inverted bounds (min > max) are accepted.
func ParseFilterParams(values url.Values) (FilterParams, error) {
	cnt, err := parseCount(values)
	if err != nil {
		return FilterParams{}, err
	}
	p := FilterParams{Count: cnt}
	if v := strings.TrimSpace(values.Get("weather_condition")); v != "" {
		p.WeatherCondition = &v
	}
	if p.MinTemp, err = parseFloat(values, "min_temp"); err != nil {
		return FilterParams{}, err
	}
	if p.MaxTemp, err = parseFloat(values, "max_temp"); err != nil {
		return FilterParams{}, err
	}
	if p.MinHumidity, err = parseInt(values, "min_humidity"); err != nil {
		return FilterParams{}, err
	}
	if p.MaxHumidity, err = parseInt(values, "max_humidity"); err != nil {
		return FilterParams{}, err
	}
	if err := Struct(p); err != nil {
		return FilterParams{}, paramError(err)
	}
	return p, nil
}

func parseCount(values url.Values) (int, error) {
	raw := strings.TrimSpace(values.Get("cnt"))
	if raw == "" {
		return DefaultForecastCount, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &ParamError{Param: "cnt", Message: "must be an integer"}
	}
	return n, nil
}

func parseFloat(values url.Values, name string) (*float64, error) {
	raw := strings.TrimSpace(values.Get(name))
	if raw == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, &ParamError{Param: name, Message: "must be a number"}
	}
	return &f, nil
}

func parseInt(values url.Values, name string) (*int, error) {
	raw := strings.TrimSpace(values.Get(name))
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, &ParamError{Param: name, Message: "must be an integer"}
	}
	return &n, nil
}

// paramError converts the first validator failure into a ParamError.
func paramError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "min":
		return &ParamError{Param: fe.Field(), Message: "must be >= " + fe.Param()}
	case "max":
		return &ParamError{Param: fe.Field(), Message: "must be <= " + fe.Param()}
	default:
		return &ParamError{Param: fe.Field(), Message: "failed " + fe.Tag() + " check"}
	}
}
