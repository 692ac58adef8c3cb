package client

import (
	"context"
	"testing"
	"time"

	"github.com/kjstillabower/weather-cache-proxy/internal/models"
)

// BenchmarkClient_BuildRequest benchmarks HTTP request construction.
func BenchmarkClient_BuildRequest(b *testing.B) {
	client, _ := NewOpenWeatherClient("test-api-key", "https://api.openweathermap.org/data/2.5", 2*time.Second)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = client.buildRequest(ctx, endpointForecast, queryParams(models.ByName("Paris")))
	}
}

// BenchmarkClient_DecodeCurrent benchmarks parsing and shape-checking a current-weather body.
func BenchmarkClient_DecodeCurrent(b *testing.B) {
	body := []byte(currentBody)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var doc models.CurrentWeather
		_ = decode(body, &doc)
	}
}

// BenchmarkClient_DecodeForecast benchmarks parsing and shape-checking a forecast body.
func BenchmarkClient_DecodeForecast(b *testing.B) {
	body := []byte(forecastBody)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var doc models.Forecast
		_ = decode(body, &doc)
	}
}

// BenchmarkCategorizeError benchmarks mapping errors to metric labels.
func BenchmarkCategorizeError(b *testing.B) {
	errs := []error{ErrCityNotFound, ErrUpstreamTimeout, ErrInvalidResponse, context.Canceled}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = CategorizeError(errs[i%len(errs)])
	}
}

// BenchmarkStatusLabel benchmarks HTTP status code to label conversion.
func BenchmarkStatusLabel(b *testing.B) {
	statusCodes := []int{200, 400, 429, 500, 503}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		code := statusCodes[i%len(statusCodes)]
		_ = statusLabel(code)
	}
}
