package filter

import (
	"encoding/json"
	"testing"

	"github.com/kjstillabower/weather-cache-proxy/internal/models"
)

func item(dt int64, temp float64, humidity int, cond string) models.ForecastItem {
	it := models.ForecastItem{
		Dt:   dt,
		Main: &models.MainData{Temp: temp, Humidity: humidity},
	}
	if cond != "" {
		it.Weather = []models.Condition{{Main: cond}}
	}
	return it
}

func ptr[T any](v T) *T { return &v }

func sample() []models.ForecastItem {
	return []models.ForecastItem{
		item(1, 10, 40, "Clear"),
		item(2, 18, 60, "Rain"),
		item(3, 22, 75, "Clouds"),
		item(4, 30, 90, "Rain"),
	}
}

func dts(items []models.ForecastItem) []int64 {
	out := make([]int64, len(items))
	for i, it := range items {
		out[i] = it.Dt
	}
	return out
}

func equal(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestApply(t *testing.T) {
	tests := []struct {
		name     string
		criteria Criteria
		want     []int64
	}{
		{"no bounds", Criteria{}, []int64{1, 2, 3, 4}},
		{"temp range", Criteria{MinTemp: ptr(15.0), MaxTemp: ptr(25.0)}, []int64{2, 3}},
		{"inclusive bounds", Criteria{MinTemp: ptr(18.0), MaxTemp: ptr(22.0)}, []int64{2, 3}},
		{"inverted temp range", Criteria{MinTemp: ptr(30.0), MaxTemp: ptr(10.0)}, []int64{}},
		{"min humidity", Criteria{MinHumidity: ptr(70)}, []int64{3, 4}},
		{"max humidity", Criteria{MaxHumidity: ptr(60)}, []int64{1, 2}},
		{"condition", Criteria{WeatherCondition: ptr("Rain")}, []int64{2, 4}},
		{"condition is case-sensitive", Criteria{WeatherCondition: ptr("rain")}, []int64{}},
		{"conjunction", Criteria{WeatherCondition: ptr("Rain"), MaxTemp: ptr(25.0)}, []int64{2}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Apply(sample(), tc.criteria)
			if got == nil {
				t.Fatal("Apply() returned nil slice")
			}
			if !equal(dts(got), tc.want) {
				t.Errorf("Apply() = %v, want %v", dts(got), tc.want)
			}
		})
	}
}

func TestApply_SoundAndComplete(t *testing.T) {
	criteria := []Criteria{
		{MinTemp: ptr(12.0)},
		{MaxHumidity: ptr(80), WeatherCondition: ptr("Rain")},
		{MinTemp: ptr(0.0), MaxTemp: ptr(100.0), MinHumidity: ptr(0), MaxHumidity: ptr(100)},
	}
	for _, c := range criteria {
		items := sample()
		got := Apply(items, c)
		for _, it := range got {
			if !c.Match(it) {
				t.Errorf("Apply() kept non-matching item dt=%d", it.Dt)
			}
		}
		var matching int
		for _, it := range items {
			if c.Match(it) {
				matching++
			}
		}
		if matching != len(got) {
			t.Errorf("Apply() returned %d items, %d match", len(got), matching)
		}
		for i := 1; i < len(got); i++ {
			if got[i-1].Dt >= got[i].Dt {
				t.Errorf("Apply() reordered items: %v", dts(got))
			}
		}
	}
}

func TestApply_MissingConditionIsUnknown(t *testing.T) {
	items := []models.ForecastItem{item(1, 20, 50, "")}
	if got := Apply(items, Criteria{WeatherCondition: ptr("Unknown")}); len(got) != 1 {
		t.Errorf("expected item without conditions to match Unknown, got %d", len(got))
	}
}

func TestApply_EmptyResultEncodesAsArray(t *testing.T) {
	got := Apply(nil, Criteria{})
	b, err := json.Marshal(got)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(b) != "[]" {
		t.Errorf("Marshal() = %s, want []", b)
	}
}

func TestApply_KeepsRawItem(t *testing.T) {
	raw := `{"dt":5,"main":{"temp":20,"humidity":50},"weather":[{"main":"Clear"}],"extra":"kept"}`
	var it models.ForecastItem
	if err := json.Unmarshal([]byte(raw), &it); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	got := Apply([]models.ForecastItem{it}, Criteria{WeatherCondition: ptr("Clear")})
	b, _ := json.Marshal(got)
	if string(b) != "["+raw+"]" {
		t.Errorf("Marshal() = %s", b)
	}
}

func TestCriteria_IsZero(t *testing.T) {
	if !(Criteria{}).IsZero() {
		t.Error("empty criteria should be zero")
	}
	if (Criteria{MinHumidity: ptr(0)}).IsZero() {
		t.Error("criteria with a bound should not be zero")
	}
}
