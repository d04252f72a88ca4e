package tools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newWeatherServer(t *testing.T, geoBody, forecastBody string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/search", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(geoBody))
	})
	mux.HandleFunc("/v1/forecast", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("current_weather") != "true" {
			t.Errorf("missing current_weather parameter")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(forecastBody))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestWeatherToolExecute(t *testing.T) {
	t.Parallel()

	srv := newWeatherServer(t,
		`{"results":[{"name":"Da Nang","country":"Vietnam","latitude":16.07,"longitude":108.22}]}`,
		`{"current_weather":{"temperature":31.5,"windspeed":12.3,"weathercode":2,"is_day":1}}`,
	)

	tool := NewWeatherTool(5 * time.Second)
	tool.geocodingURL = srv.URL + "/v1/search"
	tool.forecastURL = srv.URL + "/v1/forecast"

	res, err := tool.Execute(context.Background(), map[string]any{"location": "Da Nang"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res["status"] != "success" {
		t.Fatalf("expected success, got %+v", res)
	}

	loc := res["location"].(map[string]any)
	if loc["resolved_name"] != "Da Nang" || loc["country"] != "Vietnam" {
		t.Fatalf("unexpected location: %+v", loc)
	}

	weather := res["weather"].(map[string]any)
	if weather["temperature"] != 31.5 {
		t.Fatalf("unexpected temperature: %v", weather["temperature"])
	}
	if weather["description"] != "Partly cloudy" {
		t.Fatalf("unexpected description: %v", weather["description"])
	}
	if weather["unit"] != "°C" {
		t.Fatalf("unexpected unit: %v", weather["unit"])
	}
	if weather["is_day"] != true {
		t.Fatalf("expected is_day true")
	}
}

func TestWeatherToolUnknownLocation(t *testing.T) {
	t.Parallel()

	srv := newWeatherServer(t, `{"results":[]}`, `{}`)

	tool := NewWeatherTool(5 * time.Second)
	tool.geocodingURL = srv.URL + "/v1/search"
	tool.forecastURL = srv.URL + "/v1/forecast"

	res, err := tool.Execute(context.Background(), map[string]any{"location": "Atlantis"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res["status"] != "error" {
		t.Fatalf("expected error status for unknown location, got %+v", res)
	}
}

func TestWeatherToolInvalidUnit(t *testing.T) {
	t.Parallel()

	tool := NewWeatherTool(time.Second)
	res, err := tool.Execute(context.Background(), map[string]any{"location": "Paris", "unit": "kelvin"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res["status"] != "error" {
		t.Fatalf("expected error status for invalid unit, got %+v", res)
	}
}

func TestWeatherToolMissingLocation(t *testing.T) {
	t.Parallel()

	tool := NewWeatherTool(time.Second)
	if _, err := tool.Execute(context.Background(), map[string]any{}); err == nil {
		t.Fatalf("expected error for missing location")
	}
}

func TestWeatherToolFahrenheit(t *testing.T) {
	t.Parallel()

	srv := newWeatherServer(t,
		`{"results":[{"name":"Paris","country":"France","latitude":48.85,"longitude":2.35}]}`,
		`{"current_weather":{"temperature":71.6,"windspeed":5,"weathercode":0,"is_day":0}}`,
	)

	tool := NewWeatherTool(5 * time.Second)
	tool.geocodingURL = srv.URL + "/v1/search"
	tool.forecastURL = srv.URL + "/v1/forecast"

	res, err := tool.Execute(context.Background(), map[string]any{"location": "Paris", "unit": "Fahrenheit"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	weather := res["weather"].(map[string]any)
	if weather["unit"] != "°F" {
		t.Fatalf("unexpected unit: %v", weather["unit"])
	}
	if weather["description"] != "Clear sky" {
		t.Fatalf("unexpected description: %v", weather["description"])
	}
	if weather["is_day"] != false {
		t.Fatalf("expected is_day false")
	}
}
