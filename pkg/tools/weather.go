package tools

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"leoactivation/pkg/llm"
)

// wmoCodes is a simplified WMO weather code to description mapping.
var wmoCodes = map[int]string{
	0:  "Clear sky",
	1:  "Mainly clear",
	2:  "Partly cloudy",
	3:  "Overcast",
	45: "Fog",
	48: "Depositing rime fog",
	51: "Light drizzle",
	53: "Moderate drizzle",
	55: "Dense drizzle",
	61: "Slight rain",
	63: "Moderate rain",
	65: "Heavy rain",
	71: "Slight snow",
	73: "Moderate snow",
	75: "Heavy snow",
	95: "Thunderstorm",
	96: "Thunderstorm with hail",
}

func weatherDescription(code int) string {
	if desc, ok := wmoCodes[code]; ok {
		return desc
	}
	return "Unknown"
}

// WeatherTool answers real-time weather questions by geocoding the
// location name and querying the Open-Meteo forecast API. Both base
// URLs are injectable so tests can point at a local server.
type WeatherTool struct {
	geocodingURL string
	forecastURL  string
	httpClient   *http.Client
}

func NewWeatherTool(timeout time.Duration) *WeatherTool {
	return &WeatherTool{
		geocodingURL: "https://geocoding-api.open-meteo.com/v1/search",
		forecastURL:  "https://api.open-meteo.com/v1/forecast",
		httpClient:   &http.Client{Timeout: timeout},
	}
}

// Name implements api.Tool
func (t *WeatherTool) Name() string {
	return "get_current_weather"
}

// Description implements api.Tool
func (t *WeatherTool) Description() string {
	return "Get real-time weather for a city by name (e.g. 'Saigon', 'Paris')."
}

// Parameters implements api.Tool
func (t *WeatherTool) Parameters() []llm.ParamSpec {
	return []llm.ParamSpec{
		{Name: "location", Type: "string", Description: "The city name", Required: true},
		{Name: "unit", Type: "string", Description: "Temperature unit", Enum: []string{"celsius", "fahrenheit"}},
	}
}

// Execute implements api.Tool
func (t *WeatherTool) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	location, _ := args["location"].(string)
	if location == "" {
		return nil, fmt.Errorf("location is required")
	}

	unit := "celsius"
	if u, ok := args["unit"].(string); ok && u != "" {
		unit = strings.ToLower(u)
	}
	if unit != "celsius" && unit != "fahrenheit" {
		return map[string]any{
			"status":  "error",
			"message": "Invalid unit. Use 'celsius' or 'fahrenheit'.",
		}, nil
	}

	coords, err := t.geocode(ctx, location)
	if err != nil {
		return nil, err
	}
	if coords == nil {
		return map[string]any{
			"status":  "error",
			"message": fmt.Sprintf("Could not find location: %s", location),
		}, nil
	}

	slog.Info("🛠️ Fetching weather", "location", coords.Name, "country", coords.Country)

	current, err := t.forecast(ctx, coords, unit)
	if err != nil {
		return nil, err
	}

	unitSymbol := "°C"
	if unit == "fahrenheit" {
		unitSymbol = "°F"
	}

	return map[string]any{
		"status": "success",
		"location": map[string]any{
			"input":         location,
			"resolved_name": coords.Name,
			"country":       coords.Country,
			"lat":           coords.Lat,
			"lon":           coords.Lon,
		},
		"weather": map[string]any{
			"temperature":    current.Temperature,
			"unit":           unitSymbol,
			"windspeed":      current.Windspeed,
			"condition_code": current.WeatherCode,
			"description":    weatherDescription(current.WeatherCode),
			"is_day":         current.IsDay == 1,
		},
		"source": "Open-Meteo",
	}, nil
}

//----------------------------------------------------------------

type geoResult struct {
	Name    string  `json:"name"`
	Country string  `json:"country"`
	Lat     float64 `json:"latitude"`
	Lon     float64 `json:"longitude"`
}

// geocode resolves a city name to coordinates. A nil result with nil
// error means the location does not exist.
func (t *WeatherTool) geocode(ctx context.Context, city string) (*geoResult, error) {
	q := url.Values{}
	q.Set("name", city)
	q.Set("count", "1")
	q.Set("language", "en")
	q.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.geocodingURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geocoding service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geocoding service returned status %d", resp.StatusCode)
	}

	var body struct {
		Results []geoResult `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("invalid geocoding response: %w", err)
	}
	if len(body.Results) == 0 {
		slog.Warn("Geolocation failed", "city", city)
		return nil, nil
	}
	return &body.Results[0], nil
}

type currentWeather struct {
	Temperature float64 `json:"temperature"`
	Windspeed   float64 `json:"windspeed"`
	WeatherCode int     `json:"weathercode"`
	IsDay       int     `json:"is_day"`
}

func (t *WeatherTool) forecast(ctx context.Context, coords *geoResult, unit string) (*currentWeather, error) {
	q := url.Values{}
	q.Set("latitude", fmt.Sprintf("%g", coords.Lat))
	q.Set("longitude", fmt.Sprintf("%g", coords.Lon))
	q.Set("current_weather", "true")
	q.Set("temperature_unit", unit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.forecastURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weather service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("weather service returned status %d", resp.StatusCode)
	}

	var body struct {
		CurrentWeather currentWeather `json:"current_weather"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("invalid weather response: %w", err)
	}
	return &body.CurrentWeather, nil
}
