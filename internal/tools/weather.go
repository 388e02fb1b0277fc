package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

const (
	defaultGeocodingBaseURL = "https://geocoding-api.open-meteo.com"
	defaultForecastBaseURL  = "https://api.open-meteo.com"
)

type weatherClient struct {
	client       *http.Client
	geocodingURL string
	forecastURL  string
}

func newWeatherClient(client *http.Client, geocodingURL, forecastURL string) *weatherClient {
	if geocodingURL == "" {
		geocodingURL = defaultGeocodingBaseURL
	}
	if forecastURL == "" {
		forecastURL = defaultForecastBaseURL
	}
	return &weatherClient{client: client, geocodingURL: geocodingURL, forecastURL: forecastURL}
}

type geocodingResponse struct {
	Results []struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"results"`
}

type forecastResponse struct {
	Current struct {
		Temperature float64 `json:"temperature_2m"`
		Humidity    int     `json:"relative_humidity_2m"`
		WindSpeed   float64 `json:"wind_speed_10m"`
		WeatherCode int     `json:"weather_code"`
	} `json:"current"`
}

// current resolves a location and formats its weather as a single line:
// "<condition> <t>C <w>km/h <h>%".
func (w *weatherClient) current(ctx context.Context, location string) (string, error) {
	geoURL := w.geocodingURL + "/v1/search?name=" + url.QueryEscape(location) + "&count=1"
	var geo geocodingResponse
	if err := w.getJSON(ctx, geoURL, &geo); err != nil {
		return "", fmt.Errorf("geocoding: %w", err)
	}
	if len(geo.Results) == 0 {
		return "", fmt.Errorf("location %q not found", location)
	}
	r := geo.Results[0]

	fcURL := fmt.Sprintf(
		"%s/v1/forecast?latitude=%s&longitude=%s&current=temperature_2m,relative_humidity_2m,wind_speed_10m,weather_code",
		w.forecastURL,
		strconv.FormatFloat(r.Latitude, 'f', -1, 64),
		strconv.FormatFloat(r.Longitude, 'f', -1, 64),
	)
	var fc forecastResponse
	if err := w.getJSON(ctx, fcURL, &fc); err != nil {
		return "", fmt.Errorf("forecast: %w", err)
	}

	c := fc.Current
	return fmt.Sprintf("%s %.0fC %.0fkm/h %d%%",
		conditionFromCode(c.WeatherCode), c.Temperature, c.WindSpeed, c.Humidity), nil
}

func (w *weatherClient) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// conditionFromCode maps WMO weather codes to a short label.
func conditionFromCode(code int) string {
	switch {
	case code == 0:
		return "Clear"
	case code <= 2:
		return "PartlyCloudy"
	case code == 3:
		return "Overcast"
	case code <= 48:
		return "Fog"
	case code <= 57:
		return "Drizzle"
	case code <= 67:
		return "Rain"
	case code <= 77:
		return "Snow"
	case code <= 82:
		return "Showers"
	case code <= 86:
		return "SnowShowers"
	case code <= 99:
		return "Thunderstorm"
	default:
		return "Unknown"
	}
}
