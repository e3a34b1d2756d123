package images

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// bbox is a lon/lat bounding box in Mapillary's west,south,east,north order.
type bbox struct {
	West, South, East, North float64
}

// regions are densely-covered land areas the provider samples from.
// Sampling regions instead of the whole globe keeps ocean misses rare.
var regions = []bbox{
	{-124.4, 32.5, -70.0, 48.9},  // contiguous United States
	{-9.5, 36.0, 31.0, 60.0},     // Europe
	{-73.9, -38.0, -34.8, 5.2},   // Brazil and surroundings
	{112.9, -39.1, 153.6, -11.0}, // Australia
	{68.1, 8.0, 97.4, 35.5},      // Indian subcontinent
	{127.0, 31.0, 142.0, 45.5},   // Japan / Korea
	{16.4, -34.8, 32.9, -22.1},   // South Africa
	{-117.1, 14.5, -86.7, 32.7},  // Mexico / Central America
	{19.0, 59.0, 31.6, 70.1},     // Nordics
	{95.0, -10.9, 141.0, 6.1},    // Maritime Southeast Asia
}

const (
	mapillaryBase = "https://graph.mapillary.com/images"
	nominatimBase = "https://nominatim.openstreetmap.org/reverse"
)

// MapillaryProvider pulls random street-level images from the Mapillary
// graph API and reverse-geocodes their coordinates via Nominatim.
type MapillaryProvider struct {
	accessToken string
	apiBase     string
	geocodeBase string
	hc          *http.Client

	mu  sync.Mutex
	rng *rand.Rand
}

func NewMapillaryProvider(accessToken string, rng *rand.Rand) *MapillaryProvider {
	return &MapillaryProvider{
		accessToken: accessToken,
		apiBase:     mapillaryBase,
		geocodeBase: nominatimBase,
		hc:          &http.Client{Timeout: 20 * time.Second},
		rng:         rng,
	}
}

// Fetch picks a random region, asks Mapillary for images inside a small
// random window of it, and returns one with resolved country data.
func (p *MapillaryProvider) Fetch(ctx context.Context) (Image, error) {
	if p.accessToken == "" {
		return Image{}, errors.New("mapillary access token missing")
	}

	candidates, err := p.searchWindow(ctx)
	if err != nil {
		return Image{}, err
	}
	if len(candidates) == 0 {
		return Image{}, errors.New("no images in sampled window")
	}

	pick := candidates[p.intn(len(candidates))]
	lat, lon, ok := pick.latLon()
	if !ok || pick.ThumbURL == "" {
		return Image{}, errors.New("mapillary image missing geometry or thumbnail")
	}

	name, code := p.reverseGeocode(ctx, lat, lon)
	if name == "" {
		name = "Unknown"
	}
	return Image{
		ImageURL:    pick.ThumbURL,
		Coordinates: LatLon{Lat: lat, Lon: lon},
		CountryName: name,
		CountryCode: code,
	}, nil
}

type mapillaryImage struct {
	ID               string `json:"id"`
	ThumbURL         string `json:"thumb_1024_url"`
	ComputedGeometry struct {
		Type        string    `json:"type"`
		Coordinates []float64 `json:"coordinates"` // lon, lat
	} `json:"computed_geometry"`
}

func (m mapillaryImage) latLon() (lat, lon float64, ok bool) {
	c := m.ComputedGeometry.Coordinates
	if len(c) != 2 {
		return 0, 0, false
	}
	return c[1], c[0], true
}

func (p *MapillaryProvider) searchWindow(ctx context.Context) ([]mapillaryImage, error) {
	region := regions[p.intn(len(regions))]

	// ~0.5 degree window at a random spot inside the region.
	const window = 0.5
	west := region.West + p.float64()*(region.East-region.West-window)
	south := region.South + p.float64()*(region.North-region.South-window)

	q := url.Values{}
	q.Set("access_token", p.accessToken)
	q.Set("fields", "id,thumb_1024_url,computed_geometry")
	q.Set("bbox", fmt.Sprintf("%.4f,%.4f,%.4f,%.4f", west, south, west+window, south+window))
	q.Set("limit", "20")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiBase+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("mapillary http %d", resp.StatusCode)
	}

	var payload struct {
		Data []mapillaryImage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	return payload.Data, nil
}

// reverseGeocode resolves a coordinate to a country name and upper-case
// ISO code. Failures degrade to empty values; the round still plays with
// the name "Unknown".
func (p *MapillaryProvider) reverseGeocode(ctx context.Context, lat, lon float64) (name, code string) {
	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("lat", fmt.Sprintf("%.6f", lat))
	q.Set("lon", fmt.Sprintf("%.6f", lon))
	q.Set("zoom", "3")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.geocodeBase+"?"+q.Encode(), nil)
	if err != nil {
		return "", ""
	}
	req.Header.Set("User-Agent", "geoduel-server/1.0")
	resp, err := p.hc.Do(req)
	if err != nil {
		return "", ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", ""
	}

	var payload struct {
		Address struct {
			Country     string `json:"country"`
			CountryCode string `json:"country_code"`
		} `json:"address"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", ""
	}
	return payload.Address.Country, strings.ToUpper(payload.Address.CountryCode)
}

func (p *MapillaryProvider) intn(n int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rng.Intn(n)
}

func (p *MapillaryProvider) float64() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rng.Float64()
}
