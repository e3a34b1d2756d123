package images

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMapillaryFetch(t *testing.T) {
	graph := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("access_token"); got != "tok" {
			t.Errorf("access_token = %q", got)
		}
		if got := r.URL.Query().Get("limit"); got != "20" {
			t.Errorf("limit = %q", got)
		}
		bbox := r.URL.Query().Get("bbox")
		if strings.Count(bbox, ",") != 3 {
			t.Errorf("bbox = %q", bbox)
		}
		fmt.Fprint(w, `{"data":[
			{"id":"1","thumb_1024_url":"https://cdn.example/1.jpg","computed_geometry":{"type":"Point","coordinates":[2.35,48.85]}},
			{"id":"2","thumb_1024_url":"https://cdn.example/2.jpg","computed_geometry":{"type":"Point","coordinates":[2.36,48.86]}}
		]}`)
	}))
	defer graph.Close()

	geocode := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); !strings.HasPrefix(got, "geoduel-server/") {
			t.Errorf("User-Agent = %q", got)
		}
		if got := r.URL.Query().Get("zoom"); got != "3" {
			t.Errorf("zoom = %q", got)
		}
		fmt.Fprint(w, `{"address":{"country":"France","country_code":"fr"}}`)
	}))
	defer geocode.Close()

	p := NewMapillaryProvider("tok", rand.New(rand.NewSource(1)))
	p.apiBase = graph.URL
	p.geocodeBase = geocode.URL

	img, err := p.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !strings.HasPrefix(img.ImageURL, "https://cdn.example/") {
		t.Errorf("ImageURL = %q", img.ImageURL)
	}
	// Geometry comes back lon,lat and must land as lat,lon.
	if img.Coordinates.Lat < 48 || img.Coordinates.Lat > 49 {
		t.Errorf("Lat = %v", img.Coordinates.Lat)
	}
	if img.CountryName != "France" || img.CountryCode != "FR" {
		t.Errorf("country = %q / %q", img.CountryName, img.CountryCode)
	}
}

func TestMapillaryFetchMissingToken(t *testing.T) {
	p := NewMapillaryProvider("", rand.New(rand.NewSource(1)))
	if _, err := p.Fetch(context.Background()); err == nil {
		t.Fatal("expected error without access token")
	}
}

func TestMapillaryFetchEmptyWindow(t *testing.T) {
	graph := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[]}`)
	}))
	defer graph.Close()

	p := NewMapillaryProvider("tok", rand.New(rand.NewSource(1)))
	p.apiBase = graph.URL
	if _, err := p.Fetch(context.Background()); err == nil {
		t.Fatal("expected error for empty window")
	}
}

func TestMapillaryFetchGeocodeFailureDegrades(t *testing.T) {
	graph := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[{"id":"1","thumb_1024_url":"https://cdn.example/1.jpg","computed_geometry":{"type":"Point","coordinates":[2.35,48.85]}}]}`)
	}))
	defer graph.Close()
	geocode := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer geocode.Close()

	p := NewMapillaryProvider("tok", rand.New(rand.NewSource(1)))
	p.apiBase = graph.URL
	p.geocodeBase = geocode.URL

	img, err := p.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if img.CountryName != "Unknown" {
		t.Errorf("CountryName = %q, want Unknown", img.CountryName)
	}
	if img.CountryCode != "" {
		t.Errorf("CountryCode = %q, want empty", img.CountryCode)
	}
}
