// Package images supplies street-level images with ground-truth location
// data. A prefetch cache fronts the remote provider so match creation does
// not pay one network round trip per round.
package images

import "context"

// Image is one playable street-view image with its ground truth.
type Image struct {
	ImageURL    string `json:"imageUrl"`
	Coordinates LatLon `json:"coordinates"`
	CountryName string `json:"countryName"`
	CountryCode string `json:"countryCode"`
}

// LatLon is a WGS84 coordinate pair.
type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Source produces one image per call. Implementations must fail with an
// error rather than return a zero Image.
type Source interface {
	Next(ctx context.Context) (Image, error)
}

// Provider fetches a fresh image from a remote backend. Cache wraps a
// Provider; tests substitute stubs.
type Provider interface {
	Fetch(ctx context.Context) (Image, error)
}
