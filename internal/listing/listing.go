// Package listing models a marketplace listing. Scraping listings is not
// implemented yet; the types exist so the view command has a stable shape.
package listing

import (
	"context"
	"errors"
	"io"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/ebaybot/internal/failure"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Listing is one item as shown on its listing page.
type Listing struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Condition   string   `json:"condition"`
	ItemID      string   `json:"item_id"`
	Price       string   `json:"price"`
	Images      []string `json:"images"`
	Views       string   `json:"views"`
	Watchers    string   `json:"watchers"`
}

// Encode writes listings as indented JSON.
func Encode(w io.Writer, listings []Listing) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(listings)
}

// Decode reads a JSON array of listings.
func Decode(r io.Reader) ([]Listing, error) {
	var listings []Listing
	if err := json.NewDecoder(r).Decode(&listings); err != nil {
		return nil, err
	}
	return listings, nil
}

// Scraper collects the signed-in account's active listings.
type Scraper struct{}

// NewScraper returns a Scraper.
func NewScraper() *Scraper {
	return &Scraper{}
}

// Active always fails with NotImplemented.
func (s *Scraper) Active(ctx context.Context) ([]Listing, error) {
	return nil, failure.New(failure.CodeNotImplemented, "view", errors.New("listing scraping is not implemented"))
}
