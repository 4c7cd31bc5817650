package domain

import (
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID        uint             `json:"id"`
	Name      string           `json:"name"`
	SKU       string           `json:"sku"`
	Category  string           `json:"category"`
	ListPrice *decimal.Decimal `json:"list_price,omitempty"`
}

type Competitor struct {
	ID       uint   `json:"id"`
	Name     string `json:"name"`
	Endpoint string `json:"endpoint"`
	Active   bool   `json:"active"`
}

// Listing binds a product to a competitor that is watched for it.
type Listing struct {
	Product Product
	URL     string
}

// CompetitorWatch is an active competitor together with the products collected from it.
type CompetitorWatch struct {
	Competitor Competitor
	Listings   []Listing
}

// Pair identifies one (product, competitor) price series.
type Pair struct {
	ProductID      uint
	CompetitorID   uint
	ProductName    string
	CompetitorName string
	SKU            string
	SourceURL      string
}

type PriceObservation struct {
	ID           uint            `json:"id"`
	ProductID    uint            `json:"product_id"`
	CompetitorID uint            `json:"competitor_id"`
	Price        decimal.Decimal `json:"price"`
	Currency     string          `json:"currency,omitempty"`
	SourceURL    string          `json:"source_url"`
	ObservedAt   time.Time       `json:"observed_at"`
}

// Pairs expands the watch into one pair per listing. A listing without its own URL is read from
// the competitor's price endpoint.
func (w CompetitorWatch) Pairs() []Pair {
	pairs := make([]Pair, 0, len(w.Listings))
	for _, listing := range w.Listings {
		sourceURL := listing.URL
		if sourceURL == "" {
			sourceURL = strings.TrimRight(w.Competitor.Endpoint, "/") + "/prices/" + url.PathEscape(listing.Product.SKU)
		}
		pairs = append(pairs, Pair{
			ProductID:      listing.Product.ID,
			CompetitorID:   w.Competitor.ID,
			ProductName:    listing.Product.Name,
			CompetitorName: w.Competitor.Name,
			SKU:            listing.Product.SKU,
			SourceURL:      sourceURL,
		})
	}
	return pairs
}
