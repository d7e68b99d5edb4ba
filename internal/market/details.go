package market

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Details is everything the pipeline needs to know about one product
// before drafting a post for it.
type Details struct {
	Identifier  string
	Title       string
	Description string
	Author      string
	Circle      string
	URL         string
	MainImage   string
	SampleURLs  []string
	Genres      []string
}

// Validate reports whether the details carry enough substance to publish.
// Thin listings get rejected here instead of producing hollow posts.
func (d Details) Validate() error {
	var missing []string
	if strings.TrimSpace(d.Title) == "" {
		missing = append(missing, "title")
	}
	if strings.TrimSpace(d.Description) == "" {
		missing = append(missing, "description")
	}
	if strings.TrimSpace(d.Author) == "" && strings.TrimSpace(d.Circle) == "" {
		missing = append(missing, "author/circle")
	}
	if strings.TrimSpace(d.MainImage) == "" {
		missing = append(missing, "main image")
	}
	if len(missing) > 0 {
		return fmt.Errorf("product details incomplete: missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// Scraper fetches full product details from a listing page.
type Scraper interface {
	ProductDetails(ctx context.Context, url string) (Details, error)
}

// ErrProductNotFound signals that the listing no longer exists.
var ErrProductNotFound = errors.New("product not found")
