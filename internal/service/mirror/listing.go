package mirror

import (
	"fmt"
	"io"
	"net/url"

	"github.com/PuerkitoBio/goquery"
)

// parseListing returns the anchors of a directory index page, resolved
// against pageURL with fragments removed. Order follows the page.
func parseListing(r io.Reader, pageURL *url.URL) ([]*url.URL, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse listing: %w", err)
	}

	var links []*url.URL
	doc.Find("a[href]").Each(func(i int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok || href == "" {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		link := pageURL.ResolveReference(ref)
		link.Fragment = ""
		links = append(links, link)
	})

	return links, nil
}
