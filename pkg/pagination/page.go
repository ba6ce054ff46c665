package pagination

import (
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Item is one downloadable entry of a listing.
type Item struct {
	// ID is the externally assigned identifier, always positive.
	ID int64 `json:"id"`

	// Name is the display name taken from the anchor title. It is not
	// sanitized for filesystem use.
	Name string `json:"name"`
}

// Page is the parsed form of one listing page.
type Page struct {
	Number  int
	Items   []Item
	HasNext bool
}

// Selectors locates items and the pagination control in a listing page.
type Selectors struct {
	// Item matches every item anchor, in document order.
	Item string

	// Next matches the control that signals a further page.
	Next string
}

// DefaultSelectors returns the selectors for the album listing markup.
func DefaultSelectors() Selectors {
	return Selectors{
		Item: ".sound-list > ul > li a",
		Next: ".page-next",
	}
}

// ParsePage parses one listing page. An anchor without a usable identifier
// fails the whole page.
func ParsePage(r io.Reader, number int, sel Selectors) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, &ParseError{Page: number, Err: fmt.Errorf("parse markup: %w", err)}
	}

	page := &Page{
		Number:  number,
		Items:   []Item{},
		HasNext: doc.Find(sel.Next).Length() > 0,
	}

	var parseErr error
	doc.Find(sel.Item).EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		id, err := ParseItemID(href)
		if err != nil {
			parseErr = &ParseError{Page: number, Href: href, Err: err}
			return false
		}

		title, _ := a.Attr("title")
		page.Items = append(page.Items, Item{ID: id, Name: title})
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}

	return page, nil
}

// ParseItemID extracts the identifier from the trailing path segment of an
// item link, e.g. "/waiyu/14359664/112233" -> 112233.
func ParseItemID(href string) (int64, error) {
	if href == "" {
		return 0, fmt.Errorf("missing href")
	}

	u, err := url.Parse(href)
	if err != nil {
		return 0, fmt.Errorf("parse href: %w", err)
	}

	segment := lastSegment(u.Path)
	id, err := strconv.ParseInt(segment, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("trailing segment %q is not an integer", segment)
	}
	if id <= 0 {
		return 0, fmt.Errorf("identifier must be positive (got %d)", id)
	}

	return id, nil
}

// PageURL returns the address of page n of a listing root.
func PageURL(root string, n int) string {
	return fmt.Sprintf("%s/p%d/", strings.TrimRight(root, "/"), n)
}

// lastSegment returns the final non-empty segment of a slash separated path.
func lastSegment(p string) string {
	p = strings.TrimRight(p, "/")
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[i+1:]
	}
	return p
}
