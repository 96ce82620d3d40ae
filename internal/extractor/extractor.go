// Package extractor reads size pickers out of rendered product pages. Each
// store gets a Selectors profile; the matching logic is shared.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/sizewatch/internal/monitor"
)

// ErrNoSizeList means none of the profile's selectors matched, which usually
// signals a layout change or a bot wall rather than an empty product.
var ErrNoSizeList = errors.New("size list not found")

// Selectors describes where a store renders its size picker.
type Selectors struct {
	// Items are tried in order; the first selector that matches wins.
	Items []string
	// Label narrows each item to the element holding the size text. Empty
	// means the item's own text.
	Label string
	// LabelAttr, when set and present, is preferred over text.
	LabelAttr string
	// Unavailable marks an item as sold out when any selector matches the
	// item itself or one of its descendants.
	Unavailable []string
	// UnavailableClasses are class substrings that mark an item sold out.
	UnavailableClasses []string
}

// SizeOption is one entry of a size picker.
type SizeOption struct {
	Label     string
	Available bool
}

// Extractor implements monitor.Extractor for one store.
type Extractor struct {
	store monitor.Store
	sel   Selectors
}

// New builds an extractor from a selector profile.
func New(store monitor.Store, sel Selectors) *Extractor {
	return &Extractor{store: store, sel: sel}
}

// Store returns the store this extractor reads.
func (e *Extractor) Store() monitor.Store {
	return e.store
}

// Extract returns the first requested size, in request order, that the page
// lists as available.
func (e *Extractor) Extract(ctx context.Context, page monitor.Page, sizes monitor.SizeSet) (string, bool, error) {
	html, err := page.HTML(ctx)
	if err != nil {
		return "", false, fmt.Errorf("read page: %w", err)
	}
	options, err := e.Options(html)
	if err != nil {
		return "", false, err
	}
	size, ok := Match(options, sizes)
	return size, ok, nil
}

// Options parses html and lists the size picker entries.
func (e *Extractor) Options(html string) ([]SizeOption, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	var items *goquery.Selection
	for _, selector := range e.sel.Items {
		if found := doc.Find(selector); found.Length() > 0 {
			items = found
			break
		}
	}
	if items == nil {
		return nil, fmt.Errorf("%w for %s", ErrNoSizeList, e.store)
	}

	var out []SizeOption
	items.Each(func(_ int, item *goquery.Selection) {
		label := e.label(item)
		if label == "" {
			return
		}
		out = append(out, SizeOption{Label: label, Available: !e.unavailable(item)})
	})
	return out, nil
}

func (e *Extractor) label(item *goquery.Selection) string {
	if e.sel.LabelAttr != "" {
		if v := strings.TrimSpace(item.AttrOr(e.sel.LabelAttr, "")); v != "" {
			return v
		}
	}
	node := item
	if e.sel.Label != "" {
		if found := item.Find(e.sel.Label).First(); found.Length() > 0 {
			node = found
		}
	}
	return strings.Join(strings.Fields(node.Text()), " ")
}

func (e *Extractor) unavailable(item *goquery.Selection) bool {
	if disabled(item) || disabled(item.Find("button").First()) {
		return true
	}
	for _, selector := range e.sel.Unavailable {
		if item.Is(selector) || item.Find(selector).Length() > 0 {
			return true
		}
	}
	if len(e.sel.UnavailableClasses) == 0 {
		return false
	}
	classes := strings.ToLower(item.AttrOr("class", "") + " " + item.Find("button").First().AttrOr("class", ""))
	for _, marker := range e.sel.UnavailableClasses {
		if strings.Contains(classes, strings.ToLower(marker)) {
			return true
		}
	}
	return false
}

func disabled(s *goquery.Selection) bool {
	if s.Length() == 0 {
		return false
	}
	if _, ok := s.Attr("disabled"); ok {
		return true
	}
	return strings.EqualFold(s.AttrOr("aria-disabled", ""), "true")
}

// Match picks the first size from sizes, in the order given, that has an
// available option. A label matches on its full text or its first word, so
// "M" matches "M (EU 40)".
func Match(options []SizeOption, sizes monitor.SizeSet) (string, bool) {
	for _, want := range sizes {
		for _, opt := range options {
			if !opt.Available {
				continue
			}
			if labelMatches(opt.Label, want) {
				return want, true
			}
		}
	}
	return "", false
}

func labelMatches(label, want string) bool {
	want = strings.TrimSpace(want)
	if strings.EqualFold(label, want) {
		return true
	}
	fields := strings.Fields(label)
	return len(fields) > 0 && strings.EqualFold(fields[0], want)
}
