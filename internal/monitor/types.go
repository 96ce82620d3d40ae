package monitor

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/JakeFAU/sizewatch/internal/alert"
)

// Store identifies which retailer page layout a watched item uses.
type Store string

// Supported stores. The set is closed; anything else is rejected when a
// WatchedItem is built.
const (
	StoreZara     Store = "zara"
	StoreBershka  Store = "bershka"
	StoreMango    Store = "mango"
	StorePullBear Store = "pullbear"
)

// Stores returns every supported store in display order.
func Stores() []Store {
	return []Store{StoreZara, StoreBershka, StoreMango, StorePullBear}
}

// ParseStore normalizes a store name and rejects unknown values.
func ParseStore(raw string) (Store, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	switch name {
	case "pull&bear", "pull_and_bear", "pullandbear":
		name = string(StorePullBear)
	}
	for _, s := range Stores() {
		if string(s) == name {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStore, raw)
}

// WatchedItem is one product page under monitoring.
type WatchedItem struct {
	URL   string `json:"url"`
	Store Store  `json:"store"`
}

// NewWatchedItem validates the URL and store before building an item.
func NewWatchedItem(rawURL, store string) (WatchedItem, error) {
	trimmed := strings.TrimSpace(rawURL)
	parsed, err := url.ParseRequestURI(trimmed)
	if err != nil {
		return WatchedItem{}, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return WatchedItem{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, parsed.Scheme)
	}
	if parsed.Host == "" {
		return WatchedItem{}, fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	s, err := ParseStore(store)
	if err != nil {
		return WatchedItem{}, err
	}
	return WatchedItem{URL: trimmed, Store: s}, nil
}

// String renders the item the way the watch-list shows it.
func (w WatchedItem) String() string {
	return fmt.Sprintf("[%s] %s", w.Store, w.URL)
}

// SizeSet is the ordered set of size labels an operator is waiting for.
// Order is preserved so earlier entries win when several are in stock.
type SizeSet []string

// ParseSizes accepts entries such as "36, XS" (or several such entries),
// trims them, and drops empty and duplicate labels.
func ParseSizes(entries ...string) SizeSet {
	var out SizeSet
	seen := make(map[string]struct{})
	for _, entry := range entries {
		for _, part := range strings.Split(entry, ",") {
			label := strings.TrimSpace(part)
			if label == "" {
				continue
			}
			key := strings.ToUpper(label)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, label)
		}
	}
	return out
}

// Contains reports whether label matches one of the sizes, ignoring case and
// surrounding whitespace.
func (s SizeSet) Contains(label string) bool {
	label = strings.TrimSpace(label)
	for _, size := range s {
		if strings.EqualFold(size, label) {
			return true
		}
	}
	return false
}

// String joins the labels the way operators type them.
func (s SizeSet) String() string {
	return strings.Join(s, ", ")
}

// RunConfig is supplied at Start and stays fixed for the whole run.
type RunConfig struct {
	Sizes           SizeSet
	MinDelaySeconds uint
	MaxDelaySeconds uint
	Credentials     alert.Credentials
}

// Validate checks the delay bounds.
func (c RunConfig) Validate() error {
	if c.MinDelaySeconds > c.MaxDelaySeconds {
		return fmt.Errorf("%w: min %d > max %d", ErrInvalidDelayRange, c.MinDelaySeconds, c.MaxDelaySeconds)
	}
	return nil
}

// ItemResult classifies what happened to one item in one cycle.
type ItemResult string

// Item outcomes reported by the scanner.
const (
	ResultSkipped ItemResult = "skipped"
	ResultInStock ItemResult = "in_stock"
	ResultNoStock ItemResult = "no_stock"
	ResultError   ItemResult = "error"
)

// AlertMessage formats the text sent when size is found on url.
func AlertMessage(size, url string) string {
	return fmt.Sprintf("🛍️%s beden stokta!!!!\nLink: %s", size, url)
}
