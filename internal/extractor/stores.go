package extractor

import "github.com/JakeFAU/sizewatch/internal/monitor"

var commonUnavailable = []string{"disabled", "out-of-stock", "unavailable", "sold-out", "soldout"}

// Profiles holds the selector profile of every supported store.
var Profiles = map[monitor.Store]Selectors{
	monitor.StoreZara: {
		Items: []string{
			"li.size-selector-sizes__size",
			"li.size-selector-list__item",
			"[data-qa-qualifier='size-selector-sizes'] li",
		},
		Label: ".size-selector-sizes-size__label, .product-size-info__main-label, " +
			"[data-qa-qualifier='product-size-info-main-label']",
		Unavailable: []string{
			"[data-qa-action='size-out-of-stock']",
			"[data-qa-action='size-coming-soon']",
		},
		UnavailableClasses: append([]string{"--is-disabled", "--out-of-stock"}, commonUnavailable...),
	},
	monitor.StoreBershka: {
		Items: []string{
			"ul[data-qa-anchor='productDetailSize'] li",
			".sizes-list li",
			"button[data-qa-anchor='sizeListItem']",
		},
		Label:              ".text__label, [data-qa-anchor='sizeListItemText']",
		Unavailable:        []string{".is-disabled", "[data-qa-anchor='sizeOutOfStock']"},
		UnavailableClasses: append([]string{"is-disabled"}, commonUnavailable...),
	},
	monitor.StoreMango: {
		Items: []string{
			"ol[class*='SizesList'] li",
			"ul[class*='SizesList'] li",
			"[data-testid^='pdp.productInfo.sizeList'] li",
		},
		Label:              "span[class*='textSize'], span[class*='sizeLabel']",
		Unavailable:        []string{"[class*='notAvailable']", "[data-testid*='unavailable']"},
		UnavailableClasses: append([]string{"notavailable", "nostock"}, commonUnavailable...),
	},
	monitor.StorePullBear: {
		Items: []string{
			".size-list__item",
			"ul.product-size-selector li",
			"size-selector-select li",
		},
		Label:              ".size-name, .size-list__name",
		LabelAttr:          "data-size",
		Unavailable:        []string{".is-disabled", ".size-list__item--disabled"},
		UnavailableClasses: append([]string{"--disabled", "is-disabled"}, commonUnavailable...),
	},
}

// Registry returns an extractor for every store in Profiles.
func Registry() monitor.Extractors {
	out := make(monitor.Extractors, len(Profiles))
	for store, sel := range Profiles {
		out[store] = New(store, sel)
	}
	return out
}
