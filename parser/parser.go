// Package parser extracts sell-offer prices from marketplace listing pages.
package parser

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"github.com/aluiziolira/buffwatch/models"
)

const (
	listingTableSelector = "table.list_tb"
	sellingRowSelector   = "tr.selling"
	goodsInfoAttr        = "data-goods-info"
	priceField           = "sell_min_price"
)

// ParseListings returns the sell-offer prices found in rawMarkup. Empty or
// structurally unexpected markup yields an empty result, and a malformed row
// never aborts the remaining rows. Ordering is unspecified; callers only
// need the minimum.
func ParseListings(rawMarkup string) []models.Offer {
	if strings.TrimSpace(rawMarkup) == "" {
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawMarkup))
	if err != nil {
		return nil
	}

	table := doc.Find(listingTableSelector)
	if table.Length() == 0 {
		return nil
	}

	var offers []models.Offer
	table.Find(sellingRowSelector).Each(func(_ int, row *goquery.Selection) {
		raw, ok := row.Attr(goodsInfoAttr)
		if !ok {
			return
		}
		if price, ok := priceFromPayload(raw); ok {
			offers = append(offers, price)
		}
	})
	return offers
}

// priceFromPayload normalizes and decodes one row's embedded goods payload
// and pulls out its minimum sell price.
func priceFromPayload(raw string) (models.Offer, bool) {
	var decoded any
	if err := json.Unmarshal([]byte(normalizePayload(raw)), &decoded); err != nil {
		return decimal.Decimal{}, false
	}

	obj, ok := stripStrings(decoded).(map[string]any)
	if !ok {
		return decimal.Decimal{}, false
	}

	field, ok := obj[priceField]
	if !ok {
		return decimal.Decimal{}, false
	}

	price, ok := parsePrice(field)
	if !ok || price.IsNegative() {
		return decimal.Decimal{}, false
	}
	return price, true
}

// normalizePayload undoes the attribute escaping the site applies to the
// goods payload: quote entities become quotes and the stray semicolon
// separators are dropped entirely.
func normalizePayload(raw string) string {
	raw = strings.ReplaceAll(raw, "&quot;", `"`)
	raw = strings.ReplaceAll(raw, ";", "")
	return strings.TrimSpace(raw)
}

// stripStrings trims whitespace from every string key and string value at
// any nesting depth, leaving other leaves untouched.
func stripStrings(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[strings.TrimSpace(k)] = stripStrings(val)
		}
		return out
	case []any:
		for i, val := range t {
			t[i] = stripStrings(val)
		}
		return t
	case string:
		return strings.TrimSpace(t)
	default:
		return v
	}
}

func parsePrice(v any) (decimal.Decimal, bool) {
	switch t := v.(type) {
	case string:
		price, err := decimal.NewFromString(t)
		if err != nil {
			return decimal.Decimal{}, false
		}
		return price, true
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return decimal.Decimal{}, false
		}
		return decimal.NewFromFloat(t), true
	default:
		return decimal.Decimal{}, false
	}
}
