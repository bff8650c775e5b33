package shop

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"horizon.shop/internal/store"
)

// Decimal reads a monetary value from a decoded JSON field.
func Decimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return decimal.Decimal{}, false
		}
		return decimal.NewFromFloat(n), true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		return d, err == nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(n))
		return d, err == nil
	case decimal.Decimal:
		return n, true
	}
	return decimal.Decimal{}, false
}

var (
	minWhole = decimal.NewFromInt(math.MinInt64)
	maxWhole = decimal.NewFromInt(math.MaxInt64)
)

// wholeNumber accepts integers that fit in an int64. The range is checked on
// the decimal because IntPart wraps outside it.
func wholeNumber(v any) (int64, bool) {
	d, ok := Decimal(v)
	if !ok {
		return 0, false
	}
	if d.IsZero() {
		return 0, true
	}
	// bounded exponents keep the comparisons below from rescaling absurd input
	if exp := d.Exponent(); exp > 18 || exp < -64 {
		return 0, false
	}
	if !d.IsInteger() || d.LessThan(minWhole) || d.GreaterThan(maxWhole) {
		return 0, false
	}
	return d.IntPart(), true
}

// checkProduct enforces the product invariants on the fields present in doc.
// When full is set the document must be a complete new product.
func checkProduct(doc store.Document, full bool) error {
	if full {
		name, _ := doc["name"].(string)
		if strings.TrimSpace(name) == "" {
			return invalid("product name is required")
		}
	}
	if v, ok := doc["price"]; ok {
		d, ok := Decimal(v)
		if !ok {
			return invalid("price must be a number")
		}
		if d.IsNegative() {
			return invalid("price must not be negative")
		}
	}
	if v, ok := doc["availableQuantity"]; ok {
		n, ok := wholeNumber(v)
		if !ok {
			return invalid("availableQuantity must be a whole number")
		}
		if n < 0 {
			return invalid("availableQuantity must not be negative")
		}
	}
	if v, ok := doc["minimumQuantity"]; ok {
		if n, ok := wholeNumber(v); !ok || n < 0 {
			return invalid("minimumQuantity must be a non-negative whole number")
		}
	}
	return nil
}

func checkOrder(doc store.Document) error {
	if v, ok := doc["quantity"]; ok {
		n, ok := wholeNumber(v)
		if !ok || n <= 0 {
			return invalid("quantity must be a positive whole number")
		}
	}
	if v, ok := doc["price"]; ok {
		d, ok := Decimal(v)
		if !ok || d.IsNegative() {
			return invalid("price must be a non-negative number")
		}
	}
	if v, ok := doc["userEmail"]; ok {
		s, ok := v.(string)
		if !ok || !validEmail(s) {
			return invalid("userEmail must be an email address")
		}
	}
	return nil
}

func checkReview(doc store.Document) error {
	if v, ok := doc["rating"]; ok {
		n, ok := wholeNumber(v)
		if !ok || n < 1 || n > 5 {
			return invalid("rating must be a whole number from 1 to 5")
		}
	}
	return nil
}

// validEmail is a shape check only; delivery is never attempted.
func validEmail(s string) bool {
	s = strings.TrimSpace(s)
	at := strings.LastIndex(s, "@")
	return at > 0 && at < len(s)-1 && !strings.ContainsAny(s, " \t\r\n/")
}
