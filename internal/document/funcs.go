// internal/document/funcs.go
package document

import (
	"html/template"
	"reflect"
	"strings"
	"time"

	"notification-workers/internal/models"

	"github.com/shopspring/decimal"
)

// frenchGroupSeparator is the narrow no-break space fr-FR uses for thousands.
const frenchGroupSeparator = "\u202f"

// Funcs returns the helper table bound into document templates. A fresh map
// is built for every renderer so no template state is shared.
func Funcs() template.FuncMap {
	return template.FuncMap{
		"formatDate":      formatDate,
		"formatPrice":     formatPrice,
		"formatRate":      formatRate,
		"notEmpty":        notEmpty,
		"notNil":          notNil,
		"itemName":        func(l Line) string { return l.ResolvedName() },
		"itemDescription": func(l Line) string { return l.ResolvedDescription() },
		"itemUnit":        func(l Line) string { return l.ResolvedUnit() },
		"deref":           deref,
	}
}

// formatDate renders dd/mm/yyyy. Accepts time.Time or *time.Time.
func formatDate(v interface{}) string {
	switch t := v.(type) {
	case time.Time:
		if t.IsZero() {
			return ""
		}
		return t.Format("02/01/2006")
	case *time.Time:
		if t == nil || t.IsZero() {
			return ""
		}
		return t.Format("02/01/2006")
	}
	return ""
}

// formatPrice renders a two-decimal French amount, e.g. 1 234,50.
func formatPrice(d decimal.Decimal) string {
	fixed := d.StringFixed(2)

	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign = "-"
		fixed = fixed[1:]
	}

	intPart, fracPart, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteString(frenchGroupSeparator)
		}
		b.WriteRune(r)
	}
	return sign + b.String() + "," + fracPart
}

// formatRate renders a VAT percentage with two decimals, e.g. 5.50.
func formatRate(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// notEmpty is true for non-blank strings, non-nil non-blank string pointers
// and non-empty slices or maps.
func notEmpty(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(t) != ""
	case *string:
		return t != nil && strings.TrimSpace(*t) != ""
	case []models.LineItem:
		return len(t) > 0
	case []Line:
		return len(t) > 0
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() > 0
	case reflect.Ptr:
		return !rv.IsNil()
	}
	return true
}

func notNil(v interface{}) bool {
	if v == nil {
		return false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface:
		return !rv.IsNil()
	}
	return true
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
