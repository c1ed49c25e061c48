// Package sanitizer converts untrusted billing export fields into safe typed
// values. Every function is total: malformed input degrades to a zero value
// so one corrupt field can never abort a batch.
package sanitizer

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// dateLayouts are tried in order when coercing period boundaries. Billing
// exports disagree on date formats even within one provider.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
}

// ToDecimal coerces any value into a decimal amount. Non-numeric or missing
// input yields zero.
func ToDecimal(v interface{}) decimal.Decimal {
	switch val := v.(type) {
	case nil:
		return decimal.Zero
	case decimal.Decimal:
		return val
	case float64:
		return decimal.NewFromFloat(val)
	case float32:
		return decimal.NewFromFloat32(val)
	case int:
		return decimal.NewFromInt(int64(val))
	case int64:
		return decimal.NewFromInt(val)
	case json.Number:
		if d, err := decimal.NewFromString(val.String()); err == nil {
			return d
		}
		return decimal.Zero
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return decimal.Zero
		}
		if d, err := decimal.NewFromString(s); err == nil {
			return d
		}
		return decimal.Zero
	default:
		return decimal.Zero
	}
}

// ToDate coerces any value into a UTC date-only time. Unparsable input
// yields the zero time, which the store persists as a null date.
func ToDate(v interface{}) time.Time {
	switch val := v.(type) {
	case nil:
		return time.Time{}
	case time.Time:
		if val.IsZero() {
			return time.Time{}
		}
		return truncateToDate(val)
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return time.Time{}
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return truncateToDate(t)
			}
		}
		return time.Time{}
	default:
		return time.Time{}
	}
}

// ToText trims and stringifies any value. Nil yields an empty string.
func ToText(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case json.Number:
		return val.String()
	case fmt.Stringer:
		return strings.TrimSpace(val.String())
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", val))
	}
}

// ToTagMap parses a tag blob into a string-to-string map. The blob may
// already be a map or may be a JSON-encoded object; any parse failure yields
// an empty map. Scalar tag values are stringified, nested values dropped.
func ToTagMap(v interface{}) map[string]string {
	tags := make(map[string]string)

	switch val := v.(type) {
	case nil:
		return tags
	case map[string]string:
		for k, value := range val {
			if k = strings.TrimSpace(k); k != "" {
				tags[k] = strings.TrimSpace(value)
			}
		}
		return tags
	case map[string]interface{}:
		return flattenTags(val)
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return tags
		}
		var parsed map[string]interface{}
		if err := json.Unmarshal([]byte(s), &parsed); err != nil {
			return tags
		}
		return flattenTags(parsed)
	default:
		return tags
	}
}

func flattenTags(raw map[string]interface{}) map[string]string {
	tags := make(map[string]string, len(raw))
	for k, v := range raw {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		switch value := v.(type) {
		case string:
			tags[k] = strings.TrimSpace(value)
		case float64, bool, json.Number:
			tags[k] = fmt.Sprintf("%v", value)
		case nil:
			tags[k] = ""
		}
	}
	return tags
}

func truncateToDate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
