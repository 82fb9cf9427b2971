package connector

import (
	"encoding/json"
	"strconv"
)

// AsFloat converts the string-or-number forms venues use for prices
// and volumes into a float64.
func AsFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	}
	return 0, false
}
