package util

import (
	"encoding/json"
	"fmt"
)

// Stringify renders an arbitrary value as prompt or display text.
func Stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case interface{ String() string }:
		return x.String()
	default:
		return fmtValue(x)
	}
}

func fmtValue(v any) string {
	switch v.(type) {
	case map[string]any, []any:
		if b, err := json.Marshal(v); err == nil {
			return string(b)
		}
	}
	return fmt.Sprintf("%v", v)
}
