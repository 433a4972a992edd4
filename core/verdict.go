package core

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// VerdictKind identifies the type of value carried by a Verdict.
type VerdictKind int

const (
	// KindNone is the zero verdict, produced only when no judgment happened.
	KindNone VerdictKind = iota
	// KindBoolean is a pass/fail verdict.
	KindBoolean
	// KindNumeric is a score.
	KindNumeric
	// KindCategorical is a label.
	KindCategorical
	// KindMultiDimensional maps dimension names to sub-verdicts.
	KindMultiDimensional
)

// String returns the string representation of the kind.
func (k VerdictKind) String() string {
	switch k {
	case KindBoolean:
		return "boolean"
	case KindNumeric:
		return "numeric"
	case KindCategorical:
		return "categorical"
	case KindMultiDimensional:
		return "multi_dimensional"
	default:
		return "none"
	}
}

// Verdict is the typed output of a judge. Exactly one of Bool, Score, Label
// or Dimensions is meaningful, selected by Kind. Construct verdicts with
// Bool, Score, Label or Dimensions rather than by hand.
type Verdict struct {
	Kind       VerdictKind
	Bool       bool
	Score      float64
	Label      string
	Dimensions map[string]Verdict
}

// NoConsensus is the sentinel verdict returned by a consensus judge whose
// members disagree under a strategy that cannot pick a winner.
var NoConsensus = Label("no_consensus")

// Bool returns a boolean verdict.
func Bool(b bool) Verdict { return Verdict{Kind: KindBoolean, Bool: b} }

// Score returns a numeric verdict.
func Score(f float64) Verdict { return Verdict{Kind: KindNumeric, Score: f} }

// Label returns a categorical verdict.
func Label(s string) Verdict { return Verdict{Kind: KindCategorical, Label: s} }

// Dimensions returns a multi-dimensional verdict. The map is copied.
func Dimensions(dims map[string]Verdict) Verdict {
	cp := make(map[string]Verdict, len(dims))
	for k, v := range dims {
		cp[k] = v
	}
	return Verdict{Kind: KindMultiDimensional, Dimensions: cp}
}

// IsZero reports whether v carries no judgment.
func (v Verdict) IsZero() bool { return v.Kind == KindNone }

// Equal reports whether two verdicts carry the same kind and value.
func (v Verdict) Equal(o Verdict) bool { return v.Key() == o.Key() }

// Key returns a canonical, kind-prefixed identity used to tally verdicts.
// Two verdicts are considered the same vote iff their keys are equal.
func (v Verdict) Key() string {
	switch v.Kind {
	case KindBoolean:
		return "b:" + strconv.FormatBool(v.Bool)
	case KindNumeric:
		return "n:" + strconv.FormatFloat(v.Score, 'g', -1, 64)
	case KindCategorical:
		return "c:" + v.Label
	case KindMultiDimensional:
		names := v.dimensionNames()
		parts := make([]string, 0, len(names))
		for _, name := range names {
			parts = append(parts, name+"="+v.Dimensions[name].Key())
		}
		return "m:{" + strings.Join(parts, ",") + "}"
	default:
		return ""
	}
}

// String renders the verdict value for display and distribution tables.
func (v Verdict) String() string {
	switch v.Kind {
	case KindBoolean:
		return strconv.FormatBool(v.Bool)
	case KindNumeric:
		return strconv.FormatFloat(v.Score, 'g', -1, 64)
	case KindCategorical:
		return v.Label
	case KindMultiDimensional:
		names := v.dimensionNames()
		parts := make([]string, 0, len(names))
		for _, name := range names {
			parts = append(parts, name+"="+v.Dimensions[name].String())
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return "<none>"
	}
}

func (v Verdict) dimensionNames() []string {
	names := make([]string, 0, len(v.Dimensions))
	for name := range v.Dimensions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MarshalJSON encodes the verdict as its natural JSON value: a boolean,
// number, string, object of sub-verdicts, or null.
func (v Verdict) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindBoolean:
		return json.Marshal(v.Bool)
	case KindNumeric:
		if math.IsNaN(v.Score) || math.IsInf(v.Score, 0) {
			return nil, fmt.Errorf("verdict score %v is not representable in JSON", v.Score)
		}
		return json.Marshal(v.Score)
	case KindCategorical:
		return json.Marshal(v.Label)
	case KindMultiDimensional:
		return json.Marshal(v.Dimensions)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes a natural JSON value back into a verdict.
func (v *Verdict) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := VerdictOf(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// VerdictOf converts a plain Go value into a Verdict. It accepts bool, any
// integer or float type, string, map[string]any (recursively), and Verdict.
// nil converts to the zero verdict.
func VerdictOf(value any) (Verdict, error) {
	switch x := value.(type) {
	case nil:
		return Verdict{}, nil
	case Verdict:
		return x, nil
	case bool:
		return Bool(x), nil
	case float64:
		return Score(x), nil
	case float32:
		return Score(float64(x)), nil
	case int:
		return Score(float64(x)), nil
	case int8:
		return Score(float64(x)), nil
	case int16:
		return Score(float64(x)), nil
	case int32:
		return Score(float64(x)), nil
	case int64:
		return Score(float64(x)), nil
	case uint:
		return Score(float64(x)), nil
	case uint8:
		return Score(float64(x)), nil
	case uint16:
		return Score(float64(x)), nil
	case uint32:
		return Score(float64(x)), nil
	case uint64:
		return Score(float64(x)), nil
	case string:
		return Label(x), nil
	case map[string]Verdict:
		return Dimensions(x), nil
	case map[string]any:
		dims := make(map[string]Verdict, len(x))
		for name, sub := range x {
			sv, err := VerdictOf(sub)
			if err != nil {
				return Verdict{}, fmt.Errorf("dimension %q: %w", name, err)
			}
			dims[name] = sv
		}
		return Verdict{Kind: KindMultiDimensional, Dimensions: dims}, nil
	default:
		return Verdict{}, fmt.Errorf("unsupported verdict value of type %T", value)
	}
}
