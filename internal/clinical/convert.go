package clinical

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

var negativeMarkers = []string{"négative", "negative", "négatif", "negatif", "trace", "absent"}

// ConvertValue turns a raw laboratory reading into a number in canonical units.
// It never fails: anything it cannot read becomes 0.
//
// ">X" readings become X+0.1, an approximation of "just above X", not a measured
// value. Dipstick "+" codes map to 0.3, 1.0 and 3.0 g/L for one, two and three or
// more crosses.
func ConvertValue(raw string) float64 {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch s {
	case "", "nan", "null", "none", "n/a":
		return 0
	}
	s = strings.ReplaceAll(s, ",", ".")

	for _, marker := range negativeMarkers {
		if strings.Contains(s, marker) {
			return 0
		}
	}

	if strings.Contains(s, ">") {
		v, ok := parseFinite(strings.ReplaceAll(s, ">", ""))
		if !ok {
			return 0
		}
		return v + 0.1
	}

	if n := crossCount(s); n > 0 {
		switch {
		case n >= 3:
			return 3.0
		case n == 2:
			return 1.0
		default:
			return 0.3
		}
	}

	v, ok := parseFinite(s)
	if !ok {
		return 0
	}
	return v
}

// ConvertFloat is the numeric counterpart of ConvertValue.
func ConvertFloat(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// crossCount reads dipstick notation. Both "++" and "2+" mean two crosses.
func crossCount(s string) int {
	n := strings.Count(s, "+")
	if n == 0 {
		return 0
	}
	prefix := strings.TrimSpace(s[:strings.Index(s, "+")])
	if d, err := strconv.Atoi(prefix); err == nil && d > n {
		return d
	}
	return n
}

func parseFinite(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

var (
	truthy = map[string]bool{
		"oui": true, "yes": true, "true": true, "1": true, "positive": true,
		"positif": true, "présent": true, "present": true,
	}
)

// ParseFlag reads a yes/no clinical field. Unknown values are false.
func ParseFlag(raw string) bool {
	return truthy[strings.ToLower(strings.TrimSpace(raw))]
}

// Measurement is a lab value that arrives either as a JSON number or as free
// text ("2+", ">50", "9,5", "trace").
type Measurement struct {
	Raw   string
	Value float64
	Set   bool
}

func (m *Measurement) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*m = Measurement{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*m = Measurement{Raw: s, Value: ConvertValue(s), Set: strings.TrimSpace(s) != ""}
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		// booleans and other shapes degrade like any unreadable value
		*m = Measurement{Raw: string(data), Set: true}
		return nil
	}
	*m = Measurement{Raw: string(data), Value: ConvertFloat(f), Set: true}
	return nil
}

func (m Measurement) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Value)
}

// Float returns the converted value, 0 when absent.
func (m Measurement) Float() float64 {
	return m.Value
}

// Flag is a JSON boolean that also accepts "oui"/"non", 0/1 and similar.
type Flag bool

func (f *Flag) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = Flag(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = Flag(ParseFlag(s))
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = Flag(n == 1)
		return nil
	}
	*f = false
	return nil
}
