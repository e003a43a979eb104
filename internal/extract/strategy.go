package extract

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Strategy recovers one field from a buffer.
type Strategy interface {
	Name() string
	Extract(buf string, f Field) Value
}

// Chain tries strategies in order. The first Complete result wins; otherwise
// the first Partial result is kept.
type Chain []Strategy

// Extract runs the chain for one field.
func (c Chain) Extract(buf string, f Field) Value {
	var best Value
	for _, s := range c {
		v := s.Extract(buf, f)
		switch v.Status {
		case Complete:
			return v
		case Partial:
			if !best.Found() {
				best = v
			}
		}
	}
	return best
}

// LiveChain is used while the stream is still open.
var LiveChain = Chain{Scan{}}

// FinalChain is the authoritative end-of-stream read.
var FinalChain = Chain{StrictJSON{}, EmbeddedObject{}, Scan{}}

// Scan locates fields by their key pattern and tolerates truncation.
type Scan struct{}

func (Scan) Name() string { return "scan" }

func (Scan) Extract(buf string, f Field) Value {
	switch f.Kind {
	case KindStrings:
		return scanStringsField(buf, f)
	case KindInts:
		return scanIntsField(buf, f)
	default:
		return scanStringField(buf, f)
	}
}

// StrictJSON decodes the fence-stripped buffer as a single JSON object.
type StrictJSON struct{}

func (StrictJSON) Name() string { return "strict" }

func (StrictJSON) Extract(buf string, f Field) Value {
	return decodeObjectField(StripFences(buf), f)
}

// EmbeddedObject decodes the text between the first `{` and the last `}`, for
// replies that wrap the object in prose.
type EmbeddedObject struct{}

func (EmbeddedObject) Name() string { return "embedded" }

func (EmbeddedObject) Extract(buf string, f Field) Value {
	start := strings.IndexByte(buf, '{')
	end := strings.LastIndexByte(buf, '}')
	if start < 0 || end <= start {
		return Value{}
	}
	return decodeObjectField(buf[start:end+1], f)
}

func decodeObjectField(text string, f Field) Value {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return Value{}
	}
	raw, ok := obj[f.Name]
	if !ok {
		return Value{}
	}
	switch f.Kind {
	case KindString:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Value{}
		}
		return Value{Status: Complete, Text: s}
	case KindStrings:
		var items []any
		if err := json.Unmarshal(raw, &items); err != nil {
			return Value{}
		}
		list := make([]string, 0, len(items))
		for _, it := range items {
			switch v := it.(type) {
			case string:
				list = append(list, v)
			case float64:
				list = append(list, strconv.FormatFloat(v, 'f', -1, 64))
			default:
				return Value{}
			}
		}
		return Value{Status: Complete, List: list}
	case KindInts:
		var items []any
		if err := json.Unmarshal(raw, &items); err != nil {
			return Value{}
		}
		nums := make([]int, 0, len(items))
		for _, it := range items {
			switch v := it.(type) {
			case float64:
				if v != math.Trunc(v) {
					return Value{}
				}
				nums = append(nums, int(v))
			case string:
				n, err := strconv.Atoi(strings.TrimSpace(v))
				if err != nil {
					return Value{}
				}
				nums = append(nums, n)
			default:
				return Value{}
			}
		}
		return Value{Status: Complete, Ints: nums}
	}
	return Value{}
}

// StripFences removes a surrounding markdown code fence, with or without a
// language tag. Text that does not start with a fence is only trimmed.
func StripFences(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") {
		return t
	}
	lines := strings.Split(t, "\n")[1:]
	if n := len(lines); n > 0 && strings.HasPrefix(strings.TrimSpace(lines[n-1]), "```") {
		lines = lines[:n-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
