package extract

import (
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// locate finds the first occurrence of `"name"` followed by a colon and the
// given opening byte, whitespace allowed in between. It returns the offset just
// past the opening byte.
func locate(buf, name string, open byte) (int, bool) {
	key := `"` + name + `"`
	from := 0
	for {
		idx := strings.Index(buf[from:], key)
		if idx < 0 {
			return 0, false
		}
		i := skipSpace(buf, from+idx+len(key))
		if i < len(buf) && buf[i] == ':' {
			i = skipSpace(buf, i+1)
			if i < len(buf) && buf[i] == open {
				return i + 1, true
			}
			if i >= len(buf) {
				// Value not written yet.
				return 0, false
			}
		}
		from += idx + len(key)
	}
}

func skipSpace(buf string, i int) int {
	for i < len(buf) {
		switch buf[i] {
		case ' ', '\t', '\n', '\r':
			i++
		default:
			return i
		}
	}
	return i
}

// scanString reads a JSON string body starting right after its opening quote.
// raw is the undecoded body; end is the offset after the closing quote.
func scanString(buf string, start int) (raw string, closed bool, end int) {
	for i := start; i < len(buf); i++ {
		switch buf[i] {
		case '\\':
			i++
		case '"':
			return buf[start:i], true, i + 1
		}
	}
	return buf[start:], false, len(buf)
}

// unescape decodes JSON backslash escapes. When partial is set, an escape or
// rune cut off at the end of raw is dropped so the result is always a prefix
// of the fully decoded string.
func unescape(raw string, partial bool) string {
	if !strings.Contains(raw, `\`) {
		if partial {
			return trimPartialRune(raw)
		}
		return raw
	}
	var sb strings.Builder
	sb.Grow(len(raw))
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c != '\\' {
			sb.WriteByte(c)
			continue
		}
		if i+1 >= len(raw) {
			break
		}
		i++
		switch raw[i] {
		case 'n':
			sb.WriteByte('\n')
		case 'r':
			sb.WriteByte('\r')
		case 't':
			sb.WriteByte('\t')
		case 'b':
			sb.WriteByte('\b')
		case 'f':
			sb.WriteByte('\f')
		case 'u':
			r, n, ok := decodeUnicode(raw[i+1:], partial)
			if !ok {
				if partial {
					return trimPartialRune(sb.String())
				}
				sb.WriteString(`\u`)
				continue
			}
			sb.WriteRune(r)
			i += n
		default:
			// \" \\ \/ and anything unknown map to the character itself.
			sb.WriteByte(raw[i])
		}
	}
	if partial {
		return trimPartialRune(sb.String())
	}
	return sb.String()
}

// decodeUnicode reads the hex digits after `\u`, joining surrogate pairs.
// n is the number of bytes consumed after the `u`.
func decodeUnicode(s string, partial bool) (r rune, n int, ok bool) {
	hi, ok := hex4(s)
	if !ok {
		return 0, 0, false
	}
	if !utf16.IsSurrogate(hi) {
		return hi, 4, true
	}
	if len(s) < 10 {
		if partial && (len(s) == 4 || strings.HasPrefix(`\u`, s[4:min(len(s), 6)])) {
			// Low half may still be on its way.
			return 0, 0, false
		}
		return utf8.RuneError, 4, true
	}
	if s[4] == '\\' && s[5] == 'u' {
		if lo, ok := hex4(s[6:]); ok {
			if dec := utf16.DecodeRune(hi, lo); dec != utf8.RuneError {
				return dec, 10, true
			}
		}
	}
	return utf8.RuneError, 4, true
}

func hex4(s string) (rune, bool) {
	if len(s) < 4 {
		return 0, false
	}
	v, err := strconv.ParseUint(s[:4], 16, 32)
	if err != nil {
		return 0, false
	}
	return rune(v), true
}

// trimPartialRune drops a multi-byte rune whose tail has not arrived yet.
func trimPartialRune(s string) string {
	for i := len(s) - 1; i >= 0 && i >= len(s)-utf8.UTFMax; i-- {
		if utf8.RuneStart(s[i]) {
			if !utf8.FullRuneInString(s[i:]) {
				return s[:i]
			}
			return s
		}
	}
	return s
}

func scanStringField(buf string, f Field) Value {
	start, ok := locate(buf, f.Name, '"')
	if !ok {
		return Value{}
	}
	raw, closed, _ := scanString(buf, start)
	if closed {
		return Value{Status: Complete, Text: unescape(raw, false)}
	}
	return Value{Status: Partial, Text: unescape(raw, true)}
}

func scanStringsField(buf string, f Field) Value {
	start, ok := locate(buf, f.Name, '[')
	if !ok {
		return Value{}
	}
	var items []string
	for i := start; i < len(buf); {
		switch c := buf[i]; {
		case c == ']':
			if items == nil {
				items = []string{}
			}
			return Value{Status: Complete, List: items}
		case c == '"':
			raw, closed, end := scanString(buf, i+1)
			if !closed {
				return partialList(items)
			}
			items = append(items, unescape(raw, false))
			i = end
		default:
			i++
		}
	}
	return partialList(items)
}

// partialList de-duplicates an unfinished array. An array with no finished
// element yet is reported as not found.
func partialList(items []string) Value {
	if len(items) == 0 {
		return Value{}
	}
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		if seen[it] {
			continue
		}
		seen[it] = true
		out = append(out, it)
	}
	return Value{Status: Partial, List: out}
}

func scanIntsField(buf string, f Field) Value {
	start, ok := locate(buf, f.Name, '[')
	if !ok {
		return Value{}
	}
	var nums []int
	for i := start; i < len(buf); {
		c := buf[i]
		switch {
		case c == ']':
			if nums == nil {
				nums = []int{}
			}
			return Value{Status: Complete, Ints: nums}
		case c == '-' || (c >= '0' && c <= '9'):
			j := i + 1
			for j < len(buf) && buf[j] >= '0' && buf[j] <= '9' {
				j++
			}
			if j >= len(buf) {
				// The number may still grow.
				return partialInts(nums)
			}
			if n, err := strconv.Atoi(buf[i:j]); err == nil {
				nums = append(nums, n)
			}
			i = j
		case c == '"':
			raw, closed, end := scanString(buf, i+1)
			if !closed {
				return partialInts(nums)
			}
			if n, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
				nums = append(nums, n)
			}
			i = end
		default:
			i++
		}
	}
	return partialInts(nums)
}

func partialInts(nums []int) Value {
	if len(nums) == 0 {
		return Value{}
	}
	return Value{Status: Partial, Ints: nums}
}
