package parsers

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// Normalization helpers shared by every format. Each parser produces the same
// row shape; downstream code never sees format-specific quirks.

// NormalizeCell trims whitespace and collapses empty-ish cells to ""
func NormalizeCell(value string) string {
	value = strings.TrimSpace(value)
	if value == "-" || value == "—" {
		return ""
	}
	return value
}

var currencyRunes = map[rune]bool{
	'₽': true, '$': true, '€': true, '£': true, '¥': true, '₴': true, '₸': true,
}

// ParsePrice converts a human price string to integer minor units.
// Currency symbols and thousand separators are stripped, a decimal comma is
// normalized to a dot: "1 299,50 ₽" -> 129950. Negative values parse; the
// validator rejects them with a user-facing message.
func ParsePrice(value string) (int64, error) {
	cleaned := strings.Map(func(r rune) rune {
		if currencyRunes[r] || unicode.IsSpace(r) {
			return -1
		}
		if r == ',' {
			return '.'
		}
		return r
	}, value)
	cleaned = strings.TrimSuffix(cleaned, "руб.")
	cleaned = strings.TrimSuffix(cleaned, "руб")
	if cleaned == "" {
		return 0, fmt.Errorf("empty price")
	}
	cleaned = normalizeSeparators(cleaned)

	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid price %q: %w", value, err)
	}
	if f < 0 {
		return int64(f*100 - 0.5), nil
	}
	return int64(f*100 + 0.5), nil
}

// normalizeSeparators keeps only the last dot as the decimal point; earlier
// dots are thousand separators.
func normalizeSeparators(s string) string {
	last := strings.LastIndex(s, ".")
	if last == -1 {
		return s
	}
	head := strings.ReplaceAll(s[:last], ".", "")
	return head + "." + s[last+1:]
}

// FormatPrice renders minor units back to a decimal string: 129950 -> "1299.50"
func FormatPrice(minorUnits int64) string {
	sign := ""
	if minorUnits < 0 {
		sign = "-"
		minorUnits = -minorUnits
	}
	return fmt.Sprintf("%s%d.%02d", sign, minorUnits/100, minorUnits%100)
}

var urlDelimiters = []string{",", ";", "|", "\n"}

// SplitURLs splits a multi-URL cell on the candidate delimiters, trimming and
// dropping empty entries. Whitespace-separated lists are handled as well.
func SplitURLs(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	parts := []string{value}
	for _, delim := range urlDelimiters {
		var next []string
		for _, p := range parts {
			next = append(next, strings.Split(p, delim)...)
		}
		parts = next
	}
	// Space-separated cells only when every chunk still looks like a URL
	if len(parts) == 1 && strings.Contains(parts[0], " ") {
		chunks := strings.Fields(parts[0])
		allURLs := true
		for _, c := range chunks {
			if !strings.HasPrefix(c, "http://") && !strings.HasPrefix(c, "https://") {
				allURLs = false
				break
			}
		}
		if allURLs {
			parts = chunks
		}
	}
	var urls []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			urls = append(urls, p)
		}
	}
	return urls
}

// candidateDecoders is the ordered encoding list tried on non-UTF-8 input.
// Russian marketplace exports are overwhelmingly windows-1251.
func candidateDecoders() []*encoding.Decoder {
	return []*encoding.Decoder{
		charmap.Windows1251.NewDecoder(),
		charmap.KOI8R.NewDecoder(),
		charmap.ISO8859_1.NewDecoder(),
	}
}

// DecodeToUTF8 returns the byte stream as UTF-8, detecting the source encoding
// by trying candidates in order and stopping at the first that decodes cleanly.
func DecodeToUTF8(data []byte) ([]byte, error) {
	data = stripBOM(data)
	if utf8.Valid(data) {
		return data, nil
	}
	for _, decoder := range candidateDecoders() {
		decoded, err := decoder.Bytes(data)
		if err == nil && utf8.Valid(decoded) {
			return decoded, nil
		}
	}
	return nil, fmt.Errorf("unable to detect file encoding")
}

func stripBOM(data []byte) []byte {
	if len(data) >= 3 && data[0] == 0xEF && data[1] == 0xBB && data[2] == 0xBF {
		return data[3:]
	}
	return data
}

// Slugify builds a URL slug from a product name. Unicode letters are kept so
// Cyrillic names produce stable, deterministic slugs for duplicate resolution.
func Slugify(name string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastHyphen = false
		case !lastHyphen:
			b.WriteRune('-')
			lastHyphen = true
		}
	}
	return strings.Trim(b.String(), "-")
}
