package zxmit

import (
	"fmt"
	"strings"
)

// splitAtLastDot splits a file name into stem and extension. Any dots left
// in the stem are turned into spaces; they end up as underscores once the
// name is sanitized.
func splitAtLastDot(filename string) (string, string) {
	i := strings.LastIndexByte(filename, '.')
	if i < 0 {
		return filename, ""
	}
	stem := strings.ReplaceAll(filename[:i], ".", " ")
	return stem, filename[i+1:]
}

// truncateRunes keeps at most n characters of s.
func truncateRunes(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// sanitizeName replaces the characters the receiver's filesystem cannot
// store with underscores.
func sanitizeName(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '.', '\\', '/':
			return '_'
		}
		return r
	}, s)
}

// ShortName converts an arbitrary base file name into an 8.3 name the
// receiver can store.
//
// The stem is cut to 8 characters and the extension to 3, forbidden
// characters are replaced with '_' and the result is joined as "STEM.EXT".
// The dot is always present, even when the extension is empty. An
// ErrNameTooLong error is returned if the encoded name needs more than
// maxLen bytes, which can only happen with multi-byte characters.
func ShortName(filename string, maxLen int) (string, error) {
	stem, ext := splitAtLastDot(filename)

	stem = sanitizeName(truncateRunes(stem, MaxStem))
	ext = sanitizeName(truncateRunes(ext, MaxExt))

	short := stem + "." + ext
	if len(short) > maxLen {
		return "", NewError(ErrNameTooLong,
			fmt.Sprintf("short name %q is %d bytes, limit is %d", short, len(short), maxLen))
	}
	return short, nil
}

// NameField returns short zero-padded to width bytes.
func NameField(short string, width int) []byte {
	field := make([]byte, width)
	copy(field, short)
	return field
}

// parseNameField returns the name stored in a zero-padded field.
func parseNameField(field []byte) string {
	if i := strings.IndexByte(string(field), 0); i >= 0 {
		return string(field[:i])
	}
	return string(field)
}
