package catalog

import (
	"strings"
	"unicode"
)

var turkishFold = map[rune]rune{
	'İ': 'i', 'I': 'i', 'ı': 'i',
	'Ş': 's', 'ş': 's',
	'Ğ': 'g', 'ğ': 'g',
	'Ü': 'u', 'ü': 'u',
	'Ö': 'o', 'ö': 'o',
	'Ç': 'c', 'ç': 'c',
}

// Fold lowercases s and maps Turkish letters to their ASCII base so
// "İstanbul", "istanbul" and "ISTANBUL" compare equal
func Fold(s string) string {
	return strings.Map(func(r rune) rune {
		if folded, ok := turkishFold[r]; ok {
			return folded
		}
		return unicode.ToLower(r)
	}, strings.TrimSpace(s))
}
