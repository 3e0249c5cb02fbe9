package utils

import "strings"

// typography maps typographic characters found in source documents to their
// ASCII equivalents.
var typography = strings.NewReplacer(
	"\u00a0", " ",
	"\u2019", "'",
	"\u2018", "'",
	"\u2013", "-",
	"\u2014", "-",
	"\u201c", `"`,
	"\u201d", `"`,
)

// ReplaceTypography swaps non-breaking spaces, curly quotes and dashes for ASCII.
func ReplaceTypography(str string) string {
	return typography.Replace(str)
}

// NormalizeWhitespace replaces runs of whitespace with a single space and trims.
func NormalizeWhitespace(str string) string {
	return strings.Join(strings.Fields(str), " ")
}

// CleanText applies typography replacement and whitespace normalization.
func CleanText(str string) string {
	return NormalizeWhitespace(ReplaceTypography(str))
}

// TruncateString truncates str to at most maxLength runes.
func TruncateString(str string, maxLength int) string {
	runes := []rune(str)
	if len(runes) <= maxLength {
		return str
	}

	if maxLength <= 3 {
		return string(runes[:maxLength])
	}

	return string(runes[:maxLength-3]) + "..."
}
