package identity

import "strings"

const countryCode = "55"

// Digits strips every non-digit character.
func Digits(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Normalize returns the canonical form of a Brazilian phone number:
// digits only, with the country code prepended to bare 10 or 11 digit numbers.
func Normalize(raw string) string {
	digits := Digits(raw)
	if len(digits) == 10 || len(digits) == 11 {
		return countryCode + digits
	}
	return digits
}

// Variants returns the normalized number plus, for Brazilian mobiles, the
// form with the ninth digit toggled. Carriers and messaging backends disagree
// on whether the extra 9 is present, so both forms identify the same line.
func Variants(raw string) []string {
	normalized := Normalize(raw)
	if normalized == "" {
		return nil
	}
	variants := []string{normalized}
	if !strings.HasPrefix(normalized, countryCode) || len(normalized) < 12 {
		return variants
	}

	rest := normalized[len(countryCode):]
	area, local := rest[:2], rest[2:]
	switch {
	case len(local) == 9 && local[0] == '9':
		variants = append(variants, countryCode+area+local[1:])
	case len(local) == 8:
		variants = append(variants, countryCode+area+"9"+local)
	}
	return variants
}

// LineKey returns one key per phone line: the normalized number, with the
// ninth digit present for Brazilian mobiles reported in either form.
func LineKey(raw string) string {
	variants := Variants(raw)
	if len(variants) == 0 {
		return ""
	}
	for _, v := range variants {
		if len(v) == len(countryCode)+11 {
			return v
		}
	}
	return variants[0]
}

// SameLine reports whether two raw numbers identify the same phone line.
func SameLine(a, b string) bool {
	av := Variants(a)
	for _, bv := range Variants(b) {
		for _, v := range av {
			if v == bv {
				return true
			}
		}
	}
	return false
}
