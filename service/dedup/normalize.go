package dedup

import (
	"strings"
	"unicode"

	"backoffice-service/service/utils"

	"github.com/ttacon/libphonenumber"
)

// minPhoneDigits shorter digit strings are not used as match keys
const minPhoneDigits = 8

// Normalizer builds the comparison keys of provider contact fields
type Normalizer struct {
	region string
}

// NewNormalizer phone numbers without a country code are read in defaultRegion (ISO 3166, e.g. "BR")
func NewNormalizer(defaultRegion string) *Normalizer {
	if defaultRegion == "" {
		defaultRegion = "BR"
	}
	return &Normalizer{region: strings.ToUpper(defaultRegion)}
}

// Email trimmed and lower-cased; empty when it is not an address
func (n *Normalizer) Email(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if !strings.Contains(s, "@") {
		return ""
	}
	return s
}

// Phone E.164 when the number parses as valid, otherwise its digits
func (n *Normalizer) Phone(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if num, err := libphonenumber.Parse(s, n.region); err == nil && libphonenumber.IsValidNumber(num) {
		return libphonenumber.Format(num, libphonenumber.E164)
	}
	digits := utils.KeepDigits(s)
	if len(digits) < minPhoneDigits {
		return ""
	}
	return digits
}

// FiscalID letters and digits only, upper-cased; "000.000.000-00" style placeholders are dropped
func (n *Normalizer) FiscalID(s string) string {
	id := utils.KeepAlphanumeric(s)
	if strings.Trim(id, "0") == "" {
		return ""
	}
	return id
}

// Name folded for comparison
func (n *Normalizer) Name(s string) string {
	return utils.FoldName(s)
}

// SameName reports whether a and b name the same party when initials are allowed:
// "Ana L." and "Ana Lima" agree, "Ana Lima" and "Ana Souza" do not
func (n *Normalizer) SameName(a, b string) bool {
	left, right := nameTokens(a), nameTokens(b)
	if len(left) != len(right) {
		return false
	}
	for i := range left {
		x, y := left[i], right[i]
		if x == y {
			continue
		}
		if len(y) == 1 {
			x, y = y, x
		}
		if len(x) != 1 || !strings.HasPrefix(y, x) {
			return false
		}
	}
	return true
}

func nameTokens(s string) []string {
	return strings.FieldsFunc(utils.FoldName(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
