package database

import (
	"fmt"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// Anonymous is stored for calls without caller identification.
const Anonymous = "anonymous"

// NormalizeNumber formats number as E.164. Numbers without an international
// prefix are parsed for country.
func NormalizeNumber(number, country string) (string, error) {
	number = strings.TrimSpace(number)

	if number == "" {
		return "", nil
	}

	if strings.EqualFold(number, Anonymous) {
		return Anonymous, nil
	}

	parsed, err := phonenumbers.Parse(number, country)
	if err != nil {
		return "", fmt.Errorf("%w %q: %s", ErrInvalidNumber, number, err)
	}

	return phonenumbers.Format(parsed, phonenumbers.E164), nil
}
