package utils

import (
	"errors"
	"regexp"
	"strings"
)

var ErrInvalidPhone = errors.New("invalid phone number format")

// Accepts 07XXXXXXXX, 01XXXXXXXX, 2547XXXXXXXX, +2547XXXXXXXX and the 01
// equivalents.
var kenyanPhone = regexp.MustCompile(`^(?:\+?254|0)(7|1)\d{8}$`)

// NormalizePhone validates a Kenyan MSISDN and returns it in canonical
// 254XXXXXXXXX form, which is what the payment gateway and the callback
// reconciler match on.
func NormalizePhone(phone string) (string, error) {
	p := strings.TrimSpace(phone)
	p = strings.ReplaceAll(p, " ", "")
	if !kenyanPhone.MatchString(p) {
		return "", ErrInvalidPhone
	}
	p = strings.TrimPrefix(p, "+")
	if strings.HasPrefix(p, "0") {
		p = "254" + p[1:]
	}
	return p, nil
}
