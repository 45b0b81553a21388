package utils

import (
	"regexp"
	"strings"
)

var (
	kenyanMSISDN = regexp.MustCompile(`^254[17]\d{8}$`)
	e164         = regexp.MustCompile(`^\+?[1-9]\d{7,14}$`)
	emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// NormalizeMSISDN приводит номер мобильных денег к формату 2547XXXXXXXX.
// Принимает +254..., 254..., 07..., 01..., 7..., 1... с пробелами и дефисами.
func NormalizeMSISDN(raw string) (string, bool) {
	s := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "+")

	switch {
	case len(s) == 10 && strings.HasPrefix(s, "0"):
		s = "254" + s[1:]
	case len(s) == 9 && (s[0] == '7' || s[0] == '1'):
		s = "254" + s
	}

	if !kenyanMSISDN.MatchString(s) {
		return "", false
	}
	return s, true
}

// IsPhone - любой номер в формате E.164 (для оплаты при доставке)
func IsPhone(raw string) bool {
	s := strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(raw))
	return e164.MatchString(s)
}

func IsEmail(raw string) bool {
	return emailPattern.MatchString(strings.TrimSpace(raw))
}

// MaskContact скрывает середину телефона или email для логов
func MaskContact(contact string) string {
	if at := strings.IndexByte(contact, '@'); at > 0 {
		if at <= 2 {
			return strings.Repeat("*", at) + contact[at:]
		}
		return contact[:2] + strings.Repeat("*", at-2) + contact[at:]
	}
	if len(contact) <= 6 {
		return strings.Repeat("*", len(contact))
	}
	return contact[:4] + strings.Repeat("*", len(contact)-7) + contact[len(contact)-3:]
}
