package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeMSISDN(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"+254712345678", "254712345678", true},
		{"254712345678", "254712345678", true},
		{"0712345678", "254712345678", true},
		{"0112 345 678", "254112345678", true},
		{"712-345-678", "254712345678", true},
		{"+255712345678", "", false},
		{"07123", "", false},
		{"not a phone", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := NormalizeMSISDN(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestContactChecks(t *testing.T) {
	assert.True(t, IsPhone("+14155550123"))
	assert.False(t, IsPhone("+0123"))
	assert.True(t, IsEmail("buyer@example.com"))
	assert.False(t, IsEmail("buyer@"))

	assert.Equal(t, "2547*****678", MaskContact("254712345678"))
	assert.Equal(t, "bu***@example.com", MaskContact("buyer@example.com"))
}
