package auth

import (
	"errors"
	"strings"
	"testing"
)

func TestHashPasswordLengthLimit(t *testing.T) {
	if _, err := HashPassword(strings.Repeat("a", 73)); !errors.Is(err, ErrPasswordTooLong) {
		t.Errorf("err = %v, want ErrPasswordTooLong", err)
	}
	if _, err := HashPassword(strings.Repeat("a", 72)); err != nil {
		t.Errorf("72-byte password rejected: %v", err)
	}
}

func TestValidatePasswordStrength(t *testing.T) {
	tests := []struct {
		password string
		want     bool
	}{
		{"S3curePass", true},
		{"short1A", false},
		{"alllowercase1", false},
		{"ALLUPPERCASE1", false},
		{"NoDigitsHere", false},
		{strings.Repeat("Aa1", 25), false},
	}

	for _, tt := range tests {
		if got := ValidatePasswordStrength(tt.password); got != tt.want {
			t.Errorf("ValidatePasswordStrength(%q) = %v, want %v", tt.password, got, tt.want)
		}
	}
}
