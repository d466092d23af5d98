package validation

import (
	"strings"
	"testing"
)

func TestIsValidWallet(t *testing.T) {
	tests := []struct {
		name  string
		addr  string
		valid bool
	}{
		{"system program", "11111111111111111111111111111111", true},
		{"usdc mint", "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", true},
		{"wrapped sol", "So11111111111111111111111111111111111111112", true},
		{"empty", "", false},
		{"too short", "abc", false},
		{"too long", strings.Repeat("A", 45), false},
		{"contains zero", "0PjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", false},
		{"contains O", "OPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", false},
		{"eth address", "0x036CbD53842c5426634e7929541eC2318f3dCF7e", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidWallet(tt.addr); got != tt.valid {
				t.Errorf("IsValidWallet(%q) = %v, want %v", tt.addr, got, tt.valid)
			}
		})
	}
}

func TestIsValidUsername(t *testing.T) {
	valid := []string{"abc", "player_1", "A1b2C3", strings.Repeat("x", 20)}
	invalid := []string{"", "ab", strings.Repeat("x", 21), "has space", "has-dash", "has.dot"}

	for _, v := range valid {
		if !IsValidUsername(v) {
			t.Errorf("expected %q to be valid", v)
		}
	}
	for _, v := range invalid {
		if IsValidUsername(v) {
			t.Errorf("expected %q to be invalid", v)
		}
	}
}

func TestValidAmount(t *testing.T) {
	tests := []struct {
		value string
		ok    bool
	}{
		{"50", true},
		{"0.5", true},
		{"1.000000001", true},
		{"0", false},
		{"0.000", false},
		{"-5", false},
		{"1.2.3", false},
		{".5", false},
		{"5.", false},
		{"abc", false},
	}

	for _, tt := range tests {
		errs := Validate(ValidAmount("amount", tt.value))
		if tt.ok && len(errs) > 0 {
			t.Errorf("ValidAmount(%q): unexpected error %v", tt.value, errs)
		}
		if !tt.ok && len(errs) == 0 {
			t.Errorf("ValidAmount(%q): expected error, got none", tt.value)
		}
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	errs := Validate(
		Required("player1", ""),
		ValidWallet("player1", "not-base58!"),
		ValidAmount("stakeAmount", "0"),
	)
	if len(errs) != 3 {
		t.Fatalf("expected 3 errors, got %d: %v", len(errs), errs)
	}
	if errs.Error() != "player1: is required" {
		t.Errorf("unexpected Error() string: %s", errs.Error())
	}
}

func TestSanitizeString(t *testing.T) {
	if got := SanitizeString("  hello\x00world  ", 100); got != "helloworld" {
		t.Errorf("SanitizeString = %q", got)
	}
	if got := SanitizeString(strings.Repeat("a", 50), 10); len(got) != 10 {
		t.Errorf("expected truncation to 10, got %d", len(got))
	}
}
