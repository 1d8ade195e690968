package utils

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

var (
	emailRegex   = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	controlChars = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]`)
)

// MaxAmountScale is the number of decimal places an amount may carry
const MaxAmountScale = 2

// Text limits, counted in characters
const (
	MaxTitleLength       = 255
	MaxDescriptionLength = 4000
	MaxCommentLength     = 1000
)

// ValidateEmail validates an email address
func ValidateEmail(email string) error {
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format: %s", email)
	}
	return nil
}

// ValidateAmount validates a purchase amount. A nil amount is allowed.
func ValidateAmount(amount *decimal.Decimal) error {
	if amount == nil {
		return nil
	}
	if amount.IsNegative() {
		return fmt.Errorf("amount must not be negative: %s", amount.String())
	}
	if -amount.Exponent() > MaxAmountScale && !amount.Equal(amount.Round(MaxAmountScale)) {
		return fmt.Errorf("amount has more than %d decimal places: %s", MaxAmountScale, amount.String())
	}
	return nil
}

// ValidateAmountRange checks lo <= hi when both bounds are set
func ValidateAmountRange(lo, hi *decimal.Decimal) error {
	if err := ValidateAmount(lo); err != nil {
		return fmt.Errorf("min amount: %w", err)
	}
	if err := ValidateAmount(hi); err != nil {
		return fmt.Errorf("max amount: %w", err)
	}
	if lo != nil && hi != nil && lo.GreaterThan(*hi) {
		return fmt.Errorf("min amount %s exceeds max amount %s", lo.String(), hi.String())
	}
	return nil
}

// SanitizeString removes control characters and surrounding whitespace.
// Newlines and tabs are kept.
func SanitizeString(s string) string {
	return strings.TrimSpace(controlChars.ReplaceAllString(s, ""))
}

// ValidateLength fails when s has more than max characters
func ValidateLength(field, s string, max int) error {
	if n := utf8.RuneCountInString(s); n > max {
		return fmt.Errorf("%s must be at most %d characters, got %d", field, max, n)
	}
	return nil
}
