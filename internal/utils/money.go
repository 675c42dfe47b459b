package utils

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// FormatRupees renders an amount with the rupee sign and Indian digit grouping,
// e.g. 100000 -> "₹1,00,000". Fractional paise are shown only when present.
func FormatRupees(amount decimal.Decimal) string {
	sign := ""
	if amount.IsNegative() {
		sign = "-"
		amount = amount.Neg()
	}

	text := amount.StringFixed(2)
	intPart, frac, _ := strings.Cut(text, ".")
	out := sign + "₹" + groupIndian(intPart)
	if frac != "00" {
		out += "." + frac
	}
	return out
}

func groupIndian(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	head, tail := digits[:len(digits)-3], digits[len(digits)-3:]
	var parts []string
	for len(head) > 2 {
		parts = append([]string{head[len(head)-2:]}, parts...)
		head = head[:len(head)-2]
	}
	if head != "" {
		parts = append([]string{head}, parts...)
	}
	return strings.Join(parts, ",") + "," + tail
}

// GoldWeight converts a money amount to grams of gold at rate per gram.
// Non-positive or non-finite inputs yield 0.
func GoldWeight(amount, rate float64) float64 {
	if !finite(amount) || !finite(rate) || rate <= 0 || amount <= 0 {
		return 0
	}
	w := amount / rate
	if !finite(w) {
		return 0
	}
	return w
}

// FormatGrams renders a gold weight with four decimal places.
func FormatGrams(weight float64) string {
	if !finite(weight) {
		weight = 0
	}
	return decimal.NewFromFloat(weight).StringFixed(4) + " g"
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
