// Package barcode generates and renders sample and unit identifiers.
// A code is PREFIX + YYMMDD + six random digits + one Luhn check digit.
package barcode

import (
	"crypto/rand"
	"fmt"
	"image/png"
	"io"
	"math/big"
	"strings"
	"time"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/code128"
)

const randomDigits = 6

// Generate returns a new code for prefix, dated now in UTC.
func Generate(prefix string, now time.Time) (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("generate barcode: %w", err)
	}
	body := now.UTC().Format("060102") + fmt.Sprintf("%0*d", randomDigits, n.Int64())
	return prefix + body + string(rune('0'+luhnCheckDigit(body))), nil
}

// Valid reports whether code carries prefix and a correct check digit.
func Valid(prefix, code string) bool {
	if !strings.HasPrefix(code, prefix) {
		return false
	}
	digits := code[len(prefix):]
	if len(digits) != 6+randomDigits+1 {
		return false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return false
		}
	}
	body, check := digits[:len(digits)-1], int(digits[len(digits)-1]-'0')
	return luhnCheckDigit(body) == check
}

// luhnCheckDigit computes the digit that makes body+digit pass the Luhn test.
func luhnCheckDigit(body string) int {
	sum := 0
	double := true
	for i := len(body) - 1; i >= 0; i-- {
		d := int(body[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return (10 - sum%10) % 10
}

// PNG renders code as a Code 128 symbol scaled to width x height.
func PNG(w io.Writer, code string, width, height int) error {
	bc, err := code128.Encode(code)
	if err != nil {
		return fmt.Errorf("encode code128: %w", err)
	}
	scaled, err := barcode.Scale(bc, width, height)
	if err != nil {
		return fmt.Errorf("scale barcode: %w", err)
	}
	if err := png.Encode(w, scaled); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}
