package service

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// identityNumberLength is the full length including the check digit.
const identityNumberLength = 12

// newIdentityNumber generates a candidate identity number: eleven random
// digits (no leading zero) plus a Luhn check digit. Global uniqueness is not
// guaranteed here; the record store's unique constraint rejects collisions
// and the issuer retries with a fresh number.
func newIdentityNumber() (string, error) {
	digits := make([]byte, identityNumberLength-1)
	for i := range digits {
		max := big.NewInt(10)
		if i == 0 {
			// Leading digit 1-9 keeps the number a fixed 12 digits.
			max = big.NewInt(9)
		}
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate identity number: %w", err)
		}
		d := byte(n.Int64())
		if i == 0 {
			d++
		}
		digits[i] = '0' + d
	}
	return string(digits) + string('0'+luhnCheckDigit(digits)), nil
}

// luhnCheckDigit computes the Luhn check digit for a digit string, giving
// downstream systems a cheap transcription check.
func luhnCheckDigit(digits []byte) byte {
	sum := 0
	double := true
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return byte((10 - sum%10) % 10)
}

// validIdentityNumber reports whether a number has the right shape and a
// correct check digit. Used by tests and offline verifiers.
func validIdentityNumber(number string) bool {
	if len(number) != identityNumberLength || number[0] == '0' {
		return false
	}
	for i := 0; i < len(number); i++ {
		if number[i] < '0' || number[i] > '9' {
			return false
		}
	}
	return luhnCheckDigit([]byte(number[:identityNumberLength-1])) == number[identityNumberLength-1]-'0'
}
