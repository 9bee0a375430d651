// Package pricing holds the registration fee schedule. Shorter names cost more.
package pricing

import (
	"math/big"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/params"
)

// MinNameLength is the shortest name the registry accepts.
const MinNameLength = 3

// Fee tiers in milli-ether.
const (
	threeCharFee = 500
	fourCharFee  = 300
	floorFee     = 100
)

func milliEther(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(params.Ether/1000))
}

func tier(length int) int64 {
	switch {
	case length <= 3:
		return threeCharFee
	case length == 4:
		return fourCharFee
	default:
		return floorFee
	}
}

// Fee returns the registration fee in wei for a name of the given length.
func Fee(length int) *big.Int {
	return milliEther(tier(length))
}

// FeeEther returns the fee as a decimal string in the native currency.
func FeeEther(length int) string {
	f := new(big.Float).SetInt(Fee(length))
	f.Quo(f, new(big.Float).SetInt(big.NewInt(params.Ether)))
	return f.Text('f', -1)
}

// NameLength counts characters, not bytes.
func NameLength(name string) int {
	return utf8.RuneCountInString(name)
}

// FeeForName is Fee applied to NameLength.
func FeeForName(name string) *big.Int {
	return Fee(NameLength(name))
}

// Table returns fees in ether for lengths MinNameLength..maxLength.
func Table(maxLength int) []float64 {
	var out []float64
	for l := MinNameLength; l <= maxLength; l++ {
		out = append(out, float64(tier(l))/1000)
	}
	return out
}
