package yolov8

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
)

// FormatLabel renders "<name> (<probability as a percentage with two decimals>%)".
func FormatLabel(name string, probability float64) string {
	return fmt.Sprintf("%s (%s%%)", name, toFixed2(probability*100))
}

// toFixed2 formats v with two decimals, rounding ties on the exact binary value away
// from zero. strconv rounds those ties to even.
func toFixed2(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) || math.Abs(v) >= 1e21 {
		return strconv.FormatFloat(v, 'f', 2, 64)
	}

	neg := v < 0
	x := new(big.Float).SetPrec(256).SetFloat64(math.Abs(v))
	x.Mul(x, big.NewFloat(100))
	x.Add(x, big.NewFloat(0.5))
	n, _ := x.Int(nil)

	digits := n.String()
	if len(digits) < 3 {
		digits = strings.Repeat("0", 3-len(digits)) + digits
	}

	out := digits[:len(digits)-2] + "." + digits[len(digits)-2:]
	if neg {
		out = "-" + out
	}

	return out
}
