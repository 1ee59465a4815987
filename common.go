package kubexec

import "math/rand/v2"

const (
	lowerStr = "abcdefghijklmnopqrstuvwxyz"
	upperStr = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	numStr   = "123456789"
)

func RandStr(length int, lower, upper, number bool) string {
	var s string
	if lower {
		s += lowerStr
	}
	if upper {
		s += upperStr
	}
	if number {
		s += numStr
	}
	b := make([]byte, length)
	for i := range b {
		b[i] = s[rand.IntN(len(s))]
	}
	return string(b)
}

func RandLowerStr(length int) string {
	return RandStr(length, true, false, false)
}

func RandLowerNumStr(length int) string {
	return RandStr(length, true, false, true)
}
