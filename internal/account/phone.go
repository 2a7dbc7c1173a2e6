package account

import (
	"math/rand"
	"strconv"
	"strings"
)

// SyntheticPhone generates a phone identifier for a freshly linked account,
// in the +628 format the hosted service hands out.
func SyntheticPhone() string {
	var b strings.Builder
	b.WriteString("+628")
	for i := 0; i < 10; i++ {
		b.WriteString(strconv.Itoa(rand.Intn(10)))
	}
	return b.String()
}
