package wallet

import (
	"bytes"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math/big"
)

// Amount is an arbitrary-precision token amount. It always encodes to JSON
// as a decimal string so no consumer can lose precision.
type Amount struct {
	v *big.Int
}

// NewAmount wraps an int64.
func NewAmount(n int64) Amount {
	return Amount{v: big.NewInt(n)}
}

// AmountFromBig copies b.
func AmountFromBig(b *big.Int) Amount {
	if b == nil {
		return Amount{}
	}
	return Amount{v: new(big.Int).Set(b)}
}

// ParseAmount parses a base-10 integer string.
func ParseAmount(s string) (Amount, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Amount{}, fmt.Errorf("invalid amount %q", s)
	}
	return Amount{v: v}, nil
}

// Big returns a copy of the value.
func (a Amount) Big() *big.Int {
	if a.v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(a.v)
}

func (a Amount) String() string {
	if a.v == nil {
		return "0"
	}
	return a.v.String()
}

// Hash lets hashstructure compare amounts by value.
func (a Amount) Hash() (uint64, error) {
	h := fnv.New64a()
	h.Write([]byte(a.String()))
	return h.Sum64(), nil
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts both "123" and 123.
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = Amount{}
		return nil
	}

	s := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	}

	parsed, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// CloneAmounts returns an independent copy of m.
func CloneAmounts(m map[string]Amount) map[string]Amount {
	out := make(map[string]Amount, len(m))
	for k, v := range m {
		out[k] = AmountFromBig(v.v)
	}
	return out
}
