// Package address splits Korean lot-number (지번) addresses into the pieces
// the transaction registry filters on.
package address

import (
	"errors"
	"fmt"
	"strings"
)

var ErrMalformedAddress = errors.New("malformed address")

// districtSuffixes end the district-level token: 구 (city district) or 군 (county).
var districtSuffixes = []string{"구", "군"}

// Parsed holds the positional components of an address.
type Parsed struct {
	Region      string `json:"region"`
	SubDistrict string `json:"sub_district"`
	LotNumber   string `json:"lot_number"`
}

// MalformedAddressError reports an address that cannot be tokenized.
type MalformedAddressError struct {
	Address string
	Reason  string
}

func (e *MalformedAddressError) Error() string {
	return fmt.Sprintf("malformed address %q: %s", e.Address, e.Reason)
}

func (e *MalformedAddressError) Unwrap() error {
	return ErrMalformedAddress
}

// Parse locates the first district token and takes the two tokens after it
// as sub-district and lot number. It does not check that the region exists.
func Parse(addr string) (Parsed, error) {
	tokens := strings.Fields(addr)
	if len(tokens) == 0 {
		return Parsed{}, &MalformedAddressError{Address: addr, Reason: "empty"}
	}

	idx := -1
	for i, tok := range tokens {
		if isDistrict(tok) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Parsed{}, &MalformedAddressError{Address: addr, Reason: "no district (구/군) token"}
	}
	if len(tokens)-idx-1 < 2 {
		return Parsed{}, &MalformedAddressError{Address: addr, Reason: "missing sub-district or lot number"}
	}

	return Parsed{
		Region:      strings.Join(tokens[:idx+1], " "),
		SubDistrict: tokens[idx+1],
		LotNumber:   tokens[idx+2],
	}, nil
}

func isDistrict(tok string) bool {
	for _, suffix := range districtSuffixes {
		if strings.HasSuffix(tok, suffix) {
			return true
		}
	}
	return false
}
