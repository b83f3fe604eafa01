package domain

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bsv-blockchain/go-sdk/chainhash"

	"opns/pkg/errors"
)

// NameStatus is the resolved availability of a handle.
type NameStatus string

const (
	StatusUnknown            NameStatus = "unknown"
	StatusChecking           NameStatus = "checking"
	StatusFailed             NameStatus = "failed"
	StatusAvailable          NameStatus = "available"
	StatusRegisteredUnlisted NameStatus = "registered_unlisted"
	StatusRegisteredListed   NameStatus = "registered_listed"
)

// Resolved reports whether a lookup completed with an answer.
func (s NameStatus) Resolved() bool {
	switch s {
	case StatusAvailable, StatusRegisteredUnlisted, StatusRegisteredListed:
		return true
	}
	return false
}

// NameCandidate is the resolver's view of the live input.
type NameCandidate struct {
	RawInput        string     `json:"rawInput"`
	Handle          string     `json:"handle"`
	Status          NameStatus `json:"status"`
	ListingOutpoint string     `json:"listingOutpoint,omitempty"`
	ListingPrice    int64      `json:"listingPrice,omitempty"`
	Err             error      `json:"-"`
}

// Listing is a marketplace entry for a registered name.
type Listing struct {
	Outpoint string `json:"outpoint"`
	ForSale  bool   `json:"sale"`
	Price    int64  `json:"price"`
}

// Purchasable reports whether the listing can be bought.
func (l *Listing) Purchasable() bool {
	return l != nil && l.ForSale && l.Price > 0
}

// Outpoint identifies a transaction output.
type Outpoint struct {
	Txid chainhash.Hash
	Vout uint32
}

// ParseOutpoint accepts "txid_vout" and "txid.vout".
func ParseOutpoint(s string) (Outpoint, error) {
	sep := strings.LastIndexAny(s, "_.")
	if sep <= 0 || sep == len(s)-1 {
		return Outpoint{}, fmt.Errorf("%w: %q", errors.ErrInvalidOutpoint, s)
	}
	hash, err := chainhash.NewHashFromHex(s[:sep])
	if err != nil {
		return Outpoint{}, fmt.Errorf("%w: %v", errors.ErrInvalidOutpoint, err)
	}
	vout, err := strconv.ParseUint(s[sep+1:], 10, 32)
	if err != nil {
		return Outpoint{}, fmt.Errorf("%w: %v", errors.ErrInvalidOutpoint, err)
	}
	return Outpoint{Txid: *hash, Vout: uint32(vout)}, nil
}

func (o Outpoint) String() string {
	return fmt.Sprintf("%s_%d", o.Txid.String(), o.Vout)
}
