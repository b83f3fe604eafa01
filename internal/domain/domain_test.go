package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	opnserrors "opns/pkg/errors"
)

const txid = "4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33b"

func TestParseOutpoint(t *testing.T) {
	op, err := ParseOutpoint(txid + "_0")
	require.NoError(t, err)
	assert.Equal(t, uint32(0), op.Vout)
	assert.Equal(t, txid+"_0", op.String())

	op, err = ParseOutpoint(txid + ".7")
	require.NoError(t, err)
	assert.Equal(t, uint32(7), op.Vout)
	assert.Equal(t, txid+"_7", op.String())
}

func TestParseOutpoint_Invalid(t *testing.T) {
	for _, in := range []string{"", "_0", txid, txid + "_", "zz_1", txid + "_-1"} {
		_, err := ParseOutpoint(in)
		assert.ErrorIs(t, err, opnserrors.ErrInvalidOutpoint, "input %q", in)
	}
}

func TestPurchaseIntent_TerminalStatesAreImmutable(t *testing.T) {
	p := NewPurchaseIntent(RailDirectWallet, "alice", decimal.NewFromInt(1))
	assert.Equal(t, IntentIdle, p.State)

	require.NoError(t, p.Start())
	require.NoError(t, p.Succeed("txid"))
	assert.Equal(t, "txid", p.ExternalRef)

	err := p.Fail(errors.New("late"))
	assert.ErrorIs(t, err, opnserrors.ErrTerminalIntent)
	assert.Equal(t, IntentSucceeded, p.State)
	assert.Nil(t, p.Err)
}

func TestAddresses_Fallbacks(t *testing.T) {
	a := Addresses{Payment: "pay"}
	assert.Equal(t, "pay", a.Registration())
	assert.Equal(t, "pay", a.Reconciliation())

	a = Addresses{Payment: "pay", Ordinal: "ord", Identity: "id"}
	assert.Equal(t, "ord", a.Registration())
	assert.Equal(t, "id", a.Reconciliation())
}

func TestListing_Purchasable(t *testing.T) {
	var nilListing *Listing
	assert.False(t, nilListing.Purchasable())
	assert.False(t, (&Listing{ForSale: true}).Purchasable())
	assert.False(t, (&Listing{Price: 10}).Purchasable())
	assert.True(t, (&Listing{ForSale: true, Price: 10}).Purchasable())
}

func TestParseRail(t *testing.T) {
	r, err := ParseRail("wallet")
	require.NoError(t, err)
	assert.Equal(t, RailDirectWallet, r)

	_, err = ParseRail("cash")
	assert.Error(t, err)
}

func TestOwnedNames(t *testing.T) {
	ordinals := []Ordinal{
		{ID: "1", Outpoint: "a_0", Content: "alice@1sat.name"},
		{ID: "2", Outpoint: "b_0", Data: json.RawMessage(`"bob@1sat.name"`)},
		{ID: "3", Outpoint: "c_0", Data: json.RawMessage(`{"name":"carol@1sat.name"}`)},
		{ID: "4", Outpoint: "d_0", Data: json.RawMessage(`{"handle":"dave@1sat.name"}`)},
		{ID: "5", Outpoint: "e_0", Content: "just a picture"},
		{ID: "6", Outpoint: "f_0", Data: json.RawMessage(`{"name":"erin@other.name"}`)},
		{ID: "7", Outpoint: "g_0", Data: json.RawMessage(`[1,2,3]`)},
		{ID: "8", Outpoint: "h_0"},
	}

	names := OwnedNames(ordinals, "1sat.name")

	assert.Equal(t, []OwnedName{
		{Name: "alice@1sat.name", Outpoint: "a_0"},
		{Name: "bob@1sat.name", Outpoint: "b_0"},
		{Name: "carol@1sat.name", Outpoint: "c_0"},
		{Name: "dave@1sat.name", Outpoint: "d_0"},
	}, names)
	assert.Nil(t, OwnedNames(ordinals, "example.name"))
	assert.Len(t, OwnedNames(ordinals, "other.name"), 1)
}
