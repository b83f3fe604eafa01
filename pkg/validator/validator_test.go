package validator

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

type purchaseForm struct {
	Handle string          `validate:"required,handle"`
	Price  decimal.Decimal `validate:"gt=0"`
}

func TestValidate_Handle(t *testing.T) {
	v := New()

	assert.NoError(t, v.Validate(purchaseForm{Handle: "alice", Price: decimal.NewFromInt(1)}))
	assert.Error(t, v.Validate(purchaseForm{Handle: "al", Price: decimal.NewFromInt(1)}))
	assert.Error(t, v.Validate(purchaseForm{Handle: "Alice!", Price: decimal.NewFromInt(1)}))
}

func TestValidate_DecimalGreaterThan(t *testing.T) {
	v := New()

	assert.Error(t, v.Validate(purchaseForm{Handle: "alice", Price: decimal.Zero}))
}

func TestValidateStructured(t *testing.T) {
	v := New()

	errs := v.ValidateStructured(purchaseForm{Handle: "", Price: decimal.Zero})

	assert.Equal(t, "This field is required", errs["Handle"])
	assert.Contains(t, errs["Price"], "greater than")
	assert.Nil(t, v.ValidateStructured(purchaseForm{Handle: "bob", Price: decimal.NewFromInt(3)}))
}

func TestValidAddress(t *testing.T) {
	assert.True(t, ValidAddress("1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"))
	assert.False(t, ValidAddress("not-an-address"))
	assert.False(t, ValidAddress(""))
}
