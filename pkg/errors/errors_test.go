package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_MessageAndUnwrap(t *testing.T) {
	err := NewPayment("direct.send", "wallet payment failed", ErrPaymentRejected)

	assert.Equal(t, "direct.send: wallet payment failed: payment rejected", err.Error())
	assert.True(t, errors.Is(err, ErrPaymentRejected))
	assert.Equal(t, KindPayment, KindOf(err))
}

func TestKindOf_ThroughWrapping(t *testing.T) {
	inner := NewReconciliation("direct.reconcile", "payment succeeded, registration pending", nil).With("txid", "abc")
	wrapped := fmt.Errorf("buy alice: %w", inner)

	assert.Equal(t, KindReconciliation, KindOf(wrapped))
	assert.Equal(t, "abc", Context(wrapped)["txid"])
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
}

func TestIsUnauthorized(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"sentinel", ErrUnauthorized, true},
		{"wrapped sentinel", Wrap(ErrUnauthorized, "addresses"), true},
		{"kind", NewUnauthorized("bridge", "revoked", nil), true},
		{"provider message", errors.New("Unauthorized: user rejected"), true},
		{"not connected message", errors.New("Not connected"), true},
		{"other", errors.New("timeout"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsUnauthorized(tc.err))
		})
	}
}

func TestRetryable_OnlyNetwork(t *testing.T) {
	assert.True(t, Retryable(NewNetwork("lookup", "backend down", nil)))
	assert.False(t, Retryable(NewPayment("send", "declined", nil)))
	assert.False(t, Retryable(NewReconciliation("register", "pending", nil)))
}

func TestWrap_Nil(t *testing.T) {
	assert.Nil(t, Wrap(nil, "noop"))
}
