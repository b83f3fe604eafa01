package notification

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"opns/pkg/logger"
)

type MockSink struct {
	mock.Mock
}

func (m *MockSink) Deliver(ctx context.Context, n *Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

func TestNotify_NameAcquired(t *testing.T) {
	var buf bytes.Buffer
	svc := NewService(logger.NewNop(), NewWriterSink(&buf))

	err := svc.Notify(context.Background(), EventNameAcquired, map[string]interface{}{"name": "alice@1sat.name"})
	require.NoError(t, err)
	assert.Equal(t, "alice@1sat.name is yours.\n", buf.String())
}

func TestNotify_RegistrationPendingCarriesTxid(t *testing.T) {
	sink := new(MockSink)
	sink.On("Deliver", mock.Anything, mock.MatchedBy(func(n *Notification) bool {
		return n.Priority == PriorityUrgent && n.Metadata["txid"] == "abc" &&
			n.Body == "Payment for alice succeeded but registration is not confirmed. Contact support with transaction abc."
	})).Return(nil).Once()
	svc := NewService(logger.NewNop(), sink)

	err := svc.Notify(context.Background(), EventRegistrationPending, map[string]interface{}{"handle": "alice", "txid": "abc"})
	require.NoError(t, err)
	sink.AssertExpectations(t)
}

func TestSendRaw_FailingSinkDoesNotStopOthers(t *testing.T) {
	bad := new(MockSink)
	bad.On("Deliver", mock.Anything, mock.Anything).Return(errors.New("closed"))
	var buf bytes.Buffer
	svc := NewService(logger.NewNop(), bad)
	svc.AddSink(NewWriterSink(&buf))

	err := svc.Notify(context.Background(), EventCheckoutCancelled, map[string]interface{}{"handle": "bob"})
	assert.EqualError(t, err, "closed")
	assert.Contains(t, buf.String(), "Checkout for bob was cancelled")
}

func TestNotify_UnknownEvent(t *testing.T) {
	var buf bytes.Buffer
	svc := NewService(logger.NewNop(), NewWriterSink(&buf))

	require.NoError(t, svc.Notify(context.Background(), "SOMETHING", nil))
	assert.Equal(t, "Event: SOMETHING\n", buf.String())
}
