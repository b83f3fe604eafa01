package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"opns/internal/metrics"
	"opns/internal/payment"
	opnserrors "opns/pkg/errors"
	"opns/pkg/logger"
)

type MockResumer struct {
	mock.Mock
}

func (m *MockResumer) Resume(ctx context.Context, rawURL string) (payment.ResumeResult, error) {
	args := m.Called(ctx, rawURL)
	return args.Get(0).(payment.ResumeResult), args.Error(1)
}

func newTestRouter(t *testing.T, resumer *MockResumer) (http.Handler, *ReturnHandler) {
	t.Helper()
	ret := NewReturnHandler(resumer, logger.NewNop())
	reg := prometheus.NewRegistry()
	metrics.New(reg).IncrementResumption("acquired")
	return NewRouter("/return", ret, reg, logger.NewNop()), ret
}

func TestReturn_RedirectsToStrippedURL(t *testing.T) {
	resumer := new(MockResumer)
	resumer.On("Resume", mock.Anything, "/return?payment_success=true&state=tok").Return(payment.ResumeResult{
		Outcome:  payment.ResumeAcquired,
		Handle:   "alice",
		Name:     "alice@1sat.name",
		CleanURL: "/return",
		Marked:   true,
	}, nil).Once()
	resumer.On("Resume", mock.Anything, "/return").
		Return(payment.ResumeResult{Outcome: payment.ResumeNone, CleanURL: "/return"}, nil)
	router, ret := newTestRouter(t, resumer)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/return?payment_success=true&state=tok", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/return", rec.Header().Get("Location"))
	assert.Equal(t, "no-store, max-age=0", rec.Header().Get("Cache-Control"))

	select {
	case res := <-ret.Results():
		assert.Equal(t, "alice@1sat.name", res.Name)
	default:
		t.Fatal("outcome not published")
	}

	// the browser follows the redirect and sees the outcome
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/return", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "alice@1sat.name is yours")
}

func TestReturn_ReloadKeepsPreviousOutcome(t *testing.T) {
	resumer := new(MockResumer)
	resumer.On("Resume", mock.Anything, "/return?payment_success=true&state=tok").Return(payment.ResumeResult{
		Outcome:  payment.ResumeAcquired,
		Handle:   "alice",
		Name:     "alice@1sat.name",
		CleanURL: "/return",
		Marked:   true,
	}, nil).Once()
	resumer.On("Resume", mock.Anything, "/return?payment_success=true&state=tok").Return(payment.ResumeResult{
		Outcome:  payment.ResumeNone,
		CleanURL: "/return",
		Marked:   true,
	}, nil)
	resumer.On("Resume", mock.Anything, "/return").
		Return(payment.ResumeResult{Outcome: payment.ResumeNone, CleanURL: "/return"}, nil)
	router, ret := newTestRouter(t, resumer)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/return?payment_success=true&state=tok", nil))
		assert.Equal(t, http.StatusSeeOther, rec.Code)
	}
	assert.Len(t, ret.Results(), 1)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/return", nil))
	assert.Contains(t, rec.Body.String(), "alice@1sat.name is yours")
}

func TestReturn_LogsRequestID(t *testing.T) {
	resumer := new(MockResumer)
	resumer.On("Resume", mock.Anything, mock.Anything).Return(payment.ResumeResult{
		Outcome:  payment.ResumeCancelled,
		Handle:   "alice",
		CleanURL: "/return",
		Marked:   true,
	}, nil)
	var buf bytes.Buffer
	log := logger.NewWithWriter("test", logger.LevelDebug, &buf)
	router := NewRouter("/return", NewReturnHandler(resumer, log), nil, log)

	req := httptest.NewRequest(http.MethodGet, "/return?payment_cancelled=true&state=tok", nil)
	req.Header.Set("X-Request-ID", "req-7")
	router.ServeHTTP(httptest.NewRecorder(), req)

	var found bool
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		if entry["message"] == "Checkout returned" {
			found = true
			assert.Equal(t, "req-7", entry["request_id"])
			assert.Equal(t, "cancelled", entry["outcome"])
		}
	}
	assert.True(t, found, buf.String())
}

func TestReturn_JSONForAPIClients(t *testing.T) {
	resumer := new(MockResumer)
	resumer.On("Resume", mock.Anything, mock.Anything).Return(payment.ResumeResult{
		Outcome:  payment.ResumeRegistrationPending,
		Handle:   "alice",
		CleanURL: "/return",
		Marked:   true,
	}, opnserrors.NewReconciliation("payment.resume", "payment succeeded, registration pending", nil))
	router, _ := newTestRouter(t, resumer)

	req := httptest.NewRequest(http.MethodGet, "/return?payment_success=true", nil)
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "registration_pending", body["outcome"])
	assert.Equal(t, "/return", body["cleanUrl"])
	assert.Contains(t, body["error"], "registration pending")
}

func TestReturn_InvalidStateIsBadRequest(t *testing.T) {
	resumer := new(MockResumer)
	resumer.On("Resume", mock.Anything, mock.Anything).Return(
		payment.ResumeResult{Outcome: payment.ResumeNone, CleanURL: "/return", Marked: true},
		opnserrors.NewValidation("payment.resume", "checkout state does not match", opnserrors.ErrInvalidState))
	router, ret := newTestRouter(t, resumer)

	req := httptest.NewRequest(http.MethodGet, "/return?payment_success=true&state=forged", nil)
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, ret.Results(), 0)
}

func TestReturn_NothingPending(t *testing.T) {
	resumer := new(MockResumer)
	resumer.On("Resume", mock.Anything, "/return").
		Return(payment.ResumeResult{Outcome: payment.ResumeNone, CleanURL: "/return"}, nil)
	router, _ := newTestRouter(t, resumer)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/return", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "No checkout in progress.\n", rec.Body.String())
}

func TestHealthAndMetrics(t *testing.T) {
	router, _ := newTestRouter(t, new(MockResumer))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "opns_checkout_resumptions_total")
}
