package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"opns/internal/middleware"
	"opns/internal/payment"
	"opns/pkg/errors"
)

// Resumer completes hosted checkouts from their return URL.
type Resumer interface {
	Resume(ctx context.Context, rawURL string) (payment.ResumeResult, error)
}

// ReturnHandler receives the browser after hosted checkout.
type ReturnHandler struct {
	resumer Resumer
	logger  Logger

	mu      sync.Mutex
	last    *returnStatus
	results chan payment.ResumeResult
}

type returnStatus struct {
	payment.ResumeResult
	Error string    `json:"error,omitempty"`
	At    time.Time `json:"at"`
}

func NewReturnHandler(resumer Resumer, log Logger) *ReturnHandler {
	return &ReturnHandler{
		resumer: resumer,
		logger:  log,
		results: make(chan payment.ResumeResult, 1),
	}
}

// Results yields every outcome other than ResumeNone. A slow reader misses
// outcomes rather than blocking the handler.
func (h *ReturnHandler) Results() <-chan payment.ResumeResult {
	return h.results
}

// Return handles GET /return. Requests carrying checkout markers are
// resumed and answered with 303 to the stripped URL, or with a JSON status
// when the client asks for JSON. A request without markers shows the last
// outcome.
func (h *ReturnHandler) Return(w http.ResponseWriter, r *http.Request) {
	res, err := h.resumer.Resume(r.Context(), r.URL.RequestURI())
	if !res.Marked && err == nil {
		h.respondLast(w, r)
		return
	}

	status := &returnStatus{ResumeResult: res, At: time.Now().UTC()}
	if err != nil {
		status.Error = err.Error()
		h.logger.Error("Checkout return failed", middleware.LogFields(r.Context(), map[string]interface{}{
			"outcome": string(res.Outcome),
			"handle":  res.Handle,
			"error":   err.Error(),
		}))
	} else if res.Outcome != payment.ResumeNone {
		h.logger.Info("Checkout returned", middleware.LogFields(r.Context(), map[string]interface{}{
			"outcome": string(res.Outcome),
			"handle":  res.Handle,
		}))
	}
	h.remember(status)

	if wantsJSON(r) {
		code := http.StatusOK
		if err != nil {
			code = statusFor(err)
		}
		respondJSON(w, code, status)
		return
	}
	http.Redirect(w, r, res.CleanURL, http.StatusSeeOther)
}

func (h *ReturnHandler) respondLast(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	last := h.last
	h.mu.Unlock()

	if wantsJSON(r) {
		if last == nil {
			respondJSON(w, http.StatusOK, map[string]string{"outcome": string(payment.ResumeNone)})
			return
		}
		respondJSON(w, http.StatusOK, last)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintln(w, describe(last))
}

// remember keeps s as the outcome shown on later visits. A ResumeNone
// status, such as a reload of an already handled return URL, leaves the
// previous outcome in place.
func (h *ReturnHandler) remember(s *returnStatus) {
	if s.Outcome == payment.ResumeNone {
		return
	}
	h.mu.Lock()
	h.last = s
	h.mu.Unlock()

	select {
	case h.results <- s.ResumeResult:
	default:
	}
}

func describe(s *returnStatus) string {
	if s == nil {
		return "No checkout in progress."
	}
	switch s.Outcome {
	case payment.ResumeAcquired:
		return s.Name + " is yours. You can close this window."
	case payment.ResumeCancelled:
		return "Checkout cancelled. No payment was taken."
	case payment.ResumeRegistrationPending:
		return "Payment received but " + s.Handle + " is not registered yet. Contact support."
	}
	if s.Error != "" {
		return "Checkout could not be completed: " + s.Error
	}
	return "No checkout in progress."
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

func statusFor(err error) int {
	switch errors.KindOf(err) {
	case errors.KindValidation:
		return http.StatusBadRequest
	case errors.KindReconciliation:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
