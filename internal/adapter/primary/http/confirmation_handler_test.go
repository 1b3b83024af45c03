package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/splitledger/payment-confirm/internal/core"
	"github.com/splitledger/payment-confirm/internal/port/input"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubService struct {
	beginResp  *input.BeginResponse
	beginErr   error
	resumeOp   *core.PendingOperation
	resumeErr  error
	status     *input.OperationStatus
	statusErr  error
	resumedRef string
}

func (s *stubService) Begin(ctx context.Context, req input.BeginRequest) (*input.BeginResponse, error) {
	return s.beginResp, s.beginErr
}

func (s *stubService) Resume(ctx context.Context, reference string) (*core.PendingOperation, error) {
	s.resumedRef = reference
	return s.resumeOp, s.resumeErr
}

func (s *stubService) GetStatus(ctx context.Context, reference string) (*input.OperationStatus, error) {
	return s.status, s.statusErr
}

func TestBeginOperation_Created(t *testing.T) {
	svc := &stubService{beginResp: &input.BeginResponse{
		Reference:   "ref_1",
		ExternalURL: "https://pay.example.com/ref_1",
	}}
	h := NewConfirmationHandler(svc)

	body := `{"kind":"DEPOSIT_WALLET","amount":"25.00","return_path":"/wallet"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/operations", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)

	require.NoError(t, h.BeginOperation(c))
	assert.Equal(t, http.StatusCreated, rec.Code)

	var resp BeginOperationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ref_1", resp.Reference)
	assert.Equal(t, "https://pay.example.com/ref_1", resp.ExternalURL)
}

func TestBeginOperation_ValidationErrorIsBadRequest(t *testing.T) {
	svc := &stubService{beginErr: core.ErrInvalidOperation}
	h := NewConfirmationHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/operations", strings.NewReader(`{"kind":"NOPE"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)

	require.NoError(t, h.BeginOperation(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReturn_RedirectsToOperationReturnPath(t *testing.T) {
	svc := &stubService{resumeOp: &core.PendingOperation{
		Reference:  "ref_1",
		ReturnPath: "/events/ev_42",
	}}
	h := NewConfirmationHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/operations/return?reference=ref_1", nil)
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)

	require.NoError(t, h.Return(c))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/events/ev_42", rec.Header().Get(echo.HeaderLocation))
	assert.Equal(t, "ref_1", svc.resumedRef)
}

func TestReturn_MissingRecordIsNoOpRedirect(t *testing.T) {
	svc := &stubService{resumeErr: core.ErrNoPendingOperation}
	h := NewConfirmationHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/operations/return?reference=gone", nil)
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)

	require.NoError(t, h.Return(c))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get(echo.HeaderLocation))
}

func TestGetOperation_WithOutcome(t *testing.T) {
	resolvedAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	svc := &stubService{status: &input.OperationStatus{
		Reference: "ref_1",
		Kind:      core.KindDepositWallet,
		State:     core.StateSucceeded,
		Outcome: &core.ConfirmationOutcome{
			Reference:       "ref_1",
			Status:          core.OutcomeConfirmed,
			AppliedEffectID: "eff_7",
			ResolvedAt:      resolvedAt,
		},
	}}
	h := NewConfirmationHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)
	c.SetPath("/api/v1/operations/:reference")
	c.SetParamNames("reference")
	c.SetParamValues("ref_1")

	require.NoError(t, h.GetOperation(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp OperationStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "SUCCEEDED", resp.State)
	assert.Equal(t, "CONFIRMED", resp.OutcomeStatus)
	assert.Equal(t, "eff_7", resp.AppliedEffectID)
	assert.Equal(t, "2024-05-01T12:00:00Z", resp.ResolvedAt)
}

func TestGetOperation_UnknownReferenceIsNotFound(t *testing.T) {
	svc := &stubService{statusErr: core.ErrNoPendingOperation}
	h := NewConfirmationHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)
	c.SetPath("/api/v1/operations/:reference")
	c.SetParamNames("reference")
	c.SetParamValues("missing")

	require.NoError(t, h.GetOperation(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
