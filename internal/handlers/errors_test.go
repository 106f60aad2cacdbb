package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"staffhub/internal/identity"
	"staffhub/internal/service"
	"staffhub/internal/validation"
)

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not JSON: %v (%q)", err, rec.Body.String())
	}
	return body
}

func TestRespondWithErrorWritesStatusAndBody(t *testing.T) {
	recorder := httptest.NewRecorder()

	respondWithError(recorder, 418, "teapot", "Teapot", "", nil)

	if recorder.Code != 418 {
		t.Fatalf("expected status 418, got %d", recorder.Code)
	}
	if ct := recorder.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected JSON content type, got %q", ct)
	}

	body := decodeBody(t, recorder)
	if body["ok"] != false || body["error"] != "teapot" || body["message"] != "Teapot" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestRespondWithErrorLogsMessage(t *testing.T) {
	var buf bytes.Buffer
	logger := log.Default()
	originalOutput := logger.Writer()
	logger.SetOutput(&buf)
	defer logger.SetOutput(originalOutput)

	recorder := httptest.NewRecorder()
	err := errors.New("boom")

	respondWithError(recorder, 500, CodeServerError, "Internal server error", "", err)

	logOutput := buf.String()
	if !strings.Contains(logOutput, "Internal server error") {
		t.Fatalf("expected log to include user message, got %q", logOutput)
	}
	if !strings.Contains(logOutput, "boom") {
		t.Fatalf("expected log to include error, got %q", logOutput)
	}
	if strings.Contains(recorder.Body.String(), "boom") {
		t.Fatalf("internal error leaked to client: %q", recorder.Body.String())
	}
}

func TestRespondWithServiceError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"malformed token", service.ErrInvalidToken, http.StatusNotFound, CodeNotFound},
		{"not found", service.ErrInvitationNotFound, http.StatusNotFound, CodeNotFound},
		{"expired", service.ErrInvitationExpired, http.StatusGone, CodeExpired},
		{"revoked", service.ErrInvitationRevoked, http.StatusGone, CodeRevoked},
		{"already used", service.ErrAlreadyConsumed, http.StatusConflict, CodeAlreadyUsed},
		{"already accepted", &service.ConsumedError{Status: "accepted"}, http.StatusConflict, "already-accepted"},
		{"already spots filled", &service.ConsumedError{Status: "spots_filled"}, http.StatusConflict, "already-spots_filled"},
		{"no shifts", service.ErrNoShifts, http.StatusUnprocessableEntity, CodeNoShifts},
		{"capacity", &service.CapacityError{ShiftIDs: []int64{10}}, http.StatusConflict, CodeShiftsUnavailable},
		{"forbidden", service.ErrForbidden, http.StatusForbidden, CodeForbidden},
		{"throttled", service.ErrThrottled, http.StatusTooManyRequests, CodeThrottled},
		{"validation", validation.ValidationError{Field: "email", Message: "invalid email format"}, http.StatusBadRequest, CodeInvalidRequest},
		{"credential used", identity.ErrCredentialUsed, http.StatusUnauthorized, CodeUnauthorized},
		{"upstream", fmt.Errorf("%w: timeout", service.ErrUpstreamIdentity), http.StatusBadGateway, CodeUpstreamIdentity},
		{"unexpected", errors.New("disk full"), http.StatusInternalServerError, CodeServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			respondWithServiceError(rec, tt.err, "test")

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if body := decodeBody(t, rec); body["error"] != tt.wantCode {
				t.Errorf("error code = %v, want %q", body["error"], tt.wantCode)
			}
		})
	}

	t.Run("capacity lists shifts", func(t *testing.T) {
		rec := httptest.NewRecorder()
		respondWithServiceError(rec, &service.CapacityError{ShiftIDs: []int64{10, 12}}, "test")

		body := decodeBody(t, rec)
		if !reflect.DeepEqual(body["shifts"], []interface{}{float64(10), float64(12)}) {
			t.Errorf("shifts = %v, want [10 12]", body["shifts"])
		}
	})
}

func TestParseIDList(t *testing.T) {
	tests := []struct {
		raw     string
		want    []int64
		wantErr bool
	}{
		{raw: "1,2,3", want: []int64{1, 2, 3}},
		{raw: " 4 , 5 ,", want: []int64{4, 5}},
		{raw: "", want: nil},
		{raw: "1,x", wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseIDList(tt.raw)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseIDList(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
			t.Errorf("parseIDList(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}
