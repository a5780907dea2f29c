package handlers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/lvicentin/grana/internal/dedup"
	"github.com/lvicentin/grana/internal/gate"
	"github.com/lvicentin/grana/internal/pipeline"
	"github.com/lvicentin/grana/internal/store"
)

func newTestGate() *gate.Gate {
	return gate.New(store.NewMemory(), "2025-09", 20, time.Hour)
}

func TestConsentRoundTrip(t *testing.T) {
	g := newTestGate()
	h := NewConsentHandler(g, zerolog.Nop())

	// Before any decision the consent is not granted.
	rec := httptest.NewRecorder()
	h.GetConsent(rec, httptest.NewRequest(http.MethodGet, "/api/consent", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET status = %d", rec.Code)
	}
	var status struct {
		Granted         bool   `json:"granted"`
		RequiredVersion string `json:"required_version"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatal(err)
	}
	if status.Granted {
		t.Error("Granted = true before any decision")
	}
	if status.RequiredVersion != "2025-09" {
		t.Errorf("RequiredVersion = %q", status.RequiredVersion)
	}

	// Accept.
	rec = httptest.NewRecorder()
	h.PutConsent(rec, httptest.NewRequest(http.MethodPut, "/api/consent", strings.NewReader(`{"accepted": true}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT status = %d, body %s", rec.Code, rec.Body)
	}

	rec = httptest.NewRecorder()
	h.GetConsent(rec, httptest.NewRequest(http.MethodGet, "/api/consent", nil))
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatal(err)
	}
	if !status.Granted {
		t.Error("Granted = false after accepting")
	}
}

func TestPutConsentRejectsMissingField(t *testing.T) {
	h := NewConsentHandler(newTestGate(), zerolog.Nop())

	rec := httptest.NewRecorder()
	h.PutConsent(rec, httptest.NewRequest(http.MethodPut, "/api/consent", strings.NewReader(`{}`)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestCreateImportWithoutConsent(t *testing.T) {
	st := store.NewMemory()
	g := gate.New(st, "2025-09", 20, time.Hour)
	pipe := pipeline.New(st, nil, g, dedup.NewMatcher(nil), zerolog.Nop())
	h := NewImportsHandler(pipe, zerolog.Nop())

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "fatura.pdf")
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte("%PDF-1.4"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/imports", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rec := httptest.NewRecorder()
	h.CreateImport(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403; body %s", rec.Code, rec.Body)
	}
	var resp struct {
		Status          string `json:"status"`
		RequiredVersion string `json:"required_version"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "consent_required" {
		t.Errorf("status = %q", resp.Status)
	}
	if resp.RequiredVersion != "2025-09" {
		t.Errorf("required_version = %q", resp.RequiredVersion)
	}
}

func TestCreateImportRequiresFile(t *testing.T) {
	st := store.NewMemory()
	g := gate.New(st, "2025-09", 20, time.Hour)
	pipe := pipeline.New(st, nil, g, dedup.NewMatcher(nil), zerolog.Nop())
	h := NewImportsHandler(pipe, zerolog.Nop())

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	mw.WriteField("guidance", "fatura do cartão")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/imports", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rec := httptest.NewRecorder()
	h.CreateImport(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
