package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/danielrosehill/voicenote/pkg/audio/capture"
	"github.com/danielrosehill/voicenote/pkg/audio/capture/mock"
)

func TestHealthz_AlwaysReturns200(t *testing.T) {
	h := New()

	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	h.Healthz(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q, want %q", body.Status, "ok")
	}
}

func TestHealthz_ContentType(t *testing.T) {
	h := New()
	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	h.Healthz(rec, req)

	ct := rec.Header().Get("Content-Type")
	if ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
}

func TestReadyz_AllCheckersPass(t *testing.T) {
	h := New(
		Checker{Name: "capture", Check: func(_ context.Context) error { return nil }},
		Checker{Name: "encoder", Check: func(_ context.Context) error { return nil }},
	)

	req := httptest.NewRequest("GET", "/readyz", nil)
	rec := httptest.NewRecorder()
	h.Readyz(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q, want %q", body.Status, "ok")
	}
	if body.Checks["capture"] != "ok" {
		t.Errorf("capture check = %q, want %q", body.Checks["capture"], "ok")
	}
	if body.Checks["encoder"] != "ok" {
		t.Errorf("encoder check = %q, want %q", body.Checks["encoder"], "ok")
	}
}

func TestReadyz_CheckerFails(t *testing.T) {
	h := New(
		Checker{Name: "capture", Check: func(_ context.Context) error {
			return errors.New("backend init failed")
		}},
		Checker{Name: "encoder", Check: func(_ context.Context) error { return nil }},
	)

	req := httptest.NewRequest("GET", "/readyz", nil)
	rec := httptest.NewRecorder()
	h.Readyz(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}

	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if body.Status != "fail" {
		t.Errorf("status = %q, want %q", body.Status, "fail")
	}
	if body.Checks["capture"] != "fail: backend init failed" {
		t.Errorf("capture check = %q, want %q", body.Checks["capture"], "fail: backend init failed")
	}
	if body.Checks["encoder"] != "ok" {
		t.Errorf("encoder check = %q, want %q", body.Checks["encoder"], "ok")
	}
}

func TestReadyz_NoCheckers(t *testing.T) {
	h := New()

	req := httptest.NewRequest("GET", "/readyz", nil)
	rec := httptest.NewRecorder()
	h.Readyz(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q, want %q", body.Status, "ok")
	}
}

func TestCheckCapture(t *testing.T) {
	withDevices := &mock.Platform{
		DevicesResult: []capture.DeviceInfo{{ID: "mic", Name: "Microphone", IsDefault: true}},
	}
	if err := CheckCapture(withDevices).Check(context.Background()); err != nil {
		t.Errorf("check with devices present = %v, want nil", err)
	}

	empty := &mock.Platform{}
	if err := CheckCapture(empty).Check(context.Background()); err == nil {
		t.Error("check with no devices = nil, want error")
	}

	failing := &mock.Platform{DevicesError: errors.New("context not initialised")}
	if err := CheckCapture(failing).Check(context.Background()); err == nil {
		t.Error("check with failing backend = nil, want error")
	}
}

func TestCheckEncoder(t *testing.T) {
	ok := CheckEncoder(func() error { return nil })
	if ok.Name != "encoder" {
		t.Errorf("checker name = %q, want encoder", ok.Name)
	}
	if err := ok.Check(context.Background()); err != nil {
		t.Errorf("passing probe = %v, want nil", err)
	}

	probeErr := errors.New("lame not on PATH")
	if err := CheckEncoder(func() error { return probeErr }).Check(context.Background()); !errors.Is(err, probeErr) {
		t.Errorf("failing probe = %v, want %v", err, probeErr)
	}
}

func TestRegister_RoutesWork(t *testing.T) {
	h := New(
		Checker{Name: "test", Check: func(_ context.Context) error { return nil }},
	)

	mux := http.NewServeMux()
	h.Register(mux)

	tests := []struct {
		path       string
		wantStatus int
	}{
		{"/healthz", http.StatusOK},
		{"/readyz", http.StatusOK},
	}

	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			req := httptest.NewRequest("GET", tc.path, nil)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
		})
	}
}

func TestReadyz_RespectsContextCancellation(t *testing.T) {
	h := New(
		Checker{Name: "slow", Check: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}},
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel immediately

	req := httptest.NewRequest("GET", "/readyz", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.Readyz(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}
