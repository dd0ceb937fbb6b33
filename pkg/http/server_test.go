package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	applogger "QuantDesk/pkg/logger"

	"github.com/labstack/echo/v4"
)

type sampleRequest struct {
	Symbol   string  `json:"symbol" validate:"required"`
	Capital  float64 `json:"capital" default:"10000" validate:"gt=0"`
	Strategy string  `json:"strategy" default:"combined" validate:"oneof=rsi macd sma combined smc"`
}

type sampleHandler struct{}

func (sampleHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/missing", func(c echo.Context) error {
		return NotFoundErrorf("no agent for %s", "BTCUSDT")
	})
	e.GET("/boom", func(c echo.Context) error {
		panic("boom")
	})
	e.POST("/run", func(c echo.Context) error {
		var req sampleRequest
		if errs := ReadAndValidateRequest(c, &req); errs != nil {
			return BadRequestResponse(c, errs)
		}
		return SuccessResponse(c, req)
	})
}

func serve(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()
	s := NewServer(sampleHandler{}, applogger.Nop(), WithMetricsPath("/metrics"))
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)

	var resp APIResponse
	if strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode %s: %v", rec.Body.String(), err)
		}
	}
	return rec, resp
}

func TestServerErrorMapping(t *testing.T) {
	tests := []struct {
		method, path, body string
		status             int
	}{
		{http.MethodGet, "/healthz", "", http.StatusOK},
		{http.MethodGet, "/missing", "", http.StatusNotFound},
		{http.MethodGet, "/nowhere", "", http.StatusNotFound},
		{http.MethodGet, "/boom", "", http.StatusInternalServerError},
		{http.MethodPost, "/run", `{"capital": -1, "symbol": "X"}`, http.StatusBadRequest},
		{http.MethodPost, "/run", `{"symbol": "X", "strategy": "momentum"}`, http.StatusBadRequest},
		{http.MethodPost, "/run", `{not json`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		rec, _ := serve(t, tt.method, tt.path, tt.body)
		if rec.Code != tt.status {
			t.Fatalf("%s %s: status %d, want %d (%s)", tt.method, tt.path, rec.Code, tt.status, rec.Body.String())
		}
	}
}

func TestHealthzUsesEnvelope(t *testing.T) {
	rec, resp := serve(t, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK || resp.Status != http.StatusOK {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
	data, ok := resp.Data.(map[string]interface{})
	if !ok || data["state"] != "ok" {
		t.Fatalf("unexpected healthz body %s", rec.Body.String())
	}
}

func TestReadAndValidateRequestAppliesDefaults(t *testing.T) {
	rec, resp := serve(t, http.MethodPost, "/run", `{"symbol": "ETHUSDT"}`)
	if rec.Code != http.StatusOK || resp.Status != http.StatusOK {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
	data := resp.Data.(map[string]interface{})
	if data["capital"] != 10000.0 || data["strategy"] != "combined" {
		t.Fatalf("defaults not applied: %v", data)
	}
}

func TestValidationErrorsUseJSONNames(t *testing.T) {
	rec, _ := serve(t, http.MethodPost, "/run", `{"capital": 5}`)
	var body struct {
		Data []ValidationError `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Data) != 1 || body.Data[0].Field != "symbol" || body.Data[0].Code != "ERR_REQUIRED" {
		t.Fatalf("unexpected errors %+v", body.Data)
	}
}
