package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"dealbadge/internal/core"
	"dealbadge/internal/types"
)

const testShop = "demo.myshopify.com"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// shopRequest builds a request with the shop already resolved, as the core
// middleware would leave it.
func shopRequest(method, target, body string) *http.Request {
	var rdr io.Reader
	if body != "" {
		rdr = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, target, rdr)
	return req.WithContext(types.WithShopDomain(req.Context(), testShop))
}

func decodeResponse[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), "body: %s", rec.Body.String())
	return out
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) types.ErrorCode {
	t.Helper()
	return types.ErrorCode(decodeResponse[core.APIErrorResponse](t, rec).Error.Code)
}
