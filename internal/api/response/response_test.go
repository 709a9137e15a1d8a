package response_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kiranshivaraju/skybid/internal/api/response"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]json.RawMessage {
	t.Helper()
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestSuccessEnvelopes(t *testing.T) {
	tests := []struct {
		name   string
		write  func(http.ResponseWriter, any)
		status int
	}{
		{"json", response.JSON, http.StatusOK},
		{"created", response.Created, http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w, map[string]string{"status": "open"})

			assert.Equal(t, tt.status, w.Code)
			body := decode(t, w)
			assert.JSONEq(t, `{"status":"open"}`, string(body["data"]))
			assert.NotContains(t, body, "error")
		})
	}
}

func TestJSON_MoneyIsString(t *testing.T) {
	w := httptest.NewRecorder()
	response.JSON(w, map[string]decimal.Decimal{
		"pilot_payout": decimal.RequireFromString("360.00"),
		"platform_fee": decimal.RequireFromString("120.50"),
	})

	var data map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(decode(t, w)["data"], &data))
	assert.Equal(t, `"360"`, string(data["pilot_payout"]))
	assert.Equal(t, `"120.5"`, string(data["platform_fee"]))
}

func TestError(t *testing.T) {
	w := httptest.NewRecorder()
	response.Error(w, http.StatusUnprocessableEntity, "BID_TOO_LOW", "bid is below the minimum", map[string]string{
		"min_bid": "10.00",
	})

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	body := decode(t, w)
	assert.NotContains(t, body, "data")
	assert.JSONEq(t,
		`{"code":"BID_TOO_LOW","message":"bid is below the minimum","details":{"min_bid":"10.00"}}`,
		string(body["error"]))
}

func TestError_OmitsEmptyDetails(t *testing.T) {
	w := httptest.NewRecorder()
	response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND", "job not found", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"code":"JOB_NOT_FOUND","message":"job not found"}`, string(decode(t, w)["error"]))
}
