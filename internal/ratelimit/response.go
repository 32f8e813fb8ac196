package ratelimit

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// Header names written on every throttled route.
const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderRetryAfter = "Retry-After"
)

// Headers renders the rate limit headers for res. Retry-After is only present
// when the request was throttled.
func Headers(res Result) http.Header {
	h := make(http.Header, 3)
	h.Set(HeaderLimit, strconv.Itoa(res.Limit))
	h.Set(HeaderRemaining, strconv.Itoa(res.Remaining))
	if !res.Allowed {
		h.Set(HeaderRetryAfter, strconv.Itoa(res.RetryAfter))
	}
	return h
}

// ApplyHeaders copies Headers(res) onto w.
func ApplyHeaders(w http.ResponseWriter, res Result) {
	for k, v := range Headers(res) {
		w.Header()[k] = v
	}
}

// tooManyRequestsBody is the 429 payload shape the storefront script expects.
type tooManyRequestsBody struct {
	Error      string `json:"error"`
	RetryAfter int    `json:"retryAfter"`
}

// WriteTooManyRequests writes a 429 with the rate limit headers and a JSON body.
func WriteTooManyRequests(w http.ResponseWriter, res Result) {
	ApplyHeaders(w, res)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(tooManyRequestsBody{
		Error:      "Too Many Requests",
		RetryAfter: res.RetryAfter,
	})
}
