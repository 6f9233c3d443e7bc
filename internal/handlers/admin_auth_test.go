package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRequireAdmin(t *testing.T) {
	cases := []struct {
		name       string
		configured string
		header     string
		want       int
	}{
		{"correct password", "s3cret", "s3cret", http.StatusOK},
		{"wrong password", "s3cret", "s3cres", http.StatusUnauthorized},
		{"missing header", "s3cret", "", http.StatusUnauthorized},
		{"prefix only", "s3cret", "s3c", http.StatusUnauthorized},
		{"empty configured password", "", "", http.StatusUnauthorized},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			calls := 0
			next := func(w http.ResponseWriter, r *http.Request) {
				calls++
				w.WriteHeader(http.StatusOK)
			}

			req := httptest.NewRequest(http.MethodGet, "/admin/codes", nil)
			if tc.header != "" {
				req.Header.Set(AdminPasswordHeader, tc.header)
			}
			rr := httptest.NewRecorder()
			RequireAdmin(tc.configured, newTestLogger(), next)(rr, req)

			if rr.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rr.Code)
			}
			if (tc.want == http.StatusOK) != (calls == 1) {
				t.Fatalf("unexpected next calls: %d", calls)
			}
		})
	}
}
