package auth

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/geoagro/ndvi-ingester/service"
	"github.com/onsi/gomega"
)

func newAuthServer(t *testing.T, expiresIn int, calls *int) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		if err := r.ParseForm(); err != nil {
			t.Error(err)
		}
		if r.Form.Get("grant_type") != "password" || r.Form.Get("client_id") != DefaultClientID {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if r.Form.Get("password") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"error":"invalid_grant","error_description":"Invalid user credentials"}`)
			return
		}
		fmt.Fprintf(w, `{"access_token":"token%d","expires_in":%d,"token_type":"Bearer"}`, *calls, expiresIn)
	}))
}

func TestToken(t *testing.T) {
	g := gomega.NewWithT(t)

	calls := 0
	srv := newAuthServer(t, 600, &calls)
	defer srv.Close()

	tm := NewTokenManager("user", "secret")
	tm.TokenURL = srv.URL

	token, err := tm.Token()
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(token.AccessToken).To(gomega.Equal("token1"))

	// Still valid: no new authentication
	token, err = tm.Token()
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(token.AccessToken).To(gomega.Equal("token1"))
	g.Expect(calls).To(gomega.Equal(1))
}

func TestTokenRefresh(t *testing.T) {
	g := gomega.NewWithT(t)

	calls := 0
	// Tokens expire within the refresh margin, so every call re-authenticates
	srv := newAuthServer(t, 10, &calls)
	defer srv.Close()

	tm := NewTokenManager("user", "secret")
	tm.TokenURL = srv.URL

	token, err := tm.Token()
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(token.AccessToken).To(gomega.Equal("token1"))

	token, err = tm.Token()
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(token.AccessToken).To(gomega.Equal("token2"))
	g.Expect(calls).To(gomega.Equal(2))
}

func TestTokenUnauthorized(t *testing.T) {
	g := gomega.NewWithT(t)

	calls := 0
	srv := newAuthServer(t, 600, &calls)
	defer srv.Close()

	tm := NewTokenManager("user", "wrong")
	tm.TokenURL = srv.URL

	_, err := tm.Token()
	g.Expect(err).To(gomega.HaveOccurred())
	g.Expect(service.Fatal(err)).To(gomega.BeTrue())
	g.Expect(service.Temporary(err)).To(gomega.BeFalse())
	// The identity server's diagnostic must reach the caller
	g.Expect(err.Error()).To(gomega.ContainSubstring("Invalid user credentials"))
}
