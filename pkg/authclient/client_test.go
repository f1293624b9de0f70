package authclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"wallet-core/pkg/walleterr"
)

func TestVerifyOtpSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/identity/otp/verify" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["code"] != "123456" {
			t.Fatalf("unexpected code %q", body["code"])
		}
		_ = json.NewEncoder(w).Encode(VerifyResult{
			IsNewUser:    true,
			AuthToken:    "tok-1",
			WalletUserID: "user-1",
		})
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	result, err := c.VerifyOtp(context.Background(), IdentityEmail, "a@example.com", "123456")
	if err != nil {
		t.Fatalf("VerifyOtp: %v", err)
	}
	if !result.IsNewUser || result.AuthToken != "tok-1" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestFetchUserDetailsUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(apiError{Error: "missing token"})
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	_, err := c.FetchUserDetails(context.Background(), "")
	if err == nil {
		t.Fatal("expected an error")
	}
	if kind, ok := walleterr.Of(err); !ok || kind != walleterr.KindUnauthorized {
		t.Fatalf("expected KindUnauthorized, got %v (ok=%v)", kind, ok)
	}
}

func TestStoreAddressAndSharesSendsBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	if err := c.StoreAddressAndShares(context.Background(), "secret-token", "0xabc", "auth-share", "enc-recovery"); err != nil {
		t.Fatalf("StoreAddressAndShares: %v", err)
	}
	if gotAuth != "Bearer secret-token" {
		t.Fatalf("Authorization header = %q", gotAuth)
	}
}
