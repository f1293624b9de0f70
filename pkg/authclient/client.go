// Package authclient is a thin JSON-over-HTTPS adapter for the remote
// identity/share custody service the embedded wallet core depends on. It
// owns no concurrency state of its own; every call is a single request/
// response round trip bound to the caller's context.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"wallet-core/pkg/walleterr"
)

// Client talks to the auth server over plain net/http + encoding/json, the
// pattern already used elsewhere in this dependency chain for small JSON
// protocol clients rather than reaching for a dedicated HTTP client library.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New builds a Client against baseURL (e.g. "https://embedded-wallet.example.com").
// If httpClient is nil, http.DefaultClient is used.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: baseURL, httpClient: httpClient}
}

type apiError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// do performs a JSON request/response round trip, decoding a non-2xx
// response into the matching walleterr.Kind.
func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return walleterr.New("authclient.do", walleterr.KindServerProtocol, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return walleterr.New("authclient.do", walleterr.KindServerProtocol, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return walleterr.New("authclient.do", walleterr.KindServerProtocol, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return walleterr.New("authclient.do", walleterr.KindServerProtocol, err)
	}

	if resp.StatusCode >= 300 {
		var apiErr apiError
		_ = json.Unmarshal(respBody, &apiErr)
		return walleterr.New("authclient.do", statusKind(resp.StatusCode), fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, apiErr.Error))
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return walleterr.New("authclient.do", walleterr.KindServerProtocol, err)
	}
	return nil
}

func statusKind(code int) walleterr.Kind {
	switch code {
	case http.StatusUnauthorized:
		return walleterr.KindUnauthorized
	case http.StatusNotFound:
		return walleterr.KindNotFound
	case http.StatusConflict:
		return walleterr.KindConflict
	default:
		return walleterr.KindServerProtocol
	}
}

// VerifyOtp completes the identity proof for kind/id with the user-entered
// code.
func (c *Client) VerifyOtp(ctx context.Context, kind IdentityKind, id, code string) (*VerifyResult, error) {
	var out VerifyResult
	payload := map[string]string{"kind": string(kind), "id": id, "code": code}
	if err := c.do(ctx, http.MethodPost, "/identity/otp/verify", "", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchUserDetails returns the wallet enrollment status for the bearer of token.
func (c *Client) FetchUserDetails(ctx context.Context, token string) (*UserWallet, error) {
	var out UserWallet
	if err := c.do(ctx, http.MethodGet, "/wallet/user-details", token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StoreAddressAndShares uploads the enrollment shares at CreateAccount time.
func (c *Client) StoreAddressAndShares(ctx context.Context, token, address, authShare, encryptedRecoveryShare string) error {
	payload := map[string]string{
		"address":                address,
		"authShare":              authShare,
		"encryptedRecoveryShare": encryptedRecoveryShare,
	}
	return c.do(ctx, http.MethodPost, "/wallet/shares", token, payload, nil)
}

// FetchAuthAndRecoveryShares is the recovery-path read.
func (c *Client) FetchAuthAndRecoveryShares(ctx context.Context, token string) (authShare, encryptedRecoveryShare string, err error) {
	var out struct {
		AuthShare              string `json:"authShare"`
		EncryptedRecoveryShare string `json:"encryptedRecoveryShare"`
	}
	if err := c.do(ctx, http.MethodGet, "/wallet/shares/recovery", token, nil, &out); err != nil {
		return "", "", err
	}
	return out.AuthShare, out.EncryptedRecoveryShare, nil
}

// FetchAuthShare is the re-login read used when a device share is already
// present locally.
func (c *Client) FetchAuthShare(ctx context.Context, token string) (string, error) {
	var out struct {
		AuthShare string `json:"authShare"`
	}
	if err := c.do(ctx, http.MethodGet, "/wallet/shares/auth", token, nil, &out); err != nil {
		return "", err
	}
	return out.AuthShare, nil
}

// FetchSiwePayload requests a Sign-In-With-Ethereum challenge for address.
func (c *Client) FetchSiwePayload(ctx context.Context, address string) (*SiwePayload, error) {
	var out SiwePayload
	payload := map[string]string{"address": address}
	if err := c.do(ctx, http.MethodPost, "/identity/siwe/payload", "", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifySiwe completes SIWE identity proof with a signed payload.
func (c *Client) VerifySiwe(ctx context.Context, payload SiwePayload, signature string) (*VerifyResult, error) {
	var out VerifyResult
	body := map[string]any{"payload": payload, "signature": signature}
	if err := c.do(ctx, http.MethodPost, "/identity/siwe/verify", "", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
