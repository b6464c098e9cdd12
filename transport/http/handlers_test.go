package http

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/walletauth/adapters/store"
	"github.com/layer-3/walletauth/adapters/tokenizer"
	"github.com/layer-3/walletauth/ports"
	"github.com/layer-3/walletauth/service"
)

const testDomain = "app.example"

type stubOracle struct{}

func (stubOracle) HasCode(ctx context.Context, addr common.Address) (bool, error) {
	return false, nil
}

func (stubOracle) IsValidSignature(ctx context.Context, addr common.Address, variant ports.ABIVariant, data, sig []byte, predeploy *ports.Predeploy) ([]byte, error) {
	return nil, nil
}

func newTestRouter(t *testing.T) (*gin.Engine, *service.AuthService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	signKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	mem := store.NewMemoryStore()
	svc := service.NewAuthService(
		service.Config{
			Domain:          testDomain,
			ChainID:         1,
			NonceTTL:        10 * time.Minute,
			FreshnessWindow: 10 * time.Minute,
		},
		mem, mem, mem,
		store.NewMemoryRevocationStore(),
		tokenizer.NewJWTTokenizer(signKey),
		stubOracle{},
		nil,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	return SetupRouter(svc), svc
}

func postJSON(router *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

// signedLoginBody fetches a nonce from the running router and returns a login
// request signed by a fresh key-pair wallet.
func signedLoginBody(t *testing.T, router *gin.Engine) map[string]any {
	t.Helper()

	w := postJSON(router, "/auth/nonce", nil)
	require.Equal(t, http.StatusOK, w.Code)
	nonce, _ := decodeBody(t, w)["nonce"].(string)
	require.NotEmpty(t, nonce)

	msg, err := json.Marshal(map[string]any{
		"domain":   testDomain,
		"nonce":    nonce,
		"issuedAt": time.Now().UTC().Format(time.RFC3339),
		"chainId":  1,
	})
	require.NoError(t, err)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey)

	digest := crypto.Keccak256Hash([]byte("\x19Ethereum Signed Message:\n" + strconv.Itoa(len(msg)) + string(msg)))
	sig, err := crypto.Sign(digest.Bytes(), key)
	require.NoError(t, err)
	sig[64] += 27

	return map[string]any{
		"message":       string(msg),
		"signature":     hexutil.Encode(sig),
		"walletAddress": addr.Hex(),
		"chainId":       1,
	}
}

func TestNonceEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	w := postJSON(router, "/auth/nonce", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.NotEmpty(t, body["nonce"])
	assert.Equal(t, testDomain, body["domain"])

	for _, field := range []string{"issued_at", "expires_at"} {
		raw, _ := body[field].(string)
		_, err := time.Parse(time.RFC3339, raw)
		assert.NoError(t, err, field)
	}
}

func TestNonceEndpointValuesAreUnique(t *testing.T) {
	router, _ := newTestRouter(t)

	first := decodeBody(t, postJSON(router, "/auth/nonce", nil))["nonce"]
	second := decodeBody(t, postJSON(router, "/auth/nonce", nil))["nonce"]
	assert.NotEqual(t, first, second)
}

func TestLoginHappyPath(t *testing.T) {
	router, svc := newTestRouter(t)

	body := signedLoginBody(t, router)
	w := postJSON(router, "/auth/login", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decodeBody(t, w)
	assert.NotEmpty(t, resp["access_token"])
	assert.NotEmpty(t, resp["refresh_token"])
	assert.Equal(t, "Bearer", resp["token_type"])

	identity, ok := resp["identity"].(map[string]any)
	require.True(t, ok)
	addr, _ := body["walletAddress"].(string)
	assert.Equal(t, strings.ToLower(addr), identity["address"])
	assert.NotEmpty(t, identity["id"])

	var cookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == SessionCookie {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)
	assert.Equal(t, resp["access_token"], cookie.Value)

	// The cookie age and expires_in both come from the service's token TTL.
	wantTTL := int(svc.AccessTTL().Seconds())
	assert.EqualValues(t, wantTTL, resp["expires_in"])
	assert.Equal(t, wantTTL, cookie.MaxAge)
}

func TestLoginMissingFields(t *testing.T) {
	router, _ := newTestRouter(t)

	w := postJSON(router, "/auth/login", map[string]any{"message": "{}"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLoginUnknownNonceIsUnauthorized(t *testing.T) {
	router, _ := newTestRouter(t)

	body := signedLoginBody(t, router)

	// Swap the signed message for one carrying a nonce that was never
	// issued; the signature stays well-formed.
	msg, err := json.Marshal(map[string]any{
		"domain":   testDomain,
		"nonce":    "never-issued",
		"issuedAt": time.Now().UTC().Format(time.RFC3339),
		"chainId":  1,
	})
	require.NoError(t, err)
	body["message"] = string(msg)

	w := postJSON(router, "/auth/login", body)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid or expired challenge", decodeBody(t, w)["error"])
}

func TestLoginReplayIsUnauthorized(t *testing.T) {
	router, _ := newTestRouter(t)

	body := signedLoginBody(t, router)
	require.Equal(t, http.StatusOK, postJSON(router, "/auth/login", body).Code)

	w := postJSON(router, "/auth/login", body)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	// The response never distinguishes replay from unknown or expired.
	assert.Equal(t, "Invalid or expired challenge", decodeBody(t, w)["error"])
}

func TestLoginMalformedMessageIsBadRequest(t *testing.T) {
	router, _ := newTestRouter(t)

	body := signedLoginBody(t, router)
	body["message"] = "not json at all"

	w := postJSON(router, "/auth/login", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRefreshAndLogoutFlow(t *testing.T) {
	router, _ := newTestRouter(t)

	login := decodeBody(t, postJSON(router, "/auth/login", signedLoginBody(t, router)))
	refreshToken, _ := login["refresh_token"].(string)
	require.NotEmpty(t, refreshToken)

	w := postJSON(router, "/auth/refresh", map[string]any{"refresh_token": refreshToken})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	rotated := decodeBody(t, w)
	assert.NotEmpty(t, rotated["access_token"])
	assert.NotEqual(t, refreshToken, rotated["refresh_token"])

	// The rotated-out token is dead.
	w = postJSON(router, "/auth/refresh", map[string]any{"refresh_token": refreshToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	newRefresh, _ := rotated["refresh_token"].(string)
	w = postJSON(router, "/auth/logout", map[string]any{"refresh_token": newRefresh})
	require.Equal(t, http.StatusOK, w.Code)

	w = postJSON(router, "/auth/refresh", map[string]any{"refresh_token": newRefresh})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestProtectedRoutes(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	login := decodeBody(t, postJSON(router, "/auth/login", signedLoginBody(t, router)))
	access, _ := login["access_token"].(string)
	require.NotEmpty(t, access)

	req = httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	identity, _ := login["identity"].(map[string]any)
	assert.Equal(t, identity["address"], body["address"])
	assert.Equal(t, identity["id"], body["identity_id"])
}
