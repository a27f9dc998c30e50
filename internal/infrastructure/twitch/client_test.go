package twitch

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flozac77/StreamZilla/internal/domain/repository"
)

func newTestConfig() Config {
	return Config{
		ClientID:                "test_client_id",
		ClientSecret:            "test_client_secret",
		RedirectURI:             "http://localhost:8000/api/auth/callback",
		Scopes:                  []string{"user:read:email"},
		RequestTimeout:          2 * time.Second,
		MaxAttempts:             3,
		RateLimitBackoff:        time.Millisecond,
		BreakerFailureThreshold: 5,
		BreakerResetTimeout:     time.Minute,
		BreakerSuccessThreshold: 2,
	}
}

// redirectTransport sends every request to target, keeping path and query.
type redirectTransport struct {
	target *url.URL
	next   http.RoundTripper
}

func (rt redirectTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.URL.Scheme = rt.target.Scheme
	r.URL.Host = rt.target.Host
	r.Host = ""
	return rt.next.RoundTrip(r)
}

func newTestTransport(t *testing.T, handler http.Handler) *Transport {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	target, err := url.Parse(srv.URL)
	require.NoError(t, err)
	httpClient := &http.Client{Transport: redirectTransport{target: target, next: srv.Client().Transport}}
	return NewTransport(newTestConfig(), httpClient, clockwork.NewRealClock())
}

func newTestClients(t *testing.T, handler http.Handler, tokens TokenSource) (*OAuthClient, *HelixClient) {
	t.Helper()
	tr := newTestTransport(t, handler)
	cfg := newTestConfig()
	return NewOAuthClient(cfg, tr), NewHelixClient(cfg, tr, tokens)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// requestParams merges the query string with a form or JSON body.
func requestParams(r *http.Request) url.Values {
	vals := r.URL.Query()
	body, _ := io.ReadAll(r.Body)
	if len(body) == 0 {
		return vals
	}

	var m map[string]any
	if json.Unmarshal(body, &m) == nil {
		for k, v := range m {
			if s, ok := v.(string); ok {
				vals.Set(k, s)
			}
		}
		return vals
	}
	if form, err := url.ParseQuery(string(body)); err == nil {
		for k := range form {
			vals.Set(k, form.Get(k))
		}
	}
	return vals
}

type fakeTokens struct {
	mu          sync.Mutex
	tokens      []string
	err         error
	invalidated []string
}

func (f *fakeTokens) AccessToken(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return f.tokens[0], nil
}

func (f *fakeTokens) InvalidateAccessToken(_ context.Context, token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, token)
	if len(f.tokens) > 1 {
		f.tokens = f.tokens[1:]
	}
}

func TestOAuthClient_RequestAppToken(t *testing.T) {
	oauth, _ := newTestClients(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/oauth2/token", r.URL.Path)
		params := requestParams(r)
		assert.Equal(t, "test_client_id", params.Get("client_id"))
		assert.Equal(t, "test_client_secret", params.Get("client_secret"))
		assert.Equal(t, "client_credentials", params.Get("grant_type"))

		writeJSON(w, http.StatusOK, map[string]any{
			"access_token": "app-token-1",
			"expires_in":   5011271,
			"token_type":   "Bearer",
		})
	}), nil)

	tok, err := oauth.RequestAppToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "app-token-1", tok.AccessToken)
	assert.Equal(t, 5011271*time.Second, tok.ExpiresIn)
	assert.Equal(t, "bearer", tok.TokenType)
}

func TestOAuthClient_RequestAppToken_RetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	oauth, _ := newTestClients(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			writeJSON(w, http.StatusTooManyRequests, map[string]any{"message": "slow down"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"access_token": "tok", "expires_in": 3600, "token_type": "bearer"})
	}), nil)

	tok, err := oauth.RequestAppToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok", tok.AccessToken)
	assert.Equal(t, int32(2), calls.Load())
}

func TestOAuthClient_RequestAppToken_RateLimitExhausted(t *testing.T) {
	var calls atomic.Int32
	oauth, _ := newTestClients(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusTooManyRequests, map[string]any{"message": "slow down"})
	}), nil)

	_, err := oauth.RequestAppToken(context.Background())
	require.Error(t, err)

	ue, ok := repository.AsUpstreamError(err)
	require.True(t, ok, "expected *UpstreamError, got %T", err)
	assert.True(t, ue.IsRateLimited())
	assert.Equal(t, int32(3), calls.Load())
}

func TestOAuthClient_RequestAppToken_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	oauth, _ := newTestClients(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusBadRequest, map[string]any{"status": 400, "message": "invalid client secret"})
	}), nil)

	_, err := oauth.RequestAppToken(context.Background())
	require.Error(t, err)

	ue, ok := repository.AsUpstreamError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, ue.StatusCode)
	assert.Equal(t, "invalid client secret", ue.Message)
	assert.Equal(t, int32(1), calls.Load())
}

func TestOAuthClient_ValidateToken(t *testing.T) {
	var calls atomic.Int32
	oauth, _ := newTestClients(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/oauth2/validate", r.URL.Path)
		if calls.Add(1) == 1 {
			writeJSON(w, http.StatusOK, map[string]any{"client_id": "test_client_id", "expires_in": 3600})
			return
		}
		writeJSON(w, http.StatusUnauthorized, map[string]any{"status": 401, "message": "invalid access token"})
	}), nil)

	assert.NoError(t, oauth.ValidateToken(context.Background(), "good-token"))

	err := oauth.ValidateToken(context.Background(), "revoked-token")
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))
}

func TestOAuthClient_AuthorizeURL(t *testing.T) {
	oauth := NewOAuthClient(newTestConfig(), nil)

	raw := oauth.AuthorizeURL("state-123")
	u, err := url.Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, "id.twitch.tv", u.Host)
	assert.Equal(t, "/oauth2/authorize", u.Path)
	q := u.Query()
	assert.Equal(t, "test_client_id", q.Get("client_id"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "state-123", q.Get("state"))
	assert.Contains(t, q.Get("scope"), "user:read:email")
}

func TestOAuthClient_ExchangeCode(t *testing.T) {
	oauth, _ := newTestClients(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/oauth2/token", r.URL.Path)
		params := requestParams(r)
		assert.Equal(t, "authorization_code", params.Get("grant_type"))
		assert.Equal(t, "the-code", params.Get("code"))
		assert.Equal(t, "http://localhost:8000/api/auth/callback", params.Get("redirect_uri"))

		writeJSON(w, http.StatusOK, map[string]any{
			"access_token":  "user-token",
			"refresh_token": "refresh",
			"expires_in":    14400,
			"scope":         []string{"user:read:email"},
			"token_type":    "bearer",
		})
	}), nil)

	tok, err := oauth.ExchangeCode(context.Background(), "the-code")
	require.NoError(t, err)
	assert.Equal(t, "user-token", tok.AccessToken)
	assert.Equal(t, "refresh", tok.RefreshToken)
	assert.Equal(t, 14400, tok.ExpiresIn)
	assert.Equal(t, []string{"user:read:email"}, tok.Scope)
}

func TestOAuthClient_GetUser(t *testing.T) {
	oauth, _ := newTestClients(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/helix/users", r.URL.Path)
		assert.Equal(t, "test_client_id", r.Header.Get("Client-Id"))
		if r.Header.Get("Authorization") != "Bearer user-token" {
			writeJSON(w, http.StatusOK, map[string]any{"data": []any{}})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": []map[string]any{{
			"id":                "141981764",
			"login":             "twitchdev",
			"display_name":      "TwitchDev",
			"profile_image_url": "https://static-cdn.jtvnw.net/p.png",
			"email":             "dev@example.com",
		}}})
	}), nil)

	user, err := oauth.GetUser(context.Background(), "user-token")
	require.NoError(t, err)
	assert.Equal(t, "141981764", user.ID)
	assert.Equal(t, "twitchdev", user.Login)
	assert.Equal(t, "TwitchDev", user.DisplayName)

	_, err = oauth.GetUser(context.Background(), "other-token")
	assert.ErrorIs(t, err, repository.ErrUserNotFound)
}

func TestOAuthClient_GetUserVideos(t *testing.T) {
	oauth, _ := newTestClients(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/helix/videos", r.URL.Path)
		assert.Equal(t, "141981764", r.URL.Query().Get("user_id"))
		assert.Equal(t, "archive", r.URL.Query().Get("type"))
		assert.Equal(t, "5", r.URL.Query().Get("first"))
		assert.Equal(t, "Bearer user-token", r.Header.Get("Authorization"))

		writeJSON(w, http.StatusOK, map[string]any{"data": []map[string]any{{
			"id":         "v9",
			"user_name":  "TwitchDev",
			"title":      "last stream",
			"created_at": "2024-03-24T10:00:00Z",
			"url":        "https://www.twitch.tv/videos/v9",
			"view_count": 7,
			"duration":   "1h0m0s",
		}}})
	}), nil)

	videos, err := oauth.GetUserVideos(context.Background(), "user-token", "141981764", 5)
	require.NoError(t, err)
	require.Len(t, videos, 1)
	assert.Equal(t, "v9", videos[0].ID)
	assert.Equal(t, 7, videos[0].Views())
	assert.Equal(t, time.Date(2024, 3, 24, 10, 0, 0, 0, time.UTC), videos[0].CreatedAt.UTC())
}

func TestOAuthClient_GetUserVideos_Unauthorized(t *testing.T) {
	oauth, _ := newTestClients(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"status": 401, "message": "invalid oauth token"})
	}), nil)

	_, err := oauth.GetUserVideos(context.Background(), "revoked", "141981764", 5)
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))
}

func TestHelixClient_SearchCategories(t *testing.T) {
	tokens := &fakeTokens{tokens: []string{"app-token"}}
	_, helix := newTestClients(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/helix/search/categories", r.URL.Path)
		assert.Equal(t, "Minecraft", r.URL.Query().Get("query"))
		assert.Equal(t, "1", r.URL.Query().Get("first"))
		assert.Equal(t, "test_client_id", r.Header.Get("Client-Id"))
		assert.Equal(t, "Bearer app-token", r.Header.Get("Authorization"))

		writeJSON(w, http.StatusOK, map[string]any{"data": []map[string]any{
			{"id": "27471", "name": "Minecraft", "box_art_url": "https://static-cdn.jtvnw.net/mc.jpg"},
		}})
	}), tokens)

	games, err := helix.SearchCategories(context.Background(), "Minecraft", 1)
	require.NoError(t, err)
	require.Len(t, games, 1)
	assert.Equal(t, "27471", games[0].ID)
	assert.Equal(t, "Minecraft", games[0].Name)
}

func TestHelixClient_GetStreams(t *testing.T) {
	tokens := &fakeTokens{tokens: []string{"app-token"}}
	_, helix := newTestClients(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/helix/streams", r.URL.Path)
		assert.Equal(t, "27471", r.URL.Query().Get("game_id"))
		assert.Equal(t, "50", r.URL.Query().Get("first"))
		assert.Equal(t, "cur-1", r.URL.Query().Get("after"))

		writeJSON(w, http.StatusOK, map[string]any{
			"data": []map[string]any{{
				"id":            "s1",
				"user_login":    "streamer",
				"user_name":     "Streamer",
				"game_id":       "27471",
				"game_name":     "Minecraft",
				"title":         "building",
				"viewer_count":  1234,
				"started_at":    "2024-03-25T10:00:00Z",
				"language":      "en",
				"thumbnail_url": "https://static-cdn.jtvnw.net/{width}x{height}.jpg",
			}},
			"pagination": map[string]any{"cursor": "cur-2"},
		})
	}), tokens)

	page, err := helix.GetStreams(context.Background(), repository.VideoQuery{GameID: "27471", First: 50, After: "cur-1"})
	require.NoError(t, err)
	require.Len(t, page.Videos, 1)
	assert.Equal(t, "cur-2", page.Cursor)

	v := page.Videos[0]
	assert.Equal(t, "s1", v.ID)
	assert.True(t, v.IsLive())
	assert.Equal(t, "live", v.Duration)
	assert.Equal(t, "https://www.twitch.tv/streamer", v.URL)
	assert.Equal(t, 1234, v.Views())
	assert.Equal(t, time.Date(2024, 3, 25, 10, 0, 0, 0, time.UTC), v.CreatedAt.UTC())
	assert.Equal(t, "Minecraft", v.GameName)
}

func TestHelixClient_GetArchives(t *testing.T) {
	tokens := &fakeTokens{tokens: []string{"app-token"}}
	_, helix := newTestClients(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/helix/videos", r.URL.Path)
		assert.Equal(t, "archive", r.URL.Query().Get("type"))
		assert.Equal(t, "27471", r.URL.Query().Get("game_id"))
		assert.Empty(t, r.URL.Query().Get("after"))

		writeJSON(w, http.StatusOK, map[string]any{
			"data": []map[string]any{{
				"id":            "v1",
				"user_name":     "Streamer",
				"title":         "yesterday",
				"created_at":    "2024-03-24T10:00:00Z",
				"url":           "https://www.twitch.tv/videos/v1",
				"thumbnail_url": "https://static-cdn.jtvnw.net/v1.jpg",
				"view_count":    99,
				"language":      "en",
				"duration":      "3h2m1s",
			}},
			"pagination": map[string]any{},
		})
	}), tokens)

	page, err := helix.GetArchives(context.Background(), repository.VideoQuery{GameID: "27471", First: 3})
	require.NoError(t, err)
	require.Len(t, page.Videos, 1)
	assert.Empty(t, page.Cursor)

	v := page.Videos[0]
	assert.False(t, v.IsLive())
	assert.Equal(t, "3h2m1s", v.Duration)
	assert.Equal(t, "https://www.twitch.tv/videos/v1", v.URL)
	assert.Equal(t, "27471", v.GameID)
	assert.Equal(t, 99, v.Views())
}

func TestHelixClient_RetriesOnceAfterUnauthorized(t *testing.T) {
	tokens := &fakeTokens{tokens: []string{"stale-token", "fresh-token"}}
	var calls atomic.Int32
	_, helix := newTestClients(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get("Authorization") != "Bearer fresh-token" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "invalid oauth token"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": []any{}})
	}), tokens)

	games, err := helix.SearchCategories(context.Background(), "Fortnite", 1)
	require.NoError(t, err)
	assert.Empty(t, games)
	assert.Equal(t, []string{"stale-token"}, tokens.invalidated)
	assert.Equal(t, int32(2), calls.Load())
}

func TestHelixClient_UnauthorizedTwiceFails(t *testing.T) {
	tokens := &fakeTokens{tokens: []string{"stale-token"}}
	_, helix := newTestClients(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "invalid oauth token"})
	}), tokens)

	_, err := helix.SearchCategories(context.Background(), "Fortnite", 1)
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))
	assert.Len(t, tokens.invalidated, 1)
}

func TestHelixClient_TokenSourceErrorPropagates(t *testing.T) {
	tokenErr := errors.New("no token for you")
	tokens := &fakeTokens{err: tokenErr}
	_, helix := newTestClients(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("upstream should not be called without a token")
	}), tokens)

	_, err := helix.GetStreams(context.Background(), repository.VideoQuery{GameID: "1", First: 1})
	assert.ErrorIs(t, err, tokenErr)
}

func doGet(t *testing.T, tr *Transport, path string) (*http.Response, error) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, "https://api.twitch.tv"+path, nil)
	require.NoError(t, err)
	resp, err := tr.Do(req)
	if resp != nil {
		t.Cleanup(func() { _ = resp.Body.Close() })
	}
	return resp, err
}

func TestTransport_RetriesRateLimitThenReturnsLastAnswer(t *testing.T) {
	var calls atomic.Int32
	tr := newTestTransport(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusTooManyRequests, map[string]any{"message": "slow down"})
	}))

	resp, err := doGet(t, tr, "/helix/streams")
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "slow down")
	assert.Equal(t, int32(3), calls.Load())
}

func TestTransport_ServerErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	tr := newTestTransport(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusBadGateway, map[string]any{"message": "bad gateway"})
	}))

	resp, err := doGet(t, tr, "/helix/streams")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestTransport_CircuitBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var calls atomic.Int32
	tr := newTestTransport(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"message": "boom"})
	}))

	for i := 0; i < 5; i++ {
		resp, err := doGet(t, tr, "/oauth2/validate")
		require.NoError(t, err)
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	}

	_, err := doGet(t, tr, "/oauth2/validate")
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(5), calls.Load())
	assert.Equal(t, gobreaker.StateOpen, tr.BreakerState())
}

func TestTransport_ClientErrorsDoNotTripBreaker(t *testing.T) {
	tr := newTestTransport(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "nope"})
	}))

	for i := 0; i < 10; i++ {
		resp, err := doGet(t, tr, "/oauth2/validate")
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
	assert.Equal(t, gobreaker.StateClosed, tr.BreakerState())
}

func TestTransport_UpstreamErrorsSurfaceThroughClients(t *testing.T) {
	oauth, _ := newTestClients(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": 503, "message": "maintenance"})
	}), nil)

	err := oauth.ValidateToken(context.Background(), "tok")
	ue, ok := repository.AsUpstreamError(err)
	require.True(t, ok, "expected *UpstreamError, got %T", err)
	assert.Equal(t, http.StatusServiceUnavailable, ue.StatusCode)
}

func TestEndpointLabel(t *testing.T) {
	tests := map[string]string{
		"/oauth2/token":            EndpointToken,
		"/oauth2/validate":         EndpointValidate,
		"/helix/search/categories": EndpointSearchCategories,
		"/helix/streams":           EndpointStreams,
		"/helix/videos":            EndpointVideos,
		"/helix/users":             EndpointUsers,
		"/helix/games":             "other",
	}
	for path, want := range tests {
		assert.Equal(t, want, endpointLabel(path), path)
	}
}

func TestRateLimitDelay(t *testing.T) {
	now := time.Date(2024, 3, 25, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		header http.Header
		want   time.Duration
	}{
		{"no headers", http.Header{}, 0},
		{"retry-after seconds", http.Header{"Retry-After": {"5"}}, 5 * time.Second},
		{"retry-after capped", http.Header{"Retry-After": {"120"}}, 30 * time.Second},
		{"retry-after negative", http.Header{"Retry-After": {"-3"}}, 0},
		{"retry-after http date", http.Header{"Retry-After": {now.Add(10 * time.Second).Format(http.TimeFormat)}}, 10 * time.Second},
		{"ratelimit-reset", http.Header{"Ratelimit-Reset": {strconv.FormatInt(now.Add(3*time.Second).Unix(), 10)}}, 3 * time.Second},
		{"ratelimit-reset in the past", http.Header{"Ratelimit-Reset": {strconv.FormatInt(now.Add(-time.Minute).Unix(), 10)}}, 0},
		{"garbage", http.Header{"Retry-After": {"soon"}}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RateLimitDelay(tt.header, now))
		})
	}
}
