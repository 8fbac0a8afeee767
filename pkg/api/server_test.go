package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"github.com/cuemby/hazardfeed/pkg/auth"
	"github.com/cuemby/hazardfeed/pkg/content"
	"github.com/cuemby/hazardfeed/pkg/events"
	"github.com/cuemby/hazardfeed/pkg/ingest"
	"github.com/cuemby/hazardfeed/pkg/storage"
	"github.com/cuemby/hazardfeed/pkg/types"
	"github.com/cuemby/hazardfeed/pkg/zones"
)

const mediaURL = "http://media.test"

type testEnv struct {
	ts     *httptest.Server
	store  *storage.BoltStore
	broker *events.Broker
	tokens *auth.Tokens
	media  *content.LocalStore
}

type envOption func(*Deps, *Options)

func withSource(src zones.Source) envOption {
	return func(d *Deps, _ *Options) {
		d.Refresher = zones.NewRefresher(src, d.Store, d.Broker)
	}
}

func withRateLimit(rps float64, burst int) envOption {
	return func(_ *Deps, o *Options) {
		o.RateLimitRPS = rps
		o.RateLimitBurst = burst
	}
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	media, err := content.NewLocalStore(t.TempDir(), mediaURL)
	require.NoError(t, err)

	broker := events.NewBroker(events.Config{})
	t.Cleanup(broker.Stop)

	tokens := auth.NewTokens("test-secret", time.Hour, clockwork.NewRealClock())

	deps := Deps{
		Store:     store,
		Content:   media,
		Ingest:    ingest.NewService(store, media, tokens, broker),
		Refresher: zones.NewRefresher(zones.StaticSource{}, store, broker),
		Accounts:  auth.NewService(store, tokens, nil),
		Verifier:  tokens,
		Broker:    broker,
	}
	options := Options{
		CORSOrigin: "http://localhost:3000",
		MediaDir:   media.Dir(),
	}
	for _, opt := range opts {
		opt(&deps, &options)
	}

	ts := httptest.NewServer(NewServer(deps, options).Handler())
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, store: store, broker: broker, tokens: tokens, media: media}
}

func (e *testEnv) token(t *testing.T, id string, role types.Role) string {
	t.Helper()
	token, _, err := e.tokens.Issue(&types.User{ID: id, Role: role})
	require.NoError(t, err)
	return token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()

	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, rd)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func assertNoEvent(t *testing.T, sub *events.Subscription) {
	t.Helper()
	select {
	case ev := <-sub.C:
		t.Fatalf("unexpected %s event", ev.Type)
	default:
	}
}

func receive(t *testing.T, sub *events.Subscription) *events.Event {
	t.Helper()
	select {
	case ev := <-sub.C:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
		return nil
	}
}

func TestCreatePostBroadcastsStoredRecord(t *testing.T) {
	env := newTestEnv(t)

	wsURL := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/api/events"
	ws, err := websocket.Dial(wsURL, "", env.ts.URL)
	require.NoError(t, err)
	defer ws.Close()

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var hello events.Event
	require.NoError(t, websocket.JSON.Receive(ws, &hello))
	assert.Equal(t, events.EventSubscribed, hello.Type)
	assert.Equal(t, 1, env.broker.SubscriberCount())

	resp := env.do(t, http.MethodPost, "/api/posts", "", map[string]any{
		"content":  "Water rising near Juhu beach",
		"location": "Mumbai",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"files":[]`)

	var created types.Post
	require.NoError(t, json.Unmarshal(raw, &created))
	assert.NotEmpty(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())
	assert.Equal(t, "/api/posts/"+created.ID, resp.Header.Get("Location"))

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev events.Event
	require.NoError(t, websocket.JSON.Receive(ws, &ev))
	assert.Equal(t, events.EventNewPost, ev.Type)

	broadcast, err := ev.Post()
	require.NoError(t, err)
	assert.Equal(t, &created, broadcast)
}

func TestCreatePostValidation(t *testing.T) {
	env := newTestEnv(t)
	sub := env.broker.Subscribe()

	tests := []struct {
		name string
		body any
	}{
		{"empty content", map[string]any{"content": ""}},
		{"whitespace content", map[string]any{"content": "   \n"}},
		{"coordinates out of range", map[string]any{
			"content":     "surge",
			"coordinates": map[string]float64{"lat": 120, "lng": 10},
		}},
		{"file without data or url", map[string]any{
			"files": []map[string]string{{"name": "a.png", "type": "image/png"}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, http.MethodPost, "/api/posts", "", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.NotEmpty(t, decode[errorResponse](t, resp).Error)
		})
	}

	t.Run("malformed json", func(t *testing.T) {
		resp, err := http.Post(env.ts.URL+"/api/posts", "application/json", strings.NewReader("{"))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	assertNoEvent(t, sub)

	posts, err := env.store.ListPosts()
	require.NoError(t, err)
	assert.Empty(t, posts)
}

func TestCreatePostTokenHandling(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/posts", "not-a-jwt", map[string]any{"content": "hi"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/posts", env.token(t, "u-42", types.RoleUser), map[string]any{"content": "hi"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "u-42", decode[types.Post](t, resp).UserID)

	resp = env.do(t, http.MethodPost, "/api/posts", "", map[string]any{"content": "anonymous"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Empty(t, decode[types.Post](t, resp).UserID)
}

func TestReadAfterWrite(t *testing.T) {
	env := newTestEnv(t)

	var ids []string
	for _, text := range []string{"first", "second", "third"} {
		resp := env.do(t, http.MethodPost, "/api/posts", "", map[string]any{"content": text})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		ids = append(ids, decode[types.Post](t, resp).ID)
	}

	resp := env.do(t, http.MethodGet, "/api/posts", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	posts := decode[[]types.Post](t, resp)
	require.Len(t, posts, 3)
	assert.Equal(t, ids[2], posts[0].ID)
	assert.Equal(t, ids[0], posts[2].ID)

	resp = env.do(t, http.MethodGet, "/api/posts/"+ids[1], "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "second", decode[types.Post](t, resp).Content)

	resp = env.do(t, http.MethodGet, "/api/posts/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListPostsEmptyIsArray(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/api/posts", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(raw))
}

func multipartPost(t *testing.T, fields map[string]string, fileName, fileType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if fileName != "" {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="files"; filename="`+fileName+`"`)
		h.Set("Content-Type", fileType)
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestCreatePostMultipart(t *testing.T) {
	env := newTestEnv(t)
	png := []byte("\x89PNG fake image bytes")

	body, contentType := multipartPost(t, map[string]string{
		"content":  "Flooded street",
		"location": "Chennai",
		"lat":      "13.08",
		"lng":      "80.27",
		"accuracy": "25",
	}, "street.png", "image/png", png)

	resp, err := http.Post(env.ts.URL+"/api/posts", contentType, body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	post := decode[types.Post](t, resp)
	require.Len(t, post.Files, 1)
	assert.Equal(t, "street.png", post.Files[0].Name)
	assert.Equal(t, types.MediaImage, post.Files[0].Kind)
	require.True(t, strings.HasPrefix(post.Files[0].URL, mediaURL+content.MediaPrefix))
	require.NotNil(t, post.Coordinates)
	assert.Equal(t, 13.08, post.Coordinates.Lat)
	assert.Equal(t, 25.0, post.Coordinates.AccuracyM)

	key := strings.TrimPrefix(post.Files[0].URL, mediaURL)
	media, err := http.Get(env.ts.URL + key)
	require.NoError(t, err)
	defer media.Body.Close()
	require.Equal(t, http.StatusOK, media.StatusCode)
	got, err := io.ReadAll(media.Body)
	require.NoError(t, err)
	assert.Equal(t, png, got)
}

func TestCreatePostMultipartBadCoordinates(t *testing.T) {
	env := newTestEnv(t)

	body, contentType := multipartPost(t, map[string]string{
		"content": "surge",
		"lat":     "north",
		"lng":     "80.27",
	}, "", "", nil)

	resp, err := http.Post(env.ts.URL+"/api/posts", contentType, body)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMediaDirectoryNotListed(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/media/", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeletePostRequiresAdmin(t *testing.T) {
	env := newTestEnv(t)

	body, contentType := multipartPost(t, map[string]string{"content": "to delete"}, "clip.mp4", "video/mp4", []byte("video"))
	resp, err := http.Post(env.ts.URL+"/api/posts", contentType, body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	post := decode[types.Post](t, resp)

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"anonymous", "", http.StatusUnauthorized},
		{"citizen", env.token(t, "u1", types.RoleUser), http.StatusForbidden},
		{"ngo", env.token(t, "n1", types.RoleNGO), http.StatusForbidden},
		{"admin", env.token(t, "a1", types.RoleAdmin), http.StatusNoContent},
		{"admin again", env.token(t, "a1", types.RoleAdmin), http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, http.MethodDelete, "/api/posts/"+post.ID, tt.token, nil)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}

	_, err = env.store.GetPost(post.ID)
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.False(t, fileExists(t, env, post.Files[0].URL))
}

func fileExists(t *testing.T, env *testEnv, url string) bool {
	t.Helper()
	resp, err := http.Get(env.ts.URL + strings.TrimPrefix(url, mediaURL))
	require.NoError(t, err)
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func TestZonesRefresh(t *testing.T) {
	env := newTestEnv(t)
	sub := env.broker.Subscribe()

	resp := env.do(t, http.MethodGet, "/api/zones", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[[]types.Zone](t, resp))

	resp = env.do(t, http.MethodPost, "/api/zones/refresh", env.token(t, "u1", types.RoleUser), nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assertNoEvent(t, sub)

	resp = env.do(t, http.MethodPost, "/api/zones/refresh", env.token(t, "d1", types.RoleDDMO), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	refreshed := decode[[]types.Zone](t, resp)
	assert.Len(t, refreshed, 3)

	ev := receive(t, sub)
	assert.Equal(t, events.EventZoneUpdate, ev.Type)
	broadcast, err := ev.Zones()
	require.NoError(t, err)
	assert.Equal(t, refreshed, broadcast)

	resp = env.do(t, http.MethodGet, "/api/zones", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, refreshed, decode[[]types.Zone](t, resp))
}

func TestZonesRefreshSourceFailure(t *testing.T) {
	failing := zones.SourceFunc(func(context.Context) (*zones.Batch, error) {
		return nil, errors.New("connection refused")
	})
	env := newTestEnv(t, withSource(failing))

	previous := []types.Zone{{Lat: 19.07, Lng: 72.87, RadiusM: 500, Category: types.ZoneSafe}}
	require.NoError(t, env.store.ReplaceZones(previous))
	sub := env.broker.Subscribe()

	resp := env.do(t, http.MethodPost, "/api/zones/refresh", env.token(t, "a1", types.RoleAdmin), nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "hazard source unavailable", decode[errorResponse](t, resp).Error)
	assertNoEvent(t, sub)

	stored, err := env.store.ListZones()
	require.NoError(t, err)
	assert.Equal(t, previous, stored)
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)

	req, err := http.NewRequest(http.MethodOptions, env.ts.URL+"/api/posts", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Headers"), "Authorization")
}

func TestCreatePostRateLimited(t *testing.T) {
	env := newTestEnv(t, withRateLimit(0.001, 1))

	resp := env.do(t, http.MethodPost, "/api/posts", "", map[string]any{"content": "one"})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/posts", "", map[string]any{"content": "two"})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))

	// Reads are not limited.
	resp = env.do(t, http.MethodGet, "/api/posts", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAccountsFlow(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "asha", "password": "pw-asha", "email": "asha@example.com",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	citizen := decode[auth.Session](t, resp)
	assert.NotEmpty(t, citizen.Token)
	assert.Nil(t, citizen.User.PasswordHash)

	resp = env.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "kerala-ddmo", "password": "pw-ddmo", "role": "ddmo", "official_id": "KL-7",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	official := decode[auth.Session](t, resp)
	assert.Empty(t, official.Token)
	assert.False(t, official.User.Approved)

	login := map[string]string{"username": "kerala-ddmo", "password": "pw-ddmo"}
	resp = env.do(t, http.MethodPost, "/api/auth/login", "", login)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.do(t, http.MethodPatch, "/api/auth/approve/"+official.User.ID, citizen.Token, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.do(t, http.MethodPatch, "/api/auth/approve/"+official.User.ID, env.token(t, "a1", types.RoleAdmin), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decode[types.User](t, resp).Approved)

	resp = env.do(t, http.MethodPost, "/api/auth/login", "", login)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	session := decode[auth.Session](t, resp)
	assert.NotEmpty(t, session.Token)
	assert.Equal(t, types.RoleDDMO, session.User.Role)

	resp = env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"username": "asha", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"username": "nobody", "password": "x"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{"username": "ASHA", "password": "pw"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
