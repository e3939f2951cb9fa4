package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/transitops/gatekeeper/internal/auth"
	"github.com/transitops/gatekeeper/internal/authz"
	"github.com/transitops/gatekeeper/internal/cache"
	"github.com/transitops/gatekeeper/internal/config"
	"github.com/transitops/gatekeeper/internal/gatekeeper"
	"github.com/transitops/gatekeeper/internal/observability"
	"github.com/transitops/gatekeeper/internal/ratelimit"
	"github.com/transitops/gatekeeper/internal/ratelimit/store"
	"github.com/transitops/gatekeeper/internal/transit"
)

var testSecret = []byte("gatekeeper-test-secret")

func mintToken(t *testing.T, subject string, role auth.Role) string {
	t.Helper()

	tok, err := jwt.NewBuilder().
		Claim("sub", subject).
		Claim("role", string(role)).
		Claim("iat", time.Now().Unix()).
		Claim("exp", time.Now().Add(time.Hour).Unix()).
		Build()
	require.NoError(t, err)

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, testSecret))
	require.NoError(t, err)

	return "Bearer " + string(signed)
}

func newTestRouter(t *testing.T, limiter ratelimit.Limiter) *gin.Engine {
	return newTestRouterWithLogger(t, limiter, nil)
}

func newTestRouterWithLogger(t *testing.T, limiter ratelimit.Limiter, logger observability.Logger) *gin.Engine {
	t.Helper()

	authCfg := auth.DefaultConfig()
	authCfg.HMACSecret = testSecret

	validator, err := auth.NewValidator(authCfg)
	require.NoError(t, err)

	matcher, err := authz.NewMatcher(config.DefaultRules())
	require.NoError(t, err)

	gk, err := gatekeeper.New(validator, matcher)
	require.NoError(t, err)

	svc, err := transit.NewService(transit.NewMemoryRepository(), cache.NewMemoryCache(nil))
	require.NoError(t, err)

	return NewRouter(RouterDeps{
		Gatekeeper: gk,
		Limiter:    limiter,
		Handlers:   NewHandlers(svc, nil),
		Logger:     logger,
	})
}

func doRequest(router *gin.Engine, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}

	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRouter_Health(t *testing.T) {
	router := newTestRouter(t, ratelimit.NewNoopLimiter())

	rec := doRequest(router, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestRouter_Authorization(t *testing.T) {
	router := newTestRouter(t, ratelimit.NewNoopLimiter())

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{
			name:   "no credential",
			method: http.MethodGet,
			path:   "/stage1/routes",
			want:   http.StatusUnauthorized,
		},
		{
			name:   "garbage credential",
			method: http.MethodGet,
			path:   "/stage1/routes",
			token:  "Bearer garbage",
			want:   http.StatusUnauthorized,
		},
		{
			name:   "operator denied on admin view",
			method: http.MethodGet,
			path:   "/stage1/admin/routes",
			token:  mintToken(t, "op-1", auth.RoleOperator),
			want:   http.StatusForbidden,
		},
		{
			name:   "admin allowed on admin view",
			method: http.MethodGet,
			path:   "/stage1/admin/routes",
			token:  mintToken(t, "adm-1", auth.RoleAdmin),
			want:   http.StatusOK,
		},
		{
			name:   "viewer reads routes",
			method: http.MethodGet,
			path:   "/stage1/routes",
			token:  mintToken(t, "v-1", auth.RoleViewer),
			want:   http.StatusOK,
		},
		{
			name:   "viewer cannot create routes",
			method: http.MethodPost,
			path:   "/stage1/routes",
			token:  mintToken(t, "v-1", auth.RoleViewer),
			want:   http.StatusForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(router, tt.method, tt.path, tt.token, nil)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestRouter_OwnershipFlow(t *testing.T) {
	router := newTestRouter(t, ratelimit.NewNoopLimiter())

	admin := mintToken(t, "adm-1", auth.RoleAdmin)
	alice := mintToken(t, "op-alice", auth.RoleOperator)
	bob := mintToken(t, "op-bob", auth.RoleOperator)

	rec := doRequest(router, http.MethodPost, "/stage1/routes", admin,
		map[string]interface{}{"name": "Line 7", "stops": []string{"Depot", "Center"}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var route transit.Route
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &route))

	rec = doRequest(router, http.MethodPost, "/stage1/buses", alice,
		map[string]string{"routeId": route.ID})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var bus transit.Bus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bus))
	// Operators default to their own scope as owner.
	assert.Equal(t, "op-alice", bus.Owner)

	posPath := fmt.Sprintf("/stage1/buses/%s/position", bus.ID)
	posBody := map[string]float64{"lat": 52.52, "lon": 13.4}

	// The owner reports a position.
	rec = doRequest(router, http.MethodPut, posPath, alice, posBody)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Another operator passes the role check but fails ownership.
	rec = doRequest(router, http.MethodPut, posPath, bob, posBody)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// A nonexistent bus yields 404, not 403.
	rec = doRequest(router, http.MethodPut, "/stage1/buses/no-such-bus/position", alice, posBody)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Position updates are OPERATOR-only; the admin fails the role check.
	rec = doRequest(router, http.MethodPut, posPath, admin, posBody)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(router, http.MethodGet, posPath, alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var pos transit.Position
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pos))
	assert.Equal(t, bus.ID, pos.BusID)

	// Bob cannot delete Alice's bus; Alice can.
	busPath := "/stage1/buses/" + bus.ID
	rec = doRequest(router, http.MethodDelete, busPath, bob, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(router, http.MethodDelete, busPath, alice, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(router, http.MethodGet, busPath, alice, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_AdminCreatesBus(t *testing.T) {
	router := newTestRouter(t, ratelimit.NewNoopLimiter())

	admin := mintToken(t, "adm-1", auth.RoleAdmin)
	alice := mintToken(t, "op-alice", auth.RoleOperator)

	rec := doRequest(router, http.MethodPost, "/stage1/routes", admin,
		map[string]interface{}{"name": "Line 7"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var route transit.Route
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &route))

	// An admin credential carries no owner scope; omitting the owner is
	// a client error, not an internal one.
	rec = doRequest(router, http.MethodPost, "/stage1/buses", admin,
		map[string]string{"routeId": route.ID})
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	// Naming the owner explicitly works.
	rec = doRequest(router, http.MethodPost, "/stage1/buses", admin,
		map[string]string{"routeId": route.ID, "owner": "depot-7"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var bus transit.Bus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bus))
	assert.Equal(t, "depot-7", bus.Owner)

	// An operator cannot assign someone else's scope; the body's owner
	// is ignored in favor of the operator's own.
	rec = doRequest(router, http.MethodPost, "/stage1/buses", alice,
		map[string]string{"routeId": route.ID, "owner": "depot-7"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bus))
	assert.Equal(t, "op-alice", bus.Owner)
}

func TestRouter_BusViews(t *testing.T) {
	router := newTestRouter(t, ratelimit.NewNoopLimiter())

	admin := mintToken(t, "adm-1", auth.RoleAdmin)
	alice := mintToken(t, "op-alice", auth.RoleOperator)

	rec := doRequest(router, http.MethodPost, "/stage1/routes", admin,
		map[string]interface{}{"name": "Line 7"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var route transit.Route
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &route))

	rec = doRequest(router, http.MethodPost, "/stage1/buses", alice,
		map[string]string{"routeId": route.ID})
	require.Equal(t, http.StatusCreated, rec.Code)
	var bus transit.Bus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bus))

	rec = doRequest(router, http.MethodGet, "/stage1/buses?view=live", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var live []transit.Bus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &live))
	assert.Empty(t, live)

	rec = doRequest(router, http.MethodPut, "/stage1/buses/"+bus.ID, alice,
		map[string]bool{"live": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doRequest(router, http.MethodGet, "/stage1/buses?view=live", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &live))
	require.Len(t, live, 1)
	assert.Equal(t, bus.ID, live[0].ID)

	rec = doRequest(router, http.MethodGet, "/stage1/buses?view=mine", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var mine []transit.Bus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &mine))
	assert.Len(t, mine, 1)

	rec = doRequest(router, http.MethodGet, "/stage1/buses?view=bogus", alice, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// recordingLogger captures log entries for assertions.
type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

type logEntry struct {
	msg    string
	fields []observability.Field
}

func (l *recordingLogger) record(msg string, fields []observability.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{msg: msg, fields: fields})
}

func (l *recordingLogger) Debug(msg string, fields ...observability.Field)  { l.record(msg, fields) }
func (l *recordingLogger) Info(msg string, fields ...observability.Field)   { l.record(msg, fields) }
func (l *recordingLogger) Warn(msg string, fields ...observability.Field)   { l.record(msg, fields) }
func (l *recordingLogger) Error(msg string, fields ...observability.Field)  { l.record(msg, fields) }
func (l *recordingLogger) With(...observability.Field) observability.Logger { return l }
func (l *recordingLogger) WithContext(context.Context) observability.Logger { return l }
func (l *recordingLogger) Sync() error                                      { return nil }

func (l *recordingLogger) entry(msg string) (logEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.msg == msg {
			return e, true
		}
	}
	return logEntry{}, false
}

func TestRouter_RequestLogCarriesDecision(t *testing.T) {
	logs := &recordingLogger{}
	router := newTestRouterWithLogger(t, ratelimit.NewNoopLimiter(), logs)

	admin := mintToken(t, "adm-1", auth.RoleAdmin)
	rec := doRequest(router, http.MethodGet, "/stage1/routes", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	entry, ok := logs.entry("request handled")
	require.True(t, ok, "request log line missing")

	values := map[string]string{}
	for _, f := range entry.fields {
		if f.Type == zapcore.StringType {
			values[f.Key] = f.String
		}
	}
	assert.Equal(t, "adm-1", values["caller"])
	assert.Equal(t, string(auth.RoleAdmin), values["role"])
	assert.Equal(t, "list routes", values["rule"])
}

// fixedClock pins the limiter mid-window so a test cannot straddle a
// bucket boundary.
func fixedClock() func() time.Time {
	fixed := time.Date(2026, 8, 1, 12, 0, 30, 0, time.UTC)
	return func() time.Time { return fixed }
}

func TestRouter_RateLimitHeaders(t *testing.T) {
	st := store.NewMemoryStore()
	clock := fixedClock()
	st.SetClock(clock)

	limiter, err := ratelimit.NewTieredLimiter(&ratelimit.Config{
		FailOpen: true,
		Tiers: map[string]ratelimit.Tier{
			ratelimit.TierPublic:   {Requests: 2, Window: time.Minute},
			ratelimit.TierOperator: {Requests: 100, Window: time.Minute},
			ratelimit.TierAdmin:    {Requests: 100, Window: time.Minute},
		},
	}, st, ratelimit.WithLimiterClock(clock))
	require.NoError(t, err)

	router := newTestRouter(t, limiter)
	viewer := mintToken(t, "v-1", auth.RoleViewer)

	rec := doRequest(router, http.MethodGet, "/stage1/routes", viewer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))

	rec = doRequest(router, http.MethodGet, "/stage1/routes", viewer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	rec = doRequest(router, http.MethodGet, "/stage1/routes", viewer, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	// A different identity is unaffected.
	other := mintToken(t, "v-2", auth.RoleViewer)
	rec = doRequest(router, http.MethodGet, "/stage1/routes", other, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_QuotaRetryAfter(t *testing.T) {
	st := store.NewMemoryStore()
	clock := fixedClock()
	st.SetClock(clock)

	limiter, err := ratelimit.NewTieredLimiter(&ratelimit.Config{
		FailOpen: true,
		Tiers: map[string]ratelimit.Tier{
			ratelimit.TierPublic:   {Requests: 100, Window: time.Minute, DailyQuota: 1},
			ratelimit.TierOperator: {Requests: 100, Window: time.Minute},
			ratelimit.TierAdmin:    {Requests: 100, Window: time.Minute},
		},
	}, st, ratelimit.WithLimiterClock(clock))
	require.NoError(t, err)

	router := newTestRouter(t, limiter)
	viewer := mintToken(t, "v-1", auth.RoleViewer)

	rec := doRequest(router, http.MethodGet, "/stage1/routes", viewer, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(router, http.MethodGet, "/stage1/routes", viewer, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}
