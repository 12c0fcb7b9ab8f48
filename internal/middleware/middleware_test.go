package middleware

import (
    "net/http"
    "net/http/httptest"
    "testing"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/sirupsen/logrus"
    "github.com/sirupsen/logrus/hooks/test"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/iliyamo/explanation-reservation/internal/config"
    "github.com/iliyamo/explanation-reservation/internal/utils"
)

const secret = "test-secret"

func serve(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
    rec := httptest.NewRecorder()
    e.ServeHTTP(rec, req)
    return rec
}

func TestJWTAuthAndRole(t *testing.T) {
    e := echo.New()
    g := e.Group("/admin", JWTAuth(secret), RequireRole("ADMIN", "SUPER_ADMIN"))
    g.GET("/whoami", func(c echo.Context) error {
        return c.JSON(http.StatusOK, echo.Map{"id": ActorID(c), "role": Role(c)})
    })

    admin, err := utils.NewAccessToken(secret, 42, "ADMIN", 5)
    require.NoError(t, err)
    other, err := utils.NewAccessToken(secret, 43, "VIEWER", 5)
    require.NoError(t, err)
    forged, err := utils.NewAccessToken("other-secret", 42, "ADMIN", 5)
    require.NoError(t, err)

    tests := []struct {
        name   string
        header string
        status int
    }{
        {"no header", "", http.StatusUnauthorized},
        {"not bearer", "Basic abc", http.StatusUnauthorized},
        {"bad signature", "Bearer " + forged.Token, http.StatusUnauthorized},
        {"wrong role", "Bearer " + other.Token, http.StatusForbidden},
        {"admin", "Bearer " + admin.Token, http.StatusOK},
    }
    for _, tt := range tests {
        t.Run(tt.name, func(t *testing.T) {
            req := httptest.NewRequest(http.MethodGet, "/admin/whoami", nil)
            if tt.header != "" {
                req.Header.Set("Authorization", tt.header)
            }
            rec := serve(e, req)
            assert.Equal(t, tt.status, rec.Code)
            if tt.status == http.StatusOK {
                assert.JSONEq(t, `{"id":42,"role":"ADMIN"}`, rec.Body.String())
            }
        })
    }
}

func TestRequestLogger(t *testing.T) {
    logger, hook := test.NewNullLogger()
    e := echo.New()
    e.Use(RequestLogger(logger))
    e.GET("/ok", func(c echo.Context) error { return c.String(http.StatusOK, RequestID(c)) })
    e.GET("/boom", func(c echo.Context) error { return echo.NewHTTPError(http.StatusInternalServerError, "boom") })

    rec := serve(e, httptest.NewRequest(http.MethodGet, "/ok", nil))
    id := rec.Header().Get(echo.HeaderXRequestID)
    require.NotEmpty(t, id)
    assert.Equal(t, id, rec.Body.String())
    require.NotNil(t, hook.LastEntry())
    assert.Equal(t, logrus.InfoLevel, hook.LastEntry().Level)
    assert.Equal(t, "/ok", hook.LastEntry().Data["path"])

    req := httptest.NewRequest(http.MethodGet, "/ok", nil)
    req.Header.Set(echo.HeaderXRequestID, "6f1c2a8e-3b3c-4d5e-9f00-0123456789ab")
    rec = serve(e, req)
    assert.Equal(t, "6f1c2a8e-3b3c-4d5e-9f00-0123456789ab", rec.Header().Get(echo.HeaderXRequestID))

    req = httptest.NewRequest(http.MethodGet, "/ok", nil)
    req.Header.Set(echo.HeaderXRequestID, "not a uuid\n")
    rec = serve(e, req)
    assert.NotEqual(t, "not a uuid\n", rec.Header().Get(echo.HeaderXRequestID))

    rec = serve(e, httptest.NewRequest(http.MethodGet, "/boom", nil))
    assert.Equal(t, http.StatusInternalServerError, rec.Code)
    assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
    assert.Equal(t, 500, hook.LastEntry().Data["status"])
}

func TestTokenBucketLocalFallback(t *testing.T) {
    logger, _ := test.NewNullLogger()
    cfg := config.RateLimitConfig{
        Enabled:        true,
        Capacity:       2,
        RefillTokens:   1,
        RefillInterval: time.Hour,
        TTL:            time.Hour,
        KeyStrategy:    "ip_route",
        Prefix:         "rl",
    }
    e := echo.New()
    e.POST("/reserve", func(c echo.Context) error { return c.NoContent(http.StatusCreated) }, NewTokenBucket(cfg, nil, logger))

    post := func(ip string) *httptest.ResponseRecorder {
        req := httptest.NewRequest(http.MethodPost, "/reserve", nil)
        req.Header.Set(echo.HeaderXRealIP, ip)
        return serve(e, req)
    }
    assert.Equal(t, http.StatusCreated, post("10.0.0.1").Code)
    assert.Equal(t, http.StatusCreated, post("10.0.0.1").Code)
    blocked := post("10.0.0.1")
    assert.Equal(t, http.StatusTooManyRequests, blocked.Code)
    assert.NotEmpty(t, blocked.Header().Get("Retry-After"))
    assert.Contains(t, blocked.Body.String(), "TOO_MANY_REQUESTS")

    assert.Equal(t, http.StatusCreated, post("10.0.0.2").Code)
}

func TestTokenBucketDisabled(t *testing.T) {
    e := echo.New()
    e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusOK) },
        NewTokenBucket(config.RateLimitConfig{Enabled: false}, nil, logrus.New()))
    for i := 0; i < 5; i++ {
        assert.Equal(t, http.StatusOK, serve(e, httptest.NewRequest(http.MethodGet, "/x", nil)).Code)
    }
}

func TestParseBucketResult(t *testing.T) {
    v, err := parseBucketResult([]any{int64(0), int64(0), int64(1500)})
    require.NoError(t, err)
    assert.False(t, v.allowed)
    assert.Equal(t, 1500*time.Millisecond, v.retry)

    v, err = parseBucketResult([]any{int64(1), "4", int64(0)})
    require.NoError(t, err)
    assert.True(t, v.allowed)
    assert.Equal(t, int64(4), v.remaining)

    _, err = parseBucketResult("nope")
    require.Error(t, err)
}

func TestBuildRateKey(t *testing.T) {
    e := echo.New()
    req := httptest.NewRequest(http.MethodPost, "/v1/explanations/reservations", nil)
    req.Header.Set(echo.HeaderXRealIP, "10.1.1.1")
    c := e.NewContext(req, httptest.NewRecorder())
    c.SetPath("/v1/explanations/reservations")

    assert.Equal(t, "rl:ip:10.1.1.1", buildRateKey(config.RateLimitConfig{Prefix: "rl", KeyStrategy: "ip"}, c))
    assert.Equal(t, "rl:ip:10.1.1.1:user:guest:route:POST /v1/explanations/reservations",
        buildRateKey(config.RateLimitConfig{Prefix: "rl"}, c))
    c.Set(CtxUserID, uint64(9))
    assert.Equal(t, "rl:ip:10.1.1.1:user:9:route:POST /v1/explanations/reservations",
        buildRateKey(config.RateLimitConfig{Prefix: "rl"}, c))
}

func TestCacheKeyAndPayload(t *testing.T) {
    e := echo.New()
    newCtx := func(target, id string) echo.Context {
        c := e.NewContext(httptest.NewRequest(http.MethodGet, target, nil), httptest.NewRecorder())
        c.SetPath("/v1/explanations/:id")
        c.SetParamNames("id")
        c.SetParamValues(id)
        return c
    }
    cfg := config.CacheConfig{Prefix: "cache", KeyStrategy: "route_query"}
    a := cacheKey(cfg, newCtx("/v1/explanations/1?x=1", "1"))
    b := cacheKey(cfg, newCtx("/v1/explanations/2?x=1", "2"))
    c := cacheKey(cfg, newCtx("/v1/explanations/1?x=2", "1"))
    assert.NotEqual(t, a, b)
    assert.NotEqual(t, a, c)
    assert.Equal(t, cacheKey(config.CacheConfig{Prefix: "cache", KeyStrategy: "route"}, newCtx("/v1/explanations/1?x=1", "1")),
        cacheKey(config.CacheConfig{Prefix: "cache", KeyStrategy: "route"}, newCtx("/v1/explanations/1?x=2", "1")))

    hdr := http.Header{"Content-Type": {"application/json"}}
    bs, err := encodePayload(http.StatusOK, hdr, []byte(`{"ok":true}`))
    require.NoError(t, err)
    status, gotHdr, body, ok := decodePayload(bs)
    require.True(t, ok)
    assert.Equal(t, http.StatusOK, status)
    assert.Equal(t, "application/json", gotHdr.Get("Content-Type"))
    assert.Equal(t, `{"ok":true}`, string(body))

    _, _, _, ok = decodePayload([]byte{0, 0})
    assert.False(t, ok)
}

func TestCaptureWriterTruncates(t *testing.T) {
    rec := httptest.NewRecorder()
    cw := &captureWriter{ResponseWriter: rec, status: http.StatusOK, limit: 4}
    _, _ = cw.Write([]byte("ab"))
    _, _ = cw.Write([]byte("cde"))
    assert.True(t, cw.truncated)
    assert.Equal(t, "abcde", rec.Body.String())
}
