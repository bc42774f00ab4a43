package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/shop-backend/internal/config"
	"github.com/your-org/shop-backend/internal/domain/member"
	"github.com/your-org/shop-backend/internal/domain/order"
	"github.com/your-org/shop-backend/internal/infrastructure/database/redis"
	apihttp "github.com/your-org/shop-backend/internal/interfaces/http"
	"github.com/your-org/shop-backend/internal/pkg/notify"
	"github.com/your-org/shop-backend/internal/pkg/testdb"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []notify.OrderNotice
}

func (n *recordingNotifier) SendOrderNotification(_ context.Context, _ notify.Recipient, notice notify.OrderNotice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
	return nil
}

func (n *recordingNotifier) SendCartOrderNotification(ctx context.Context, to notify.Recipient, notice notify.OrderNotice) error {
	return n.SendOrderNotification(ctx, to, notice)
}

type fakeReceipts struct{}

func (fakeReceipts) GenerateReceipt(o *order.Order) (*bytes.Buffer, error) {
	return bytes.NewBufferString("%PDF-" + o.OrderNumber), nil
}

type envelope struct {
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

type api struct {
	t        *testing.T
	router   http.Handler
	db       *gorm.DB
	notifier *recordingNotifier
	redis    *miniredis.Miniredis
}

func newAPI(t *testing.T) *api {
	t.Helper()

	cfg := &config.Config{}
	cfg.App.Name = "shop-test"
	cfg.App.Environment = "test"
	cfg.JWT.Secret = strings.Repeat("k", 32)
	cfg.JWT.AccessTokenExpiry = time.Hour
	cfg.JWT.ResetTokenExpiry = 15 * time.Minute
	cfg.Security.BcryptCost = bcrypt.MinCost
	cfg.Security.RateLimitPerMinute = 1000
	cfg.Points.AccrualPercent = 1
	cfg.Checkout.IdempotencyTTL = time.Minute
	cfg.Server.MaxBodyBytes = 1 << 20
	cfg.Server.RequestTimeout = 10 * time.Second

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { rdb.Close() })

	db := testdb.New(t)
	logger, _ := test.NewNullLogger()
	notifier := &recordingNotifier{}

	server := apihttp.NewServer(cfg, db, redis.NewClient(rdb), notifier, fakeReceipts{}, logger)
	return &api{t: t, router: server.Router(), db: db, notifier: notifier, redis: mr}
}

func (a *api) do(method, path, token string, body interface{}, headers ...string) (*httptest.ResponseRecorder, envelope) {
	a.t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(a.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(a.t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func (a *api) login(email, password string) string {
	a.t.Helper()

	w, env := a.do(http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": email, "password": password})
	require.Equal(a.t, http.StatusOK, w.Code, w.Body.String())

	var data struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(a.t, json.Unmarshal(env.Data, &data))
	return data.AccessToken
}

func (a *api) member(email, name string, opts ...testdb.MemberOption) (*member.Member, string) {
	a.t.Helper()
	opts = append(opts, testdb.WithPassword("Sturdy2024"))
	m := testdb.CreateMember(a.t, a.db, email, name, opts...)
	return m, a.login(email, "Sturdy2024")
}

func decodeID(t *testing.T, env envelope, field string) uint {
	t.Helper()
	var data map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	v, ok := data[field].(float64)
	require.True(t, ok, "missing %s in %s", field, string(env.Data))
	return uint(v)
}

func TestRegisterLoginAndPassword(t *testing.T) {
	a := newAPI(t)

	w, env := a.do(http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"email":    "Kim@Shop.test",
		"password": "Sturdy2024",
		"name":     "Kim",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotContains(t, string(env.Data), "Sturdy2024")

	w, env = a.do(http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"email":    "kim@shop.test",
		"password": "Sturdy2024",
		"name":     "Kim",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, env.Error, "already registered")

	w, _ = a.do(http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"email":    "lee@shop.test",
		"password": "short",
		"name":     "Lee",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = a.do(http.MethodPost, "/api/v1/auth/register", "", gin.H{"email": "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	token := a.login("kim@shop.test", "Sturdy2024")
	assert.NotEmpty(t, token)

	w, _ = a.do(http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": "kim@shop.test", "password": "Wrong2024"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w, _ = a.do(http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": "ghost@shop.test", "password": "Sturdy2024"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = a.do(http.MethodPost, "/api/v1/auth/password/check", "", gin.H{"email": "kim@shop.test", "name": "Kim"})
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = a.do(http.MethodPost, "/api/v1/auth/password/check", "", gin.H{"email": "kim@shop.test", "name": "Lee"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = a.do(http.MethodPut, "/api/v1/auth/password", "", gin.H{"password": "Renewed2025"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w, _ = a.do(http.MethodPut, "/api/v1/auth/password", token, gin.H{"password": "Renewed2025"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.NotEmpty(t, a.login("kim@shop.test", "Renewed2025"))
}

func TestForgottenPasswordReset(t *testing.T) {
	a := newAPI(t)
	_, accessToken := a.member("kim@shop.test", "Kim")

	w, env := a.do(http.MethodPost, "/api/v1/auth/password/check", "", gin.H{"email": "kim@shop.test", "name": "Kim"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var check struct {
		ResetToken string `json:"reset_token"`
		ExpiresIn  int    `json:"expires_in"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &check))
	require.NotEmpty(t, check.ResetToken)
	assert.Equal(t, 900, check.ExpiresIn)

	// a reset token must not open authenticated routes
	w, _ = a.do(http.MethodGet, "/api/v1/cart", check.ResetToken, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// and an access token must not reset a password
	w, _ = a.do(http.MethodPost, "/api/v1/auth/password/reset", "", gin.H{"reset_token": accessToken, "password": "Lantern2026"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = a.do(http.MethodPost, "/api/v1/auth/password/reset", "", gin.H{"reset_token": check.ResetToken, "password": "weak"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = a.do(http.MethodPost, "/api/v1/auth/password/reset", "", gin.H{"reset_token": check.ResetToken, "password": "Lantern2026"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, _ = a.do(http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": "kim@shop.test", "password": "Sturdy2024"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.NotEmpty(t, a.login("kim@shop.test", "Lantern2026"))

	w, env = a.do(http.MethodPost, "/api/v1/auth/password/check", "", gin.H{"email": "kim@shop.test", "name": "Lee"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, env.Data)
}

func TestAdminMemberSearch(t *testing.T) {
	a := newAPI(t)
	_, adminToken := a.member("boss@shop.test", "Boss", testdb.WithRole(member.RoleAdmin))
	_, userToken := a.member("kim@shop.test", "Kim")
	testdb.CreateMember(t, a.db, "lee@shop.test", "Lee")

	w, _ := a.do(http.MethodGet, "/api/v1/admin/members", userToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, env := a.do(http.MethodGet, "/api/v1/admin/members?search_by=name&q=Le&page=1&limit=10", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var page member.MemberListResponse
	require.NoError(t, json.Unmarshal(env.Data, &page))
	require.Len(t, page.Members, 1)
	assert.Equal(t, "lee@shop.test", page.Members[0].Email)
	assert.Equal(t, int64(1), page.Pagination.Total)

	w, env = a.do(http.MethodGet, "/api/v1/admin/members?search_by=unknown&q=zzz", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.Len(t, page.Members, 3)
}

func TestCartAndIdempotentCheckout(t *testing.T) {
	a := newAPI(t)
	kim, kimToken := a.member("kim@shop.test", "Kim", testdb.WithPoint(100))
	_, leeToken := a.member("lee@shop.test", "Lee")
	mug := testdb.CreateItem(t, a.db, "mug", 500, "kitchen")
	plate := testdb.CreateItem(t, a.db, "plate", 300)

	w, env := a.do(http.MethodPost, "/api/v1/cart/items", kimToken, gin.H{"item_id": mug.ID, "count": 1})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	mugLine := decodeID(t, env, "cart_item_id")

	w, env = a.do(http.MethodPost, "/api/v1/cart/items", kimToken, gin.H{"item_id": plate.ID, "count": 1})
	require.Equal(t, http.StatusCreated, w.Code)
	plateLine := decodeID(t, env, "cart_item_id")

	w, _ = a.do(http.MethodPost, "/api/v1/cart/items", kimToken, gin.H{"item_id": 999, "count": 1})
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = a.do(http.MethodPost, "/api/v1/cart/items", kimToken, gin.H{"item_id": mug.ID, "count": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = a.do(http.MethodPatch, fmt.Sprintf("/api/v1/cart/items/%d", mugLine), kimToken, gin.H{"count": 2})
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = a.do(http.MethodPatch, fmt.Sprintf("/api/v1/cart/items/%d", mugLine), leeToken, gin.H{"count": 9})
	assert.Equal(t, http.StatusForbidden, w.Code)
	w, _ = a.do(http.MethodDelete, fmt.Sprintf("/api/v1/cart/items/%d", plateLine), leeToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w, _ = a.do(http.MethodDelete, "/api/v1/cart/items/999", kimToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = a.do(http.MethodPatch, "/api/v1/cart/items/abc", kimToken, gin.H{"count": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = a.do(http.MethodGet, "/api/v1/cart", kimToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var lines []map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Data, &lines))
	require.Len(t, lines, 2)
	assert.Equal(t, float64(2), lines[1]["count"])

	checkout := gin.H{"cart_item_ids": []uint{mugLine, plateLine}, "used_point": 100}
	w, env = a.do(http.MethodPost, "/api/v1/cart/checkout", kimToken, checkout, "Idempotency-Key", "checkout-1")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	orderID := decodeID(t, env, "order_id")

	w, env = a.do(http.MethodPost, "/api/v1/cart/checkout", kimToken, checkout, "Idempotency-Key", "checkout-1")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, orderID, decodeID(t, env, "order_id"))

	var orders int64
	require.NoError(t, a.db.Model(&order.Order{}).Count(&orders).Error)
	assert.Equal(t, int64(1), orders)
	assert.Equal(t, 12, testdb.Point(t, a.db, kim.ID))
	assert.Len(t, a.notifier.notices, 1)

	w, env = a.do(http.MethodGet, "/api/v1/cart", kimToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &lines))
	assert.Empty(t, lines)
}

func TestCheckoutFailureReleasesIdempotencyKey(t *testing.T) {
	a := newAPI(t)
	_, token := a.member("kim@shop.test", "Kim", testdb.WithPoint(10))
	mug := testdb.CreateItem(t, a.db, "mug", 500)

	w, env := a.do(http.MethodPost, "/api/v1/cart/items", token, gin.H{"item_id": mug.ID, "count": 1})
	require.Equal(t, http.StatusCreated, w.Code)
	line := decodeID(t, env, "cart_item_id")

	w, _ = a.do(http.MethodPost, "/api/v1/cart/checkout", token, gin.H{"cart_item_ids": []uint{line}, "used_point": 50}, "Idempotency-Key", "retry-me")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w, _ = a.do(http.MethodPost, "/api/v1/cart/checkout", token, gin.H{"cart_item_ids": []uint{line}, "used_point": 0}, "Idempotency-Key", "retry-me")
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestCheckoutWithoutRedisStillPlacesOrder(t *testing.T) {
	a := newAPI(t)
	_, token := a.member("kim@shop.test", "Kim")
	mug := testdb.CreateItem(t, a.db, "mug", 500)

	w, env := a.do(http.MethodPost, "/api/v1/cart/items", token, gin.H{"item_id": mug.ID, "count": 1})
	require.Equal(t, http.StatusCreated, w.Code)
	line := decodeID(t, env, "cart_item_id")

	a.redis.Close()

	w, env = a.do(http.MethodPost, "/api/v1/cart/checkout", token, gin.H{"cart_item_ids": []uint{line}}, "Idempotency-Key", "no-redis")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotZero(t, decodeID(t, env, "order_id"))

	var orders int64
	require.NoError(t, a.db.Model(&order.Order{}).Count(&orders).Error)
	assert.Equal(t, int64(1), orders)
}

func TestOrderLifecycle(t *testing.T) {
	a := newAPI(t)
	kim, kimToken := a.member("kim@shop.test", "Kim", testdb.WithPoint(100))
	_, leeToken := a.member("lee@shop.test", "Lee")
	_, adminToken := a.member("boss@shop.test", "Boss", testdb.WithRole(member.RoleAdmin))
	mug := testdb.CreateItem(t, a.db, "mug", 530, "kitchen")

	w, env := a.do(http.MethodPost, "/api/v1/orders", kimToken, gin.H{"item_id": mug.ID, "count": 1, "used_point": 30})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	orderID := decodeID(t, env, "order_id")
	assert.Equal(t, 75, testdb.Point(t, a.db, kim.ID))

	w, _ = a.do(http.MethodPost, "/api/v1/orders", kimToken, gin.H{"item_id": mug.ID, "count": 1, "used_point": 500})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w, env = a.do(http.MethodGet, "/api/v1/orders?gift_status=buy", kimToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var history order.OrderHistoryResponse
	require.NoError(t, json.Unmarshal(env.Data, &history))
	require.Len(t, history.Orders, 1)
	assert.Equal(t, "/img/mug.jpg", history.Orders[0].Items[0].ImgURL)

	w, _ = a.do(http.MethodGet, "/api/v1/orders?gift_status=maybe", kimToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = a.do(http.MethodGet, fmt.Sprintf("/api/v1/orders/%d", orderID), leeToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w, _ = a.do(http.MethodGet, fmt.Sprintf("/api/v1/orders/%d", orderID), kimToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = a.do(http.MethodPost, fmt.Sprintf("/api/v1/orders/%d/cancel", orderID), leeToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w, _ = a.do(http.MethodPost, "/api/v1/orders/999/cancel", kimToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = a.do(http.MethodPost, fmt.Sprintf("/api/v1/orders/%d/return", orderID), kimToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w, _ = a.do(http.MethodPost, fmt.Sprintf("/api/v1/orders/%d/cancel", orderID), kimToken, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w, env = a.do(http.MethodGet, "/api/v1/orders/returns", kimToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &history))
	assert.Len(t, history.Orders, 1)

	confirmPath := fmt.Sprintf("/api/v1/admin/orders/%d/return/confirm", orderID)
	w, _ = a.do(http.MethodPost, confirmPath, kimToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w, _ = a.do(http.MethodPost, confirmPath, adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 100, testdb.Point(t, a.db, kim.ID))

	w, _ = a.do(http.MethodPost, confirmPath, adminToken, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCancelRestoresPoints(t *testing.T) {
	a := newAPI(t)
	kim, token := a.member("kim@shop.test", "Kim", testdb.WithPoint(100))
	mug := testdb.CreateItem(t, a.db, "mug", 530)

	w, env := a.do(http.MethodPost, "/api/v1/orders", token, gin.H{"item_id": mug.ID, "count": 1, "used_point": 30, "gift_status": "GIFT"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	orderID := decodeID(t, env, "order_id")
	assert.Empty(t, a.notifier.notices)

	cancelPath := fmt.Sprintf("/api/v1/orders/%d/cancel", orderID)
	w, _ = a.do(http.MethodPost, cancelPath, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 100, testdb.Point(t, a.db, kim.ID))

	w, _ = a.do(http.MethodPost, cancelPath, token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 100, testdb.Point(t, a.db, kim.ID))
}

func TestReceiptDownload(t *testing.T) {
	a := newAPI(t)
	_, kimToken := a.member("kim@shop.test", "Kim", testdb.WithPoint(100))
	_, leeToken := a.member("lee@shop.test", "Lee")
	_, adminToken := a.member("boss@shop.test", "Boss", testdb.WithRole(member.RoleAdmin))
	mug := testdb.CreateItem(t, a.db, "mug", 500)

	w, env := a.do(http.MethodPost, "/api/v1/orders", kimToken, gin.H{"item_id": mug.ID, "count": 2})
	require.Equal(t, http.StatusCreated, w.Code)
	orderID := decodeID(t, env, "order_id")
	path := fmt.Sprintf("/api/v1/orders/%d/receipt", orderID)

	w, _ = a.do(http.MethodGet, path, kimToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(w.Body.String(), "%PDF-ORD-"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "receipt-ORD-")

	w, _ = a.do(http.MethodGet, path, leeToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w, _ = a.do(http.MethodGet, path, adminToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = a.do(http.MethodGet, "/api/v1/orders/999/receipt", adminToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthAndReadiness(t *testing.T) {
	a := newAPI(t)

	w, _ := a.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w, _ = a.do(http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
