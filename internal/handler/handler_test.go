package handler_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/seat-reservation/internal/clock"
	"github.com/iliyamo/seat-reservation/internal/config"
	"github.com/iliyamo/seat-reservation/internal/handler"
	"github.com/iliyamo/seat-reservation/internal/repository/memstore"
	"github.com/iliyamo/seat-reservation/internal/router"
	"github.com/iliyamo/seat-reservation/internal/service"
)

var day = time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time { return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute) }

type api struct {
	t     *testing.T
	e     *echo.Echo
	clock *clock.Manual
}

func newAPI(t *testing.T) *api {
	t.Helper()
	st := memstore.New()
	clk := clock.NewManual(at(7, 0))
	cfg := config.Config{
		JWTSecret:      "test-secret",
		AccessTTLMin:   15,
		RefreshTTLDays: 7,
		BcryptCost:     bcrypt.MinCost,
		AdminEmails:    []string{"admin@example.com"},
	}
	bookings := service.NewBookingService(st, clk)
	rooms := service.NewRoomService(st)
	e := router.New(router.Deps{
		Cfg:      cfg,
		Auth:     handler.NewAuthHandler(cfg, st, st),
		Rooms:    handler.NewRoomHandler(rooms, bookings),
		Bookings: handler.NewBookingHandler(bookings),
		Admin:    handler.NewAdminHandler(bookings),
	})
	return &api{t: t, e: e, clock: clk}
}

func (a *api) do(method, path, token string, body any) (int, map[string]any) {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	out := map[string]any{}
	if rec.Body.Len() > 0 {
		require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec.Code, out
}

type session struct {
	id      uint64
	access  string
	refresh string
}

func (a *api) register(name string) session {
	a.t.Helper()
	code, body := a.do(http.MethodPost, "/v1/auth/register", "", map[string]string{
		"name": name, "email": name + "@example.com", "password": "password-" + name,
	})
	require.Equal(a.t, http.StatusCreated, code, body)
	return session{
		id:      uint64(body["member"].(map[string]any)["id"].(float64)),
		access:  body["access"].(map[string]any)["token"].(string),
		refresh: body["refresh"].(map[string]any)["token"].(string),
	}
}

// seatOf creates a room open 08:00-20:00 and returns its first seat id.
func (a *api) seatOf(admin session, name string) uint64 {
	a.t.Helper()
	code, body := a.do(http.MethodPost, "/v1/admin/rooms", admin.access, map[string]any{
		"name": name, "open_time": "08:00", "close_time": "20:00", "rows": 1, "cols": 2,
	})
	require.Equal(a.t, http.StatusCreated, code, body)
	seats := body["seats"].([]any)
	require.Len(a.t, seats, 2)
	return uint64(seats[0].(map[string]any)["id"].(float64))
}

func (a *api) book(s session, seatID uint64, start, end time.Time) (int, map[string]any) {
	a.t.Helper()
	return a.do(http.MethodPost, "/v1/bookings", s.access, map[string]any{
		"seat_id": seatID, "start_time": start, "end_time": end,
	})
}

func TestAuthFlow(t *testing.T) {
	a := newAPI(t)
	admin := a.register("admin")
	alice := a.register("alice")

	code, me := a.do(http.MethodGet, "/v1/me", admin.access, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ADMIN", me["role"])
	assert.EqualValues(t, 100, me["credit"])

	_, me = a.do(http.MethodGet, "/v1/me", alice.access, nil)
	assert.Equal(t, "MEMBER", me["role"])

	code, body := a.do(http.MethodPost, "/v1/auth/register", "", map[string]string{
		"name": "alice", "email": "other@example.com", "password": "long-enough",
	})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "CONFLICT", body["code"])

	code, _ = a.do(http.MethodPost, "/v1/auth/register", "", map[string]string{
		"name": "bob", "email": "bob@example.com", "password": "short",
	})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = a.do(http.MethodPost, "/v1/auth/login", "", map[string]string{"email": "alice@example.com", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = a.do(http.MethodPost, "/v1/auth/login", "", map[string]string{"email": "ALICE@example.com", "password": "password-alice"})
	assert.Equal(t, http.StatusOK, code)

	code, body = a.do(http.MethodPost, "/v1/auth/refresh", "", map[string]string{"refresh_token": alice.refresh})
	require.Equal(t, http.StatusOK, code)
	rotated := body["refresh"].(map[string]any)["token"].(string)
	assert.NotEqual(t, alice.refresh, rotated)
	code, _ = a.do(http.MethodPost, "/v1/auth/refresh", "", map[string]string{"refresh_token": alice.refresh})
	assert.Equal(t, http.StatusUnauthorized, code, "a rotated refresh token must not be reusable")

	code, body = a.do(http.MethodPost, "/v1/auth/refresh-access", "", map[string]string{"refresh_token": rotated})
	require.Equal(t, http.StatusOK, code)
	assert.NotEmpty(t, body["access"])

	code, _ = a.do(http.MethodPost, "/v1/auth/logout", alice.access, nil)
	assert.Equal(t, http.StatusNoContent, code)
	code, _ = a.do(http.MethodPost, "/v1/auth/refresh-access", "", map[string]string{"refresh_token": rotated})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = a.do(http.MethodPost, "/v1/auth/logout", "", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = a.do(http.MethodGet, "/v1/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestRoomCatalogue(t *testing.T) {
	a := newAPI(t)
	admin := a.register("admin")
	alice := a.register("alice")

	code, body := a.do(http.MethodPost, "/v1/admin/rooms", alice.access, map[string]any{
		"name": "Nope", "open_time": "08:00", "close_time": "20:00", "rows": 1, "cols": 1,
	})
	assert.Equal(t, http.StatusForbidden, code, body)

	code, body = a.do(http.MethodPost, "/v1/admin/rooms", admin.access, map[string]any{
		"name": "Inverted", "open_time": "20:00", "close_time": "08:00", "rows": 1, "cols": 1,
	})
	assert.Equal(t, http.StatusBadRequest, code, body)

	seatID := a.seatOf(admin, "Reading room")

	code, body = a.do(http.MethodGet, "/v1/rooms", "", nil)
	require.Equal(t, http.StatusOK, code)
	items := body["items"].([]any)
	require.Len(t, items, 1)
	room := items[0].(map[string]any)
	assert.Equal(t, "08:00", room["open_time"])
	assert.Equal(t, "20:00", room["close_time"])

	code, body = a.do(http.MethodGet, fmt.Sprintf("/v1/rooms/%v", room["id"]), "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["seats"], 2)

	code, _ = a.do(http.MethodGet, "/v1/rooms/999", "", nil)
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = a.do(http.MethodGet, "/v1/rooms/abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = a.book(alice, seatID, at(10, 0), at(11, 0))
	require.Equal(t, http.StatusCreated, code)

	path := fmt.Sprintf("/v1/seats/%d/availability?from=%s&to=%s", seatID,
		day.Format(time.RFC3339), day.Add(24*time.Hour).Format(time.RFC3339))
	code, body = a.do(http.MethodGet, path, "", nil)
	require.Equal(t, http.StatusOK, code, body)
	free := body["free"].([]any)
	require.Len(t, free, 2)
	assert.Equal(t, at(8, 0).Format(time.RFC3339), free[0].(map[string]any)["start"])
	assert.Equal(t, at(10, 0).Format(time.RFC3339), free[0].(map[string]any)["end"])
	assert.Equal(t, at(11, 0).Format(time.RFC3339), free[1].(map[string]any)["start"])
	assert.Equal(t, at(20, 0).Format(time.RFC3339), free[1].(map[string]any)["end"])

	code, _ = a.do(http.MethodGet, fmt.Sprintf("/v1/seats/%d/availability?from=yesterday", seatID), "", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestBookingLifecycle(t *testing.T) {
	a := newAPI(t)
	admin := a.register("admin")
	alice := a.register("alice")
	bob := a.register("bob")
	seatID := a.seatOf(admin, "Lab")

	code, body := a.book(alice, seatID, at(10, 0), at(11, 0))
	require.Equal(t, http.StatusCreated, code, body)
	assert.Equal(t, "BOOKED", body["state"])
	bookingID := uint64(body["id"].(float64))
	bookingPath := fmt.Sprintf("/v1/bookings/%d", bookingID)

	code, body = a.book(bob, seatID, at(10, 30), at(11, 30))
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "CONFLICT", body["code"])

	code, _ = a.do(http.MethodGet, bookingPath, bob.access, nil)
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = a.do(http.MethodGet, bookingPath, admin.access, nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = a.do(http.MethodPost, bookingPath+"/check-in", alice.access, nil)
	assert.Equal(t, http.StatusBadRequest, code, "too early to check in")

	a.clock.Set(at(9, 50))
	code, body = a.do(http.MethodPost, bookingPath+"/check-in", alice.access, nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "CHECKED_IN", body["state"])

	a.clock.Set(at(10, 58))
	code, body = a.do(http.MethodPost, bookingPath+"/check-out", alice.access, nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "CHECKED_OUT", body["state"])

	code, _ = a.do(http.MethodPost, bookingPath+"/cancel", alice.access, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = a.do(http.MethodGet, "/v1/me/bookings", alice.access, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["items"], 1)
}

func TestLateCancelNeedsForce(t *testing.T) {
	a := newAPI(t)
	admin := a.register("admin")
	alice := a.register("alice")
	seatID := a.seatOf(admin, "Lab")

	code, body := a.book(alice, seatID, at(9, 0), at(10, 0))
	require.Equal(t, http.StatusCreated, code, body)
	cancelPath := fmt.Sprintf("/v1/bookings/%v/cancel", body["id"])

	code, _ = a.do(http.MethodPost, cancelPath, alice.access, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = a.do(http.MethodPost, cancelPath, alice.access, map[string]bool{"force": true})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "CANCELED", body["state"])

	code, body = a.do(http.MethodGet, "/v1/me/violations", alice.access, nil)
	require.Equal(t, http.StatusOK, code)
	items := body["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "FORCED_CANCEL", items[0].(map[string]any)["type"])

	_, me := a.do(http.MethodGet, "/v1/me", alice.access, nil)
	assert.EqualValues(t, 95, me["credit"])
}

func TestAdminViolations(t *testing.T) {
	a := newAPI(t)
	admin := a.register("admin")
	alice := a.register("alice")
	violationsPath := fmt.Sprintf("/v1/admin/members/%d/violations", alice.id)

	code, body := a.do(http.MethodPost, violationsPath, admin.access, map[string]any{"content": "noise", "penalty": 30})
	require.Equal(t, http.StatusCreated, code, body)
	assert.Equal(t, "ADMINISTRATIVE_ACTION", body["type"])

	code, _ = a.do(http.MethodPost, violationsPath, admin.access, map[string]any{"content": "", "penalty": 5})
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = a.do(http.MethodPost, violationsPath, alice.access, map[string]any{"content": "self", "penalty": 5})
	assert.Equal(t, http.StatusForbidden, code)

	code, body = a.do(http.MethodGet, violationsPath, admin.access, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["items"], 1)

	code, body = a.do(http.MethodGet, fmt.Sprintf("/v1/admin/members/%d/bookings", alice.id), admin.access, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, body["items"])

	_, me := a.do(http.MethodGet, "/v1/me", alice.access, nil)
	assert.EqualValues(t, 70, me["credit"])

	// Thirty more points leave alice below the booking threshold.
	code, _ = a.do(http.MethodPost, violationsPath, admin.access, map[string]any{"content": "again", "penalty": 31})
	require.Equal(t, http.StatusCreated, code)
	seatID := a.seatOf(admin, "Lab")
	code, body = a.book(alice, seatID, at(10, 0), at(11, 0))
	assert.Equal(t, http.StatusBadRequest, code, body)
}

type stubSweeper struct{ st service.SweepStatus }

func (s stubSweeper) Status() service.SweepStatus { return s.st }

func TestHealth(t *testing.T) {
	e := echo.New()
	e.GET("/healthz", handler.Health(nil))
	e.GET("/healthz/ok", handler.Health(stubSweeper{service.SweepStatus{Cycles: 3}}))
	e.GET("/healthz/bad", handler.Health(stubSweeper{service.SweepStatus{LastError: "db down"}}))

	for path, want := range map[string]int{
		"/healthz":     http.StatusOK,
		"/healthz/ok":  http.StatusOK,
		"/healthz/bad": http.StatusServiceUnavailable,
	} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, want, rec.Code, path)
	}
}
