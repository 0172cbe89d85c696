package handler

import (
	"context"  // provides context with cancellation for store calls
	"errors"
	"net/http" // HTTP status codes and primitives
	"slices"
	"strings" // string manipulation utilities
	"time"    // timeouts for store calls

	"github.com/labstack/echo/v4" // Echo framework for HTTP routing

	"github.com/iliyamo/seat-reservation/internal/config"     // app configuration
	"github.com/iliyamo/seat-reservation/internal/middleware" // caller identity
	"github.com/iliyamo/seat-reservation/internal/model"
	"github.com/iliyamo/seat-reservation/internal/service" // store sentinels
	"github.com/iliyamo/seat-reservation/internal/utils"   // helper functions (hashing, token issuing)
)

// MemberStore is the member persistence the auth endpoints need.
type MemberStore interface {
	CreateMember(ctx context.Context, m *model.Member) error
	GetMember(ctx context.Context, id uint64) (model.Member, error)
	GetMemberByEmail(ctx context.Context, email string) (model.Member, error)
}

// TokenStore persists hashed refresh tokens.
type TokenStore interface {
	StoreRefresh(ctx context.Context, memberID uint64, tokenHash string, exp time.Time) error
	ValidateRefresh(ctx context.Context, tokenHash string) (uint64, error)
	RevokeByHash(ctx context.Context, tokenHash string) error
	RevokeAllForMember(ctx context.Context, memberID uint64) error
}

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Cfg     config.Config
	Members MemberStore
	Tokens  TokenStore
}

// NewAuthHandler returns an AuthHandler using the member and token stores.
func NewAuthHandler(cfg config.Config, m MemberStore, t TokenStore) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Members: m, Tokens: t}
}

// ----- DTOs -----

type registerReq struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}
type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}
type memberPart struct {
	ID     uint64 `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	Credit int    `json:"credit"`
}
type authResp struct {
	Member  memberPart `json:"member"`
	Access  tokenPart  `json:"access"`
	Refresh tokenPart  `json:"refresh"`
}

func toMemberPart(m model.Member) memberPart {
	return memberPart{ID: m.ID, Name: m.Name, Email: m.Email, Role: m.Role, Credit: m.Credit}
}

// Register creates a MEMBER (ADMIN for configured emails) with full
// credit and returns a token pair.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Name == "" || req.Email == "" || req.Password == "" {
		return badRequest(c, "name/email/password required")
	}
	if err := utils.CheckPassword(req.Password); err != nil {
		return badRequest(c, err.Error())
	}
	role := model.RoleMember
	if slices.Contains(h.Cfg.AdminEmails, req.Email) {
		role = model.RoleAdmin
	}
	hash, err := utils.HashPassword(req.Password, h.Cfg.BcryptCost)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "hash password failed", "code": "INTERNAL"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	m := model.Member{Name: req.Name, Email: req.Email, PasswordHash: hash, Role: role, Credit: model.InitialCredit}
	if err := h.Members.CreateMember(ctx, &m); err != nil {
		if errors.Is(err, service.ErrDuplicate) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "name or email already exists", "code": string(service.KindConflict)})
		}
		return writeError(c, err)
	}
	resp, err := h.issue(ctx, m)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, resp)
}

// Login verifies credentials and returns a new token pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return badRequest(c, "email/password required")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	m, err := h.Members.GetMemberByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return unauthorized(c, "invalid credentials")
		}
		return writeError(c, err)
	}
	if !utils.VerifyPassword(m.PasswordHash, req.Password) {
		return unauthorized(c, "invalid credentials")
	}
	resp, err := h.issue(ctx, m)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// Refresh validates a refresh token by hash, revokes it and issues a new pair.
func (h *AuthHandler) Refresh(c echo.Context) error {
	raw, ok := bindRefresh(c)
	if !ok {
		return badRequest(c, "refresh_token required")
	}
	hash := utils.HashRefreshRaw(raw)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	m, err := h.memberForRefresh(ctx, hash)
	if err != nil {
		return unauthorized(c, "invalid refresh")
	}
	if err := h.Tokens.RevokeByHash(ctx, hash); err != nil {
		return writeError(c, err)
	}
	resp, err := h.issue(ctx, m)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// RefreshAccess returns a new access token without rotating the refresh token.
func (h *AuthHandler) RefreshAccess(c echo.Context) error {
	raw, ok := bindRefresh(c)
	if !ok {
		return badRequest(c, "refresh_token required")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	m, err := h.memberForRefresh(ctx, utils.HashRefreshRaw(raw))
	if err != nil {
		return unauthorized(c, "invalid refresh")
	}
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, m.ID, m.Role, h.Cfg.AccessTTLMin)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"access": tokenPart{Token: access.Token, Expires: access.Exp},
	})
}

// Logout revokes the refresh token in the body, or every refresh token of
// the bearer when the body carries none.
func (h *AuthHandler) Logout(c echo.Context) error {
	var memberID uint64
	if auth := c.Request().Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		if id, _, err := utils.ParseAccessToken(h.Cfg.JWTSecret, strings.TrimPrefix(auth, "Bearer ")); err == nil {
			memberID = id
		}
	}
	var req refreshReq
	_ = c.Bind(&req)
	refreshToken := strings.TrimSpace(req.RefreshToken)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	switch {
	case refreshToken != "":
		hash := utils.HashRefreshRaw(refreshToken)
		if _, err := h.Tokens.ValidateRefresh(ctx, hash); err != nil {
			return unauthorized(c, "invalid refresh token")
		}
		if err := h.Tokens.RevokeByHash(ctx, hash); err != nil {
			return writeError(c, err)
		}
	case memberID != 0:
		if err := h.Tokens.RevokeAllForMember(ctx, memberID); err != nil {
			return writeError(c, err)
		}
	default:
		return badRequest(c, "provide Authorization header or refresh_token")
	}
	return c.NoContent(http.StatusNoContent)
}

// Me returns the authenticated member's profile, including current credit.
func (h *AuthHandler) Me(c echo.Context) error {
	id, ok := middleware.MemberID(c)
	if !ok {
		return unauthorized(c, "unauthorized")
	}
	m, err := h.Members.GetMember(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return unauthorized(c, "unknown member")
		}
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toMemberPart(m))
}

func bindRefresh(c echo.Context) (string, bool) {
	var req refreshReq
	if err := c.Bind(&req); err != nil {
		return "", false
	}
	raw := strings.TrimSpace(req.RefreshToken)
	return raw, raw != ""
}

func (h *AuthHandler) memberForRefresh(ctx context.Context, hash string) (model.Member, error) {
	id, err := h.Tokens.ValidateRefresh(ctx, hash)
	if err != nil {
		return model.Member{}, err
	}
	return h.Members.GetMember(ctx, id)
}

// issue signs an access token and stores a fresh refresh token for m.
func (h *AuthHandler) issue(ctx context.Context, m model.Member) (authResp, error) {
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, m.ID, m.Role, h.Cfg.AccessTTLMin)
	if err != nil {
		return authResp{}, err
	}
	refresh, err := utils.NewRefreshToken(h.Cfg.RefreshTTLDays)
	if err != nil {
		return authResp{}, err
	}
	if err := h.Tokens.StoreRefresh(ctx, m.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
		return authResp{}, err
	}
	return authResp{
		Member:  toMemberPart(m),
		Access:  tokenPart{Token: access.Token, Expires: access.Exp},
		Refresh: tokenPart{Token: refresh.Raw, Expires: refresh.Exp}, // raw back to client
	}, nil
}
