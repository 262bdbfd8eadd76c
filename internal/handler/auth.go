package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/clinic-appointments/internal/config"
	"github.com/iliyamo/clinic-appointments/internal/middleware"
	"github.com/iliyamo/clinic-appointments/internal/model"
	"github.com/iliyamo/clinic-appointments/internal/repository"
	"github.com/iliyamo/clinic-appointments/internal/service"
	"github.com/iliyamo/clinic-appointments/internal/utils"
)

// UserStore is the part of repository.UserRepo the auth endpoints use.
type UserStore interface {
	Create(ctx context.Context, u repository.NewUser, profile *model.Doctor, cost int) (uint64, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByID(ctx context.Context, id uint64) (model.User, error)
}

// TokenStore is the part of repository.TokenRepo the auth endpoints use.
type TokenStore interface {
	StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error
	ValidateRefresh(ctx context.Context, tokenHash string) (uint64, error)
	Rotate(ctx context.Context, userID uint64, oldHash, newHash string, exp time.Time) error
	RevokeByHash(ctx context.Context, tokenHash string) error
	RevokeAllForUser(ctx context.Context, userID uint64) error
}

// AuthHandler serves registration, login and token refresh.
type AuthHandler struct {
	Cfg    config.AuthConfig
	Users  UserStore
	Tokens TokenStore
}

func NewAuthHandler(cfg config.AuthConfig, u UserStore, t TokenStore) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Users: u, Tokens: t}
}

type registerReq struct {
	Email          string `json:"email" validate:"required,email,max=255"`
	Password       string `json:"password" validate:"required,min=8,max=72"`
	FullName       string `json:"full_name" validate:"required,max=200"`
	Phone          string `json:"phone" validate:"max=30"`
	Role           string `json:"role"`
	Specialization string `json:"specialization" validate:"max=100"`
	LicenseNumber  string `json:"license_number" validate:"max=50"`
	Qualification  string `json:"qualification" validate:"max=200"`
}

type loginReq struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

type userPart struct {
	ID       uint64     `json:"id"`
	Email    string     `json:"email"`
	FullName string     `json:"full_name"`
	Role     model.Role `json:"role"`
}

type authResp struct {
	User    userPart  `json:"user"`
	Access  tokenPart `json:"access"`
	Refresh tokenPart `json:"refresh"`
}

// Register creates a Patient or Doctor account and signs it in.
// A Doctor also gets a profile, created in the same transaction.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := bind(c, &req); err != nil {
		return err
	}
	role := model.RolePatient
	if strings.TrimSpace(req.Role) != "" {
		r, err := model.ParseRole(req.Role)
		if err != nil {
			return fail(service.InvalidArgument(err.Error()))
		}
		role = r
	}
	var profile *model.Doctor
	switch role {
	case model.RoleAdmin:
		return fail(service.Forbidden("cannot self-register as Admin"))
	case model.RoleDoctor:
		spec := strings.TrimSpace(req.Specialization)
		if spec == "" {
			return fail(service.InvalidArgument("specialization is required for doctors"))
		}
		profile = &model.Doctor{
			Specialization: spec,
			LicenseNumber:  strings.TrimSpace(req.LicenseNumber),
			Qualification:  strings.TrimSpace(req.Qualification),
			IsAvailable:    true,
		}
	case model.RolePatient:
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	nu := repository.NewUser{
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
		Phone:    strings.TrimSpace(req.Phone),
		Role:     role,
	}
	uid, err := h.Users.Create(ctx, nu, profile, h.Cfg.BcryptCost)
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return fail(service.Conflict("email already exists"))
		}
		return fail(service.Internal("create user", err))
	}
	u := model.User{ID: uid, Email: strings.ToLower(strings.TrimSpace(req.Email)), FullName: strings.TrimSpace(req.FullName), Role: role}
	resp, err := h.issue(ctx, u)
	if err != nil {
		return fail(err)
	}
	return respond(c, http.StatusCreated, "registered", resp)
}

// Login verifies credentials and returns a new token pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, req.Email)
	if errors.Is(err, repository.ErrNotFound) {
		return fail(service.Unauthenticated("invalid credentials"))
	}
	if err != nil {
		return fail(service.Internal("load user", err))
	}
	if !utils.VerifyPassword(u.PasswordHash, req.Password) {
		return fail(service.Unauthenticated("invalid credentials"))
	}
	if !u.IsActive {
		return fail(service.Unauthenticated("account is disabled"))
	}
	resp, err := h.issue(ctx, u)
	if err != nil {
		return fail(err)
	}
	return respond(c, http.StatusOK, "logged in", resp)
}

// Refresh exchanges a refresh token for a new pair.  The old token is
// revoked in the same transaction that stores the new one, so a token
// can be used once.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := bind(c, &req); err != nil {
		return err
	}
	oldHash := utils.HashRefreshRaw(strings.TrimSpace(req.RefreshToken))

	ctx, cancel := reqCtx(c)
	defer cancel()

	uid, err := h.Tokens.ValidateRefresh(ctx, oldHash)
	if errors.Is(err, repository.ErrNotFound) {
		return fail(service.Unauthenticated("invalid refresh token"))
	}
	if err != nil {
		return fail(service.Internal("validate refresh token", err))
	}
	u, err := h.Users.GetByID(ctx, uid)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && !u.IsActive) {
		return fail(service.Unauthenticated("invalid refresh token"))
	}
	if err != nil {
		return fail(service.Internal("load user", err))
	}

	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, u.Role.String(), h.Cfg.AccessTTL)
	if err != nil {
		return fail(service.Internal("issue access token", err))
	}
	refresh, err := utils.NewRefreshToken(h.Cfg.RefreshTTL)
	if err != nil {
		return fail(service.Internal("issue refresh token", err))
	}
	err = h.Tokens.Rotate(ctx, u.ID, oldHash, utils.HashRefreshRaw(refresh.Raw), refresh.Exp)
	if errors.Is(err, repository.ErrNotFound) {
		return fail(service.Unauthenticated("invalid refresh token"))
	}
	if err != nil {
		return fail(service.Internal("rotate refresh token", err))
	}
	return respond(c, http.StatusOK, "token refreshed", authResp{
		User:    userPart{ID: u.ID, Email: u.Email, FullName: u.FullName, Role: u.Role},
		Access:  tokenPart{Token: access.Token, Expires: access.Exp},
		Refresh: tokenPart{Token: refresh.Raw, Expires: refresh.Exp},
	})
}

// Logout revokes the refresh token in the body.  Without one, a valid
// bearer token revokes every session of its user.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	_ = c.Bind(&req)
	raw := strings.TrimSpace(req.RefreshToken)

	ctx, cancel := reqCtx(c)
	defer cancel()

	if raw != "" {
		if err := h.Tokens.RevokeByHash(ctx, utils.HashRefreshRaw(raw)); err != nil {
			return fail(service.Internal("revoke refresh token", err))
		}
		return respond(c, http.StatusOK, "logged out", nil)
	}

	bearer, ok := strings.CutPrefix(c.Request().Header.Get(echo.HeaderAuthorization), "Bearer ")
	if !ok {
		return fail(service.InvalidArgument("refresh_token or bearer token required"))
	}
	claims, err := utils.ParseAccessToken(h.Cfg.JWTSecret, strings.TrimSpace(bearer))
	if err != nil {
		return fail(service.Unauthenticated("invalid token"))
	}
	uid, err := claims.UserID()
	if err != nil {
		return fail(service.Unauthenticated("invalid token"))
	}
	if err := h.Tokens.RevokeAllForUser(ctx, uid); err != nil {
		return fail(service.Internal("revoke sessions", err))
	}
	return respond(c, http.StatusOK, "logged out of all sessions", nil)
}

// Me returns the caller's account.
func (h *AuthHandler) Me(c echo.Context) error {
	id := middleware.IdentityFrom(c)
	if !id.Authenticated() {
		return fail(service.Unauthenticated("authentication required"))
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	u, err := h.Users.GetByID(ctx, id.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return fail(service.NotFound("user not found"))
	}
	if err != nil {
		return fail(service.Internal("load user", err))
	}
	return respond(c, http.StatusOK, "", u)
}

func (h *AuthHandler) issue(ctx context.Context, u model.User) (authResp, error) {
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, u.Role.String(), h.Cfg.AccessTTL)
	if err != nil {
		return authResp{}, service.Internal("issue access token", err)
	}
	refresh, err := utils.NewRefreshToken(h.Cfg.RefreshTTL)
	if err != nil {
		return authResp{}, service.Internal("issue refresh token", err)
	}
	if err := h.Tokens.StoreRefresh(ctx, u.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
		return authResp{}, service.Internal("store refresh token", err)
	}
	return authResp{
		User:    userPart{ID: u.ID, Email: u.Email, FullName: u.FullName, Role: u.Role},
		Access:  tokenPart{Token: access.Token, Expires: access.Exp},
		Refresh: tokenPart{Token: refresh.Raw, Expires: refresh.Exp},
	}, nil
}
