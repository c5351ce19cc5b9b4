// Package httpapi exposes the authentication engine over HTTP using gin.
// Refresh tokens travel in an HttpOnly cookie; access tokens in the
// Authorization header.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/authgate/authgate"
)

const (
	refreshCookieName = "refresh_token"
	contextUserKey    = "authgate_user"
)

// Config defines a public type used by authgate APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	// CookieDomain and CookieSecure are applied to the refresh cookie.
	CookieDomain string
	CookieSecure bool
	// CookieMaxAge in seconds; should match the refresh TTL.
	CookieMaxAge int
}

// Handler defines a public type used by authgate APIs.
//
// Handler instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Handler struct {
	engine *authgate.Engine
	config Config
}

// NewHandler describes the newhandler operation and its observable behavior.
//
// NewHandler may return an error when input validation, dependency calls, or security checks fail.
// NewHandler does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewHandler(engine *authgate.Engine, cfg Config) (*Handler, error) {
	if engine == nil {
		return nil, errors.New("nil engine")
	}
	if cfg.CookieMaxAge <= 0 {
		cfg.CookieMaxAge = 7 * 24 * 60 * 60
	}
	return &Handler{engine: engine, config: cfg}, nil
}

// Register mounts the auth routes on the given router group.
func (h *Handler) Register(r gin.IRouter) {
	auth := r.Group("/api/auth")
	auth.POST("/register", h.register)
	auth.POST("/login", h.login)
	auth.POST("/resend-otp", h.resendOTP)
	auth.POST("/verify-otp", h.verifyOTP)
	auth.POST("/refresh", h.refresh)
	auth.POST("/logout", h.logout)
	auth.POST("/forgot-password", h.forgotPassword)
	auth.POST("/verify-reset-otp", h.verifyResetOTP)
	auth.POST("/reset-password", h.resetPassword)
	auth.GET("/me", h.RequireAuth(), h.me)
}

// RequireAuth validates the bearer token and stores the result in the gin
// context under the key returned by [AuthFromContext].
func (h *Handler) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		result, err := h.engine.Validate(requestContext(c), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(contextUserKey, result)
		c.Next()
	}
}

// AuthFromContext returns the validated identity placed by [Handler.RequireAuth].
func AuthFromContext(c *gin.Context) (*authgate.AuthResult, bool) {
	v, ok := c.Get(contextUserKey)
	if !ok {
		return nil, false
	}
	result, ok := v.(*authgate.AuthResult)
	return result, ok
}

func (h *Handler) register(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
		Role     string `json:"role"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	user, err := h.engine.Register(requestContext(c), req.Email, req.Password, authgate.Role(req.Role))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"user": user})
}

func (h *Handler) login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := h.engine.Login(requestContext(c), req.Email, req.Password); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "otp sent"})
}

func (h *Handler) resendOTP(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := h.engine.RequestOTP(requestContext(c), req.Email); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "otp sent"})
}

func (h *Handler) verifyOTP(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
		OTP   string `json:"otp" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	session, err := h.engine.VerifyOTP(requestContext(c), req.Email, req.OTP)
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.setRefreshCookie(c, session.RefreshToken)
	c.JSON(http.StatusOK, gin.H{
		"accessToken": session.AccessToken,
		"user":        session.User,
	})
}

func (h *Handler) refresh(c *gin.Context) {
	token := h.refreshTokenFromRequest(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing refresh token"})
		return
	}

	session, err := h.engine.Refresh(requestContext(c), token)
	if err != nil {
		h.clearRefreshCookie(c)
		h.writeError(c, err)
		return
	}

	h.setRefreshCookie(c, session.RefreshToken)
	c.JSON(http.StatusOK, gin.H{
		"accessToken": session.AccessToken,
		"user":        session.User,
	})
}

func (h *Handler) logout(c *gin.Context) {
	token := h.refreshTokenFromRequest(c)
	if token != "" {
		if err := h.engine.Logout(requestContext(c), token); err != nil {
			h.clearRefreshCookie(c)
			h.writeError(c, err)
			return
		}
	}

	h.clearRefreshCookie(c)
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

func (h *Handler) forgotPassword(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := h.engine.ForgotPassword(requestContext(c), req.Email); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "reset otp sent"})
}

func (h *Handler) verifyResetOTP(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
		OTP   string `json:"otp" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := h.engine.VerifyResetOTP(requestContext(c), req.Email, req.OTP); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "otp verified"})
}

func (h *Handler) resetPassword(c *gin.Context) {
	var req struct {
		Email       string `json:"email" binding:"required"`
		OTP         string `json:"otp" binding:"required"`
		NewPassword string `json:"newPassword" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := h.engine.ResetPassword(requestContext(c), req.Email, req.OTP, req.NewPassword); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "password reset"})
}

func (h *Handler) me(c *gin.Context) {
	result, ok := AuthFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	user, err := h.engine.Me(requestContext(c), bearerToken(c))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user, "role": result.Role})
}

func (h *Handler) refreshTokenFromRequest(c *gin.Context) string {
	if cookie, err := c.Cookie(refreshCookieName); err == nil && cookie != "" {
		return cookie
	}
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := c.ShouldBindJSON(&req); err == nil {
		return req.RefreshToken
	}
	return ""
}

func (h *Handler) setRefreshCookie(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(refreshCookieName, token, h.config.CookieMaxAge, "/api/auth", h.config.CookieDomain, h.config.CookieSecure, true)
}

func (h *Handler) clearRefreshCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(refreshCookieName, "", -1, "/api/auth", h.config.CookieDomain, h.config.CookieSecure, true)
}

func (h *Handler) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	message := "internal error"

	switch {
	case errors.Is(err, authgate.ErrValidation),
		errors.Is(err, authgate.ErrRoleInvalid),
		errors.Is(err, authgate.ErrPasswordPolicy):
		status = http.StatusBadRequest
		message = err.Error()
	case errors.Is(err, authgate.ErrInvalidCredentials),
		errors.Is(err, authgate.ErrInvalidOTP),
		errors.Is(err, authgate.ErrNoOTPRequested),
		errors.Is(err, authgate.ErrOTPExpired),
		errors.Is(err, authgate.ErrTokenInvalid),
		errors.Is(err, authgate.ErrTokenExpired),
		errors.Is(err, authgate.ErrRefreshInvalid),
		errors.Is(err, authgate.ErrRefreshReuse):
		status = http.StatusUnauthorized
		message = err.Error()
	case errors.Is(err, authgate.ErrUserNotFound):
		status = http.StatusNotFound
		message = err.Error()
	case errors.Is(err, authgate.ErrUserExists):
		status = http.StatusConflict
		message = err.Error()
	case errors.Is(err, authgate.ErrAccountLocked):
		status = http.StatusLocked
		message = err.Error()
	case errors.Is(err, authgate.ErrTooManyOTPAttempts):
		status = http.StatusTooManyRequests
		message = err.Error()
	case errors.Is(err, authgate.ErrDeliveryFailed),
		errors.Is(err, authgate.ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
		message = err.Error()
	}

	c.JSON(status, gin.H{"error": message})
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func requestContext(c *gin.Context) context.Context {
	ctx := authgate.WithClientIP(c.Request.Context(), c.ClientIP())
	if ua := c.Request.UserAgent(); ua != "" {
		ctx = authgate.WithUserAgent(ctx, ua)
	}
	return ctx
}
