package rest

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ft-transcendence/server/auth"
	"github.com/ft-transcendence/server/cache"
	"github.com/ft-transcendence/server/config"
	mw "github.com/ft-transcendence/server/middleware"
	"github.com/ft-transcendence/server/model"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	stateTTL   = 10 * time.Minute
	pendingTTL = 10 * time.Minute
)

// AuthHandler handles sign-in REST endpoints: the OAuth flow, local
// email/password login, sessions and two-factor auth.
type AuthHandler struct {
	db     *gorm.DB
	cache  cache.Cache
	sec    config.SecurityConfig
	oauth  *auth.OAuth
	tfa    *auth.TwoFA
	logger *zap.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(db *gorm.DB, c cache.Cache, sec config.SecurityConfig, oauth *auth.OAuth, tfa *auth.TwoFA, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{db: db, cache: c, sec: sec, oauth: oauth, tfa: tfa, logger: logger}
}

// OAuthRedirect handles GET /api/auth/oauth.
// Returns the provider sign-in URL with a fresh CSRF state.
func (h *AuthHandler) OAuthRedirect(c *gin.Context) {
	state := uuid.NewString()
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := h.cache.Set(ctx, "oauthstate:"+state, "1", stateTTL); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": h.oauth.AuthCodeURL(state)})
}

// OAuthCallback handles GET /api/auth/callback?code=...&state=...
// Exchanges the code, upserts the user and opens a session. Accounts
// with two-factor enabled get a pending token instead; the session
// opens once ValidateTFA succeeds.
func (h *AuthHandler) OAuthCallback(c *gin.Context) {
	code := c.Query("code")
	state := c.Query("state")
	if code == "" || state == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing code or state"})
		return
	}

	ctx := c.Request.Context()
	ok, err := h.cache.Exists(ctx, "oauthstate:"+state)
	if err != nil || !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid state"})
		return
	}
	_ = h.cache.Del(ctx, "oauthstate:"+state)

	tok, err := h.oauth.Exchange(ctx, code)
	if err != nil {
		h.logger.Warn("oauth exchange failed", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "oauth exchange failed"})
		return
	}
	profile, err := h.oauth.FetchProfile(ctx, tok)
	if err != nil {
		h.logger.Warn("profile fetch failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "provider unavailable"})
		return
	}
	user, created, err := h.oauth.Upsert(ctx, profile)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if created {
		h.logger.Info("user registered via oauth",
			zap.Int64("user_id", user.ID), zap.String("nick", user.Nick))
	}

	// Each sign-in re-hashes the provider token and voids any previous
	// 2FA validation.
	if hash, err := bcrypt.GenerateFromPassword([]byte(tok.AccessToken), 12); err == nil {
		if err := h.db.Model(&model.User{}).Where("id = ?", user.ID).
			Updates(map[string]interface{}{"token_hash": string(hash), "tfa_validated": false}).Error; err != nil {
			h.logger.Warn("token hash update failed", zap.Error(err))
		}
		user.TokenHash = string(hash)
		user.TFAValidated = false
	}

	if user.TFAEnabled {
		pending := uuid.NewString()
		if err := h.cache.Set(ctx, "pending:"+pending,
			strconv.FormatInt(user.ID, 10), pendingTTL); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		if err := h.tfa.SendCode(ctx, user); err != nil {
			h.logger.Error("tfa code send failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not send code"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"tfa_required": true, "pending_token": pending})
		return
	}

	h.openSession(c, user)
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=4,max=64"`
}

// Login handles POST /api/auth/login.
// Auto-registers on first login if the email is unknown.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var user model.User
	err := h.db.Where("email = ?", req.Email).First(&user).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Auto-register
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), 12)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		nick := strings.SplitN(req.Email, "@", 2)[0]
		user = model.User{
			Email:     req.Email,
			Nick:      nick,
			TokenHash: string(hash),
			Matches:   "0",
			Wins:      "0",
			Losses:    "0",
		}
		if createErr := h.db.Create(&user).Error; createErr != nil {
			// Unique violation: email or nick already taken.
			c.JSON(http.StatusConflict, gin.H{"error": "email or nickname already taken"})
			return
		}
	} else if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	} else {
		if user.TokenHash == "" {
			// OAuth-only account, no local credential set.
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		if err := bcrypt.CompareHashAndPassword([]byte(user.TokenHash), []byte(req.Password)); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
	}

	if user.TFAEnabled {
		ctx := c.Request.Context()
		pending := uuid.NewString()
		_ = h.cache.Set(ctx, "pending:"+pending, strconv.FormatInt(user.ID, 10), pendingTTL)
		if err := h.tfa.SendCode(ctx, &user); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not send code"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"tfa_required": true, "pending_token": pending})
		return
	}

	h.openSession(c, &user)
}

type tfaValidateRequest struct {
	PendingToken string `json:"pending_token" binding:"required"`
	Code         string `json:"code" binding:"required"`
}

// ValidateTFA handles POST /api/auth/tfa/validate.
// Promotes a pending sign-in into a full session.
func (h *AuthHandler) ValidateTFA(c *gin.Context) {
	var req tfaValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	idStr, err := h.cache.Get(ctx, "pending:"+req.PendingToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown pending token"})
		return
	}
	userID, _ := strconv.ParseInt(idStr, 10, 64)

	if err := h.tfa.Validate(ctx, userID, req.Code); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	_ = h.cache.Del(ctx, "pending:"+req.PendingToken)

	var user model.User
	if err := h.db.First(&user, userID).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	_ = h.db.Model(&user).Update("tfa_validated", true)
	h.openSession(c, &user)
}

type tfaEnableRequest struct {
	Email string `json:"email" binding:"omitempty,email"`
}

// EnableTFA handles POST /api/auth/tfa/enable.
// Optionally takes an alternate delivery address.
func (h *AuthHandler) EnableTFA(c *gin.Context) {
	var req tfaEnableRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	userID := mw.GetUserID(c)
	updates := map[string]interface{}{"tfa_enabled": true, "tfa_validated": false}
	if req.Email != "" {
		updates["tfa_email"] = req.Email
	}
	if err := h.db.Model(&model.User{}).Where("id = ?", userID).Updates(updates).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tfa_enabled": true})
}

// DisableTFA handles POST /api/auth/tfa/disable.
func (h *AuthHandler) DisableTFA(c *gin.Context) {
	userID := mw.GetUserID(c)
	err := h.db.Model(&model.User{}).Where("id = ?", userID).Updates(map[string]interface{}{
		"tfa_enabled": false, "tfa_validated": false, "tfa_email": "",
	}).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tfa_enabled": false})
}

// Logout handles POST /api/auth/logout.
func (h *AuthHandler) Logout(c *gin.Context) {
	header := c.GetHeader("Authorization")
	tokenStr := strings.TrimPrefix(header, "Bearer ")
	if tokenStr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing token"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	_ = h.cache.Del(ctx, "session:"+tokenStr)
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// Refresh handles POST /api/auth/refresh.
func (h *AuthHandler) Refresh(c *gin.Context) {
	userID := mw.GetUserID(c)
	email := mw.GetUserEmail(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	// Invalidate old token
	header := c.GetHeader("Authorization")
	oldToken := strings.TrimPrefix(header, "Bearer ")
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	_ = h.cache.Del(ctx, "session:"+oldToken)

	newToken, err := mw.GenerateToken(userID, email, mw.GetUserNick(c), h.sec.JWTSecret, h.sec.JWTTTLH)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token error"})
		return
	}
	_ = h.cache.Set(ctx, "session:"+newToken, strconv.FormatInt(userID, 10), h.sec.JWTTTLH)

	c.JSON(http.StatusOK, gin.H{"token": newToken})
}

// openSession issues a JWT, stores the session key and answers with
// the token.
func (h *AuthHandler) openSession(c *gin.Context, user *model.User) {
	token, err := mw.GenerateToken(user.ID, user.Email, user.Nick, h.sec.JWTSecret, h.sec.JWTTTLH)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token error"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	_ = h.cache.Set(ctx, "session:"+token, strconv.FormatInt(user.ID, 10), h.sec.JWTTTLH)

	c.JSON(http.StatusOK, gin.H{
		"token":   token,
		"user_id": user.ID,
		"nick":    user.Nick,
	})
}
