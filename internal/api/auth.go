package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"marketday/internal/bus"
	"marketday/internal/gameerr"
	"marketday/internal/store"
)

const (
	userContextKey = "userId"
	roleContextKey = "role"
)

// Claims is the JWT payload carrying (userId, role), per §4.6.
type Claims struct {
	UserID string     `json:"uid"`
	Role   store.Role `json:"role"`
	jwt.RegisteredClaims
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func checkPassword(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

func (s *Server) generateToken(userID string, role store.Role) (string, time.Time, error) {
	expiresAt := time.Now().Add(72 * time.Hour)
	claims := Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.JWTSecret))
	return signed, expiresAt, err
}

func (s *Server) parseToken(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// AuthMiddleware enforces JWT auth for protected routes.
func (s *Server) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": "MISSING_TOKEN", "error": "missing Authorization header"})
			return
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": "INVALID_AUTH_HEADER", "error": "invalid Authorization header"})
			return
		}

		claims, err := s.parseToken(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": "INVALID_TOKEN", "error": "invalid or expired token"})
			return
		}

		c.Set(userContextKey, claims.UserID)
		c.Set(roleContextKey, claims.Role)
		c.Next()
	}
}

// AdminMiddleware requires role=ADMIN on top of AuthMiddleware, plus a
// second factor when the server's AdminSecret is non-empty: the X-Admin-Key
// header must match it. With an empty AdminSecret the role check alone
// decides.
func (s *Server) AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, _ := c.Get(roleContextKey)
		if role != store.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"code": "FORBIDDEN", "error": "admin role required"})
			return
		}
		if s.AdminSecret != "" && c.GetHeader("X-Admin-Key") != s.AdminSecret {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"code": "FORBIDDEN", "error": "admin key mismatch"})
			return
		}
		c.Next()
	}
}

func currentUserID(c *gin.Context) string {
	if v, ok := c.Get(userContextKey); ok {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

func currentRole(c *gin.Context) store.Role {
	if v, ok := c.Get(roleContextKey); ok {
		if r, ok := v.(store.Role); ok {
			return r
		}
	}
	return ""
}

func writeGameErr(c *gin.Context, err error) {
	kind := gameerr.KindOf(err)
	message := err.Error()
	var gerr *gameerr.Error
	if gameerr.As(err, &gerr) {
		message = gerr.Message
	}
	c.JSON(gameerr.HTTPStatus(kind), gin.H{"code": string(kind), "error": message})
}

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// registerUser implements POST /api/auth/register.
func (s *Server) registerUser(c *gin.Context) {
	var req registerRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_PAYLOAD", "error": "invalid request payload"})
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": "MISSING_CREDENTIALS", "error": "username and password are required"})
		return
	}

	ctx := c.Request.Context()
	if _, err := store.GetUserByUsername(ctx, s.Store.Pool, req.Username); err == nil {
		c.JSON(http.StatusConflict, gin.H{"code": "USERNAME_TAKEN", "error": "username already registered"})
		return
	} else if err != store.ErrNotFound {
		writeGameErr(c, gameerr.Wrap(gameerr.StoreUnavailable, "failed to check username", err))
		return
	}

	pwHash, err := hashPassword(req.Password)
	if err != nil {
		writeGameErr(c, gameerr.Wrap(gameerr.Internal, "failed to hash password", err))
		return
	}

	gs, err := store.GetGameStatus(ctx, s.Store.Pool)
	if err != nil {
		writeGameErr(c, gameerr.Wrap(gameerr.StoreUnavailable, "failed to load game status", err))
		return
	}

	user := store.User{
		ID:           uuid.NewString(),
		Username:     req.Username,
		PasswordHash: pwHash,
		DisplayName:  req.Username,
		Role:         store.RoleUser,
		Cash:         gs.InitialCash,
		FirstSignIn:  true,
	}
	if err := store.CreateUser(ctx, s.Store.Pool, user); err != nil {
		writeGameErr(c, gameerr.Wrap(gameerr.Internal, "failed to create user", err))
		return
	}

	token, expiresAt, err := s.generateToken(user.ID, user.Role)
	if err != nil {
		writeGameErr(c, gameerr.Wrap(gameerr.Internal, "failed to generate token", err))
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"token":     token,
		"expiresAt": expiresAt.UTC().Format(time.RFC3339),
		"userId":    user.ID,
		"username":  user.Username,
	})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// loginUser implements POST /api/auth/login.
func (s *Server) loginUser(c *gin.Context) {
	var req loginRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_PAYLOAD", "error": "invalid request payload"})
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": "MISSING_CREDENTIALS", "error": "username and password are required"})
		return
	}

	ctx := c.Request.Context()
	user, err := store.GetUserByUsername(ctx, s.Store.Pool, req.Username)
	if err == store.ErrNotFound {
		c.JSON(http.StatusUnauthorized, gin.H{"code": "INVALID_CREDENTIALS", "error": "invalid credentials"})
		return
	} else if err != nil {
		writeGameErr(c, gameerr.Wrap(gameerr.StoreUnavailable, "failed to load user", err))
		return
	}
	if err := checkPassword(user.PasswordHash, req.Password); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"code": "INVALID_CREDENTIALS", "error": "invalid credentials"})
		return
	}

	token, expiresAt, err := s.generateToken(user.ID, user.Role)
	if err != nil {
		writeGameErr(c, gameerr.Wrap(gameerr.Internal, "failed to generate token", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":     token,
		"expiresAt": expiresAt.UTC().Format(time.RFC3339),
		"userId":    user.ID,
		"username":  user.Username,
		"role":      user.Role,
	})
}

// me implements GET /api/auth/me.
func (s *Server) me(c *gin.Context) {
	user, err := store.GetUserByID(c.Request.Context(), s.Store.Pool, currentUserID(c))
	if err == store.ErrNotFound {
		c.JSON(http.StatusNotFound, gin.H{"code": "NOT_FOUND", "error": "user not found"})
		return
	} else if err != nil {
		writeGameErr(c, gameerr.Wrap(gameerr.StoreUnavailable, "failed to load user", err))
		return
	}
	c.JSON(http.StatusOK, userView(user))
}

type updateAvatarRequest struct {
	Avatar string `json:"avatar"`
}

// patchAvatar implements PATCH /api/auth/avatar.
func (s *Server) patchAvatar(c *gin.Context) {
	var req updateAvatarRequest
	if err := c.BindJSON(&req); err != nil || strings.TrimSpace(req.Avatar) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_PAYLOAD", "error": "avatar is required"})
		return
	}

	ctx := c.Request.Context()
	userID := currentUserID(c)
	user, err := store.GetUserByID(ctx, s.Store.Pool, userID)
	if err == store.ErrNotFound {
		c.JSON(http.StatusNotFound, gin.H{"code": "NOT_FOUND", "error": "user not found"})
		return
	} else if err != nil {
		writeGameErr(c, gameerr.Wrap(gameerr.StoreUnavailable, "failed to load user", err))
		return
	}
	user.Avatar = req.Avatar
	user.AvatarUpdateCount++
	if err := store.SaveUserAvatar(ctx, s.Store.Pool, user); err != nil {
		writeGameErr(c, gameerr.Wrap(gameerr.Internal, "failed to save avatar", err))
		return
	}
	s.Bus.ToUser(userID, bus.EventUserDataUpdated, userView(user))
	c.JSON(http.StatusOK, userView(user))
}

type updateAccountRequest struct {
	DisplayName *string `json:"displayName"`
	Password    *string `json:"password"`
}

// patchAccount implements PATCH /api/auth/account.
func (s *Server) patchAccount(c *gin.Context) {
	var req updateAccountRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_PAYLOAD", "error": "invalid request payload"})
		return
	}

	ctx := c.Request.Context()
	userID := currentUserID(c)
	user, err := store.GetUserByID(ctx, s.Store.Pool, userID)
	if err == store.ErrNotFound {
		c.JSON(http.StatusNotFound, gin.H{"code": "NOT_FOUND", "error": "user not found"})
		return
	} else if err != nil {
		writeGameErr(c, gameerr.Wrap(gameerr.StoreUnavailable, "failed to load user", err))
		return
	}
	if req.DisplayName != nil && strings.TrimSpace(*req.DisplayName) != "" {
		user.DisplayName = strings.TrimSpace(*req.DisplayName)
	}
	if req.Password != nil && *req.Password != "" {
		pwHash, err := hashPassword(*req.Password)
		if err != nil {
			writeGameErr(c, gameerr.Wrap(gameerr.Internal, "failed to hash password", err))
			return
		}
		user.PasswordHash = pwHash
	}
	if err := store.UpdateUserProfile(ctx, s.Store.Pool, user); err != nil {
		writeGameErr(c, gameerr.Wrap(gameerr.Internal, "failed to save account", err))
		return
	}
	s.Bus.ToUser(userID, bus.EventUserDataUpdated, userView(user))
	c.JSON(http.StatusOK, userView(user))
}

func userView(u store.User) gin.H {
	return gin.H{
		"userId":              u.ID,
		"username":            u.Username,
		"displayName":         u.DisplayName,
		"avatar":              u.Avatar,
		"role":                u.Role,
		"cash":                u.Cash,
		"stocks":              u.Stocks,
		"debt":                u.Debt,
		"dailyBorrowed":       u.DailyBorrowed,
		"firstSignIn":         u.FirstSignIn,
		"isEmployee":          u.IsEmployee,
		"avatarUpdateCount":   u.AvatarUpdateCount,
		"loanSharkVisitCount": u.LoanSharkVisitCount,
	}
}
