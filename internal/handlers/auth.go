package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/anonto42/nano-midea/social/internal/models"
	"github.com/anonto42/nano-midea/social/internal/repositories"
	"github.com/anonto42/nano-midea/social/pkg/firebase"
	"github.com/anonto42/nano-midea/social/pkg/logger"
)

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	userRepository repositories.UserRepository
	firebaseAuth   firebase.IDTokenVerifier
	jwtSecret      string
	tokenTTL       time.Duration
	log            logger.Logger
}

// NewAuthHandler creates a new AuthHandler. firebaseAuth may be nil, in which case
// Firebase login is unavailable.
func NewAuthHandler(userRepo repositories.UserRepository, firebaseAuth firebase.IDTokenVerifier, jwtSecret string, tokenTTL time.Duration, log logger.Logger) *AuthHandler {
	return &AuthHandler{
		userRepository: userRepo,
		firebaseAuth:   firebaseAuth,
		jwtSecret:      jwtSecret,
		tokenTTL:       tokenTTL,
		log:            log,
	}
}

// RegisterAuthRoutes registers authentication-related routes
func (h *AuthHandler) RegisterAuthRoutes(g *echo.Group) {
	g.POST("/register", h.Register)
	g.POST("/signup", h.Signup)
	g.POST("/signin", h.SignIn)
	g.POST("/firebase-login", h.FirebaseLogin)
}

// Register creates a user for a Firebase UID the client obtained itself
func (h *AuthHandler) Register(c echo.Context) error {
	var req models.CreateUserRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()

	if _, err := h.userRepository.GetUserByFirebaseUID(ctx, req.FirebaseUID); err == nil {
		return echo.NewHTTPError(http.StatusConflict, "User with this Firebase UID already registered")
	}

	uid := req.FirebaseUID
	user := &models.User{
		Name:        req.Name,
		Email:       req.Email,
		Age:         req.Age,
		FirebaseUID: &uid,
	}
	if err := h.userRepository.CreateUser(ctx, user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return echo.NewHTTPError(http.StatusConflict, "User with this email already registered")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to create user")
	}

	return c.JSON(http.StatusCreated, user)
}

// Signup handles local user registration with email and password
func (h *AuthHandler) Signup(c echo.Context) error {
	var req models.CreateLocalUserRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()

	if _, err := h.userRepository.GetUserByEmail(ctx, req.Email); err == nil {
		return echo.NewHTTPError(http.StatusConflict, "User with this email already registered")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to hash password")
	}

	user := &models.User{
		Name:     req.Name,
		Email:    req.Email,
		Age:      req.Age,
		Password: string(hashedPassword),
	}
	if err := h.userRepository.CreateUser(ctx, user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return echo.NewHTTPError(http.StatusConflict, "User with this email already registered")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to create user")
	}

	token, err := h.generateJWT(user)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to generate token after signup")
	}

	return c.JSON(http.StatusCreated, echo.Map{"token": token})
}

// SignIn handles local user authentication with email and password
func (h *AuthHandler) SignIn(c echo.Context) error {
	var req models.SignInRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	user, err := h.userRepository.GetUserByEmail(c.Request().Context(), req.Email)
	if err != nil || user.Password == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid email or password")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid email or password")
	}

	token, err := h.generateJWT(user)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to generate token")
	}

	return c.JSON(http.StatusOK, echo.Map{"token": token})
}

// FirebaseLoginRequest defines the request body for Firebase login
type FirebaseLoginRequest struct {
	IDToken string `json:"idToken" validate:"required"`
}

// FirebaseLogin verifies a Firebase ID token and issues a local JWT, creating or
// linking the local account on first login.
func (h *AuthHandler) FirebaseLogin(c echo.Context) error {
	if h.firebaseAuth == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "Firebase login is not configured")
	}

	var req FirebaseLoginRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()

	token, err := h.firebaseAuth.VerifyIDToken(ctx, req.IDToken)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid Firebase ID token")
	}

	firebaseUID := token.UID
	email, _ := token.Claims["email"].(string)
	if email == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Firebase account has no email address")
	}
	name, _ := token.Claims["name"].(string)

	user, err := h.userRepository.GetUserByFirebaseUID(ctx, firebaseUID)
	switch {
	case err == nil:
		user.Email = email
		if name != "" {
			user.Name = name
		}
		if err := h.userRepository.UpdateUser(ctx, user); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "Failed to update user details")
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		user, err = h.userRepository.GetUserByEmail(ctx, email)
		switch {
		case err == nil:
			user.FirebaseUID = &firebaseUID
			if err := h.userRepository.UpdateUser(ctx, user); err != nil {
				return echo.NewHTTPError(http.StatusInternalServerError, "Failed to update user with Firebase UID")
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			user = &models.User{Name: name, Email: email, FirebaseUID: &firebaseUID}
			if err := h.userRepository.CreateUser(ctx, user); err != nil {
				return echo.NewHTTPError(http.StatusInternalServerError, "Failed to create user")
			}
			h.log.Info(ctx, "Created user from Firebase login", "user_id", user.ID)
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, "Database error")
		}
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "Database error")
	}

	localJWT, err := h.generateJWT(user)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to generate local JWT")
	}

	return c.JSON(http.StatusOK, echo.Map{"token": localJWT})
}

// generateJWT generates a JWT token for a given user
func (h *AuthHandler) generateJWT(user *models.User) (string, error) {
	now := time.Now()
	claims := &models.JwtCustomClaims{
		UserID: user.ID,
		Email:  user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(h.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(h.jwtSecret))
}
