package services

import (
	"database/sql"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/agrisubsidy/backend/internal/models"
)

type AuthService struct {
	db        *sql.DB
	sessions  *SessionStore
	validator *ValidationHelper
}

// LoginRequest represents the login request payload
// @Description Login request structure
type LoginRequest struct {
	Username string `json:"username" validate:"required" example:"agrovet-nakuru"` // Merchant username
	Password string `json:"password" validate:"required" example:"password123"`    // Merchant password
}

// LoginResponse represents the login response
// @Description Login response structure
type LoginResponse struct {
	Merchant *models.Merchant `json:"merchant"` // Authenticated merchant
}

func NewAuthService(db *sql.DB, sessions *SessionStore) *AuthService {
	return &AuthService{
		db:        db,
		sessions:  sessions,
		validator: NewValidationHelper(),
	}
}

func sessionTTL() time.Duration {
	viper.SetDefault("session.ttl_seconds", 3600)
	return time.Duration(viper.GetInt("session.ttl_seconds")) * time.Second
}

// Login authenticates a merchant and opens a session
// @Summary Login merchant
// @Description Authenticate a merchant with username and password, sets the session cookie
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login request"
// @Success 200 {object} LoginResponse "Login successful"
// @Failure 400 {object} ErrorResponse "Bad credentials"
// @Router /auth/login [post]
func (s *AuthService) Login(w http.ResponseWriter, r *http.Request) {
	log.Printf("[AUTH] Login attempt from IP: %s", r.RemoteAddr)

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req LoginRequest
	if err := dec.Decode(&req); err != nil {
		log.Printf("[AUTH] Login failed - invalid request: %v", err)
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		log.Printf("[AUTH] Multiple JSON objects detected")
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.ValidateStruct(&req); err != nil {
		log.Printf("[AUTH] Login validation failed: %v", err)
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	merchant, err := s.findMerchantByUsername(r, req.Username)
	if err != nil {
		HandleServiceError(w, "AUTH", err)
		return
	}
	if merchant == nil {
		log.Printf("[AUTH] Unknown username: %s", req.Username)
		HandleServiceError(w, "AUTH", ErrBadCredentials)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(merchant.Password), []byte(req.Password)); err != nil {
		log.Printf("[AUTH] Invalid password for merchant: %s", req.Username)
		HandleServiceError(w, "AUTH", ErrBadCredentials)
		return
	}

	token, expires, err := s.sessions.Create(r.Context(), merchant.ID, sessionTTL())
	if err != nil {
		HandleServiceError(w, "AUTH", err)
		return
	}

	log.Printf("[AUTH] Login successful for merchant %s", merchant.ID)
	http.SetCookie(w, NewSessionCookie(token, expires))
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(LoginResponse{Merchant: merchant})
}

// Logout closes the current session
// @Summary Logout merchant
// @Description Delete the session row and expire the session cookie
// @Tags auth
// @Produce json
// @Success 302 {string} string "Redirect to /"
// @Router /auth/logout [post]
func (s *AuthService) Logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(SessionCookieName())
	if err != nil || cookie.Value == "" {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	if err := s.sessions.Invalidate(r.Context(), cookie.Value); err != nil {
		HandleServiceError(w, "AUTH", err)
		return
	}

	log.Printf("[AUTH] Session invalidated from IP: %s", r.RemoteAddr)

	// Expiry in the past deletes the cookie client-side.
	http.SetCookie(w, NewSessionCookie(cookie.Value, time.Now().Add(-time.Second)))
	http.Redirect(w, r, "/", http.StatusFound)
}

// Logged reports the current session's merchant
// @Summary Current session
// @Description Return the merchant bound to the session cookie, or null
// @Tags auth
// @Produce json
// @Success 200 {object} models.Merchant "Merchant or null"
// @Router /auth/logged [get]
func (s *AuthService) Logged(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	cookie, err := r.Cookie(SessionCookieName())
	if err != nil || cookie.Value == "" {
		json.NewEncoder(w).Encode(nil)
		return
	}

	session, err := s.sessions.Authenticate(r.Context(), cookie.Value)
	if err != nil {
		HandleServiceError(w, "AUTH", err)
		return
	}
	if session == nil {
		json.NewEncoder(w).Encode(nil)
		return
	}

	json.NewEncoder(w).Encode(session.Merchant)
}

// CheckUsername looks up a merchant by username
// @Summary Check username
// @Description Return the merchant registered under a username, or null
// @Tags auth
// @Produce json
// @Param username query string true "Username"
// @Success 200 {object} LoginResponse "Merchant or null"
// @Failure 400 {object} ErrorResponse "Missing username"
// @Router /auth/check-username [get]
func (s *AuthService) CheckUsername(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	if username == "" {
		SendErrorResponse(w, "Username is required", http.StatusBadRequest, nil)
		return
	}

	merchant, err := s.findMerchantByUsername(r, username)
	if err != nil {
		HandleServiceError(w, "AUTH", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(LoginResponse{Merchant: merchant})
}

func (s *AuthService) findMerchantByUsername(r *http.Request, username string) (*models.Merchant, error) {
	var merchant models.Merchant
	err := s.db.QueryRowContext(r.Context(), `
		SELECT id, username, password, name, balance, created_at
		FROM merchants
		WHERE username = $1
	`, username).Scan(
		&merchant.ID, &merchant.Username, &merchant.Password,
		&merchant.Name, &merchant.Balance, &merchant.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &merchant, nil
}
