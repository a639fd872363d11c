package services

import (
	"context"
	cryptorand "crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/agrisubsidy/backend/internal/models"
)

// SessionStore maps opaque tokens to merchant identities. Rows live in
// Postgres; Redis, when available, serves as a read-through cache so the
// per-request lookup usually avoids a database round trip.
type SessionStore struct {
	db    *sql.DB
	redis *redis.Client
}

func NewSessionStore(db *sql.DB, redisClient *redis.Client) *SessionStore {
	return &SessionStore{
		db:    db,
		redis: redisClient,
	}
}

func sessionCacheKey(token string) string {
	return fmt.Sprintf("session:%s", token)
}

// Authenticate resolves a token to its session and merchant. Absent tokens
// and expired sessions both yield (nil, nil); expired rows are left in
// place for Invalidate to remove.
func (s *SessionStore) Authenticate(ctx context.Context, token string) (*models.SessionWithMerchant, error) {
	if token == "" {
		return nil, nil
	}

	if cached := s.fromCache(ctx, token); cached != nil {
		if cached.Expired(time.Now()) {
			return nil, nil
		}
		return cached, nil
	}

	var session models.SessionWithMerchant
	err := s.db.QueryRowContext(ctx, `
		SELECT s.token, s.merchant_id, s.expires,
		       m.id, m.username, m.name, m.balance, m.created_at
		FROM sessions s
		INNER JOIN merchants m ON m.id = s.merchant_id
		WHERE s.token = $1
	`, token).Scan(
		&session.Token, &session.MerchantID, &session.Expires,
		&session.Merchant.ID, &session.Merchant.Username, &session.Merchant.Name,
		&session.Merchant.Balance, &session.Merchant.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session lookup failed: %w", err)
	}

	if session.Expired(time.Now()) {
		return nil, nil
	}

	s.toCache(ctx, &session)
	return &session, nil
}

// Create issues a fresh session for a merchant, valid for ttl from now.
func (s *SessionStore) Create(ctx context.Context, merchantID string, ttl time.Duration) (string, time.Time, error) {
	token, err := generateSessionToken()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("token generation failed: %w", err)
	}

	expires := time.Now().Add(ttl)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (token, merchant_id, expires)
		VALUES ($1, $2, $3)
	`, token, merchantID, expires)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("session create failed: %w", err)
	}

	return token, expires, nil
}

// Invalidate deletes the session row and its cache entry. A token with no
// matching row is not an error; callers proceed to the unauthenticated
// outcome either way.
func (s *SessionStore) Invalidate(ctx context.Context, token string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = $1`, token); err != nil {
		return fmt.Errorf("session delete failed: %w", err)
	}

	if s.redis != nil {
		if err := s.redis.Del(ctx, sessionCacheKey(token)).Err(); err != nil {
			log.Printf("[SESSION] Failed to drop cache entry: %v", err)
		}
	}

	return nil
}

func (s *SessionStore) fromCache(ctx context.Context, token string) *models.SessionWithMerchant {
	if s.redis == nil {
		return nil
	}

	data, err := s.redis.Get(ctx, sessionCacheKey(token)).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Printf("[SESSION] Cache read failed: %v", err)
		}
		return nil
	}

	var session models.SessionWithMerchant
	if err := json.Unmarshal(data, &session); err != nil {
		log.Printf("[SESSION] Cache entry corrupt, ignoring: %v", err)
		return nil
	}
	return &session
}

func (s *SessionStore) toCache(ctx context.Context, session *models.SessionWithMerchant) {
	if s.redis == nil {
		return
	}

	ttl := time.Until(session.Expires)
	if ttl <= 0 {
		return
	}

	data, err := json.Marshal(session)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, sessionCacheKey(session.Token), data, ttl).Err(); err != nil {
		log.Printf("[SESSION] Cache write failed: %v", err)
	}
}

// generateSessionToken returns 32 URL-safe characters from crypto/rand.
func generateSessionToken() (string, error) {
	b := make([]byte, 24)
	if _, err := cryptorand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
