package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v8"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/agrisubsidy/backend/internal/models"
)

const sessionLookupQuery = "SELECT s.token, s.merchant_id, s.expires, m.id, m.username, m.name, m.balance, m.created_at FROM sessions s INNER JOIN merchants m ON m.id = s.merchant_id WHERE s.token = \\$1"

func sessionColumns() []string {
	return []string{"token", "merchant_id", "expires", "id", "username", "name", "balance", "created_at"}
}

func TestSessionStore_Authenticate(t *testing.T) {
	t.Run("valid token resolves merchant", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		store := NewSessionStore(db, nil)
		expires := time.Now().Add(time.Hour)

		mock.ExpectQuery(sessionLookupQuery).
			WithArgs("tok-1").
			WillReturnRows(sqlmock.NewRows(sessionColumns()).
				AddRow("tok-1", "merchant-1", expires,
					"merchant-1", "agrovet-nakuru", "Nakuru Agrovet Ltd", "1000", time.Now()))

		session, err := store.Authenticate(context.Background(), "tok-1")
		assert.NoError(t, err)
		assert.NotNil(t, session)
		assert.Equal(t, "merchant-1", session.Merchant.ID)
		assert.Equal(t, "agrovet-nakuru", session.Merchant.Username)
		assert.True(t, session.Merchant.Balance.Equal(decimal.NewFromInt(1000)))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("expired session yields no session and no error", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		store := NewSessionStore(db, nil)

		// One second past the expiry instant.
		mock.ExpectQuery(sessionLookupQuery).
			WithArgs("tok-stale").
			WillReturnRows(sqlmock.NewRows(sessionColumns()).
				AddRow("tok-stale", "merchant-1", time.Now().Add(-time.Second),
					"merchant-1", "agrovet-nakuru", "Nakuru Agrovet Ltd", "1000", time.Now()))

		session, err := store.Authenticate(context.Background(), "tok-stale")
		assert.NoError(t, err)
		assert.Nil(t, session)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown token yields no session and no error", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		store := NewSessionStore(db, nil)

		mock.ExpectQuery(sessionLookupQuery).
			WithArgs("tok-fake").
			WillReturnRows(sqlmock.NewRows(sessionColumns()))

		session, err := store.Authenticate(context.Background(), "tok-fake")
		assert.NoError(t, err)
		assert.Nil(t, session)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty token skips lookup", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		store := NewSessionStore(db, nil)

		session, err := store.Authenticate(context.Background(), "")
		assert.NoError(t, err)
		assert.Nil(t, session)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("cache hit skips the database", func(t *testing.T) {
		db, dbMock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		redisClient, redisMock := redismock.NewClientMock()
		store := NewSessionStore(db, redisClient)

		cached := models.SessionWithMerchant{
			Session: models.Session{Token: "tok-1", MerchantID: "merchant-1", Expires: time.Now().Add(time.Hour)},
			Merchant: models.Merchant{
				ID:       "merchant-1",
				Username: "agrovet-nakuru",
				Name:     "Nakuru Agrovet Ltd",
				Balance:  decimal.NewFromInt(1000),
			},
		}
		data, err := json.Marshal(&cached)
		assert.NoError(t, err)

		redisMock.ExpectGet("session:tok-1").SetVal(string(data))

		session, err := store.Authenticate(context.Background(), "tok-1")
		assert.NoError(t, err)
		assert.NotNil(t, session)
		assert.Equal(t, "merchant-1", session.Merchant.ID)
		assert.NoError(t, dbMock.ExpectationsWereMet())
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})

	t.Run("expired cache entry is not served", func(t *testing.T) {
		db, dbMock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		redisClient, redisMock := redismock.NewClientMock()
		store := NewSessionStore(db, redisClient)

		cached := models.SessionWithMerchant{
			Session: models.Session{Token: "tok-1", MerchantID: "merchant-1", Expires: time.Now().Add(-time.Minute)},
		}
		data, err := json.Marshal(&cached)
		assert.NoError(t, err)

		redisMock.ExpectGet("session:tok-1").SetVal(string(data))

		session, err := store.Authenticate(context.Background(), "tok-1")
		assert.NoError(t, err)
		assert.Nil(t, session)
		assert.NoError(t, dbMock.ExpectationsWereMet())
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})
}

func TestSessionStore_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	store := NewSessionStore(db, nil)

	mock.ExpectExec("INSERT INTO sessions \\(token, merchant_id, expires\\) VALUES \\(\\$1, \\$2, \\$3\\)").
		WithArgs(sqlmock.AnyArg(), "merchant-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	token, expires, err := store.Create(context.Background(), "merchant-1", time.Hour)
	assert.NoError(t, err)
	assert.Len(t, token, 32)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, 5*time.Second)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionStore_Invalidate(t *testing.T) {
	t.Run("deletes row and cache entry", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		redisClient, redisMock := redismock.NewClientMock()
		store := NewSessionStore(db, redisClient)

		mock.ExpectExec("DELETE FROM sessions WHERE token = \\$1").
			WithArgs("tok-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		redisMock.ExpectDel("session:tok-1").SetVal(1)

		assert.NoError(t, store.Invalidate(context.Background(), "tok-1"))
		assert.NoError(t, mock.ExpectationsWereMet())
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})

	t.Run("missing row is not an error", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		store := NewSessionStore(db, nil)

		mock.ExpectExec("DELETE FROM sessions WHERE token = \\$1").
			WithArgs("tok-gone").
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.NoError(t, store.Invalidate(context.Background(), "tok-gone"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGenerateSessionToken(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		token, err := generateSessionToken()
		assert.NoError(t, err)
		assert.Len(t, token, 32)
		assert.False(t, seen[token], "token repeated")
		seen[token] = true
	}
}
