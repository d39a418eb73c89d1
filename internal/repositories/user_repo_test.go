package repositories

import (
	"context"
	"regexp"
	"testing"
	"time"

	"hawkinsfarm/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewUserRepo(mock)
	user := &models.User{
		Username:     "ada",
		Email:        "ada@example.com",
		PasswordHash: "$2a$10$hash",
		FullName:     "Ada Farmer",
		Role:         models.RoleFarmer,
	}
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO users (id, username, email, password_hash, full_name, phone_number, role, address, created_at, updated_at)`)).
		WithArgs(pgxmock.AnyArg(), "ada", "ada@example.com", "$2a$10$hash", "Ada Farmer", "", "Farmer", "").
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	require.NoError(t, repo.Create(context.Background(), user))
	assert.NotEqual(t, uuid.Nil, user.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_Create_Duplicate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"})

	err = NewUserRepo(mock).Create(context.Background(), &models.User{Username: "ada", Email: "ada@example.com", Role: models.RoleBuyer})
	assert.ErrorIs(t, err, models.ErrUserExists)
}

func TestUserRepo_GetByLogin(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	now := time.Now()
	cols := []string{"id", "username", "email", "password_hash", "full_name", "phone_number", "role", "address", "created_at", "updated_at"}

	mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE username = $1 OR email = $1 LIMIT 1`)).
		WithArgs("ada@example.com").
		WillReturnRows(pgxmock.NewRows(cols).AddRow(id, "ada", "ada@example.com", "hash", "Ada", "555", "Buyer", "Main St", now, now))
	mock.ExpectQuery(`FROM users WHERE username = \$1 OR email = \$1`).
		WithArgs("ghost").
		WillReturnRows(pgxmock.NewRows(cols))

	repo := NewUserRepo(mock)
	user, err := repo.GetByLogin(context.Background(), "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, id, user.ID)
	assert.Equal(t, models.RoleBuyer, user.Role)

	_, err = repo.GetByLogin(context.Background(), "ghost")
	assert.ErrorIs(t, err, models.ErrUserNotFound)
}
