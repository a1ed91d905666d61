package user

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewService(NewRepository(db), "test-secret"), mock
}

func TestRegisterHashesPassword(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery("INSERT INTO users").
		WithArgs("alice", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))

	u, err := svc.Register(context.Background(), &RegisterRequest{Username: "alice", Password: "password123"})

	require.NoError(t, err)
	assert.Equal(t, 3, u.ID)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.Password), []byte("password123")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoginIssuesValidatableToken(t *testing.T) {
	svc, mock := newTestService(t)

	hashed, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT id, username, password FROM users").
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "password"}).AddRow(3, "alice", string(hashed)))

	res, err := svc.Login(context.Background(), &RegisterRequest{Username: "alice", Password: "password123"})
	require.NoError(t, err)
	assert.Equal(t, 3, res.ID)
	assert.Equal(t, "alice", res.Username)

	id, username, err := svc.ValidateToken(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, 3, id)
	assert.Equal(t, "alice", username)
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	svc, mock := newTestService(t)

	hashed, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT id, username, password FROM users").
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "password"}).AddRow(3, "alice", string(hashed)))

	_, err = svc.Login(context.Background(), &RegisterRequest{Username: "alice", Password: "wrong"})
	assert.Error(t, err)
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	svc, _ := newTestService(t)

	_, _, err := svc.ValidateToken("not-a-token")
	assert.Error(t, err)
}

func TestResolveUsername(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery("SELECT id, username, password FROM users").
		WithArgs("bob").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "password"}).AddRow(9, "bob", "x"))

	id, username, err := svc.ResolveUsername(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, 9, id)
	assert.Equal(t, "bob", username)
}

func TestResolveUsernameNotFound(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery("SELECT id, username, password FROM users").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "password"}))

	_, _, err := svc.ResolveUsername(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}
