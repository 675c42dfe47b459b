package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRepository(db), mock
}

func TestRepository_Get(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT value")).
		WithArgs("u1", KeyGoldRate).
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow([]byte(`6150.5`)))

	v, err := repo.Get(context.Background(), "u1", KeyGoldRate)
	require.NoError(t, err)
	assert.Equal(t, "6150.5", string(v))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_GetMissing(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT value")).
		WithArgs("u1", KeyBannerSeen).
		WillReturnRows(sqlmock.NewRows([]string{"value"}))

	_, err := repo.Get(context.Background(), "u1", KeyBannerSeen)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepository_PutAndDelete(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO scheme.client_state")).
		WithArgs("u1", KeyActiveLimit, []byte(`{"min":"1000"}`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM scheme.client_state")).
		WithArgs("u1", KeyActiveLimit).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Put(context.Background(), "u1", KeyActiveLimit, []byte(`{"min":"1000"}`)))
	require.NoError(t, repo.Delete(context.Background(), "u1", KeyActiveLimit))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_PutError(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO scheme.client_state")).
		WillReturnError(errors.New("connection reset"))

	err := repo.Put(context.Background(), "u1", KeyGoldRate, []byte(`1`))
	assert.ErrorContains(t, err, "failed to put gold_rate")
}

func TestMemory_JSONHelpers(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, err := GetJSON[bool](ctx, m, "u1", KeyBannerSeen)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, PutJSON(ctx, m, "u1", KeyBannerSeen, true))
	seen, err := GetJSON[bool](ctx, m, "u1", KeyBannerSeen)
	require.NoError(t, err)
	assert.True(t, seen)

	// owners are isolated
	_, err = m.Get(ctx, "u2", KeyBannerSeen)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.Delete(ctx, "u1", KeyBannerSeen))
	_, err = m.Get(ctx, "u1", KeyBannerSeen)
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, m.Delete(ctx, "nobody", KeyBannerSeen))
}
