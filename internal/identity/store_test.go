package identity

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/lead-pipeline/internal/domain"
)

func identityRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "email", "phone", "full_name", "alias_of", "created_at"})
}

func TestPGStore_FindByAnyBuildsConditions(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`email = \$1 OR phone = \$2`).
		WithArgs("a@x.com", "555").
		WillReturnRows(identityRows().
			AddRow("p1", "a@x.com", "555", "ann smith", "", now))

	store := NewPGStore(db)
	out, err := store.FindByAny(context.Background(), "a@x.com", "555", "")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "p1", out[0].ID)
	assert.False(t, out[0].IsAlias())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGStore_FindByAnyNoFieldsShortCircuits(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	store := NewPGStore(db)
	out, err := store.FindByAny(context.Background(), "", "", "")
	require.NoError(t, err)
	assert.Empty(t, out)
	// no query issued at all
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGStore_GetAlias(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`FROM lead_identities WHERE id`).
		WithArgs("al1").
		WillReturnRows(identityRows().
			AddRow("al1", "a@x.com", "", "ann s", "p1", time.Now()))

	store := NewPGStore(db)
	ident, err := store.Get(context.Background(), "al1")
	require.NoError(t, err)
	assert.True(t, ident.IsAlias())
	assert.Equal(t, "p1", ident.AliasOf)
}

func TestPGStore_GetNotFound(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`FROM lead_identities WHERE id`).
		WithArgs("ghost").
		WillReturnRows(identityRows())

	store := NewPGStore(db)
	_, err = store.Get(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPGStore_InsertAssignsID(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO lead_identities`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewPGStore(db)
	ident := domain.Identity{Email: "a@x.com"}
	require.NoError(t, store.Insert(context.Background(), &ident))
	assert.NotEmpty(t, ident.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
