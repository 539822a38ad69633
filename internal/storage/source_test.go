package storage

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0x0BSoD/cryptonews/internal/model"
)

func TestSourceStorage_Add(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(`INSERT INTO sources`).
		WithArgs("Cointelegraph", "https://cointelegraph.com/rss", "https://cointelegraph.com", false).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))

	id, err := NewSourceStorage(db).Add(context.Background(), model.Source{
		Name:    "Cointelegraph",
		FeedURL: "https://cointelegraph.com/rss",
		SiteURL: "https://cointelegraph.com",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
}

func TestSourceStorage_SourceByIDNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(`FROM sources`).WithArgs(int64(9)).WillReturnError(sql.ErrNoRows)

	_, err := NewSourceStorage(db).SourceByID(context.Background(), 9)
	assert.ErrorIs(t, err, ErrSourceNotFound)
}

func TestSourceStorage_DeleteMissing(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec(`DELETE FROM sources`).WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := NewSourceStorage(db).Delete(context.Background(), 3)
	assert.ErrorIs(t, err, ErrSourceNotFound)
}
