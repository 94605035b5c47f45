package types

import (
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gbl08ma/sqalx"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMockNode(t *testing.T) (sqalx.Node, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to open mock sql db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	node, err := sqalx.New(sqlx.NewDb(db, "postgres"))
	if err != nil {
		t.Fatalf("Failed to create sqalx node: %v", err)
	}
	return node, mock
}

var publicationColumns = []string{"guild_id", "line_id", "channel_id", "message_id", "info_hash", "created_at", "updated_at"}

func TestCreatePublication(t *testing.T) {
	node, mock := setupMockNode(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO metro_status_message").
		WithArgs("g1", "l1", "c1", "m1", "hash", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	record := &PublicationRecord{GuildID: "g1", LineID: LineL1, ChannelID: "c1", MessageID: "m1", InfoHash: "hash"}
	require.NoError(t, record.Create(node))
	assert.False(t, record.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePublication_Duplicate(t *testing.T) {
	node, mock := setupMockNode(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO metro_status_message (.+) ON CONFLICT \\(guild_id, line_id\\) DO NOTHING").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	record := &PublicationRecord{GuildID: "g1", LineID: LineL1, ChannelID: "c2", MessageID: "m2", InfoHash: "hash"}
	err := record.Create(node)
	assert.True(t, errors.Is(err, ErrDuplicateKey))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOverwritePublication(t *testing.T) {
	node, mock := setupMockNode(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO metro_status_message (.+) ON CONFLICT \\(guild_id, line_id\\) DO UPDATE SET").
		WithArgs("g1", "l2", "c2", "m2", "hash", sqlmock.AnyArg(), sqlmock.AnyArg(), "c2", "m2", "hash", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	record := &PublicationRecord{GuildID: "g1", LineID: LineL2, ChannelID: "c2", MessageID: "m2", InfoHash: "hash"}
	assert.NoError(t, record.Overwrite(node))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPublications(t *testing.T) {
	node, mock := setupMockNode(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM metro_status_message ORDER BY guild_id ASC, line_id ASC").
		WillReturnRows(sqlmock.NewRows(publicationColumns).
			AddRow("g1", "l1", "c1", "m1", "h1", now, now).
			AddRow("g2", "l4a", "c2", "m2", "h2", now, now))
	mock.ExpectCommit()

	records, err := GetPublications(node, "")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, LineL4A, records[1].LineID)
	assert.Equal(t, "m2", records[1].MessageID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPublications_ByGuild(t *testing.T) {
	node, mock := setupMockNode(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM metro_status_message WHERE guild_id = \\$1").
		WithArgs("g1").
		WillReturnRows(sqlmock.NewRows(publicationColumns))
	mock.ExpectCommit()

	records, err := GetPublications(node, "g1")
	assert.NoError(t, err)
	assert.Empty(t, records)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdatePublicationHash(t *testing.T) {
	node, mock := setupMockNode(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE metro_status_message SET info_hash = \\$1, updated_at = \\$2 WHERE message_id = \\$3").
		WithArgs("newhash", sqlmock.AnyArg(), "m1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	assert.NoError(t, UpdatePublicationHash(node, "m1", "newhash"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdatePublicationHash_UnknownMessage(t *testing.T) {
	node, mock := setupMockNode(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE metro_status_message").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := UpdatePublicationHash(node, "gone", "newhash")
	assert.True(t, errors.Is(err, ErrRecordNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClearPublications(t *testing.T) {
	node, mock := setupMockNode(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM metro_status_message WHERE guild_id = \\$1").
		WithArgs("g1").
		WillReturnResult(sqlmock.NewResult(0, 7))
	mock.ExpectCommit()

	n, err := NewPublicationStore(node).ClearAll("g1")
	assert.NoError(t, err)
	assert.EqualValues(t, 7, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate(t *testing.T) {
	node, mock := setupMockNode(t)

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS metro_status_message").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	assert.NoError(t, Migrate(node))
	assert.NoError(t, mock.ExpectationsWereMet())
}
