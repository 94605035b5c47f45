package types

import (
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/gbl08ma/sqalx"
)

// PublicationRecord tracks a status message previously sent to a guild
// channel for one line
type PublicationRecord struct {
	GuildID   string
	LineID    LineID
	ChannelID string
	MessageID string
	InfoHash  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// GetPublications returns the publication records of a guild, or of every
// guild when guildID is empty, ordered by guild and line
func GetPublications(node sqalx.Node, guildID string) ([]*PublicationRecord, error) {
	s := sdb.Select()
	if guildID != "" {
		s = s.Where(sq.Eq{"guild_id": guildID})
	}
	return getPublicationsWithSelect(node, s)
}

// GetPublicationByMessage returns the publication record for the given message
func GetPublicationByMessage(node sqalx.Node, messageID string) (*PublicationRecord, error) {
	records, err := getPublicationsWithSelect(node, sdb.Select().Where(sq.Eq{"message_id": messageID}))
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrRecordNotFound
	}
	return records[0], nil
}

func getPublicationsWithSelect(node sqalx.Node, sbuilder sq.SelectBuilder) ([]*PublicationRecord, error) {
	records := []*PublicationRecord{}

	tx, err := node.Beginx()
	if err != nil {
		return records, err
	}
	defer tx.Commit() // read-only tx

	rows, err := sbuilder.Columns("guild_id", "line_id", "channel_id", "message_id", "info_hash", "created_at", "updated_at").
		From("metro_status_message").
		OrderBy("guild_id ASC", "line_id ASC").
		RunWith(tx).Query()
	if err != nil {
		return records, fmt.Errorf("getPublicationsWithSelect: %s", err)
	}
	defer rows.Close()

	for rows.Next() {
		var record PublicationRecord
		var lineID string
		err := rows.Scan(
			&record.GuildID,
			&lineID,
			&record.ChannelID,
			&record.MessageID,
			&record.InfoHash,
			&record.CreatedAt,
			&record.UpdatedAt)
		if err != nil {
			return records, fmt.Errorf("getPublicationsWithSelect: %s", err)
		}
		record.LineID = LineID(lineID)
		records = append(records, &record)
	}
	if err := rows.Err(); err != nil {
		return records, fmt.Errorf("getPublicationsWithSelect: %s", err)
	}
	return records, nil
}

// Create inserts the record. It fails with ErrDuplicateKey if the guild
// already has a record for the line; use Overwrite to replace it.
func (record *PublicationRecord) Create(node sqalx.Node) error {
	tx, err := node.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	result, err := sdb.Insert("metro_status_message").
		Columns("guild_id", "line_id", "channel_id", "message_id", "info_hash", "created_at", "updated_at").
		Values(record.GuildID, string(record.LineID), record.ChannelID, record.MessageID, record.InfoHash, now, now).
		Suffix("ON CONFLICT (guild_id, line_id) DO NOTHING").
		RunWith(tx).Exec()
	if err != nil {
		return errors.New("CreatePublication: " + err.Error())
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return errors.New("CreatePublication: " + err.Error())
	}
	if affected == 0 {
		return fmt.Errorf("CreatePublication: %w", ErrDuplicateKey)
	}
	record.CreatedAt, record.UpdatedAt = now, now
	return tx.Commit()
}

// Overwrite inserts the record, replacing the destination and fingerprint of
// an existing record for the same guild and line
func (record *PublicationRecord) Overwrite(node sqalx.Node) error {
	tx, err := node.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	_, err = sdb.Insert("metro_status_message").
		Columns("guild_id", "line_id", "channel_id", "message_id", "info_hash", "created_at", "updated_at").
		Values(record.GuildID, string(record.LineID), record.ChannelID, record.MessageID, record.InfoHash, now, now).
		Suffix("ON CONFLICT (guild_id, line_id) DO UPDATE SET channel_id = ?, message_id = ?, info_hash = ?, updated_at = ?",
			record.ChannelID, record.MessageID, record.InfoHash, now).
		RunWith(tx).Exec()
	if err != nil {
		return errors.New("OverwritePublication: " + err.Error())
	}
	record.UpdatedAt = now
	return tx.Commit()
}

// UpdatePublicationHash sets the fingerprint of the record tracking the given
// message. Returns ErrRecordNotFound if no record tracks it.
func UpdatePublicationHash(node sqalx.Node, messageID, hash string) error {
	tx, err := node.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := sdb.Update("metro_status_message").
		Set("info_hash", hash).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"message_id": messageID}).
		RunWith(tx).Exec()
	if err != nil {
		return errors.New("UpdatePublicationHash: " + err.Error())
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return errors.New("UpdatePublicationHash: " + err.Error())
	}
	if affected == 0 {
		return fmt.Errorf("UpdatePublicationHash: %w", ErrRecordNotFound)
	}
	return tx.Commit()
}

// ClearPublications deletes every publication record of a guild and returns
// how many were removed
func ClearPublications(node sqalx.Node, guildID string) (int64, error) {
	tx, err := node.Beginx()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	result, err := sdb.Delete("metro_status_message").
		Where(sq.Eq{"guild_id": guildID}).
		RunWith(tx).Exec()
	if err != nil {
		return 0, errors.New("ClearPublications: " + err.Error())
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, errors.New("ClearPublications: " + err.Error())
	}
	return affected, tx.Commit()
}

// PublicationStore exposes the publication records stored in a database node
type PublicationStore struct {
	node sqalx.Node
}

// NewPublicationStore returns a PublicationStore backed by the given node
func NewPublicationStore(node sqalx.Node) *PublicationStore {
	return &PublicationStore{node: node}
}

// Create stores a new record, failing with ErrDuplicateKey on conflict
func (s *PublicationStore) Create(record *PublicationRecord) error {
	return record.Create(s.node)
}

// Overwrite stores a record, replacing any existing one for the same guild and line
func (s *PublicationStore) Overwrite(record *PublicationRecord) error {
	return record.Overwrite(s.node)
}

// FindAll returns the records of a guild, or all records if guildID is empty
func (s *PublicationStore) FindAll(guildID string) ([]*PublicationRecord, error) {
	return GetPublications(s.node, guildID)
}

// UpdateHash sets the fingerprint of the record tracking messageID
func (s *PublicationStore) UpdateHash(messageID, hash string) error {
	return UpdatePublicationHash(s.node, messageID, hash)
}

// ClearAll deletes every record of a guild
func (s *PublicationStore) ClearAll(guildID string) (int64, error) {
	return ClearPublications(s.node, guildID)
}
