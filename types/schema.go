package types

import (
	"errors"

	"github.com/gbl08ma/sqalx"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS metro_status_message (
		guild_id   TEXT NOT NULL,
		line_id    TEXT NOT NULL,
		channel_id TEXT NOT NULL,
		message_id TEXT NOT NULL UNIQUE,
		info_hash  TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (guild_id, line_id)
	)`,
}

// Migrate creates the tables used by the service if they do not exist
func Migrate(node sqalx.Node) error {
	tx, err := node.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, statement := range schema {
		if _, err := tx.Exec(statement); err != nil {
			return errors.New("Migrate: " + err.Error())
		}
	}
	return tx.Commit()
}
