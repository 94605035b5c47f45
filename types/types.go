package types

import (
	"errors"

	sq "github.com/Masterminds/squirrel"
)

var sdb sq.StatementBuilderType

func init() {
	sdb = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
}

// ErrDuplicateKey is returned when creating a record whose (guild, line) pair
// is already registered
var ErrDuplicateKey = errors.New("a publication for this guild and line already exists")

// ErrRecordNotFound is returned when a record addressed by message ID does not
// exist (anymore)
var ErrRecordNotFound = errors.New("publication record not found")
