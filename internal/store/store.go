package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"codedox/internal/model"
)

// Store wraps access to the database. All durable state flows through it;
// the job manager and crawl pipeline never touch SQL directly.
type Store struct {
	DB *sql.DB
}

// New creates a new Store that uses a shared *sql.DB with pooling.
func New(database *sql.DB) *Store {
	return &Store{DB: database}
}

// Hash returns the hex SHA-256 of the given text. It is used for both
// content hashes (normalized page content) and code hashes (snippet text).
func Hash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// isUniqueViolation reports whether err is a Postgres unique constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// classify maps a raw database error to the error taxonomy.
func classify(err error, msg string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return model.Wrap(model.KindNotFound, msg, err)
	}
	if isUniqueViolation(err) {
		return model.Wrap(model.KindConflict, msg, err)
	}
	if errors.Is(err, context.Canceled) {
		return model.Wrap(model.KindCancelled, msg, err)
	}
	return model.Wrap(model.KindStorage, msg, err)
}

func nullStr(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func marshalStrings(ss []string) []byte {
	if len(ss) == 0 {
		return nil
	}
	b, err := json.Marshal(ss)
	if err != nil {
		return nil
	}
	return b
}

func unmarshalStrings(b []byte) []string {
	if len(b) == 0 {
		return nil
	}
	var ss []string
	if err := json.Unmarshal(b, &ss); err != nil {
		return nil
	}
	return ss
}

// likeEscape escapes LIKE metacharacters in user input so that substring
// matches behave literally.
func likeEscape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
