package db

import (
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/hearth/internal/errors"
	"github.com/hpungsan/hearth/internal/metrics"
)

// Gateway is the persistence gateway for characters, encounters, combatants,
// and the reference catalogs. Storage failures surface as REMOTE errors;
// missing or unauthorized rows as NOT_FOUND.
type Gateway struct {
	db      *sql.DB
	dialect Dialect
	sb      squirrel.StatementBuilderType
	metrics *metrics.Metrics

	// now returns the Unix timestamp stamped on writes
	now func() int64
}

// NewGateway wraps db. m may be nil.
func NewGateway(db *sql.DB, dialect Dialect, m *metrics.Metrics) *Gateway {
	return &Gateway{
		db:      db,
		dialect: dialect,
		sb:      squirrel.StatementBuilder.PlaceholderFormat(dialect.placeholder()),
		metrics: m,
		now:     func() int64 { return time.Now().Unix() },
	}
}

// DB returns the underlying handle.
func (g *Gateway) DB() *sql.DB {
	return g.db
}

// Dialect returns the backend dialect.
func (g *Gateway) Dialect() Dialect {
	return g.dialect
}

// record counts the call and passes err through. NOT_FOUND counts as a failed op.
func (g *Gateway) record(op string, err error) error {
	g.metrics.RecordGatewayOp(op, err == nil)
	return err
}

// remote wraps a storage error. HearthErrors pass through unchanged.
func remote(op string, err error) error {
	if _, ok := errors.As(err); ok {
		return err
	}
	return errors.NewRemote(op, err)
}

// idEntropy is shared so IDs minted within one millisecond still sort in creation order.
var (
	idMu      sync.Mutex
	idEntropy = ulid.Monotonic(rand.Reader, 0)
)

// NewID returns a new ULID string. IDs from one process are strictly increasing.
func NewID() string {
	idMu.Lock()
	defer idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), idEntropy).String()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// toNullString converts a *string to sql.NullString.
func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// fromNullString converts a sql.NullString to *string.
func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

func toNullInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}

func fromNullInt(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	v := int(ni.Int64)
	return &v
}

// encodeJSON marshals v for a TEXT column.
func encodeJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", errors.NewInternal(err)
	}
	return string(data), nil
}

// decodeJSON unmarshals a TEXT column; empty text leaves v untouched.
func decodeJSON(text string, v any) error {
	if text == "" {
		return nil
	}
	return json.Unmarshal([]byte(text), v)
}
