// internal/store/store.go

// Package store reads and patches the JSONB documents held in the offers, vehicles and
// users tables.
package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"ctp-notifications/internal/models"

	"github.com/lib/pq"
)

var (
	ErrNotFound          = errors.New("document not found")
	ErrUnknownCollection = errors.New("unknown collection")
)

var tables = map[string]string{
	models.CollectionOffers:   "offers",
	models.CollectionVehicles: "vehicles",
	models.CollectionUsers:    "users",
}

// Record is a document with its id.
type Record struct {
	ID   string
	Data models.Document
}

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func table(collection string) (string, error) {
	t, ok := tables[collection]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}
	return t, nil
}

// Get returns ErrNotFound when the row does not exist.
func (s *Store) Get(ctx context.Context, collection, id string) (models.Document, error) {
	t, err := table(collection)
	if err != nil {
		return nil, err
	}

	var raw []byte
	err = s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT data FROM %s WHERE id = $1`, t), id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}

	doc, err := models.ParseDocument(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	if doc == nil {
		doc = models.Document{}
	}
	return doc, nil
}

// FindByFieldIn returns documents whose field, lowercased, is one of values.
func (s *Store) FindByFieldIn(ctx context.Context, collection, field string, values []string) ([]Record, error) {
	t, err := table(collection)
	if err != nil {
		return nil, err
	}
	lowered := make([]string, len(values))
	for i, v := range values {
		lowered[i] = strings.ToLower(v)
	}
	return s.query(ctx, collection,
		fmt.Sprintf(`SELECT id, data FROM %s WHERE lower(trim(data->>$1)) = ANY($2)`, t),
		field, pq.Array(lowered))
}

// FindByFieldNotIn returns documents whose field is absent or not one of values.
func (s *Store) FindByFieldNotIn(ctx context.Context, collection, field string, values []string) ([]Record, error) {
	t, err := table(collection)
	if err != nil {
		return nil, err
	}
	lowered := make([]string, len(values))
	for i, v := range values {
		lowered[i] = strings.ToLower(v)
	}
	return s.query(ctx, collection,
		fmt.Sprintf(`SELECT id, data FROM %s WHERE NOT (COALESCE(lower(trim(data->>$1)), '') = ANY($2))`, t),
		field, pq.Array(lowered))
}

// FindWithField returns documents where field is set to a non-empty value.
func (s *Store) FindWithField(ctx context.Context, collection, field string) ([]Record, error) {
	t, err := table(collection)
	if err != nil {
		return nil, err
	}
	return s.query(ctx, collection,
		fmt.Sprintf(`SELECT id, data FROM %s WHERE COALESCE(data->>$1, '') <> ''`, t),
		field)
}

func (s *Store) query(ctx context.Context, collection, q string, args ...interface{}) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan %s: %w", collection, err)
		}
		doc, err := models.ParseDocument(raw)
		if err != nil || doc == nil {
			// unreadable rows are skipped
			continue
		}
		out = append(out, Record{ID: id, Data: doc})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", collection, err)
	}
	return out, nil
}

// UpdateFields merges fields into the document. It returns ErrNotFound if no row matched.
func (s *Store) UpdateFields(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	t, err := table(collection)
	if err != nil {
		return err
	}
	patch, err := encode(fields)
	if err != nil {
		return fmt.Errorf("encode patch: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET data = data || $2::jsonb, updated_at = now() WHERE id = $1`, t),
		id, patch)
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	return requireRow(res)
}

// AppendToArray adds value to an array field unless it is already present. A missing row
// is not an error.
func (s *Store) AppendToArray(ctx context.Context, collection, id, field, value string) error {
	t, err := table(collection)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, fmt.Sprintf(`UPDATE %s
SET data = jsonb_set(data, ARRAY[$2::text], COALESCE(data->$2, '[]'::jsonb) || to_jsonb($3::text)),
    updated_at = now()
WHERE id = $1 AND NOT COALESCE(data->$2, '[]'::jsonb) ? $3`, t), id, field, value)
	if err != nil {
		return fmt.Errorf("append %s/%s.%s: %w", collection, id, field, err)
	}
	return nil
}

// Create inserts a new document.
func (s *Store) Create(ctx context.Context, collection, id string, data models.Document) error {
	t, err := table(collection)
	if err != nil {
		return err
	}
	raw, err := encode(data)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, data, updated_at) VALUES ($1, $2::jsonb, now())`, t),
		id, raw); err != nil {
		return fmt.Errorf("insert %s/%s: %w", collection, id, err)
	}
	return nil
}

// encode renders v as JSON text without HTML escaping, so values like "a->b" are stored as written.
func encode(v interface{}) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
