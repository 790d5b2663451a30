package token

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"traitforge/pkg/models"
)

var (
	// ErrNotFound is returned by writes that target a missing token.
	ErrNotFound = errors.New("token not found")
	// ErrConflict is returned by Create when the id is already taken.
	ErrConflict = errors.New("token already exists")
)

type Repo struct {
	DB *sql.DB
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{DB: db}
}

const selectColumns = `
	SELECT id, token_type, name, description, external_url, image, trait_ids, attributes, updated_at
	FROM tokens
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanToken(row rowScanner) (*models.Token, error) {
	var (
		t           models.Token
		tokenType   string
		name        sql.NullString
		description sql.NullString
		externalURL sql.NullString
		image       sql.NullString
		traitJSON   string
		attributes  sql.NullString
		updatedAt   timestamp
	)
	if err := row.Scan(
		&t.ID, &tokenType, &name, &description, &externalURL, &image, &traitJSON, &attributes, &updatedAt,
	); err != nil {
		return nil, err
	}
	t.UpdatedAt = updatedAt.Time

	t.TokenType = models.TokenType(tokenType)
	t.Name = name.String
	t.Description = description.String
	t.ExternalURL = externalURL.String
	t.Image = image.String
	if attributes.Valid && attributes.String != "" {
		t.Attributes = json.RawMessage(attributes.String)
	}
	if err := json.Unmarshal([]byte(traitJSON), &t.TraitIDs); err != nil {
		return nil, fmt.Errorf("decode trait_ids for %s: %w", t.ID, err)
	}
	if t.TraitIDs == nil {
		t.TraitIDs = []models.TraitID{}
	}
	return &t, nil
}

// timestamp accepts updated_at either converted by the driver or as the
// raw text sqlite stores, which is what RETURNING columns can yield.
type timestamp struct {
	time.Time
}

func (ts *timestamp) Scan(v any) error {
	switch x := v.(type) {
	case nil:
		ts.Time = time.Time{}
	case time.Time:
		ts.Time = x
	case string:
		return ts.parse(x)
	case []byte:
		return ts.parse(string(x))
	default:
		return fmt.Errorf("unsupported updated_at type %T", v)
	}
	return nil
}

func (ts *timestamp) parse(s string) error {
	s = strings.TrimSuffix(s, "Z")
	for _, layout := range sqlite3.SQLiteTimestampFormats {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			ts.Time = t
			return nil
		}
	}
	return fmt.Errorf("parse updated_at %q", s)
}

// GetByID returns (nil, nil) when no token has the given id.
func (r *Repo) GetByID(ctx context.Context, id string) (*models.Token, error) {
	row := r.DB.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	t, err := scanToken(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan getByID: %w", err)
	}
	return t, nil
}

func (r *Repo) Exists(ctx context.Context, id string) (bool, error) {
	var one int
	err := r.DB.QueryRowContext(ctx, `SELECT 1 FROM tokens WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", id, err)
	}
	return true, nil
}

// GetMany returns the tokens whose ids appear in ids, in id order.
// Unknown ids are skipped.
func (r *Repo) GetMany(ctx context.Context, ids []string) ([]models.Token, error) {
	if len(ids) == 0 {
		return []models.Token{}, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return r.query(ctx, selectColumns+` WHERE id IN (`+placeholders+`) ORDER BY id ASC`, args...)
}

func (r *Repo) ListByType(ctx context.Context, tokenType models.TokenType) ([]models.Token, error) {
	return r.query(ctx, selectColumns+` WHERE token_type = ? ORDER BY id ASC`, string(tokenType))
}

func (r *Repo) query(ctx context.Context, sqlStr string, args ...any) ([]models.Token, error) {
	rows, err := r.DB.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list query: %w", err)
	}
	defer rows.Close()

	out := []models.Token{}
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("list scan: %w", err)
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	return out, nil
}

// Create inserts a new token. An empty ID gets a generated one. An id that
// is already taken yields ErrConflict and leaves the stored token as is.
func (r *Repo) Create(ctx context.Context, t models.Token) (*models.Token, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	args, err := insertArgs(t)
	if err != nil {
		return nil, err
	}

	_, err = r.DB.ExecContext(ctx, `
		INSERT INTO tokens (id, token_type, name, description, external_url, image, trait_ids, attributes, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("insert %s: %w", t.ID, err)
	}
	return r.GetByID(ctx, t.ID)
}

// Upsert replaces the whole token, including trait_ids and image. Only
// seeding tools use it; the API goes through Create and UpdateComposition.
func (r *Repo) Upsert(ctx context.Context, t models.Token) error {
	args, err := insertArgs(t)
	if err != nil {
		return err
	}

	_, err = r.DB.ExecContext(ctx, `
		INSERT INTO tokens (id, token_type, name, description, external_url, image, trait_ids, attributes, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		  token_type = excluded.token_type,
		  name = excluded.name,
		  description = excluded.description,
		  external_url = excluded.external_url,
		  image = excluded.image,
		  trait_ids = excluded.trait_ids,
		  attributes = excluded.attributes,
		  updated_at = excluded.updated_at
	`, args...)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", t.ID, err)
	}
	return nil
}

func insertArgs(t models.Token) ([]any, error) {
	if t.TokenType == "" {
		t.TokenType = models.TokenTypeMaster
	}
	traitJSON, err := marshalTraitIDs(t.TraitIDs)
	if err != nil {
		return nil, fmt.Errorf("marshal trait_ids for %s: %w", t.ID, err)
	}
	var attributes any
	if len(t.Attributes) > 0 {
		attributes = string(t.Attributes)
	}
	return []any{
		t.ID, string(t.TokenType), t.Name, t.Description, t.ExternalURL, t.Image, traitJSON, attributes, time.Now().UTC(),
	}, nil
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey || se.ExtendedCode == sqlite3.ErrConstraintUnique
}

// UpdateComposition writes image and trait_ids in a single statement so a
// reader never sees one without the other. The updated row comes back from
// the same statement.
func (r *Repo) UpdateComposition(ctx context.Context, id string, traitIDs []models.TraitID, image string) (*models.Token, error) {
	traitJSON, err := marshalTraitIDs(traitIDs)
	if err != nil {
		return nil, fmt.Errorf("marshal trait_ids for %s: %w", id, err)
	}

	row := r.DB.QueryRowContext(ctx, `
		UPDATE tokens SET trait_ids = ?, image = ?, updated_at = ?
		WHERE id = ?
		RETURNING id, token_type, name, description, external_url, image, trait_ids, attributes, updated_at
	`, traitJSON, image, time.Now().UTC(), id)
	t, err := scanToken(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update composition %s: %w", id, err)
	}
	return t, nil
}

func marshalTraitIDs(ids []models.TraitID) (string, error) {
	if ids == nil {
		ids = []models.TraitID{}
	}
	b, err := json.Marshal(ids)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
