package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"traitforge/internal/token"
	"traitforge/pkg/database"
	"traitforge/pkg/logging"
	"traitforge/pkg/models"
)

// import-tokens seeds the token store from a CSV file with the header
// id,token_type,name,description,external_url,image,trait_ids,attributes.
// trait_ids is pipe separated ("1|2|3"); attributes is raw JSON.
func main() {
	in := flag.String("in", "data/tokens.csv", "input CSV path")
	flag.Parse()

	logger := logging.MustNew("info", true)
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db := database.MustOpen(database.DefaultConfig(), logger)
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		logger.Fatal("db migrate failed", zap.Error(err))
	}

	f, err := os.Open(*in)
	if err != nil {
		logger.Fatal("open input", zap.Error(err))
	}
	defer f.Close()

	tokens, err := readTokens(f)
	if err != nil {
		logger.Fatal("parse input", zap.String("path", *in), zap.Error(err))
	}

	repo := token.NewRepo(db)
	for _, t := range tokens {
		if err := repo.Upsert(ctx, t); err != nil {
			logger.Fatal("import token failed", zap.String("id", t.ID), zap.Error(err))
		}
	}

	logger.Info("imported tokens", zap.Int("count", len(tokens)), zap.String("path", *in))
}

func readTokens(src io.Reader) ([]models.Token, error) {
	r := csv.NewReader(src)
	r.FieldsPerRecord = -1

	header, err := readHeader(r)
	if err != nil {
		return nil, err
	}

	var out []models.Token
	line := 1
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		line++
		if len(row) == 0 {
			continue
		}

		id := valueAt(header, row, "id")
		if id == "" {
			continue
		}

		t := models.Token{
			ID:          id,
			TokenType:   models.TokenType(strings.ToLower(valueAt(header, row, "token_type"))),
			Name:        valueAt(header, row, "name"),
			Description: valueAt(header, row, "description"),
			ExternalURL: valueAt(header, row, "external_url"),
			Image:       valueAt(header, row, "image"),
			TraitIDs:    splitTraitIDs(valueAt(header, row, "trait_ids")),
		}
		switch t.TokenType {
		case "", models.TokenTypeMaster, models.TokenTypeTrait:
		default:
			return nil, fmt.Errorf("line %d: unknown token_type %q", line, t.TokenType)
		}

		if attrs := valueAt(header, row, "attributes"); attrs != "" {
			if !json.Valid([]byte(attrs)) {
				return nil, fmt.Errorf("line %d: attributes is not valid JSON", line)
			}
			t.Attributes = json.RawMessage(attrs)
		}
		out = append(out, t)
	}
	return out, nil
}

func splitTraitIDs(raw string) []models.TraitID {
	if raw == "" {
		return nil
	}
	var ids []models.TraitID
	for _, p := range strings.Split(raw, "|") {
		if p = strings.TrimSpace(p); p != "" {
			ids = append(ids, models.TraitID(p))
		}
	}
	return ids
}

func readHeader(r *csv.Reader) (map[string]int, error) {
	row, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	header := make(map[string]int, len(row))
	for idx, name := range row {
		header[strings.TrimSpace(strings.ToLower(name))] = idx
	}
	return header, nil
}

func valueAt(header map[string]int, row []string, key string) string {
	idx, ok := header[key]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
