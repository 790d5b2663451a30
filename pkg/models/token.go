package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type TokenType string

const (
	TokenTypeMaster TokenType = "master"
	TokenTypeTrait  TokenType = "trait"
)

// Token is the stored metadata document for a master or trait NFT.
//
// Master tokens carry the composed image URI and the ordered trait ids
// that produced it. Both fields are always written together.
type Token struct {
	ID          string          `json:"id"`
	TokenType   TokenType       `json:"tokenType"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	ExternalURL string          `json:"external_url"`
	Image       string          `json:"image"`
	TraitIDs    []TraitID       `json:"traitIds"`
	Attributes  json.RawMessage `json:"attributes,omitempty"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// TraitID identifies one trait layer asset. Clients send either JSON
// numbers or strings; numeric ids are written back as numbers.
type TraitID string

func (t *TraitID) UnmarshalJSON(b []byte) error {
	id, err := ParseID(b)
	if err != nil {
		return fmt.Errorf("trait id: %w", err)
	}
	*t = TraitID(id)
	return nil
}

// ParseID decodes a JSON string or number into its textual form.
func ParseID(b []byte) (string, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return "", fmt.Errorf("empty value")
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return "", err
		}
		return strings.TrimSpace(s), nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return "", err
	}
	return n.String(), nil
}

func (t TraitID) MarshalJSON() ([]byte, error) {
	if n, err := strconv.ParseUint(string(t), 10, 64); err == nil && strconv.FormatUint(n, 10) == string(t) {
		return []byte(t), nil
	}
	return json.Marshal(string(t))
}

func (t TraitID) String() string { return string(t) }

// JoinTraitIDs renders ids the way provenance labels expect: "1,2,3".
func JoinTraitIDs(ids []TraitID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = string(id)
	}
	return strings.Join(parts, ",")
}
