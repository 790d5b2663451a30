package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traitforge/pkg/models"
)

func TestReadTokens(t *testing.T) {
	in := `ID,token_type,name,description,external_url,image,trait_ids,attributes
42,master,Fren #42,a fren,https://example.com/42,ipfs://seed,1|2| 3,"[{""trait_type"":""hat""}]"
1,trait,Cap,,,ipfs://cap,,
,master,skipped,,,,,
`
	tokens, err := readTokens(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, tokens, 2)

	assert.Equal(t, "42", tokens[0].ID)
	assert.Equal(t, models.TokenTypeMaster, tokens[0].TokenType)
	assert.Equal(t, []models.TraitID{"1", "2", "3"}, tokens[0].TraitIDs)
	assert.JSONEq(t, `[{"trait_type":"hat"}]`, string(tokens[0].Attributes))

	assert.Equal(t, models.TokenTypeTrait, tokens[1].TokenType)
	assert.Nil(t, tokens[1].TraitIDs)
}

func TestReadTokensRejectsBadRows(t *testing.T) {
	_, err := readTokens(strings.NewReader("id,token_type\n1,weird\n"))
	assert.ErrorContains(t, err, "unknown token_type")

	_, err = readTokens(strings.NewReader("id,attributes\n1,{oops\n"))
	assert.ErrorContains(t, err, "not valid JSON")

	_, err = readTokens(strings.NewReader(""))
	assert.Error(t, err)
}
