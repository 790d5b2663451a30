package token

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traitforge/pkg/models"
)

func newTestRouter(t *testing.T) (*gin.Engine, *Repo) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	repo := newTestRepo(t)
	r := gin.New()
	NewHandler(repo, nil).RegisterRoutes(r.Group("/api/v2"))
	return r, repo
}

func doRequest(r http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandlerGetByID(t *testing.T) {
	r, repo := newTestRouter(t)
	require.NoError(t, repo.Upsert(context.Background(), models.Token{ID: "42", Name: "Fren"}))

	w := doRequest(r, http.MethodGet, "/api/v2/tokens/42", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		ID   string       `json:"id"`
		Data models.Token `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "42", body.ID)
	assert.Equal(t, "Fren", body.Data.Name)

	w = doRequest(r, http.MethodGet, "/api/v2/tokens/7", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandlerGetMany(t *testing.T) {
	r, repo := newTestRouter(t)
	ctx := context.Background()
	require.NoError(t, repo.Upsert(ctx, models.Token{ID: "1"}))
	require.NoError(t, repo.Upsert(ctx, models.Token{ID: "2"}))

	w := doRequest(r, http.MethodGet, "/api/v2/tokens?tokenIds="+url.QueryEscape(`[1,"2"]`), "")
	require.Equal(t, http.StatusOK, w.Code)
	var items []models.Token
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &items))
	assert.Len(t, items, 2)

	assert.Equal(t, http.StatusBadRequest, doRequest(r, http.MethodGet, "/api/v2/tokens", "").Code)
	assert.Equal(t, http.StatusBadRequest, doRequest(r, http.MethodGet, "/api/v2/tokens?tokenIds=oops", "").Code)
}

func TestHandlerListTraits(t *testing.T) {
	r, repo := newTestRouter(t)
	ctx := context.Background()
	require.NoError(t, repo.Upsert(ctx, models.Token{ID: "1", TokenType: models.TokenTypeTrait}))
	require.NoError(t, repo.Upsert(ctx, models.Token{ID: "42"}))

	w := doRequest(r, http.MethodGet, "/api/v2/tokens/traits", "")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Tokens []models.Token `json:"tokens"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Tokens, 1)
	assert.Equal(t, "1", body.Tokens[0].ID)
}

func TestHandlerCreate(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doRequest(r, http.MethodPost, "/api/v2/token", `{"name":"Fren"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(r, http.MethodPost, "/api/v2/token", `{
		"id": "42",
		"name": "Fren",
		"description": "d",
		"external_url": "https://example.com",
		"image": "ipfs://seed",
		"attributes": []
	}`)
	require.Equal(t, http.StatusOK, w.Code)
	var created models.Token
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "42", created.ID)
	assert.Equal(t, models.TokenTypeMaster, created.TokenType)

	w = doRequest(r, http.MethodPost, "/api/v2/token", `{
		"name": "x", "description": "d", "external_url": "u", "image": "i", "attributes": {}, "tokenType": "weird"
	}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlerCreateRejectsTakenID(t *testing.T) {
	r, repo := newTestRouter(t)
	ctx := context.Background()
	require.NoError(t, repo.Upsert(ctx, models.Token{ID: "42", Name: "Fren"}))
	_, err := repo.UpdateComposition(ctx, "42", []models.TraitID{"1", "2"}, "https://gw/ipfs/QmA")
	require.NoError(t, err)

	w := doRequest(r, http.MethodPost, "/api/v2/token", `{
		"id": "42", "name": "x", "description": "d", "external_url": "u", "image": "y", "attributes": []
	}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "already exists")

	got, err := repo.GetByID(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, []models.TraitID{"1", "2"}, got.TraitIDs)
	assert.Equal(t, "https://gw/ipfs/QmA", got.Image)
	assert.Equal(t, "Fren", got.Name)
}
