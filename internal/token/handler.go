package token

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"traitforge/pkg/models"
)

type Handler struct {
	Repo   *Repo
	Logger *zap.Logger
}

func NewHandler(repo *Repo, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{Repo: repo, Logger: logger}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/tokens", h.getMany)           // GET /tokens?tokenIds=[1,2]
	rg.GET("/tokens/traits", h.listTraits) // GET /tokens/traits
	rg.GET("/tokens/:tokenId", h.getByID)  // GET /tokens/:tokenId
	rg.POST("/token", h.create)            // POST /token
}

func (h *Handler) getByID(c *gin.Context) {
	id := strings.TrimSpace(c.Param("tokenId"))
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tokenId required"})
		return
	}

	t, err := h.Repo.GetByID(c.Request.Context(), id)
	if err != nil {
		h.Logger.Error("get token failed", zap.String("token_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get failed"})
		return
	}
	if t == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("The token with the id %s doesn't exist.", id)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": t, "id": t.ID})
}

func (h *Handler) getMany(c *gin.Context) {
	raw := c.Query("tokenIds")
	if strings.TrimSpace(raw) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Please provide token ids."})
		return
	}

	var ids []models.TraitID
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tokenIds must be a JSON array"})
		return
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}

	items, err := h.Repo.GetMany(c.Request.Context(), keys)
	if err != nil {
		h.Logger.Error("get tokens failed", zap.Strings("token_ids", keys), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   fmt.Sprintf("Failed to retrieve tokens with the ids %s.", strings.Join(keys, ",")),
		})
		return
	}
	c.JSON(http.StatusOK, items)
}

func (h *Handler) listTraits(c *gin.Context) {
	items, err := h.Repo.ListByType(c.Request.Context(), models.TokenTypeTrait)
	if err != nil {
		h.Logger.Error("list traits failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get all tokens in the collection."})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tokens": items})
}

type createReq struct {
	ID          string           `json:"id"`
	TokenType   models.TokenType `json:"tokenType"`
	Description string           `json:"description"`
	ExternalURL string           `json:"external_url"`
	Image       string           `json:"image"`
	Name        string           `json:"name"`
	Attributes  json.RawMessage  `json:"attributes"`
}

func (h *Handler) create(c *gin.Context) {
	var req createReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	req.ID = strings.TrimSpace(req.ID)
	if req.Description == "" || req.ExternalURL == "" || req.Image == "" || req.Name == "" || len(req.Attributes) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Please pass these following properties with the body: description, external_url, image, name, attributes",
		})
		return
	}
	switch req.TokenType {
	case "":
		req.TokenType = models.TokenTypeMaster
	case models.TokenTypeMaster, models.TokenTypeTrait:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "tokenType must be one of: master, trait"})
		return
	}

	t, err := h.Repo.Create(c.Request.Context(), models.Token{
		ID:          req.ID,
		TokenType:   req.TokenType,
		Name:        req.Name,
		Description: req.Description,
		ExternalURL: req.ExternalURL,
		Image:       req.Image,
		Attributes:  req.Attributes,
	})
	if errors.Is(err, ErrConflict) {
		c.JSON(http.StatusConflict, gin.H{"error": fmt.Sprintf("The token with the id %s already exists.", req.ID)})
		return
	}
	if err != nil {
		h.Logger.Error("create token failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create a token"})
		return
	}
	c.JSON(http.StatusOK, t)
}
