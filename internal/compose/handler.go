package compose

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"traitforge/pkg/models"
)

type Handler struct {
	Pipeline *Pipeline
	Logger   *zap.Logger
}

func NewHandler(p *Pipeline, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{Pipeline: p, Logger: logger}
}

// RegisterRoutes mounts PATCH /token. Extra middleware (rate limiting)
// runs before the pipeline.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, mw ...gin.HandlerFunc) {
	rg.PATCH("/token", append(mw, h.compose)...)
}

type composeReq struct {
	MasterID json.RawMessage  `json:"masterId"`
	TraitIDs []models.TraitID `json:"traitIds"`
}

func (h *Handler) compose(c *gin.Context) {
	var req composeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json", "stage": StageValidating})
		return
	}

	var masterID string
	if len(req.MasterID) > 0 {
		id, err := models.ParseID(req.MasterID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "masterId must be a string or number", "stage": StageValidating})
			return
		}
		masterID = id
	}

	res, err := h.Pipeline.Run(c.Request.Context(), Request{MasterID: masterID, TraitIDs: req.TraitIDs})
	if err != nil {
		var se *StageError
		if !errors.As(err, &se) {
			h.Logger.Error("compose returned untyped error", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		c.JSON(se.HTTPStatus(), gin.H{"error": se.Message(), "stage": se.Stage})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"IpfsHash":    res.Pin.IpfsHash,
		"PinSize":     res.Pin.PinSize,
		"Timestamp":   res.Pin.Timestamp,
		"isDuplicate": res.Pin.IsDuplicate,
		"image":       res.Image,
		"token":       res.Token,
	})
}
