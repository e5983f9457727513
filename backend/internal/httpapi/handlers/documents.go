package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"collabDelta/backend/internal/collab"
	"collabDelta/backend/internal/logger"
	"collabDelta/backend/internal/store"
)

const defaultOpsLimit = 500

type DocumentHandler struct {
	svc collab.Service
}

func NewDocumentHandler(svc collab.Service) *DocumentHandler {
	return &DocumentHandler{svc: svc}
}

func (h *DocumentHandler) Register(r gin.IRoutes) {
	r.POST("/documents", h.CreateDocument)
	r.GET("/documents/:docID", h.GetDocument)
	r.GET("/documents/:docID/ops", h.GetOps)
	r.POST("/documents/:docID/snapshot", h.SaveSnapshot)
}

type createDocReq struct {
	Title string `json:"title" binding:"required"`
}

func (h *DocumentHandler) CreateDocument(c *gin.Context) {
	//从gin.Context获取用户信息；gin.Context对每个用户天然隔离
	ownerID, ok := c.Get("userId")
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	uid, ok := ownerID.(uint64)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid user ID format"})
		return
	}

	var req createDocReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	if err := h.svc.CreateDocument(ctx, uid, req.Title); err != nil {
		if errors.Is(err, store.ErrDocumentExists) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		logger.L(ctx).Error("create document", zap.String("title", req.Title), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "CREATE_DOC_FAILED"})
		return
	}
	docID, err := h.svc.GetDocumentID(ctx, req.Title)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "GET_DOCID_FAILED"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"docId": docID, "ownerId": uid, "title": req.Title, "createdAt": time.Now().Format(time.RFC3339)})
}

// GetDocument 返回完整的文档 delta 和当前版本
func (h *DocumentHandler) GetDocument(c *gin.Context) {
	docID := c.Param("docID")
	doc, rev, err := h.svc.LoadDocument(c.Request.Context(), docID)
	if err != nil {
		logger.L(c.Request.Context()).Error("load document", zap.String("doc", docID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"docId": docID, "revision": rev, "ops": doc, "length": doc.Len()})
}

// GetOps GET /documents/:docID/ops?from=3&limit=100，用于断线重连后追平
func (h *DocumentHandler) GetOps(c *gin.Context) {
	docID := c.Param("docID")
	from, err := strconv.ParseUint(c.DefaultQuery("from", "0"), 10, 64)
	if err != nil {
		badRequest(c, err)
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultOpsLimit)))
	if err != nil || limit <= 0 {
		badRequest(c, errors.New("limit must be a positive integer"))
		return
	}
	ops, err := h.svc.OpsSince(c.Request.Context(), docID, from, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if ops == nil {
		ops = []collab.AppliedOp{}
	}
	c.JSON(http.StatusOK, gin.H{"docId": docID, "ops": ops})
}

func (h *DocumentHandler) SaveSnapshot(c *gin.Context) {
	docID := c.Param("docID")
	if err := h.svc.SaveSnapshot(c.Request.Context(), docID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"docId": docID, "message": "saved"})
}
