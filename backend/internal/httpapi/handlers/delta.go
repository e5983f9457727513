package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"

	"collabDelta/backend/internal/ot/delta"
)

var deltaDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "collab_delta_op_duration_seconds",
	Help:    "Latency of delta algorithms served over HTTP",
	Buckets: []float64{0.00001, 0.0001, 0.001, 0.01, 0.1},
}, []string{"op"})

const (
	maxBatch         = 256
	batchConcurrency = 8
)

var (
	errEmptyBatch = errors.New("batch is empty")
	errBatchSize  = fmt.Errorf("batch larger than %d", maxBatch)
)

// DeltaHandler 无状态的 delta 计算接口
type DeltaHandler struct{}

func NewDeltaHandler() *DeltaHandler { return &DeltaHandler{} }

func (h *DeltaHandler) Register(r gin.IRoutes) {
	r.POST("/delta/compose", h.Compose)
	r.POST("/delta/transform", h.Transform)
	r.POST("/delta/invert", h.Invert)
	r.POST("/delta/diff", h.Diff)
	r.POST("/delta/transform-position", h.TransformPosition)
	r.POST("/delta/batch/compose", h.BatchCompose)
}

type pairReq struct {
	A json.RawMessage `json:"a" binding:"required"`
	B json.RawMessage `json:"b" binding:"required"`
}

type transformReq struct {
	pairReq
	Priority bool `json:"priority"`
}

type invertReq struct {
	Change json.RawMessage `json:"change" binding:"required"`
	Base   json.RawMessage `json:"base" binding:"required"`
}

type positionReq struct {
	Change   json.RawMessage `json:"change" binding:"required"`
	Index    *int            `json:"index" binding:"required"`
	Priority bool            `json:"priority"`
}

type batchReq struct {
	Pairs []pairReq `json:"pairs"`
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func decodePair(p pairReq) (*delta.Delta, *delta.Delta, error) {
	a, err := delta.Decode(p.A)
	if err != nil {
		return nil, nil, fmt.Errorf("a: %w", err)
	}
	b, err := delta.Decode(p.B)
	if err != nil {
		return nil, nil, fmt.Errorf("b: %w", err)
	}
	return a, b, nil
}

func observe(op string, start time.Time) {
	deltaDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// Compose POST /delta/compose {"a": [...], "b": [...]}
func (h *DeltaHandler) Compose(c *gin.Context) {
	var req pairReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	a, b, err := decodePair(req)
	if err != nil {
		badRequest(c, err)
		return
	}
	defer observe("compose", time.Now())
	c.JSON(http.StatusOK, gin.H{"result": a.ComposeDocument(b)})
}

// Transform 返回 b 针对 a 变换后的结果；priority=true 表示 a 先发生
func (h *DeltaHandler) Transform(c *gin.Context) {
	var req transformReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	a, b, err := decodePair(req.pairReq)
	if err != nil {
		badRequest(c, err)
		return
	}
	defer observe("transform", time.Now())
	c.JSON(http.StatusOK, gin.H{"result": a.Transform(b, req.Priority)})
}

func (h *DeltaHandler) Invert(c *gin.Context) {
	var req invertReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	change, err := delta.Decode(req.Change)
	if err != nil {
		badRequest(c, fmt.Errorf("change: %w", err))
		return
	}
	base, err := delta.Decode(req.Base)
	if err != nil {
		badRequest(c, fmt.Errorf("base: %w", err))
		return
	}
	if !base.IsDocument() {
		badRequest(c, fmt.Errorf("base: %w", delta.ErrNotDocument))
		return
	}
	defer observe("invert", time.Now())
	c.JSON(http.StatusOK, gin.H{"result": change.Invert(base)})
}

// Diff 两边都必须是文档（只有 insert）
func (h *DeltaHandler) Diff(c *gin.Context) {
	var req pairReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	a, b, err := decodePair(req)
	if err != nil {
		badRequest(c, err)
		return
	}
	defer observe("diff", time.Now())
	d, err := a.Diff(b)
	if err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": d})
}

func (h *DeltaHandler) TransformPosition(c *gin.Context) {
	var req positionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	change, err := delta.Decode(req.Change)
	if err != nil {
		badRequest(c, fmt.Errorf("change: %w", err))
		return
	}
	if *req.Index < 0 {
		badRequest(c, errors.New("index must be >= 0"))
		return
	}
	defer observe("transform_position", time.Now())
	c.JSON(http.StatusOK, gin.H{"index": change.TransformPosition(*req.Index, req.Priority)})
}

// BatchCompose 并发计算多组 compose，结果顺序与请求一致；任意一组出错整体返回 400
func (h *DeltaHandler) BatchCompose(c *gin.Context) {
	var req batchReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	switch {
	case len(req.Pairs) == 0:
		badRequest(c, errEmptyBatch)
		return
	case len(req.Pairs) > maxBatch:
		badRequest(c, errBatchSize)
		return
	}

	results, err := composeAll(c.Request.Context(), req.Pairs)
	if err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func composeAll(ctx context.Context, pairs []pairReq) ([]*delta.Delta, error) {
	defer observe("batch_compose", time.Now())
	results := make([]*delta.Delta, len(pairs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(batchConcurrency)
	for i, p := range pairs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			a, b, err := decodePair(p)
			if err != nil {
				return fmt.Errorf("pairs[%d].%w", i, err)
			}
			results[i] = a.ComposeDocument(b)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
