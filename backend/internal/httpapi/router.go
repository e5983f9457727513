// Package httpapi 组装 gin 路由：无状态的 delta 计算接口、文档接口、WebSocket 入口和运维接口。
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"collabDelta/backend/internal/collab"
	"collabDelta/backend/internal/httpapi/handlers"
	"collabDelta/backend/internal/httpapi/middleware"
)

type RouterDeps struct {
	Service collab.Service
	// WebSocket 入口，为 nil 时不注册 /collab/ws
	WebSocket gin.HandlerFunc
	JWTSecret []byte
}

func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()
	// 中间件
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(middleware.Metrics())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:5173", "http://127.0.0.1:5173"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// delta 计算接口不需要登录
	handlers.NewDeltaHandler().Register(r)

	collabGroup := r.Group("/collab")
	// 会从 Authorization 或 ?token= 提取 token，并写入 userId/username
	collabGroup.Use(middleware.AuthMiddleware(deps.JWTSecret))
	if deps.Service != nil {
		handlers.NewDocumentHandler(deps.Service).Register(collabGroup)
	}
	if deps.WebSocket != nil {
		collabGroup.GET("/ws", deps.WebSocket)
	}
	return r
}
