package api

import (
	"net/http"
	"time"

	"api_sales/internal/sales"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// InitRoutes registers all sale endpoints on the given Gin engine under /api,
// binding each HTTP method and path to the appropriate handler function.
func InitRoutes(e *gin.Engine, salesService *sales.Service, logger *zap.Logger, corsOrigins []string) {
	e.Use(cors.New(corsConfig(corsOrigins)))

	salesHandler := NewSalesHandler(salesService, logger)

	api := e.Group("/api")
	salesRoutes := api.Group("/sales")
	{
		salesRoutes.POST("", salesHandler.handleCreateSale)
		salesRoutes.GET("", salesHandler.handleListSales)
		salesRoutes.GET("/:id", salesHandler.handleGetSale)
		salesRoutes.GET("/number/:number", salesHandler.handleGetSaleByNumber)
		salesRoutes.PUT("/:id", salesHandler.handleUpdateSale)
		salesRoutes.PATCH("/:id/cancel", salesHandler.handleCancelSale)
		salesRoutes.POST("/:id/items", salesHandler.handleAddItem)
		salesRoutes.PATCH("/:id/items/:itemId", salesHandler.handleUpdateItemQuantity)
		salesRoutes.DELETE("/:id/items/:itemId", salesHandler.handleRemoveItem)
	}

	e.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

// RequestLogger logs one line per request with zap.
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Error("request", fields...)
			return
		}
		logger.Info("request", fields...)
	}
}
