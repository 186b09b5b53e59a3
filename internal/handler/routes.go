package handler

import "github.com/gin-gonic/gin"

// RegisterRoutes 注册短链接路由，别名、上限和删除接口挂在 adminMiddleware 之后
func RegisterRoutes(router *gin.Engine, h *ShortLinkHandler, adminMiddleware gin.HandlerFunc) {
	router.GET("/health", h.HealthCheck)

	url := router.Group("/url")
	{
		url.POST("", h.Shorten)
		url.GET("/stats", h.GetStatistics)
		url.GET("/:urlCode", h.RedirectToOriginal)
	}

	admin := url.Group("")
	admin.Use(adminMiddleware)
	{
		admin.PATCH("/alias", h.SetAlias)
		admin.PATCH("/limit", h.SetRequestLimit)
		admin.DELETE("", h.DeleteURL)
	}
}
