package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"shorturl-service/internal/metrics"
	"shorturl-service/internal/model"
	"shorturl-service/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// URLService handler 依赖的业务接口
type URLService interface {
	CreateShortLink(ctx context.Context, longURL string) (string, error)
	ResolveAndRecordVisit(ctx context.Context, code, ip string) (string, error)
	GetAllStatistics(ctx context.Context) ([]model.VisitRecord, error)
	AssignAlias(ctx context.Context, targetShortURL, alias string) (string, error)
	SetRequestLimit(ctx context.Context, shortURL string, limit int64) (string, error)
	SoftDeleteURL(ctx context.Context, shortURL string) (string, error)
	IsShortURL(raw string) bool
	Health(ctx context.Context) error
}

// ShortLinkHandler 处理器
type ShortLinkHandler struct {
	service URLService
	logger  *zap.SugaredLogger
}

// NewShortLinkHandler 创建处理器实例
func NewShortLinkHandler(svc URLService, logger *zap.SugaredLogger) *ShortLinkHandler {
	registerValidators()
	return &ShortLinkHandler{
		service: svc,
		logger:  logger.Named("handler"),
	}
}

// ShortenRequest 创建短链接请求
type ShortenRequest struct {
	LongURL string `json:"longUrl" binding:"required,url" example:"https://example.com/very/long/path"`
}

// SetAliasRequest 设置别名请求
type SetAliasRequest struct {
	ShortURL string `json:"shortUrl" binding:"required" example:"http://localhost:3000/url/GmgaS1HTd2"`
	Alias    string `json:"alias" binding:"required" example:"my-link"`
}

// SetRequestLimitRequest 设置访问上限请求
type SetRequestLimitRequest struct {
	ShortURL     string `json:"shortUrl" binding:"required,urlport" example:"http://localhost:3000/url/GmgaS1HTd2"`
	RequestLimit *int64 `json:"requestLimit" binding:"required,min=0" example:"10"`
}

// DeleteURLRequest 删除短链接请求
type DeleteURLRequest struct {
	ShortURL string `json:"shortUrl" binding:"required,urlport" example:"http://localhost:3000/url/GmgaS1HTd2"`
}

// HealthCheck 检查数据库连接
func (h *ShortLinkHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.service.Health(ctx); err != nil {
		h.logger.Warnf("健康检查失败: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "timestamp": time.Now()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now()})
}

// Shorten godoc
// @Summary 创建短链接
// @Description 为长链接生成短链接，同一个长链接重复提交返回同一个短链接
// @Tags Url
// @Accept  json
// @Produce  plain
// @Param   body  body   ShortenRequest  true  "长链接"
// @Success 201 {string} string "短链接"
// @Failure 400 {object} gin.H "请求无效"
// @Router /url [post]
func (h *ShortLinkHandler) Shorten(c *gin.Context) {
	var req ShortenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	shortURL, err := h.service.CreateShortLink(c.Request.Context(), req.LongURL)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.String(http.StatusCreated, shortURL)
}

// GetStatistics godoc
// @Summary 获取全部访问统计
// @Tags Url
// @Produce  json
// @Success 200 {array} model.VisitRecord
// @Router /url/stats [get]
func (h *ShortLinkHandler) GetStatistics(c *gin.Context) {
	records, err := h.service.GetAllStatistics(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

// RedirectToOriginal 记录访问并跳转到长链接
func (h *ShortLinkHandler) RedirectToOriginal(c *gin.Context) {
	code := c.Param("urlCode")

	longURL, err := h.service.ResolveAndRecordVisit(c.Request.Context(), code, c.ClientIP())
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			metrics.RecordRedirect(metrics.OutcomeNotFound)
		case errors.Is(err, service.ErrForbidden):
			metrics.RecordRedirect(metrics.OutcomeLimited)
		default:
			metrics.RecordRedirect(metrics.OutcomeError)
		}
		h.respondError(c, err)
		return
	}

	metrics.RecordRedirect(metrics.OutcomeRedirected)
	c.Redirect(http.StatusFound, longURL)
}

// SetAlias godoc
// @Summary 设置别名
// @Description shortUrl 必须是本服务生成的短链接或合法 URL
// @Tags Url
// @Accept  json
// @Produce  plain
// @Param   body  body   SetAliasRequest  true  "短链接和别名"
// @Success 200 {string} string "别名短链接"
// @Failure 400 {object} gin.H "请求无效"
// @Failure 404 {object} gin.H "短链接不存在或已删除"
// @Failure 422 {object} gin.H "别名已存在"
// @Router /url/alias [patch]
func (h *ShortLinkHandler) SetAlias(c *gin.Context) {
	var req SetAliasRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if !isURL(req.ShortURL) && !h.service.IsShortURL(req.ShortURL) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "shortURL must be an auto generated short URL or a valid long URL"})
		return
	}

	aliasURL, err := h.service.AssignAlias(c.Request.Context(), req.ShortURL, req.Alias)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.String(http.StatusOK, aliasURL)
}

// SetRequestLimit godoc
// @Summary 设置访问上限
// @Description requestLimit 为 0 表示不限制
// @Tags Url
// @Accept  json
// @Produce  json
// @Param   body  body   SetRequestLimitRequest  true  "短链接和访问上限"
// @Success 200 {string} string "Request Limit set successfully!"
// @Failure 400 {object} gin.H "请求无效"
// @Failure 404 {object} gin.H "短链接不存在或已删除"
// @Router /url/limit [patch]
func (h *ShortLinkHandler) SetRequestLimit(c *gin.Context) {
	var req SetRequestLimitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	msg, err := h.service.SetRequestLimit(c.Request.Context(), req.ShortURL, *req.RequestLimit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

// DeleteURL godoc
// @Summary 删除短链接
// @Description 软删除，统计数据保留
// @Tags Url
// @Accept  json
// @Produce  json
// @Param   body  body   DeleteURLRequest  true  "短链接"
// @Success 200 {string} string "Short Url Deleted successfully!"
// @Failure 404 {object} gin.H "短链接不存在或已删除"
// @Router /url [delete]
func (h *ShortLinkHandler) DeleteURL(c *gin.Context) {
	var req DeleteURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	msg, err := h.service.SoftDeleteURL(c.Request.Context(), req.ShortURL)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
}

// respondError 按错误分类返回状态码
func (h *ShortLinkHandler) respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Errorw("请求处理失败", "path", c.Request.URL.Path, "ip", c.ClientIP(), "error", err)
	}
	c.JSON(status, gin.H{"error": service.Message(err)})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrConflict):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
