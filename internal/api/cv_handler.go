package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"cvbuilder/internal/api/middleware"
	"cvbuilder/internal/cv"
	"cvbuilder/internal/service"
)

// CVHandler 暴露 CV 相关接口。
type CVHandler struct {
	svc *service.CVService
}

func NewCVHandler(svc *service.CVService) *CVHandler {
	return &CVHandler{svc: svc}
}

// GET /v1/cv
func (h *CVHandler) List(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	docs, err := h.svc.List(c.Request.Context(), userID)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": docs})
}

// GET /v1/cv/new
// 返回默认空文档；preview 为 true 时前端只能预览不能保存。
func (h *CVHandler) New(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	draft, err := h.svc.NewDraft(c.Request.Context(), userID)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, draft)
}

// POST /v1/cv
func (h *CVHandler) Create(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	var doc cv.Document
	if err := c.ShouldBindJSON(&doc); err != nil {
		BadRequest(c, err.Error())
		return
	}
	saved, err := h.svc.Create(c.Request.Context(), userID, doc)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, saved)
}

// GET /v1/cv/:id
func (h *CVHandler) Get(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	doc, acc, err := h.svc.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cv": doc, "access": acc})
}

// PUT /v1/cv/:id
func (h *CVHandler) Update(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	var doc cv.Document
	if err := c.ShouldBindJSON(&doc); err != nil {
		BadRequest(c, err.Error())
		return
	}
	saved, err := h.svc.Update(c.Request.Context(), userID, c.Param("id"), doc)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

// DELETE /v1/cv/:id
func (h *CVHandler) Delete(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	if err := h.svc.Delete(c.Request.Context(), userID, c.Param("id")); err != nil {
		RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// POST /v1/cv/:id/duplicate
func (h *CVHandler) Duplicate(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	dup, err := h.svc.Duplicate(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dup)
}

// GET /v1/cv/:id/access
func (h *CVHandler) Access(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	acc, err := h.svc.Access(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, acc)
}

// POST /v1/cv/export/html
// 渲染请求体中的文档（可能尚未保存）。
func (h *CVHandler) ExportHTML(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	var doc cv.Document
	if err := c.ShouldBindJSON(&doc); err != nil {
		BadRequest(c, err.Error())
		return
	}
	page, err := h.svc.ExportHTML(c.Request.Context(), userID, doc)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", page)
}

// POST /v1/cv/:id/pdf
func (h *CVHandler) RequestPDF(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	correlationID := middleware.GetCorrelationID(c)
	taskID, err := h.svc.RequestPDF(c.Request.Context(), userID, c.Param("id"), correlationID)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"task_id": taskID, "correlation_id": correlationID})
}

// GET /v1/cv/:id/download-link
func (h *CVHandler) DownloadLink(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	url, err := h.svc.DownloadLink(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}
