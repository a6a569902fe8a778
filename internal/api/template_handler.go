package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"cvbuilder/internal/cv"
	"cvbuilder/internal/render"
)

// TemplateHandler 暴露模板目录与空白预览。
type TemplateHandler struct {
	logger *slog.Logger
}

func NewTemplateHandler(logger *slog.Logger) *TemplateHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TemplateHandler{logger: logger}
}

// List 返回模板目录。
// GET /v1/templates
func (h *TemplateHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"items":             render.Catalog(),
		"default":           render.DefaultTemplateID,
		"defaultThemeColor": render.DefaultThemeColor,
	})
}

// Preview 用默认空表单渲染模板。
// GET /v1/templates/:id/preview?color=
func (h *TemplateHandler) Preview(c *gin.Context) {
	tpl, ok := render.Lookup(c.Param("id"))
	if !ok {
		NotFound(c, "template not found")
		return
	}

	doc := cv.Default()
	doc.PersonalInfo.FirstName = "Jane"
	doc.PersonalInfo.LastName = "Doe"
	doc.PersonalInfo.Title = tpl.Name

	page, err := render.Render(doc, tpl.ID, c.Query("color"))
	if err != nil {
		h.logger.Error("render template preview", slog.String("template", tpl.ID), slog.Any("error", err))
		Internal(c, "failed to render preview")
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", page)
}
