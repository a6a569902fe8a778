package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"regexp"
	"strings"

	"cvbuilder/internal/cv"
)

// DefaultThemeColor 是非法主题色的回退值。
const DefaultThemeColor = "#2563eb"

var hexColor = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

//go:embed templates/*.html
var templateFS embed.FS

var pages = template.Must(template.New("cv").Funcs(template.FuncMap{
	"join":     strings.Join,
	"nonEmpty": nonEmpty,
	"level":    levelLabel,
	"dates":    dateRange,
}).ParseFS(templateFS, "templates/*.html"))

// Option 调整单次渲染。
type Option func(*view)

// WithPhoto 内联头像；仅接受 data:image/ URI，其它值被忽略。
func WithPhoto(dataURI string) Option {
	return func(v *view) {
		if strings.HasPrefix(dataURI, "data:image/") {
			v.Photo = template.URL(dataURI)
		}
	}
}

type view struct {
	Doc      cv.Document
	Template Template
	Color    template.CSS
	Photo    template.URL
	FullName string
	Contact  []string
}

// ResolveThemeColor 校验 #rrggbb，非法值回退到默认色。
func ResolveThemeColor(color string) string {
	if hexColor.MatchString(color) {
		return strings.ToLower(color)
	}
	return DefaultThemeColor
}

// Render 把文档投影为完整 HTML 页面。未知模板回退到 modern，非法颜色回退到默认色。
func Render(doc cv.Document, templateID, themeColor string, opts ...Option) ([]byte, error) {
	tpl, _ := Lookup(templateID)
	v := view{
		Doc:      doc,
		Template: tpl,
		Color:    template.CSS(ResolveThemeColor(themeColor)),
		FullName: strings.TrimSpace(doc.PersonalInfo.FirstName + " " + doc.PersonalInfo.LastName),
		Contact:  contactLine(doc.PersonalInfo),
	}
	if doc.PersonalInfo.ShowPhoto {
		for _, opt := range opts {
			opt(&v)
		}
	}

	var buf bytes.Buffer
	if err := pages.ExecuteTemplate(&buf, "page", v); err != nil {
		return nil, fmt.Errorf("render template %s: %w", tpl.ID, err)
	}
	return buf.Bytes(), nil
}

func contactLine(p cv.PersonalInfo) []string {
	location := strings.TrimSpace(strings.Join(nonEmpty(p.Address, strings.TrimSpace(p.PostalCode+" "+p.City), p.Country), ", "))
	return nonEmpty(p.Email, p.Phone, location, p.LinkedIn, p.GitHub, p.Website)
}

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}

func dateRange(start, end string, current bool) string {
	switch {
	case current && start != "":
		return start + " - Present"
	case start != "" && end != "":
		return start + " - " + end
	case start != "":
		return start
	default:
		return end
	}
}

var skillLabels = map[cv.SkillLevel]string{
	cv.SkillBeginner:     "Beginner",
	cv.SkillIntermediate: "Intermediate",
	cv.SkillAdvanced:     "Advanced",
	cv.SkillExpert:       "Expert",
}

func levelLabel(level any) string {
	switch l := level.(type) {
	case cv.SkillLevel:
		return skillLabels[l]
	case cv.LanguageLevel:
		if l == cv.LanguageNative {
			return "Native"
		}
		return string(l)
	}
	return ""
}
