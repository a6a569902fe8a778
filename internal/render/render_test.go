package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cvbuilder/internal/cv"
)

const pixel = "data:image/png;base64,iVBORw0KGgo="

func sampleDoc() cv.Document {
	doc := cv.Default()
	doc.PersonalInfo = cv.PersonalInfo{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     "ada@example.com",
		City:      "London",
		Title:     "Analyst",
		Summary:   "Writes programs for engines.",
	}
	doc.Experiences = []cv.Experience{{ID: "e1", Company: "Engines Ltd", Position: "Programmer", StartDate: "1842", Current: true, Highlights: []string{"Note G"}}}
	doc.Skills = []cv.Skill{{ID: "s1", Name: "Mathematics", Level: cv.SkillExpert}}
	doc.Languages = []cv.Language{{ID: "l1", Name: "French", Level: cv.LanguageNative}}
	doc.Certifications = []cv.Certification{{ID: "c1", Name: "Royal Society", Issuer: "RS"}}
	return doc
}

func TestCatalog(t *testing.T) {
	list := Catalog()
	require.Len(t, list, 9)
	assert.Equal(t, DefaultTemplateID, list[0].ID)

	list[0].ID = "mutated"
	assert.Equal(t, DefaultTemplateID, Catalog()[0].ID)

	tpl, ok := Lookup("academic")
	assert.True(t, ok)
	assert.Equal(t, LayoutAcademic, tpl.Layout)

	tpl, ok = Lookup("does-not-exist")
	assert.False(t, ok)
	assert.Equal(t, DefaultTemplateID, tpl.ID)
}

func TestResolveThemeColor(t *testing.T) {
	cases := map[string]string{
		"#FF0000":    "#ff0000",
		"#10b981":    "#10b981",
		"red":        DefaultThemeColor,
		"#fff":       DefaultThemeColor,
		"":           DefaultThemeColor,
		"#12345g":    DefaultThemeColor,
		"#123456; x": DefaultThemeColor,
	}
	for in, want := range cases {
		assert.Equal(t, want, ResolveThemeColor(in), "input %q", in)
	}
}

func TestRender_AllTemplates(t *testing.T) {
	for _, tpl := range Catalog() {
		t.Run(tpl.ID, func(t *testing.T) {
			out, err := Render(sampleDoc(), tpl.ID, "#10b981")
			require.NoError(t, err)
			html := string(out)
			assert.Contains(t, html, "tpl-"+tpl.ID)
			assert.Contains(t, html, "Ada Lovelace")
			assert.Contains(t, html, "#10b981")
			assert.Contains(t, html, "1842 - Present")
			assert.Contains(t, html, "Expert")
			assert.Contains(t, html, "Native")
			assert.Contains(t, html, "Royal Society")
		})
	}
}

func TestRender_Fallbacks(t *testing.T) {
	out, err := Render(sampleDoc(), "unknown", "not-a-color")
	require.NoError(t, err)
	html := string(out)
	assert.Contains(t, html, "tpl-modern")
	assert.Contains(t, html, DefaultThemeColor)
	assert.Contains(t, html, "sidebar-layout")
}

func TestRender_EscapesUserText(t *testing.T) {
	doc := sampleDoc()
	doc.PersonalInfo.FirstName = "<script>alert(1)</script>"
	doc.Experiences[0].Description = `<img src=x onerror="boom">`

	out, err := Render(doc, "classic", "")
	require.NoError(t, err)
	html := string(out)
	assert.NotContains(t, html, "<script>alert(1)</script>")
	assert.NotContains(t, html, `<img src=x`)
	assert.Contains(t, html, "&lt;script&gt;")
}

func TestRender_Photo(t *testing.T) {
	doc := sampleDoc()

	out, err := Render(doc, "modern", "", WithPhoto(pixel))
	require.NoError(t, err)
	assert.NotContains(t, string(out), pixel, "photo hidden unless showPhoto")

	doc.PersonalInfo.ShowPhoto = true
	out, err = Render(doc, "modern", "", WithPhoto(pixel))
	require.NoError(t, err)
	assert.Contains(t, string(out), pixel)

	out, err = Render(doc, "modern", "", WithPhoto("javascript:alert(1)"))
	require.NoError(t, err)
	assert.NotContains(t, string(out), "javascript:")
	assert.False(t, strings.Contains(string(out), `class="photo"`))
}

func TestRender_EmptyDocument(t *testing.T) {
	out, err := Render(cv.Default(), "", "")
	require.NoError(t, err)
	html := string(out)
	assert.Contains(t, html, cv.DefaultName)
	assert.NotContains(t, html, "<h2>Experience</h2>")
}
