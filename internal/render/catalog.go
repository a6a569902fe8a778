package render

// Layout 是模板的版式族。
type Layout string

const (
	LayoutSingle   Layout = "single"
	LayoutSidebar  Layout = "sidebar"
	LayoutAcademic Layout = "academic"
)

// Template 描述目录中的一个模板。
type Template struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Layout      Layout `json:"layout"`
}

// DefaultTemplateID 是未知模板 id 的回退值。
const DefaultTemplateID = "modern"

var catalog = []Template{
	{ID: "modern", Name: "Modern", Description: "Clean contemporary design with a two-column layout", Category: "modern", Layout: LayoutSidebar},
	{ID: "classic", Name: "Classic", Description: "Traditional professional style for conservative industries", Category: "classic", Layout: LayoutSingle},
	{ID: "minimal", Name: "Minimal", Description: "Simple and elegant, the content comes first", Category: "minimal", Layout: LayoutSingle},
	{ID: "creative", Name: "Creative", Description: "Bold and original style for creative profiles", Category: "creative", Layout: LayoutSidebar},
	{ID: "tech", Name: "Tech", Description: "Tuned for developers and technical profiles", Category: "modern", Layout: LayoutSidebar},
	{ID: "executive", Name: "Executive", Description: "Sophisticated and authoritative, for managers and executives", Category: "classic", Layout: LayoutSingle},
	{ID: "compact", Name: "Compact", Description: "Fits a lot of information on one page", Category: "minimal", Layout: LayoutSingle},
	{ID: "bold", Name: "Bold", Description: "Large headings and strong contrast", Category: "creative", Layout: LayoutSingle},
	{ID: "academic", Name: "Academic", Description: "Formal structure that leads with education and research", Category: "classic", Layout: LayoutAcademic},
}

// Catalog 返回模板目录的副本。
func Catalog() []Template {
	return append([]Template(nil), catalog...)
}

// Lookup 按 id 查找模板，未知 id 回退到 modern。第二个返回值表示是否命中。
func Lookup(id string) (Template, bool) {
	for _, t := range catalog {
		if t.ID == id {
			return t, true
		}
	}
	return catalog[0], false
}
