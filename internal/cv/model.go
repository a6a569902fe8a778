package cv

import (
	"time"
)

// 默认展示值。
const (
	DefaultName       = "Untitled CV"
	DefaultTemplateID = "modern"
	DefaultThemeColor = "#2563eb"
)

// SkillLevel 技能熟练度。
type SkillLevel string

const (
	SkillBeginner     SkillLevel = "debutant"
	SkillIntermediate SkillLevel = "intermediaire"
	SkillAdvanced     SkillLevel = "avance"
	SkillExpert       SkillLevel = "expert"
)

// LanguageLevel 采用 CEFR 等级，外加母语。
type LanguageLevel string

const (
	LanguageA1     LanguageLevel = "A1"
	LanguageA2     LanguageLevel = "A2"
	LanguageB1     LanguageLevel = "B1"
	LanguageB2     LanguageLevel = "B2"
	LanguageC1     LanguageLevel = "C1"
	LanguageC2     LanguageLevel = "C2"
	LanguageNative LanguageLevel = "natif"
)

// PersonalInfo 是 CV 的标量字段。Photo 保存上传后的对象 key。
type PersonalInfo struct {
	FirstName  string `json:"firstName" validate:"max=100"`
	LastName   string `json:"lastName" validate:"max=100"`
	Email      string `json:"email" validate:"max=255"`
	Phone      string `json:"phone" validate:"max=50"`
	Address    string `json:"address" validate:"max=255"`
	City       string `json:"city" validate:"max=100"`
	PostalCode string `json:"postalCode" validate:"max=20"`
	Country    string `json:"country" validate:"max=100"`
	Title      string `json:"title" validate:"max=255"`
	Summary    string `json:"summary" validate:"max=5000"`
	LinkedIn   string `json:"linkedin,omitempty" validate:"max=512"`
	GitHub     string `json:"github,omitempty" validate:"max=512"`
	Website    string `json:"website,omitempty" validate:"max=512"`
	Photo      string `json:"photo,omitempty" validate:"max=512"`
	ShowPhoto  bool   `json:"showPhoto,omitempty"`
}

type Experience struct {
	ID          string   `json:"id" validate:"required"`
	Company     string   `json:"company"`
	Position    string   `json:"position"`
	Location    string   `json:"location"`
	StartDate   string   `json:"startDate"`
	EndDate     string   `json:"endDate"`
	Current     bool     `json:"current"`
	Description string   `json:"description"`
	Highlights  []string `json:"highlights"`
}

type Education struct {
	ID          string `json:"id" validate:"required"`
	Institution string `json:"institution"`
	Degree      string `json:"degree"`
	Field       string `json:"field"`
	Location    string `json:"location"`
	StartDate   string `json:"startDate"`
	EndDate     string `json:"endDate"`
	Current     bool   `json:"current"`
	Description string `json:"description"`
	GPA         string `json:"gpa,omitempty"`
}

type Skill struct {
	ID       string     `json:"id" validate:"required"`
	Name     string     `json:"name"`
	Level    SkillLevel `json:"level" validate:"skilllevel"`
	Category string     `json:"category,omitempty"`
}

type Project struct {
	ID           string   `json:"id" validate:"required"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Technologies []string `json:"technologies"`
	URL          string   `json:"url,omitempty"`
	GitHub       string   `json:"github,omitempty"`
	StartDate    string   `json:"startDate,omitempty"`
	EndDate      string   `json:"endDate,omitempty"`
}

type Language struct {
	ID    string        `json:"id" validate:"required"`
	Name  string        `json:"name"`
	Level LanguageLevel `json:"level" validate:"languagelevel"`
}

type Certification struct {
	ID             string `json:"id" validate:"required"`
	Name           string `json:"name"`
	Issuer         string `json:"issuer"`
	Date           string `json:"date"`
	ExpirationDate string `json:"expirationDate,omitempty"`
	URL            string `json:"url,omitempty"`
}

// Document 是用户编辑与持久化的 CV 记录。
// ID 在首次保存前为空，此后不再变化；OwnerID 由服务端设置。
type Document struct {
	ID             string          `json:"id,omitempty"`
	OwnerID        uint            `json:"ownerId,omitempty"`
	Name           string          `json:"name" validate:"max=255"`
	TemplateID     string          `json:"templateId" validate:"max=64"`
	ThemeColor     string          `json:"themeColor" validate:"max=16"`
	PersonalInfo   PersonalInfo    `json:"personalInfo"`
	Experiences    []Experience    `json:"experiences" validate:"unique=ID,dive"`
	Education      []Education     `json:"education" validate:"unique=ID,dive"`
	Skills         []Skill         `json:"skills" validate:"unique=ID,dive"`
	Projects       []Project       `json:"projects" validate:"unique=ID,dive"`
	Languages      []Language      `json:"languages" validate:"unique=ID,dive"`
	Certifications []Certification `json:"certifications" validate:"unique=ID,dive"`
	CreatedAt      time.Time       `json:"createdAt,omitzero"`
	UpdatedAt      time.Time       `json:"updatedAt,omitzero"`
}

// Default 返回新建 CV 的空表单。
func Default() Document {
	return Document{
		Name:           DefaultName,
		TemplateID:     DefaultTemplateID,
		ThemeColor:     DefaultThemeColor,
		Experiences:    []Experience{},
		Education:      []Education{},
		Skills:         []Skill{},
		Projects:       []Project{},
		Languages:      []Language{},
		Certifications: []Certification{},
	}
}

// Saved 表示文档是否已持久化。
func (d Document) Saved() bool { return d.ID != "" }

// Clone 深拷贝，编辑会话返回的文档不与内部状态共享切片。
func (d Document) Clone() Document {
	out := d
	out.Experiences = make([]Experience, len(d.Experiences))
	for i, e := range d.Experiences {
		e.Highlights = append([]string{}, e.Highlights...)
		out.Experiences[i] = e
	}
	out.Education = append([]Education{}, d.Education...)
	out.Skills = append([]Skill{}, d.Skills...)
	out.Projects = make([]Project, len(d.Projects))
	for i, p := range d.Projects {
		p.Technologies = append([]string{}, p.Technologies...)
		out.Projects[i] = p
	}
	out.Languages = append([]Language{}, d.Languages...)
	out.Certifications = append([]Certification{}, d.Certifications...)
	return out
}

// normalize 把 nil 列表替换为空列表，使 JSON 列始终是数组。
func (d *Document) normalize() {
	if d.Experiences == nil {
		d.Experiences = []Experience{}
	}
	for i := range d.Experiences {
		if d.Experiences[i].Highlights == nil {
			d.Experiences[i].Highlights = []string{}
		}
	}
	if d.Education == nil {
		d.Education = []Education{}
	}
	if d.Skills == nil {
		d.Skills = []Skill{}
	}
	if d.Projects == nil {
		d.Projects = []Project{}
	}
	for i := range d.Projects {
		if d.Projects[i].Technologies == nil {
			d.Projects[i].Technologies = []string{}
		}
	}
	if d.Languages == nil {
		d.Languages = []Language{}
	}
	if d.Certifications == nil {
		d.Certifications = []Certification{}
	}
}
