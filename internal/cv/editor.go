package cv

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrEntryNotFound 表示按 id 找不到子记录。
	ErrEntryNotFound = errors.New("entry not found")
	// ErrInvalidOrder 表示重排的 id 列表不是当前列表的一个排列。
	ErrInvalidOrder = errors.New("reorder ids must be a permutation of existing entries")
)

// Editor 是单个编辑会话持有的文档状态容器，不跨会话共享，也非并发安全。
type Editor struct {
	doc   Document
	dirty bool
	newID func() string
}

// EditorOption 配置 Editor。
type EditorOption func(*Editor)

// WithIDGenerator 替换子记录 id 生成器。
func WithIDGenerator(fn func() string) EditorOption {
	return func(e *Editor) {
		if fn != nil {
			e.newID = fn
		}
	}
}

// NewEditor 以默认空表单开始一个会话。
func NewEditor(opts ...EditorOption) *Editor {
	e := &Editor{doc: Default(), newID: uuid.NewString}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Document 返回当前文档的深拷贝。
func (e *Editor) Document() Document { return e.doc.Clone() }

// Dirty 表示是否有未保存的修改。
func (e *Editor) Dirty() bool { return e.dirty }

// Load 载入已保存文档，清除 dirty。
func (e *Editor) Load(doc Document) {
	e.doc = doc.Clone()
	e.doc.normalize()
	e.dirty = false
}

// Reset 回到默认空表单。
func (e *Editor) Reset() {
	e.doc = Default()
	e.dirty = false
}

// MarkSaved 用存储回读的文档替换状态（获得 id 与时间戳）并清除 dirty。
func (e *Editor) MarkSaved(saved Document) {
	e.Load(saved)
}

func (e *Editor) SetName(name string) {
	e.doc.Name = name
	e.dirty = true
}

func (e *Editor) SetTemplate(templateID string) {
	e.doc.TemplateID = templateID
	e.dirty = true
}

func (e *Editor) SetThemeColor(color string) {
	e.doc.ThemeColor = color
	e.dirty = true
}

// UpdatePersonalInfo 就地修改个人信息。
func (e *Editor) UpdatePersonalInfo(fn func(*PersonalInfo)) {
	fn(&e.doc.PersonalInfo)
	e.dirty = true
}

func (e *Editor) AddExperience() string {
	id := e.newID()
	e.doc.Experiences = append(e.doc.Experiences, Experience{ID: id, Highlights: []string{}})
	e.dirty = true
	return id
}

func (e *Editor) UpdateExperience(id string, fn func(*Experience)) error {
	return e.touch(updateEntry(e.doc.Experiences, id, func(x *Experience) *string { return &x.ID }, fn))
}

func (e *Editor) RemoveExperience(id string) error {
	list, err := removeEntry(e.doc.Experiences, id, func(x Experience) string { return x.ID })
	if err == nil {
		e.doc.Experiences = list
	}
	return e.touch(err)
}

func (e *Editor) ReorderExperiences(ids []string) error {
	list, err := reorderEntries(e.doc.Experiences, ids, func(x Experience) string { return x.ID })
	if err == nil {
		e.doc.Experiences = list
	}
	return e.touch(err)
}

func (e *Editor) AddEducation() string {
	id := e.newID()
	e.doc.Education = append(e.doc.Education, Education{ID: id})
	e.dirty = true
	return id
}

func (e *Editor) UpdateEducation(id string, fn func(*Education)) error {
	return e.touch(updateEntry(e.doc.Education, id, func(x *Education) *string { return &x.ID }, fn))
}

func (e *Editor) RemoveEducation(id string) error {
	list, err := removeEntry(e.doc.Education, id, func(x Education) string { return x.ID })
	if err == nil {
		e.doc.Education = list
	}
	return e.touch(err)
}

func (e *Editor) ReorderEducation(ids []string) error {
	list, err := reorderEntries(e.doc.Education, ids, func(x Education) string { return x.ID })
	if err == nil {
		e.doc.Education = list
	}
	return e.touch(err)
}

func (e *Editor) AddSkill() string {
	id := e.newID()
	e.doc.Skills = append(e.doc.Skills, Skill{ID: id, Level: SkillIntermediate})
	e.dirty = true
	return id
}

func (e *Editor) UpdateSkill(id string, fn func(*Skill)) error {
	return e.touch(updateEntry(e.doc.Skills, id, func(x *Skill) *string { return &x.ID }, fn))
}

func (e *Editor) RemoveSkill(id string) error {
	list, err := removeEntry(e.doc.Skills, id, func(x Skill) string { return x.ID })
	if err == nil {
		e.doc.Skills = list
	}
	return e.touch(err)
}

func (e *Editor) AddProject() string {
	id := e.newID()
	e.doc.Projects = append(e.doc.Projects, Project{ID: id, Technologies: []string{}})
	e.dirty = true
	return id
}

func (e *Editor) UpdateProject(id string, fn func(*Project)) error {
	return e.touch(updateEntry(e.doc.Projects, id, func(x *Project) *string { return &x.ID }, fn))
}

func (e *Editor) RemoveProject(id string) error {
	list, err := removeEntry(e.doc.Projects, id, func(x Project) string { return x.ID })
	if err == nil {
		e.doc.Projects = list
	}
	return e.touch(err)
}

func (e *Editor) AddLanguage() string {
	id := e.newID()
	e.doc.Languages = append(e.doc.Languages, Language{ID: id, Level: LanguageB1})
	e.dirty = true
	return id
}

func (e *Editor) UpdateLanguage(id string, fn func(*Language)) error {
	return e.touch(updateEntry(e.doc.Languages, id, func(x *Language) *string { return &x.ID }, fn))
}

func (e *Editor) RemoveLanguage(id string) error {
	list, err := removeEntry(e.doc.Languages, id, func(x Language) string { return x.ID })
	if err == nil {
		e.doc.Languages = list
	}
	return e.touch(err)
}

func (e *Editor) AddCertification() string {
	id := e.newID()
	e.doc.Certifications = append(e.doc.Certifications, Certification{ID: id})
	e.dirty = true
	return id
}

func (e *Editor) UpdateCertification(id string, fn func(*Certification)) error {
	return e.touch(updateEntry(e.doc.Certifications, id, func(x *Certification) *string { return &x.ID }, fn))
}

func (e *Editor) RemoveCertification(id string) error {
	list, err := removeEntry(e.doc.Certifications, id, func(x Certification) string { return x.ID })
	if err == nil {
		e.doc.Certifications = list
	}
	return e.touch(err)
}

// ReassignEntryIDs 为所有子记录生成新 id，用于复制文档。
func (e *Editor) ReassignEntryIDs() {
	for i := range e.doc.Experiences {
		e.doc.Experiences[i].ID = e.newID()
	}
	for i := range e.doc.Education {
		e.doc.Education[i].ID = e.newID()
	}
	for i := range e.doc.Skills {
		e.doc.Skills[i].ID = e.newID()
	}
	for i := range e.doc.Projects {
		e.doc.Projects[i].ID = e.newID()
	}
	for i := range e.doc.Languages {
		e.doc.Languages[i].ID = e.newID()
	}
	for i := range e.doc.Certifications {
		e.doc.Certifications[i].ID = e.newID()
	}
	e.dirty = true
}

// Detach 清除 id、归属与时间戳，使文档成为未保存草稿。
func (e *Editor) Detach() {
	e.doc.ID = ""
	e.doc.OwnerID = 0
	e.doc.CreatedAt = time.Time{}
	e.doc.UpdatedAt = time.Time{}
	e.dirty = true
}

func (e *Editor) touch(err error) error {
	if err == nil {
		e.dirty = true
	}
	return err
}

// updateEntry 调用 fn 修改匹配项；fn 不能改写 id。
func updateEntry[T any](list []T, id string, idOf func(*T) *string, fn func(*T)) error {
	for i := range list {
		if *idOf(&list[i]) == id {
			fn(&list[i])
			*idOf(&list[i]) = id
			return nil
		}
	}
	return ErrEntryNotFound
}

func removeEntry[T any](list []T, id string, idOf func(T) string) ([]T, error) {
	for i := range list {
		if idOf(list[i]) == id {
			out := make([]T, 0, len(list)-1)
			out = append(out, list[:i]...)
			return append(out, list[i+1:]...), nil
		}
	}
	return list, ErrEntryNotFound
}

func reorderEntries[T any](list []T, ids []string, idOf func(T) string) ([]T, error) {
	if len(ids) != len(list) {
		return list, ErrInvalidOrder
	}
	byID := make(map[string]T, len(list))
	for _, item := range list {
		byID[idOf(item)] = item
	}
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		item, ok := byID[id]
		if !ok {
			return list, ErrInvalidOrder
		}
		delete(byID, id)
		out = append(out, item)
	}
	return out, nil
}
