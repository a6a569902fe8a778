package cv

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cast"
	"gorm.io/datatypes"

	"cvbuilder/internal/persistence"
)

// Table 是 CV 所在表。
const Table = "cvs"

// cvs 表的列名。
const (
	ColID             = "id"
	ColUserID         = "user_id"
	ColName           = "name"
	ColTemplateID     = "template_id"
	ColThemeColor     = "theme_color"
	ColPersonalInfo   = "personal_info"
	ColExperiences    = "experiences"
	ColEducation      = "education"
	ColSkills         = "skills"
	ColProjects       = "projects"
	ColLanguages      = "languages"
	ColCertifications = "certifications"
	ColCreatedAt      = "created_at"
	ColUpdatedAt      = "updated_at"
	ColPDFObjectKey   = "pdf_object_key"
)

// ToRow 把文档投影为扁平列 payload；列表与个人信息编码为 JSON。未保存文档不含 id。
func ToRow(d Document) (persistence.Row, error) {
	d.normalize()

	row := persistence.Row{
		ColUserID:     d.OwnerID,
		ColName:       d.Name,
		ColTemplateID: d.TemplateID,
		ColThemeColor: d.ThemeColor,
		ColCreatedAt:  d.CreatedAt.UTC(),
		ColUpdatedAt:  d.UpdatedAt.UTC(),
	}
	if d.ID != "" {
		row[ColID] = d.ID
	}

	jsonCols := []struct {
		col string
		val any
	}{
		{ColPersonalInfo, d.PersonalInfo},
		{ColExperiences, d.Experiences},
		{ColEducation, d.Education},
		{ColSkills, d.Skills},
		{ColProjects, d.Projects},
		{ColLanguages, d.Languages},
		{ColCertifications, d.Certifications},
	}
	for _, jc := range jsonCols {
		raw, err := json.Marshal(jc.val)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", jc.col, err)
		}
		row[jc.col] = datatypes.JSON(raw)
	}
	return row, nil
}

// FromRow 从存储回读的行还原文档。缺失的列（例如被剥离的可选列）按零值处理。
func FromRow(row persistence.Row) (Document, error) {
	var d Document
	var err error

	if d.ID, err = toID(row[ColID]); err != nil {
		return Document{}, fmt.Errorf("decode %s: %w", ColID, err)
	}
	if v, ok := row[ColUserID]; ok && v != nil {
		owner, err := cast.ToUintE(scalar(v))
		if err != nil {
			return Document{}, fmt.Errorf("decode %s: %w", ColUserID, err)
		}
		d.OwnerID = owner
	}
	for col, dst := range map[string]*string{
		ColName:       &d.Name,
		ColTemplateID: &d.TemplateID,
		ColThemeColor: &d.ThemeColor,
	} {
		if *dst, err = cast.ToStringE(scalar(row[col])); err != nil {
			return Document{}, fmt.Errorf("decode %s: %w", col, err)
		}
	}
	for col, dst := range map[string]*time.Time{
		ColCreatedAt: &d.CreatedAt,
		ColUpdatedAt: &d.UpdatedAt,
	} {
		if *dst, err = cast.ToTimeE(scalar(row[col])); err != nil {
			return Document{}, fmt.Errorf("decode %s: %w", col, err)
		}
		*dst = dst.UTC()
	}

	jsonCols := []struct {
		col string
		dst any
	}{
		{ColPersonalInfo, &d.PersonalInfo},
		{ColExperiences, &d.Experiences},
		{ColEducation, &d.Education},
		{ColSkills, &d.Skills},
		{ColProjects, &d.Projects},
		{ColLanguages, &d.Languages},
		{ColCertifications, &d.Certifications},
	}
	for _, jc := range jsonCols {
		raw, err := jsonBytes(row[jc.col])
		if err != nil {
			return Document{}, fmt.Errorf("decode %s: %w", jc.col, err)
		}
		if len(raw) == 0 {
			continue
		}
		if err := json.Unmarshal(raw, jc.dst); err != nil {
			return Document{}, fmt.Errorf("decode %s: %w", jc.col, err)
		}
	}

	d.normalize()
	return d, nil
}

// scalar 解开 driver.Valuer、指针与 []byte，交给 cast 处理。
func scalar(v any) any {
	if valuer, ok := v.(driver.Valuer); ok {
		if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer && rv.IsNil() {
			return nil
		}
		inner, err := valuer.Value()
		if err == nil {
			v = inner
		}
	}
	v = deref(v)
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

func deref(v any) any {
	rv := reflect.ValueOf(v)
	for rv.IsValid() && rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return nil
	}
	return rv.Interface()
}

func toID(v any) (string, error) {
	switch id := deref(v).(type) {
	case nil:
		return "", nil
	case [16]byte:
		return uuid.UUID(id).String(), nil
	case uuid.UUID:
		return id.String(), nil
	default:
		return cast.ToStringE(scalar(id))
	}
}

// jsonBytes 接受驱动可能返回的各种 JSON 列形态：字符串、字节、已解码的 map/slice。
func jsonBytes(v any) ([]byte, error) {
	switch val := deref(v).(type) {
	case nil:
		return nil, nil
	case datatypes.JSON:
		return []byte(val), nil
	case json.RawMessage:
		return []byte(val), nil
	case []byte:
		return val, nil
	case string:
		return []byte(val), nil
	default:
		return json.Marshal(val)
	}
}
