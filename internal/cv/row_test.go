package cv

import (
	"context"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cvbuilder/internal/persistence"
	"cvbuilder/internal/persistence/persistencetest"
)

var created = time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)

func sampleDocument() Document {
	d := Default()
	d.ID = "7f1c0c8e-6f7b-4a53-9f49-5b4f3c1d2e10"
	d.OwnerID = 9
	d.Name = "Senior Go"
	d.PersonalInfo = PersonalInfo{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", ShowPhoto: true}
	d.Experiences = []Experience{{ID: "e1", Company: "Acme", Current: true, Highlights: []string{"Shipped"}}}
	d.Education = []Education{{ID: "ed1", Institution: "Uni", GPA: "3.9"}}
	d.Skills = []Skill{{ID: "s1", Name: "Go", Level: SkillExpert}}
	d.Projects = []Project{{ID: "p1", Name: "cvbuilder", Technologies: []string{"go", "gin"}}}
	d.Languages = []Language{{ID: "l1", Name: "French", Level: LanguageNative}}
	d.Certifications = []Certification{{ID: "c1", Name: "CKA", Issuer: "CNCF"}}
	d.CreatedAt = created
	d.UpdatedAt = created.Add(time.Hour)
	return d
}

func TestRow_RoundTripThroughFullSchema(t *testing.T) {
	store := persistencetest.NewMemoryStore()
	w := persistence.NewWriter(store)
	doc := sampleDocument()

	row, err := ToRow(doc)
	require.NoError(t, err)
	_, err = w.Insert(context.Background(), Table, row)
	require.NoError(t, err)

	rows, err := store.Select(context.Background(), Table, persistence.Query{Where: map[string]any{ColID: doc.ID}})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	got, err := FromRow(rows[0])
	require.NoError(t, err)
	assert.Equal(t, doc, got)
}

func TestRow_RoundTripWithLaggingSchema(t *testing.T) {
	store := persistencetest.NewMemoryStore()
	store.DefineTable(Table, ColID, ColUserID, ColName, ColTemplateID, ColThemeColor, ColPersonalInfo,
		ColExperiences, ColEducation, ColSkills, ColProjects, ColLanguages, ColCreatedAt, ColUpdatedAt)
	repo := NewRepository(persistence.NewWriter(store))
	doc := sampleDocument()

	saved, err := repo.Create(context.Background(), doc)
	require.NoError(t, err)

	want := doc
	want.Certifications = []Certification{}
	assert.Equal(t, want, saved)
}

func TestFromRow_ToleratesDriverShapes(t *testing.T) {
	name := "Pointer Name"
	row := persistence.Row{
		ColID:           [16]byte{0x7f, 0x1c, 0x0c, 0x8e, 0x6f, 0x7b, 0x4a, 0x53, 0x9f, 0x49, 0x5b, 0x4f, 0x3c, 0x1d, 0x2e, 0x10},
		ColUserID:       "12",
		ColName:         &name,
		ColTemplateID:   []byte("classic"),
		ColPersonalInfo: map[string]any{"firstName": "Ada"},
		ColSkills:       []byte(`[{"id":"s","name":"Go","level":"expert"}]`),
		ColLanguages:    nil,
		ColCreatedAt:    "2024-02-03 04:05:06",
		ColUpdatedAt:    created,
	}

	d, err := FromRow(row)

	require.NoError(t, err)
	assert.Equal(t, "7f1c0c8e-6f7b-4a53-9f49-5b4f3c1d2e10", d.ID)
	assert.Equal(t, uint(12), d.OwnerID)
	assert.Equal(t, "Pointer Name", d.Name)
	assert.Equal(t, "classic", d.TemplateID)
	assert.Equal(t, "Ada", d.PersonalInfo.FirstName)
	assert.Equal(t, SkillExpert, d.Skills[0].Level)
	assert.Equal(t, []Language{}, d.Languages)
	assert.Equal(t, created, d.CreatedAt)
}

func TestFromRow_RejectsGarbage(t *testing.T) {
	_, err := FromRow(persistence.Row{ColSkills: "not json"})
	assert.Error(t, err)
}

func TestRow_RoundTripProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("documents survive writer and select unchanged", prop.ForAll(
		func(name, company string, highlights []string, owner uint, minutes int) bool {
			e := NewEditor()
			e.SetName(name)
			id := e.AddExperience()
			_ = e.UpdateExperience(id, func(x *Experience) {
				x.Company = company
				x.Highlights = highlights
			})
			doc := Stamp(e.Document(), "doc-1", owner, created.Add(time.Duration(minutes)*time.Minute))
			doc.normalize()

			store := persistencetest.NewMemoryStore()
			repo := NewRepository(persistence.NewWriter(store))
			if _, err := repo.Create(context.Background(), doc); err != nil {
				return false
			}
			got, err := repo.Get(context.Background(), "doc-1")
			if err != nil {
				return false
			}
			return assert.ObjectsAreEqual(doc, got)
		},
		gen.AlphaString(),
		gen.AlphaString(),
		gen.SliceOf(gen.AlphaString()),
		gen.UIntRange(1, 1<<20),
		gen.IntRange(0, 100000),
	))

	properties.TestingRun(t)
}
