package entitlement

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cvbuilder/internal/subscription"
)

func TestCompute_FreeTier(t *testing.T) {
	cases := []struct {
		count                              int
		create, save, download, duplicate bool
	}{
		{0, true, true, true, true},
		{1, true, true, true, true},
		{2, true, false, false, false},
		{3, false, false, false, false},
		{10, false, false, false, false},
	}
	for _, tc := range cases {
		c := Compute(subscription.PlanFree, subscription.StatusActive, nil, tc.count)
		assert.Equal(t, tc.create, c.CanCreateCV, "create at %d", tc.count)
		assert.Equal(t, tc.save, c.CanSaveCV, "save at %d", tc.count)
		assert.Equal(t, tc.download, c.CanDownloadCV, "download at %d", tc.count)
		assert.Equal(t, tc.duplicate, c.CanDuplicate, "duplicate at %d", tc.count)
		require.NotNil(t, c.CVLimit)
		assert.Equal(t, 2, *c.CVLimit)
		assert.False(t, c.IsPremium)
		assert.False(t, c.Degraded)
	}
}

func TestCompute_PremiumHasNoLimit(t *testing.T) {
	for _, plan := range []subscription.PlanType{subscription.PlanPremium, subscription.PlanEnterprise} {
		c := Compute(plan, subscription.StatusActive, nil, 50)
		assert.True(t, c.IsPremium)
		assert.Nil(t, c.CVLimit)
		assert.True(t, c.CanCreateCV && c.CanSaveCV && c.CanDownloadCV && c.CanDuplicate)
	}
}

func TestUnknownUserDefault(t *testing.T) {
	d := UnknownUserDefault()
	assert.Equal(t, subscription.PlanFree, d.PlanType)
	assert.Equal(t, subscription.StatusActive, d.Status)
	assert.Equal(t, 0, d.CVCount)
	require.NotNil(t, d.CVLimit)
	assert.Equal(t, 1, *d.CVLimit)
	assert.True(t, d.CanCreateCV && d.CanSaveCV && d.CanDownloadCV && d.CanDuplicate)
	assert.True(t, d.Degraded)
}

func TestCheck_Allows(t *testing.T) {
	c := Compute(subscription.PlanFree, subscription.StatusActive, nil, 2)
	assert.True(t, c.Allows(ActionCreate))
	assert.False(t, c.Allows(ActionSave))
	assert.False(t, c.Allows(ActionDownload))
	assert.False(t, c.Allows(ActionDuplicate))
	assert.False(t, c.Allows(Action("publish")))
}

func TestCompute_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("premium plans grant everything regardless of count", prop.ForAll(
		func(count int, enterprise bool) bool {
			plan := subscription.PlanPremium
			if enterprise {
				plan = subscription.PlanEnterprise
			}
			c := Compute(plan, subscription.StatusActive, nil, count)
			return c.IsPremium && c.CanCreateCV && c.CanSaveCV && c.CanDownloadCV && c.CanDuplicate && c.CVLimit == nil
		},
		gen.IntRange(0, 10000),
		gen.Bool(),
	))

	properties.Property("free boundary is <2 for save and <3 for create", prop.ForAll(
		func(count int) bool {
			c := Compute(subscription.PlanFree, subscription.StatusActive, nil, count)
			return c.CanSaveCV == (count < 2) &&
				c.CanDownloadCV == (count < 2) &&
				c.CanDuplicate == (count < 2) &&
				c.CanCreateCV == (count < 3)
		},
		gen.IntRange(0, 10),
	))

	properties.Property("save never exceeds create", prop.ForAll(
		func(count int) bool {
			c := Compute(subscription.PlanFree, subscription.StatusActive, nil, count)
			return !c.CanSaveCV || c.CanCreateCV
		},
		gen.IntRange(0, 1000),
	))

	properties.TestingRun(t)
}
