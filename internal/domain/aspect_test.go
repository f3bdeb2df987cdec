package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAspectRatios_Table(t *testing.T) {
	ratios := AspectRatios()

	ids := make([]string, len(ratios))
	for i, ar := range ratios {
		ids[i] = ar.ID
	}
	assert.Equal(t, []string{"1:1", "16:9", "9:16", "4:3", "3:4"}, ids)
	assert.InDelta(t, 16.0/9.0, ratios[1].Ratio, 1e-12)
	assert.InDelta(t, 3.0/4.0, ratios[4].Ratio, 1e-12)
}

func TestAspectRatios_ReturnsCopy(t *testing.T) {
	ratios := AspectRatios()
	ratios[0].Ratio = 42

	assert.Equal(t, 1.0, AspectRatioFor("1:1"))
}

func TestAspectRatioFor(t *testing.T) {
	assert.Equal(t, 1.0, AspectRatioFor("1:1"))
	assert.InDelta(t, 9.0/16.0, AspectRatioFor("9:16"), 1e-12)
	assert.Equal(t, 1.0, AspectRatioFor("21:9"))
	assert.Equal(t, 1.0, AspectRatioFor(""))
}

func TestIsValidAspectRatio(t *testing.T) {
	assert.True(t, IsValidAspectRatio("4:3"))
	assert.False(t, IsValidAspectRatio("4:5"))
}
