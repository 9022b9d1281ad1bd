package techniques

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogShape(t *testing.T) {
	all := All()
	require.Len(t, all, 18)

	seen := map[string]bool{}
	for i, tech := range all {
		assert.Equal(t, i+1, tech.ID)
		assert.False(t, seen[tech.Slug], "duplicate slug %s", tech.Slug)
		seen[tech.Slug] = true
		assert.Contains(t, Levels, tech.Level)
		assert.Contains(t, Categories, tech.Category)
	}

	grouped := Grouped()
	assert.Len(t, grouped, 5)
	assert.Len(t, grouped[Punches], 4)
	assert.Len(t, grouped[Kicks], 4)
	assert.Len(t, grouped[Elbows], 3)
	assert.Len(t, grouped[Knees], 3)
	assert.Len(t, grouped[Combos], 4)
}

func TestAllReturnsCopy(t *testing.T) {
	a := All()
	a[0].Name = "changed"
	assert.Equal(t, "Jab", All()[0].Name)
}

func TestByCategory(t *testing.T) {
	kicks, err := ByCategory(Kicks)
	require.NoError(t, err)
	assert.Equal(t, "Teep (Push Kick)", kicks[0].Name)

	_, err = ByCategory("grappling")
	assert.ErrorIs(t, err, ErrUnknownCategory)
}

func TestLookup(t *testing.T) {
	tech, ok := Lookup("roundhouse")
	require.True(t, ok)
	assert.Equal(t, "Roundhouse Kick", tech.Name)

	tech, ok = Lookup("flying knee")
	require.True(t, ok)
	assert.Equal(t, Advanced, tech.Level)

	_, ok = Lookup("spinning backfist")
	assert.False(t, ok)
}

func TestValidateSelection(t *testing.T) {
	tests := []struct {
		input    string
		expected string
		wantErr  bool
	}{
		{"", "", false},
		{"jab", "jab", false},
		{"Teep (Push Kick)", "teep", false},
		{"Elbow", "elbow", false},
		{"combo", "combo", false},
		{"suplex", "", true},
	}
	for _, tt := range tests {
		got, err := ValidateSelection(tt.input)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrUnknownTechnique, tt.input)
			continue
		}
		require.NoError(t, err, tt.input)
		assert.Equal(t, tt.expected, got)
	}
}

func TestParseLevel(t *testing.T) {
	l, err := ParseLevel(" Intermediate ")
	require.NoError(t, err)
	assert.Equal(t, Intermediate, l)

	l, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, Level(""), l)

	_, err = ParseLevel("expert")
	assert.ErrorIs(t, err, ErrUnknownLevel)
}
