package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldsMerge_NullClearsButKeepsKey(t *testing.T) {
	base := Fields{"title": String("Audit 2025"), "progress": Int(40)}
	merged := base.Merge(Fields{"progress": Null{}})

	assert.True(t, merged.IsNull("progress"))
	_, present := merged["progress"]
	assert.True(t, present, "cleared key must stay observable to hooks")
	assert.Equal(t, String("Audit 2025"), merged["title"])

	// Base is untouched.
	assert.Equal(t, Int(40), base["progress"])
}

func TestFieldsClone_DeepCopiesLists(t *testing.T) {
	base := Fields{"users": StringList("u1", "u2")}
	clone := base.Clone()
	clone["users"].(List)[0] = String("mutated")

	assert.Equal(t, String("u1"), base["users"].(List)[0])
}

func TestMarshalFields_SortedKeysDeterministic(t *testing.T) {
	f := Fields{
		"zeta":  Int(1),
		"alpha": String("x"),
		"fee":   Decimal("12.50"),
	}
	data, err := MarshalFields(f)
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":"x","fee":12.50,"zeta":1}`, data)
}

func TestFieldsRoundTrip(t *testing.T) {
	f := Fields{
		"title":    String("Audit"),
		"fee":      Decimal("1250.00"),
		"progress": Int(0),
		"active":   Bool(true),
		"users":    StringList("u1"),
		"note":     Null{},
	}
	data, err := MarshalFields(f)
	require.NoError(t, err)

	back, err := UnmarshalFields(data)
	require.NoError(t, err)
	require.Len(t, back, len(f))
	for k, v := range f {
		assert.True(t, Equal(v, back[k]), "field %s", k)
	}
}

func TestUnmarshalFields_Empty(t *testing.T) {
	f, err := UnmarshalFields("")
	require.NoError(t, err)
	assert.Empty(t, f)
}

func TestFieldsAccessors(t *testing.T) {
	f := Fields{
		"title":    String("Audit"),
		"progress": Int(40),
		"flag":     Bool(true),
		"users":    StringList("u1", "u2"),
	}
	assert.Equal(t, "Audit", f.StringAt("title"))
	assert.Equal(t, int64(40), f.IntAt("progress"))
	assert.True(t, f.BoolAt("flag"))
	assert.Equal(t, []string{"u1", "u2"}, f.StringsAt("users"))

	assert.Equal(t, "", f.StringAt("missing"))
	assert.Equal(t, int64(0), f.IntAt("title"))
	assert.True(t, f.IsNull("missing"))
}
