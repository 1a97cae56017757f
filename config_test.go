package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUnknownPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    UnknownPolicy
		wantErr bool
	}{
		{"raise", Raise, false},
		{"EXCLUDE", Exclude, false},
		{" Include ", Include, false},
		{"", 0, false},
		{"ignore", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseUnknownPolicy(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrConfiguration)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, "exclude", Exclude.String())
	assert.Equal(t, "inherit", UnknownPolicy(0).String())
}

func TestOptionsFromMap(t *testing.T) {
	opts, err := OptionsFromMap(map[string]any{
		"name":      "Pair",
		"exclude":   []any{"b"},
		"unknown":   "exclude",
		"many":      "true",
		"load_only": []string{"a"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Pair", opts.Name)
	assert.Equal(t, []string{"b"}, opts.Exclude)
	assert.Equal(t, []string{"a"}, opts.LoadOnly)
	assert.Equal(t, Exclude, opts.Unknown)
	assert.True(t, opts.Many)

	_, err = OptionsFromMap(map[string]any{"nmae": "typo"})
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = OptionsFromMap(map[string]any{"unknown": "sometimes"})
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestLoadOptionsYAML(t *testing.T) {
	opts, err := LoadOptionsYAML([]byte(`
name: PublicPair
fields: [a]
unknown: raise
return_maps: true
`))
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, opts.Fields)
	assert.True(t, opts.ReturnMaps)

	c := mustClass(t, pair{}, opts)
	assert.Equal(t, "PublicPair", c.Name())
	out, err := c.Default().Load(map[string]any{"a": 1})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": 1}, out)

	_, err = LoadOptionsYAML([]byte("fields: [a"))
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestLoadOptionsYAMLSet(t *testing.T) {
	set, err := LoadOptionsYAMLSet([]byte(`
pair:
  unknown: exclude
user:
  name: PublicUser
  exclude: [age]
`))
	require.NoError(t, err)
	require.Len(t, set, 2)
	assert.Equal(t, "pair", set["pair"].Name)
	assert.Equal(t, Exclude, set["pair"].Unknown)
	assert.Equal(t, "PublicUser", set["user"].Name)

	_, err = LoadOptionsYAMLSet([]byte(`
pair:
  unknown: sometimes
`))
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.Contains(t, err.Error(), "schema pair")
}
