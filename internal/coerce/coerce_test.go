package coerce

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToIntList(t *testing.T) {
	cases := []struct {
		name  string
		value any
		want  []int64
	}{
		{"nil", nil, nil},
		{"float64 list", []any{float64(3), float64(7)}, []int64{3, 7}},
		{"single float64", float64(3), []int64{3}},
		{"single string", "3", []int64{3}},
		{"json array string", "[3, 7]", []int64{3, 7}},
		{"comma separated", "3,7", []int64{3, 7}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := ToIntList(c.value, "ids")
			require.NoError(t, err)
			assert.Equal(t, c.want, got)
		})
	}
}

func TestToIntList_InvalidInput(t *testing.T) {
	_, err := ToIntList("not-a-number", "ids")
	require.Error(t, err)

	_, err = ToIntList([]any{"x"}, "ids")
	require.Error(t, err)

	_, err = ToIntList(true, "ids")
	require.Error(t, err)
}

func TestToStringList(t *testing.T) {
	cases := []struct {
		name  string
		value any
		want  []string
	}{
		{"nil not required", nil, nil},
		{"string list", []any{"tag1", "tag2"}, []string{"tag1", "tag2"}},
		{"single tag", "tag1", []string{"tag1"}},
		{"comma separated", "tag1,tag2", []string{"tag1", "tag2"}},
		{"json array string", `["tag1", "tag2"]`, []string{"tag1", "tag2"}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := ToStringList(c.value, false, "tags")
			require.NoError(t, err)
			assert.Equal(t, c.want, got)
		})
	}
}

func TestToStringList_RequiredRejectsEmpty(t *testing.T) {
	_, err := ToStringList(nil, true, "tags")
	require.Error(t, err)

	_, err = ToStringList("", true, "tags")
	require.Error(t, err)

	_, err = ToStringList([]any{}, true, "tags")
	require.Error(t, err)
}
