package annotate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeDate(t *testing.T) {
	cases := []struct{ in, want string }{
		{"05/06/2021", "2021-06-05"},
		{"2021-06-05", "2021-06-05"},
		{"5/6/2021", "2021-06-05"},
	}
	for _, tc := range cases {
		got, ok := normalizeDate(tc.in)
		assert.True(t, ok, tc.in)
		assert.Equal(t, tc.want, got)
	}
}

func TestNormalizeDate_Invalid(t *testing.T) {
	_, ok := normalizeDate("not a date")
	assert.False(t, ok)
}

func TestMatchDateField_FallsBackToStringEqualityWhenUnparseable(t *testing.T) {
	assert.True(t, matchDateField("around mid-2021", "Around Mid-2021"))
	assert.False(t, matchDateField("around mid-2021", "05/06/2021"))
}
