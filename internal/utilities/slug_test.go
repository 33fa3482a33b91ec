package utilities

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlugify(t *testing.T) {
	assert.Equal(t, "software-engineering", Slugify("Software Engineering"))
	assert.Equal(t, "c-c-developers", Slugify("C/C++ Developers"))
	assert.Equal(t, "data-science", Slugify("  Data   Science  "))
	assert.Equal(t, "", Slugify("!!!"))
}

func TestMergeNonEmpty(t *testing.T) {
	type info struct {
		Title    string
		Location string
	}
	dst := info{Title: "Old title", Location: "Bangkok"}
	src := info{Title: "New title"}

	MergeNonEmpty(&dst, &src)

	assert.Equal(t, "New title", dst.Title)
	assert.Equal(t, "Bangkok", dst.Location)
}
