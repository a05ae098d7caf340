package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/railscope/internal/model"
)

func TestInsertAndGet(t *testing.T) {
	t.Parallel()

	r := New()
	r.InsertController(&model.Controller{Name: "UsersController", Module: "Admin"})
	r.InsertConcern(&model.Concern{Name: "Auditable"})
	r.InsertHelper(&model.HelperModule{Name: "Formatting"})

	c, ok := r.Controller("Admin::UsersController")
	require.True(t, ok)
	assert.Equal(t, "UsersController", c.Name)

	_, ok = r.Controller("UsersController")
	assert.False(t, ok, "lookup must use the qualified name")

	_, ok = r.Concern("Auditable")
	assert.True(t, ok)
	_, ok = r.Helper("Formatting")
	assert.True(t, ok)
	_, ok = r.Helper("Auditable")
	assert.False(t, ok, "kinds are kept apart")

	assert.Equal(t, 3, r.Len())
}

func TestLastWriteWins(t *testing.T) {
	t.Parallel()

	r := New()
	r.InsertController(&model.Controller{Name: "PagesController", Parent: "First"})
	r.InsertController(&model.Controller{Name: "PagesController", Parent: "Second"})

	c, ok := r.Controller("PagesController")
	require.True(t, ok)
	assert.Equal(t, "Second", c.Parent)
	assert.Equal(t, 1, r.Len())
}

func TestMerge(t *testing.T) {
	t.Parallel()

	r := New()
	r.Merge([]model.Declaration{
		&model.HelperModule{Name: "B"},
		&model.Controller{Name: "ZController"},
		&model.Concern{Name: "C"},
		&model.Controller{Name: "AController"},
		&model.HelperModule{Name: "A"},
	})

	var names []string
	for _, d := range r.Declarations() {
		names = append(names, d.QualifiedName())
	}
	assert.Equal(t, []string{"AController", "ZController", "C", "A", "B"}, names)
	assert.Len(t, r.Controllers(), 2)
	assert.Len(t, r.Concerns(), 1)
	assert.Len(t, r.Helpers(), 2)
}

func TestEmpty(t *testing.T) {
	t.Parallel()

	r := New()
	assert.Empty(t, r.Declarations())
	assert.Zero(t, r.Len())
	_, ok := r.Concern("Missing")
	assert.False(t, ok)
}
