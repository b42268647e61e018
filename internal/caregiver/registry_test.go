package caregiver

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/yourname/babylog/internal"
)

func TestRegistryResolveIsCaseInsensitive(t *testing.T) {
	r := NewRegistry([]string{"Mom", "dad"}, internal.NewNopLogger())

	for _, spelling := range []string{"Mom", "mom", "MOM", "  mom "} {
		got, ok := r.Resolve(spelling)
		assert.True(t, ok, "spelling %q", spelling)
		assert.Equal(t, "Mom", got)
	}

	got, ok := r.Resolve("DAD")
	assert.True(t, ok)
	assert.Equal(t, "dad", got)
}

func TestRegistryRejectsUnknown(t *testing.T) {
	r := NewRegistry([]string{"mom", "dad"}, internal.NewNopLogger())
	_, ok := r.Resolve("grandma")
	assert.False(t, ok)
	_, ok = r.Resolve("")
	assert.False(t, ok)
}

func TestRegistryNamesKeepRegistrationOrder(t *testing.T) {
	r := NewRegistry([]string{"dad", "mom", "", "Mom", " dad "}, internal.NewNopLogger())
	assert.Equal(t, []string{"dad", "mom"}, r.Names())

	// Callers may not mutate the registry through the returned slice.
	names := r.Names()
	names[0] = "intruder"
	assert.Equal(t, []string{"dad", "mom"}, r.Names())
}
