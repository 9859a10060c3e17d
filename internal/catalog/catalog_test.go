package catalog

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCatalog is a minimal Catalog used by the tests in this file to
// stand in for the real job/volume catalog this core never implements
// itself.
type fakeCatalog struct {
	vol VolCatInfo
	err error
}

func (f fakeCatalog) FindNextAppendableVolume(context.Context, string) (VolCatInfo, error) {
	return f.vol, f.err
}

// Volume names are opaque to this core; a real catalog fixture would
// hand out freshly generated ones the way a job scheduler mints new
// volume labels, so fixtures here do the same rather than relying on
// a fixed literal that could collide across parallel test runs.
func TestFindNextAppendableVolumeReturnsFreshVolume(t *testing.T) {
	name := uuid.NewString()
	var c Catalog = fakeCatalog{vol: VolCatInfo{VolumeName: name, Slot: 9, InChanger: true}}

	vol, err := c.FindNextAppendableVolume(context.Background(), "job1")

	require.NoError(t, err)
	assert.Equal(t, name, vol.VolumeName)
	assert.True(t, vol.InChanger)
	assert.Equal(t, 9, vol.Slot)
}

func TestVolumeNamesAreUnique(t *testing.T) {
	a, b := uuid.NewString(), uuid.NewString()
	assert.NotEqual(t, a, b)
}
