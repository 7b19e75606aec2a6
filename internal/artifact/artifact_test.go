package artifact

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManagedRequiresImageAndVersion(t *testing.T) {
	_, err := NewManaged("ami-1", "test", "", "1.0.0", "")
	assert.Error(t, err)

	_, err = NewManaged("ami-1", "test", "web", "", "")
	assert.Error(t, err)

	a, err := NewManaged("ami-1", "test", "web", "1.0.0", "prod")
	require.NoError(t, err)
	assert.True(t, a.Managed())
	assert.Equal(t, "web:1.0.0", a.Key())
}

func TestNewUnmanagedRequiresName(t *testing.T) {
	_, err := NewUnmanaged("ami-1", "test", "")
	assert.Error(t, err)

	a, err := NewUnmanaged("ami-1", "test", "base-ubuntu")
	require.NoError(t, err)
	assert.False(t, a.Managed())
	assert.Equal(t, "base-ubuntu", a.Key())
}
