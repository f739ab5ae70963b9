package platform

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSupport(t *testing.T) {
	assert.Equal(t, SupportedOS(runtime.GOOS), GetOS())

	if runtime.GOOS == "linux" {
		assert.True(t, IsSupported())
		assert.NoError(t, ValidateSupport())
		return
	}
	assert.False(t, IsSupported())
	assert.ErrorContains(t, ValidateSupport(), runtime.GOOS)
}

func TestGetHostInfo(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("host info is only guaranteed on linux")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	info, err := GetHostInfo(ctx)
	require.NoError(t, err)

	assert.Equal(t, "linux", info.OS)
	assert.NotEmpty(t, info.KernelRelease)
	assert.NotEmpty(t, info.Arch)
}
