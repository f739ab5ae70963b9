package gpu

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeSyntheticFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// syntheticCard creates <root>/class/drm/<card>/device with the given
// attribute files.
func syntheticCard(t *testing.T, root, card string, attrs map[string]string) string {
	t.Helper()
	device := filepath.Join(root, "class", "drm", card, "device")
	require.NoError(t, os.MkdirAll(device, 0o755))
	for name, content := range attrs {
		writeSyntheticFile(t, filepath.Join(device, name), content)
	}
	return device
}

type stubLookup struct {
	names map[string]string
	err   error
	calls []string
}

func (s *stubLookup) Lookup(_ context.Context, busID string) (string, error) {
	s.calls = append(s.calls, busID)
	if s.err != nil {
		return "", s.err
	}
	return s.names[busID], nil
}
