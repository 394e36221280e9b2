package configsvc

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testConfig struct {
	Name  string `yaml:"name"`
	Level int    `yaml:"level"`
}

func startService(t *testing.T) *Service {
	t.Helper()
	svc := New(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go svc.Start(ctx)
	select {
	case <-svc.Ready():
	case <-time.After(3 * time.Second):
		t.Fatal("config service did not become ready")
	}
	return svc
}

func TestRegisterReturnsInitialConfig(t *testing.T) {
	svc := startService(t)
	path := filepath.Join(t.TempDir(), "deckd.yml")
	require.NoError(t, os.WriteFile(path, []byte("name: initial\nlevel: 3\n"), 0o644))

	cfg, err := Register(svc, path, testConfig{}, func(testConfig, error) {})
	require.NoError(t, err)
	assert.Equal(t, "initial", cfg.Name)
	assert.Equal(t, 3, cfg.Level)
}

func TestRegisterNotifiesOnChange(t *testing.T) {
	svc := startService(t)
	path := filepath.Join(t.TempDir(), "deckd.yml")
	require.NoError(t, os.WriteFile(path, []byte("name: initial\n"), 0o644))

	var mu sync.Mutex
	var got []testConfig
	_, err := Register(svc, path, testConfig{}, func(cfg testConfig, err error) {
		require.NoError(t, err)
		mu.Lock()
		got = append(got, cfg)
		mu.Unlock()
	})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("name: updated\nlevel: 7\n"), 0o644))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) > 0 && got[len(got)-1].Name == "updated"
	}, 3*time.Second, 10*time.Millisecond)
}

func TestRegisterMissingFile(t *testing.T) {
	svc := startService(t)
	path := filepath.Join(t.TempDir(), "absent.yml")

	_, err := Register(svc, path, testConfig{}, func(testConfig, error) {})
	require.Error(t, err)
}
