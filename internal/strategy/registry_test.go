package strategy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

const registryYAML = `strategies:
  sma_cross:
    description: 双均线
    params:
      symbol: BTCUSDT
      fast: 2
      slow: 5
      qty: 1
    schema:
      type: object
      properties:
        fast:
          type: number
          minimum: 1
        slow:
          type: number
      required:
        - fast
        - slow
  mean_rev:
    builder: rsi_reversion
    params:
      symbol: BTCUSDT
      period: 14
`

func writeRegistryFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "strategies.yaml")
	assert.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNewRegistryRequiresPath(t *testing.T) {
	_, err := NewRegistry("  ")
	assert.Error(t, err)
	_, err = NewRegistry(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestRegistryLoadsTemplates(t *testing.T) {
	r, err := NewRegistry(writeRegistryFile(t, registryYAML))
	assert.NoError(t, err)

	snap := r.Snapshot()
	assert.Equal(t, int64(1), snap.Version)
	assert.Len(t, snap.Templates, 2)

	tpl, ok := r.Template("sma_cross")
	assert.True(t, ok)
	// id 缺省取 map key，builder 缺省取 id，version 缺省为 1
	assert.Equal(t, "sma_cross", tpl.ID)
	assert.Equal(t, "sma_cross", tpl.Builder)
	assert.Equal(t, 1, tpl.Version)

	tpl, ok = r.Template(" mean_rev ")
	assert.True(t, ok)
	assert.Equal(t, "rsi_reversion", tpl.Builder)

	_, ok = r.Template("nope")
	assert.False(t, ok)
}

func TestRegistryBuildWithOverrides(t *testing.T) {
	r, err := NewRegistry(writeRegistryFile(t, registryYAML))
	assert.NoError(t, err)

	s, err := r.Build("sma_cross", nil)
	assert.NoError(t, err)
	assert.Equal(t, "sma_cross", s.Name())

	// overrides 盖过默认参数，schema 先于 builder 校验
	_, err = r.Build("sma_cross", map[string]any{"fast": -1})
	assert.Error(t, err)

	// schema 通过但 builder 拒绝（fast >= slow）
	_, err = r.Build("sma_cross", map[string]any{"fast": 9})
	assert.Error(t, err)

	_, err = r.Build("nope", nil)
	assert.Error(t, err)
}

func TestRegistryRegisterBuilder(t *testing.T) {
	r, err := NewRegistry(writeRegistryFile(t, registryYAML))
	assert.NoError(t, err)

	called := false
	r.RegisterBuilder("sma_cross", func(params map[string]any) (Strategy, error) {
		called = true
		return NewSMACross(SMACrossParams{Symbol: "BTCUSDT", Fast: 2, Slow: 5})
	})
	_, err = r.Build("sma_cross", nil)
	assert.NoError(t, err)
	assert.True(t, called)
}

func TestRegistryRejectsUnknownYAMLFields(t *testing.T) {
	_, err := NewRegistry(writeRegistryFile(t, "strategies: {}\nextra: 1\n"))
	assert.Error(t, err)
}

func TestNormalizeNumbers(t *testing.T) {
	got := normalizeNumbers(map[string]any{
		"a": 1,
		"b": int64(2),
		"c": []any{3, "x"},
		"d": map[string]any{"e": 4},
	})
	m, ok := got.(map[string]any)
	assert.True(t, ok)
	assert.Equal(t, float64(1), m["a"])
	assert.Equal(t, float64(2), m["b"])
	assert.Equal(t, []any{float64(3), "x"}, m["c"])
	assert.Equal(t, map[string]any{"e": float64(4)}, m["d"])
}

func TestTemplateValidateWithoutSchema(t *testing.T) {
	assert.NoError(t, Template{}.Validate(map[string]any{"anything": true}))
}
