package policy_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/orizon-lang/iropt/internal/policy"
)

func TestDefaults(t *testing.T) {
	p := policy.Default(0)
	require.Equal(t, 3, p.Safety)
	require.Equal(t, 0, p.Speed)
	require.Equal(t, 3, p.Debug)
	require.True(t, p.BoundsChecks)

	p = policy.Default(3)
	require.Equal(t, 0, p.Safety)
	require.Equal(t, 3, p.Speed)
	require.False(t, p.BoundsChecks)

	// Out-of-range levels clamp.
	require.Equal(t, policy.Default(0).Safety, policy.Default(-5).Safety)
	require.Equal(t, policy.Default(3).Speed, policy.Default(9).Speed)
}

func TestWantInline(t *testing.T) {
	p := policy.Default(1)
	p.InlinePriority = []string{"hot"}
	p.NotInline = []string{"cold"}

	require.True(t, p.WantInline("hot"))
	require.False(t, p.WantInline("cold"))
	// Neither listed: decided by speed versus space.
	require.False(t, p.WantInline("other"))

	p.Speed, p.Space = 3, 0
	require.True(t, p.WantInline("other"))
	// An explicit notinline wins over any quality setting.
	require.False(t, p.WantInline("cold"))
}

func TestFavorSpace(t *testing.T) {
	p := policy.Default(1)
	require.False(t, p.FavorSpace())
	p.Space, p.Speed = 3, 0
	require.True(t, p.FavorSpace())
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	data := []byte("speed: 3\nspace: 0\nbounds_checks: false\nnot_inline: [slow-path]\n")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	p, err := policy.Load(path)
	require.NoError(t, err)
	require.Equal(t, 3, p.Speed)
	require.Equal(t, 0, p.Space)
	require.False(t, p.BoundsChecks)
	require.Equal(t, []string{"slow-path"}, p.NotInline)
	// Unset fields keep the level-1 defaults.
	require.Equal(t, 2, p.Safety)
}

func TestLoadRejectsOutOfRange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("speed: 9\n"), 0o644))

	_, err := policy.Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "out of range")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := policy.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	p := policy.Default(1)
	require.NoError(t, p.Validate())
	p.Debug = -1
	require.Error(t, p.Validate())
}
