package scratch

import (
	"io/ioutil"
	"log"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateNaming(t *testing.T) {
	fs := afero.NewMemMapFs()
	dir := NewDir(fs, "scratch", "abc123")

	hd, err := dir.Create(Heredoc, []byte("line one\n"))
	require.NoError(t, err)
	assert.Equal(t, "scratch/heredoc_abc123_1.tmp", hd.Path)

	script, err := dir.Create(ControlScript, []byte("echo hi\n"))
	require.NoError(t, err)
	assert.Equal(t, "scratch/script_abc123_2.ps1", script.Path)

	content, err := afero.ReadFile(fs, hd.Path)
	require.NoError(t, err)
	assert.Equal(t, "line one\n", string(content))
}

func TestCallIDsDoNotCollide(t *testing.T) {
	fs := afero.NewMemMapFs()
	a := NewDir(fs, "scratch", "aaaa")
	b := NewDir(fs, "scratch", "bbbb")

	ra, err := a.Create(Heredoc, nil)
	require.NoError(t, err)
	rb, err := b.Create(Heredoc, nil)
	require.NoError(t, err)
	assert.NotEqual(t, ra.Path, rb.Path)
}

func TestReleaseRemovesEverything(t *testing.T) {
	fs := afero.NewMemMapFs()
	dir := NewDir(fs, "scratch", "abc123")

	for i := 0; i < 3; i++ {
		_, err := dir.Create(ProcessSubInput, []byte("x"))
		require.NoError(t, err)
	}
	created := dir.Resources()
	require.Len(t, created, 3)

	dir.Release(log.New(ioutil.Discard, "", 0))

	for _, res := range created {
		exists, err := afero.Exists(fs, res.Path)
		require.NoError(t, err)
		assert.False(t, exists, "resource %s should be removed", res.Path)
	}
	assert.Empty(t, dir.Resources())
}

func TestReleaseSurvivesMissingFiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	dir := NewDir(fs, "scratch", "abc123")

	res, err := dir.Create(Heredoc, nil)
	require.NoError(t, err)
	require.NoError(t, fs.Remove(res.Path))

	// Must not panic and must not leave state behind.
	dir.Release(log.New(ioutil.Discard, "", 0))
	assert.Empty(t, dir.Resources())
}
