package artifact

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0644))
}

func TestLoaderLoadsInOrder(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "spec/a.txt", "A")
	writeFile(t, root, "b.txt", "B")
	writeFile(t, root, "c/c.txt", "C")

	l := &Loader{Root: root}
	arts, err := l.Load([]Spec{
		{Name: "a", Path: "spec/a.txt"},
		{Name: "b", Path: "b.txt"},
		{Name: "c", Path: "c/c.txt"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, Contents(arts))

	b, ok := Find(arts, "b")
	require.True(t, ok)
	assert.Equal(t, "b.txt", b.Path)
}

func TestLoaderMissingArtifact(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "present.txt", "x")

	l := &Loader{Root: root}
	arts, err := l.Load([]Spec{
		{Name: "present", Path: "present.txt"},
		{Name: "driver", Path: "auto_driver/apb_driver.sv"},
	})
	assert.Nil(t, arts)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrArtifactNotFound))

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "driver", nf.Name)
	assert.Equal(t, "auto_driver/apb_driver.sv", nf.Path)
	assert.Contains(t, err.Error(), "auto_driver/apb_driver.sv")
}

func TestLoaderNoSizeLimit(t *testing.T) {
	root := t.TempDir()
	big := make([]byte, 4<<20)
	for i := range big {
		big[i] = 'x'
	}
	writeFile(t, root, "big.txt", string(big))

	arts, err := (&Loader{Root: root}).Load([]Spec{{Name: "big", Path: "big.txt"}})
	require.NoError(t, err)
	assert.Len(t, arts[0].Content, len(big))
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyOverwrite, p)

	p, err = ParsePolicy("timestamped")
	require.NoError(t, err)
	assert.Equal(t, PolicyTimestamped, p)

	_, err = ParsePolicy("append")
	assert.Error(t, err)
}

func TestStoreOverwrite(t *testing.T) {
	root := t.TempDir()
	s := &Store{Root: root, Policy: PolicyOverwrite}

	res, err := s.Write("auto_seq/apb_seq.sv", "v1")
	require.NoError(t, err)
	assert.False(t, res.Replaced)

	res, err = s.Write("auto_seq/apb_seq.sv", "v2")
	require.NoError(t, err)
	assert.True(t, res.Replaced)
	assert.Empty(t, res.BackupPath)
	assert.Empty(t, res.VersionPath)

	data, err := os.ReadFile(filepath.Join(root, "auto_seq/apb_seq.sv"))
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))

	entries, err := os.ReadDir(filepath.Join(root, "auto_seq"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestStoreTimestamped(t *testing.T) {
	root := t.TempDir()
	now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	s := &Store{Root: root, Policy: PolicyTimestamped, Now: func() time.Time { return now }}

	_, err := s.Write("tb/apb_test.sv", "old")
	require.NoError(t, err)
	res, err := s.Write("tb/apb_test.sv", "new")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, "tb/apb_test.sv.20260304T050607Z.bak"), res.BackupPath)
	backup, err := os.ReadFile(res.BackupPath)
	require.NoError(t, err)
	assert.Equal(t, "old", string(backup))
}

func TestStoreContentAddressed(t *testing.T) {
	root := t.TempDir()
	s := &Store{Root: root, Policy: PolicyContentAddressed}

	res, err := s.Write("auto_agent/apb_agent.sv", "agent body")
	require.NoError(t, err)
	assert.Equal(t, Digest("agent body"), res.Digest)
	assert.Len(t, res.Digest, 12)

	data, err := os.ReadFile(res.VersionPath)
	require.NoError(t, err)
	assert.Equal(t, "agent body", string(data))
	assert.Equal(t, filepath.Join(root, "auto_agent/.versions/apb_agent.sv."+res.Digest), res.VersionPath)
}
