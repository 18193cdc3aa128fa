package transaction

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const backupDir = "/backup"

func newTestStore(t *testing.T) (*Store, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	return NewStore(fs, backupDir), fs
}

func writeFile(t *testing.T, fs afero.Fs, path, content string) {
	t.Helper()
	require.NoError(t, fs.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0644))
}

func readFile(t *testing.T, fs afero.Fs, path string) string {
	t.Helper()
	data, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	return string(data)
}

func artifacts(t *testing.T, fs afero.Fs) []string {
	t.Helper()
	entries, err := afero.ReadDir(fs, backupDir)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func exists(t *testing.T, fs afero.Fs, path string) bool {
	t.Helper()
	ok, err := afero.Exists(fs, path)
	require.NoError(t, err)
	return ok
}

func TestRollbackRestoresAndDeletes(t *testing.T) {
	store, fs := newTestStore(t)
	writeFile(t, fs, "/data/a.txt", "v1")

	_, err := store.Begin()
	require.NoError(t, err)
	require.NoError(t, store.Write("/data/a.txt", []byte("v2"), false))
	require.NoError(t, store.Write("/data/b.txt", []byte("new"), false))

	assert.Equal(t, "v2", readFile(t, fs, "/data/a.txt"))
	require.NoError(t, store.Rollback())

	assert.Equal(t, "v1", readFile(t, fs, "/data/a.txt"))
	assert.False(t, exists(t, fs, "/data/b.txt"))
	assert.Empty(t, artifacts(t, fs))
	assert.Equal(t, Idle, store.Status())
}

func TestCommitKeepsWrites(t *testing.T) {
	store, fs := newTestStore(t)
	writeFile(t, fs, "/data/a.txt", "v1")

	tx, err := store.Begin()
	require.NoError(t, err)
	require.NoError(t, store.Write("/data/a.txt", []byte("v2"), false))
	require.NoError(t, store.Write("/data/b.txt", []byte("new"), false))
	assert.Len(t, artifacts(t, fs), 1)

	require.NoError(t, store.Commit())

	assert.Equal(t, "v2", readFile(t, fs, "/data/a.txt"))
	assert.Equal(t, "new", readFile(t, fs, "/data/b.txt"))
	assert.Empty(t, artifacts(t, fs))
	assert.Equal(t, Committed, tx.Status())
	assert.Empty(t, tx.Touched())
	assert.Empty(t, tx.Created())
}

func TestCommitLastWriteWins(t *testing.T) {
	store, fs := newTestStore(t)

	_, err := store.Begin()
	require.NoError(t, err)
	require.NoError(t, store.Write("/data/a.txt", []byte("one"), false))
	require.NoError(t, store.Write("/data/a.txt", []byte("two"), false))
	require.NoError(t, store.WriteStructuredRecord("/data/r.json", map[string]int{"next_id": 1}))
	require.NoError(t, store.WriteStructuredRecord("/data/r.json", map[string]int{"next_id": 2}))
	require.NoError(t, store.Commit())

	assert.Equal(t, "two", readFile(t, fs, "/data/a.txt"))
	assert.JSONEq(t, `{"next_id": 2}`, readFile(t, fs, "/data/r.json"))
}

func TestFirstTouchKeepsOriginal(t *testing.T) {
	store, fs := newTestStore(t)
	writeFile(t, fs, "/data/a.txt", "original")

	tx, err := store.Begin()
	require.NoError(t, err)
	require.NoError(t, store.Write("/data/a.txt", []byte("first"), false))
	require.NoError(t, store.Write("/data/a.txt", []byte("second"), false))
	require.NoError(t, store.Backup("/data/a.txt"))

	artifact, ok := tx.Artifact("/data/a.txt")
	require.True(t, ok)
	assert.Equal(t, "original", readFile(t, fs, artifact))
	assert.Len(t, artifacts(t, fs), 1)

	require.NoError(t, store.Rollback())
	assert.Equal(t, "original", readFile(t, fs, "/data/a.txt"))
}

func TestCreatedThenRewrittenIsStillDeleted(t *testing.T) {
	store, fs := newTestStore(t)

	tx, err := store.Begin()
	require.NoError(t, err)
	require.NoError(t, store.Write("/data/new.txt", []byte("a"), false))
	require.NoError(t, store.Write("/data/new.txt", []byte("b"), true))

	assert.Equal(t, []string{"/data/new.txt"}, tx.Created())
	assert.Empty(t, tx.Touched())
	assert.Empty(t, artifacts(t, fs))

	require.NoError(t, store.Rollback())
	assert.False(t, exists(t, fs, "/data/new.txt"))
}

func TestAppend(t *testing.T) {
	store, fs := newTestStore(t)
	writeFile(t, fs, "/data/log.sql", "INSERT 1;\n")

	_, err := store.Begin()
	require.NoError(t, err)
	require.NoError(t, store.Append("/data/log.sql", []byte("INSERT 2;\n")))
	require.NoError(t, store.AppendString("/data/log.sql", "INSERT 3;\n", ""))
	assert.Equal(t, "INSERT 1;\nINSERT 2;\nINSERT 3;\n", readFile(t, fs, "/data/log.sql"))

	require.NoError(t, store.Rollback())
	assert.Equal(t, "INSERT 1;\n", readFile(t, fs, "/data/log.sql"))
}

func TestBinaryContentRoundTrip(t *testing.T) {
	store, fs := newTestStore(t)
	original := []byte{0x00, 0xff, 0x10, 0x80, 0x0a}
	require.NoError(t, afero.WriteFile(fs, "/img/thumb.bin", original, 0600))

	_, err := store.Begin()
	require.NoError(t, err)
	require.NoError(t, store.Write("/img/thumb.bin", []byte{0x01}, false))
	require.NoError(t, store.Rollback())

	data, err := afero.ReadFile(fs, "/img/thumb.bin")
	require.NoError(t, err)
	assert.Equal(t, original, data)
}

func TestWriteStringEncodings(t *testing.T) {
	tests := []struct {
		name     string
		encoding string
		want     []byte
	}{
		{"default", "", []byte("한글")},
		{"utf-8", "UTF-8", []byte("한글")},
		{"euc-kr", "euc-kr", []byte{0xc7, 0xd1, 0xb1, 0xdb}},
		{"latin1", "iso-8859-1", []byte{'c', 'a', 'f', 0xe9}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, fs := newTestStore(t)
			_, err := store.Begin()
			require.NoError(t, err)

			text := "한글"
			if tt.name == "latin1" {
				text = "café"
			}
			require.NoError(t, store.WriteString("/data/t.txt", text, tt.encoding, false))
			require.NoError(t, store.Commit())

			data, err := afero.ReadFile(fs, "/data/t.txt")
			require.NoError(t, err)
			assert.Equal(t, tt.want, data)
		})
	}
}

func TestReadStringDecodes(t *testing.T) {
	store, fs := newTestStore(t)
	require.NoError(t, afero.WriteFile(fs, "/data/k.txt", []byte{0xc7, 0xd1, 0xb1, 0xdb}, 0644))

	text, err := store.ReadString("/data/k.txt", "euc-kr")
	require.NoError(t, err)
	assert.Equal(t, "한글", text)

	text, err = store.ReadString("/data/missing.txt", "")
	require.NoError(t, err)
	assert.Empty(t, text)

	_, err = store.ReadString("/data/k.txt", "no-such-charset")
	assert.ErrorIs(t, err, ErrSerialization)
}

func TestWriteStringUnknownEncoding(t *testing.T) {
	store, fs := newTestStore(t)
	tx, err := store.Begin()
	require.NoError(t, err)

	err = store.WriteString("/data/t.txt", "x", "no-such-charset", false)
	assert.ErrorIs(t, err, ErrSerialization)
	assert.False(t, exists(t, fs, "/data/t.txt"))
	assert.Empty(t, tx.Created())
}

func TestWriteStructuredRecord(t *testing.T) {
	store, fs := newTestStore(t)
	writeFile(t, fs, "/data/brand_data.json", `{"brands": {}, "next_id": 1}`)

	_, err := store.Begin()
	require.NoError(t, err)
	record := map[string]any{
		"brands":  map[string]int{"라운드랩": 1, "A&B": 2},
		"next_id": 3,
	}
	require.NoError(t, store.WriteStructuredRecord("/data/brand_data.json", record))

	got := readFile(t, fs, "/data/brand_data.json")
	assert.Contains(t, got, `"라운드랩": 1`)
	assert.Contains(t, got, `"A&B": 2`)
	assert.Contains(t, got, "\n  \"next_id\": 3")

	require.NoError(t, store.Rollback())
	assert.Equal(t, `{"brands": {}, "next_id": 1}`, readFile(t, fs, "/data/brand_data.json"))
}

func TestWriteStructuredRecordSerializationFailure(t *testing.T) {
	store, fs := newTestStore(t)
	writeFile(t, fs, "/data/r.json", "{}")

	tx, err := store.Begin()
	require.NoError(t, err)

	err = store.WriteStructuredRecord("/data/r.json", map[string]any{"bad": make(chan int)})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSerialization)

	var serr *SerializationError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "/data/r.json", serr.Path)

	assert.Empty(t, tx.Touched())
	assert.Empty(t, artifacts(t, fs))
	assert.Equal(t, "{}", readFile(t, fs, "/data/r.json"))
}

func TestBeginWhileActive(t *testing.T) {
	store, _ := newTestStore(t)
	first, err := store.Begin()
	require.NoError(t, err)

	second, err := store.Begin()
	assert.Nil(t, second)
	assert.ErrorIs(t, err, ErrAlreadyActive)
	assert.Same(t, first, store.Active())
}

func TestOperationsRequireActiveTransaction(t *testing.T) {
	store, fs := newTestStore(t)

	ops := map[string]func() error{
		"backup":     func() error { return store.Backup("/data/a.txt") },
		"write":      func() error { return store.Write("/data/a.txt", []byte("x"), false) },
		"append":     func() error { return store.Append("/data/a.txt", []byte("x")) },
		"string":     func() error { return store.WriteString("/data/a.txt", "x", "", false) },
		"structured": func() error { return store.WriteStructuredRecord("/data/a.json", 1) },
		"commit":     store.Commit,
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, op(), ErrNotActive)
		})
	}
	assert.False(t, exists(t, fs, "/data/a.txt"))
}

func TestTerminalStates(t *testing.T) {
	store, _ := newTestStore(t)

	assert.NoError(t, store.Rollback(), "rollback before any begin")

	tx, err := store.Begin()
	require.NoError(t, err)
	require.NoError(t, store.Commit())
	assert.ErrorIs(t, store.Commit(), ErrNotActive)
	assert.NoError(t, store.Rollback())
	assert.Equal(t, Committed, tx.Status())

	tx2, err := store.Begin()
	require.NoError(t, err)
	assert.NotEqual(t, tx.ID, tx2.ID)
	require.NoError(t, store.Rollback())
	assert.NoError(t, store.Rollback())
	assert.Equal(t, RolledBack, tx2.Status())
}

func TestArtifactNaming(t *testing.T) {
	const id = "6f1c5b2e-8d7a-4c1b-9e0f-3a2b1c0d9e8f"
	fs := afero.NewMemMapFs()
	store := NewStore(fs, backupDir, WithIDGenerator(func() string { return id }))
	writeFile(t, fs, "/a/data.txt", "from a")
	writeFile(t, fs, "/b/data.txt", "from b")

	tx, err := store.Begin()
	require.NoError(t, err)
	require.NoError(t, store.Write("/a/data.txt", []byte("x"), false))
	require.NoError(t, store.Write("/b/data.txt", []byte("y"), false))

	first, _ := tx.Artifact("/a/data.txt")
	second, _ := tx.Artifact("/b/data.txt")
	assert.Equal(t, filepath.Join(backupDir, id+"_data.txt.backup"), first)
	assert.Equal(t, filepath.Join(backupDir, id+"_data.txt.1.backup"), second)

	require.NoError(t, store.Rollback())
	assert.Equal(t, "from a", readFile(t, fs, "/a/data.txt"))
	assert.Equal(t, "from b", readFile(t, fs, "/b/data.txt"))
	assert.Empty(t, artifacts(t, fs))
}

func TestBackupDirectory(t *testing.T) {
	store, fs := newTestStore(t)
	require.NoError(t, fs.MkdirAll("/data/dir", 0755))

	_, err := store.Begin()
	require.NoError(t, err)
	err = store.Backup("/data/dir")
	assert.ErrorIs(t, err, ErrIO)
}

func TestBeginFailsOnReadOnlyFs(t *testing.T) {
	store := NewStore(afero.NewReadOnlyFs(afero.NewMemMapFs()), backupDir)
	_, err := store.Begin()
	assert.ErrorIs(t, err, ErrIO)
	assert.False(t, store.IsActive())
}

func TestDefaultBackupDir(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewStore(fs, "")
	assert.Equal(t, DefaultBackupDir, store.BackupDir())

	_, err := store.Begin()
	require.NoError(t, err)
	assert.True(t, exists(t, fs, DefaultBackupDir))
	require.NoError(t, store.Commit())
}

// faultyFs fails Remove for every path accepted by failRemove, and cuts
// writes short for every path accepted by failWrite.
type faultyFs struct {
	afero.Fs
	failRemove func(name string) bool
	failWrite  func(name string) bool
}

var errInjected = errors.New("injected failure")

func (f *faultyFs) Remove(name string) error {
	if f.failRemove != nil && f.failRemove(name) {
		return &os.PathError{Op: "remove", Path: name, Err: errInjected}
	}
	return f.Fs.Remove(name)
}

func (f *faultyFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	file, err := f.Fs.OpenFile(name, flag, perm)
	if err != nil || f.failWrite == nil || !f.failWrite(name) {
		return file, err
	}
	return shortFile{file}, nil
}

// shortFile writes half of every buffer and then fails.
type shortFile struct {
	afero.File
}

func (f shortFile) Write(p []byte) (int, error) {
	n, _ := f.File.Write(p[:len(p)/2])
	return n, &os.PathError{Op: "write", Path: f.Name(), Err: errInjected}
}

func TestFailedBackupLeavesNoArtifact(t *testing.T) {
	fs := &faultyFs{
		Fs:        afero.NewMemMapFs(),
		failWrite: func(name string) bool { return strings.HasSuffix(name, ArtifactSuffix) },
	}
	store := NewStore(fs, backupDir)
	writeFile(t, fs, "/data/a.txt", "original content")

	tx, err := store.Begin()
	require.NoError(t, err)

	err = store.Write("/data/a.txt", []byte("v2"), false)
	assert.ErrorIs(t, err, ErrIO)
	assert.ErrorIs(t, err, errInjected)
	assert.Equal(t, "original content", readFile(t, fs, "/data/a.txt"))
	assert.Empty(t, tx.Touched())
	assert.Empty(t, artifacts(t, fs))

	orphans, err := ListOrphans(fs, backupDir)
	require.NoError(t, err)
	assert.Empty(t, orphans)
	require.NoError(t, store.Rollback())
}

func TestBeginRejectsNonUUIDIDs(t *testing.T) {
	store := NewStore(afero.NewMemMapFs(), backupDir, WithIDGenerator(func() string { return "job_7" }))
	_, err := store.Begin()
	assert.ErrorContains(t, err, `"job_7"`)
	assert.False(t, store.IsActive())
}

func TestCommitCleanupFailureStillCommits(t *testing.T) {
	fs := &faultyFs{
		Fs:         afero.NewMemMapFs(),
		failRemove: func(name string) bool { return strings.HasSuffix(name, ArtifactSuffix) },
	}
	store := NewStore(fs, backupDir)
	writeFile(t, fs, "/data/a.txt", "v1")

	tx, err := store.Begin()
	require.NoError(t, err)
	require.NoError(t, store.Write("/data/a.txt", []byte("v2"), false))

	err = store.Commit()
	var cleanup *CommitCleanupError
	require.True(t, errors.As(err, &cleanup))
	assert.Equal(t, tx.ID, cleanup.TransactionID)
	assert.ErrorIs(t, err, errInjected)

	assert.Equal(t, Committed, tx.Status())
	assert.False(t, store.IsActive())
	assert.Equal(t, "v2", readFile(t, fs, "/data/a.txt"))
}

func TestRollbackContinuesPastFailures(t *testing.T) {
	fs := &faultyFs{
		Fs:         afero.NewMemMapFs(),
		failRemove: func(name string) bool { return name == "/data/stuck.txt" },
	}
	store := NewStore(fs, backupDir)
	writeFile(t, fs, "/data/a.txt", "v1")
	writeFile(t, fs, "/data/z.txt", "z1")

	tx, err := store.Begin()
	require.NoError(t, err)
	require.NoError(t, store.Write("/data/a.txt", []byte("v2"), false))
	require.NoError(t, store.Write("/data/stuck.txt", []byte("new"), false))
	require.NoError(t, store.Write("/data/z.txt", []byte("z2"), false))

	err = store.Rollback()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIO)
	assert.ErrorIs(t, err, errInjected)

	assert.Equal(t, "v1", readFile(t, fs, "/data/a.txt"))
	assert.Equal(t, "z1", readFile(t, fs, "/data/z.txt"))
	assert.Equal(t, RolledBack, tx.Status())
	assert.False(t, store.IsActive())
}

func TestRelativePathsAreResolved(t *testing.T) {
	store, _ := newTestStore(t)
	tx, err := store.Begin()
	require.NoError(t, err)
	require.NoError(t, store.Backup("relative.txt"))

	abs, err := filepath.Abs("relative.txt")
	require.NoError(t, err)
	assert.Equal(t, []string{abs}, tx.Created())
	require.NoError(t, store.Rollback())
}
