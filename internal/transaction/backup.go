package transaction

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// ArtifactSuffix ends every backup artifact name.
const ArtifactSuffix = ".backup"

// Backup captures the current content of path for the active transaction.
// Only the first touch of a path is recorded; later calls are no-ops so the
// artifact always holds the pre-transaction bytes. A path that does not exist
// yet is remembered as created and will be deleted on rollback.
func (s *Store) Backup(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireActive("backup"); err != nil {
		return err
	}
	_, err := s.backup(path)
	return err
}

// backup resolves path and records it in the active transaction. Callers hold s.mu.
func (s *Store) backup(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", &IOError{Op: "resolve", Path: path, Err: err}
	}

	tx := s.tx
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.tracks(abs) {
		return abs, nil
	}

	log := s.logger.WithField("tx", tx.ID).WithField("path", abs)

	info, err := s.fs.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			tx.created[abs] = struct{}{}
			log.Debug("registered new file")
			return abs, nil
		}
		return "", &IOError{Op: "stat", Path: abs, Err: err}
	}
	if info.IsDir() {
		return "", &IOError{Op: "backup", Path: abs, Err: fmt.Errorf("is a directory")}
	}

	artifact := filepath.Join(s.backupDir, artifactName(tx, filepath.Base(abs)))
	if err := copyFile(s.fs, abs, artifact); err != nil {
		if rmErr := s.fs.Remove(artifact); rmErr != nil && !os.IsNotExist(rmErr) {
			log.WithError(rmErr).Error("partial backup artifact left behind")
		}
		delete(tx.names, filepath.Base(artifact))
		return "", &IOError{Op: "backup", Path: abs, Err: err}
	}
	tx.touched[abs] = artifact
	recordArtifact()

	log.WithField("artifact", artifact).Debug("file backed up")
	return abs, nil
}

// artifactName builds {id}_{base}.backup. When that name is already taken in
// the transaction (two paths sharing a base name) it falls back to
// {id}_{base}.{n}.backup.
func artifactName(tx *Transaction, base string) string {
	name := fmt.Sprintf("%s_%s%s", tx.ID, base, ArtifactSuffix)
	for n := 1; ; n++ {
		if _, taken := tx.names[name]; !taken {
			break
		}
		name = fmt.Sprintf("%s_%s.%d%s", tx.ID, base, n, ArtifactSuffix)
	}
	tx.names[name] = struct{}{}
	return name
}

// copyFile copies src to dst byte for byte, keeping the permission bits of src.
func copyFile(fs afero.Fs, src, dst string) error {
	info, err := fs.Stat(src)
	if err != nil {
		return err
	}
	data, err := afero.ReadFile(fs, src)
	if err != nil {
		return err
	}
	return afero.WriteFile(fs, dst, data, info.Mode().Perm())
}

// transactionIDFromArtifact splits the {id}_ prefix off an artifact name.
func transactionIDFromArtifact(name string) (string, bool) {
	if !strings.HasSuffix(name, ArtifactSuffix) {
		return "", false
	}
	id, rest, ok := strings.Cut(name, "_")
	if !ok || id == "" || rest == "" {
		return "", false
	}
	return id, true
}
