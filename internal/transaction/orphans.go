package transaction

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// Orphan groups the backup artifacts one transaction left behind, typically
// because the process died between Begin and Commit or Rollback.
type Orphan struct {
	TransactionID string
	Artifacts     []string
	Bytes         int64
	LastModified  time.Time
}

// ListOrphans reports the artifacts found in backupDir, grouped by
// transaction and sorted oldest first. It only reads; deciding whether to
// restore or discard them is left to the operator. Artifacts of a
// transaction still running in another store are listed as well.
func ListOrphans(fs afero.Fs, backupDir string) ([]Orphan, error) {
	entries, err := afero.ReadDir(fs, backupDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &IOError{Op: "readdir", Path: backupDir, Err: err}
	}

	byID := make(map[string]*Orphan)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		id, ok := transactionIDFromArtifact(entry.Name())
		if !ok {
			continue
		}
		if _, err := uuid.Parse(id); err != nil {
			continue
		}

		o, exists := byID[id]
		if !exists {
			o = &Orphan{TransactionID: id}
			byID[id] = o
		}
		o.Artifacts = append(o.Artifacts, filepath.Join(backupDir, entry.Name()))
		o.Bytes += entry.Size()
		if entry.ModTime().After(o.LastModified) {
			o.LastModified = entry.ModTime()
		}
	}

	orphans := make([]Orphan, 0, len(byID))
	for _, o := range byID {
		sort.Strings(o.Artifacts)
		orphans = append(orphans, *o)
	}
	sort.Slice(orphans, func(i, j int) bool {
		if !orphans[i].LastModified.Equal(orphans[j].LastModified) {
			return orphans[i].LastModified.Before(orphans[j].LastModified)
		}
		return orphans[i].TransactionID < orphans[j].TransactionID
	})
	return orphans, nil
}

func (o Orphan) String() string {
	return fmt.Sprintf("%s  %d artifact(s)  %d bytes  %s",
		o.TransactionID, len(o.Artifacts), o.Bytes, o.LastModified.Format("2006-01-02 15:04:05"))
}
