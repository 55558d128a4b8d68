package transport

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	artifactSuffix = ".session"
	backupSuffix   = ".session.backup"
)

// ArtifactStore keeps one serialized session artifact per user on
// disk. A backup copy is taken before every overwrite so a corrupted
// write never loses the last good artifact.
type ArtifactStore struct {
	dir    string
	logger *logrus.Logger
}

func NewArtifactStore(dir string, logger *logrus.Logger) (*ArtifactStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("artifact directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}
	return &ArtifactStore{dir: dir, logger: logger}, nil
}

func (s *ArtifactStore) path(userID int64) string {
	return filepath.Join(s.dir, fmt.Sprintf("user_%d%s", userID, artifactSuffix))
}

func (s *ArtifactStore) backupPath(userID int64) string {
	return filepath.Join(s.dir, fmt.Sprintf("user_%d%s", userID, backupSuffix))
}

// Exists reports whether a session artifact is present for the user.
func (s *ArtifactStore) Exists(userID int64) bool {
	info, err := os.Stat(s.path(userID))
	return err == nil && !info.IsDir() && info.Size() > 0
}

// Save writes the artifact atomically, backing up the previous one.
func (s *ArtifactStore) Save(userID int64, blob string) error {
	if blob == "" {
		return fmt.Errorf("refusing to save empty artifact for user %d", userID)
	}

	if s.Exists(userID) {
		if err := s.Backup(userID); err != nil {
			s.logger.WithError(err).WithField("userID", userID).
				Warn("Failed to back up session artifact before overwrite")
		}
	}

	tmpPath := s.path(userID) + ".tmp"
	if err := os.WriteFile(tmpPath, []byte(blob), 0600); err != nil {
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := os.Rename(tmpPath, s.path(userID)); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to move artifact into place: %w", err)
	}

	return nil
}

// Load reads the artifact, falling back to the backup copy when the
// primary is missing or empty. A successful fallback restores the
// backup as the primary.
func (s *ArtifactStore) Load(userID int64) (string, error) {
	data, err := os.ReadFile(s.path(userID)) // #nosec G304 - path built from numeric user id
	if err == nil && len(strings.TrimSpace(string(data))) > 0 {
		return string(data), nil
	}

	backup, backupErr := os.ReadFile(s.backupPath(userID)) // #nosec G304 - path built from numeric user id
	if backupErr != nil || len(strings.TrimSpace(string(backup))) == 0 {
		if err != nil {
			return "", fmt.Errorf("failed to read artifact: %w", err)
		}
		return "", fmt.Errorf("artifact for user %d is empty", userID)
	}

	s.logger.WithField("userID", userID).Info("Restored session artifact from backup")
	if writeErr := os.WriteFile(s.path(userID), backup, 0600); writeErr != nil {
		s.logger.WithError(writeErr).WithField("userID", userID).
			Warn("Failed to restore backup as primary artifact")
	}

	return string(backup), nil
}

// Backup copies the current artifact aside.
func (s *ArtifactStore) Backup(userID int64) error {
	data, err := os.ReadFile(s.path(userID)) // #nosec G304 - path built from numeric user id
	if err != nil {
		return fmt.Errorf("failed to read artifact for backup: %w", err)
	}
	if err := os.WriteFile(s.backupPath(userID), data, 0600); err != nil {
		return fmt.Errorf("failed to write artifact backup: %w", err)
	}
	return nil
}

// Remove deletes the artifact and its backup. Used on logout.
func (s *ArtifactStore) Remove(userID int64) error {
	var firstErr error
	for _, path := range []string{s.path(userID), s.backupPath(userID)} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// CleanupBackups removes backup copies older than the retention window
// whose primary artifact is gone.
func (s *ArtifactStore) CleanupBackups(retentionDays int) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("failed to read artifact directory: %w", err)
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), backupSuffix) {
			continue
		}

		primary := strings.TrimSuffix(entry.Name(), backupSuffix) + artifactSuffix
		if _, err := os.Stat(filepath.Join(s.dir, primary)); err == nil {
			continue
		}

		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}

		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil {
			s.logger.WithError(err).WithField("file", entry.Name()).
				Warn("Failed to remove orphaned artifact backup")
		}
	}

	return nil
}
