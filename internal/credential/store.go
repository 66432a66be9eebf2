package credential

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Store persists accounts as one JSON file each under <dir>/accounts.
// A corrupt file is skipped with a warning rather than aborting the load,
// so one bad account never takes the pool down.
type Store struct {
	dir string
}

// NewStore creates the accounts directory if needed.
func NewStore(dataDir string) (*Store, error) {
	dir := filepath.Join(dataDir, "accounts")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, sanitizeID(id)+".json")
}

// LoadAll reads every account file. Individual failures are logged and
// skipped; only a directory-level failure is an error.
func (s *Store) LoadAll() ([]*Credential, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}

	var creds []*Credential
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			log.WithError(err).WithField("file", entry.Name()).Warn("skipping unreadable account file")
			continue
		}
		var cred Credential
		if err := json.Unmarshal(data, &cred); err != nil {
			log.WithError(err).WithField("file", entry.Name()).Warn("skipping corrupt account file")
			continue
		}
		if cred.ID == "" {
			log.WithField("file", entry.Name()).Warn("skipping account file without id")
			continue
		}
		creds = append(creds, &cred)
	}
	return creds, nil
}

// Save writes one account atomically (temp file + rename).
func (s *Store) Save(cred *Credential) error {
	data, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path(cred.ID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path(cred.ID))
}

// Delete removes one account file; deleting a missing account is not an
// error.
func (s *Store) Delete(id string) error {
	err := os.Remove(s.path(id))
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

func sanitizeID(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return fmt.Sprintf("account_%x", len(id))
	}
	return b.String()
}
