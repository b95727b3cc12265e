package region

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	apperrors "github.com/GriffinCanCode/game-translator/internal/errors"
)

type document struct {
	Regions []Region `yaml:"regions"`
}

// Store persists region lists per game as regions_<gamekey>.yaml under Dir.
type Store struct {
	Dir string
}

// NewStore creates a store rooted at dir.
func NewStore(dir string) *Store { return &Store{Dir: dir} }

func (s *Store) path(gameKey string) string {
	return filepath.Join(s.Dir, "regions_"+gameKey+".yaml")
}

// Load returns the saved regions for gameKey. The bool is false when nothing
// has been saved for that game.
func (s *Store) Load(gameKey string) ([]Region, bool, error) {
	data, err := os.ReadFile(s.path(gameKey))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperrors.Wrap(err, apperrors.CodePersistenceFailed, "read regions")
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, false, apperrors.Wrap(err, apperrors.CodePersistenceFailed, "parse regions").
			WithMetadata("game", gameKey)
	}
	return doc.Regions, true, nil
}

// Save replaces the saved regions for gameKey.
func (s *Store) Save(gameKey string, regions []Region) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return apperrors.Wrap(err, apperrors.CodePersistenceFailed, "create data dir")
	}
	data, err := yaml.Marshal(document{Regions: regions})
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodePersistenceFailed, "encode regions")
	}
	if err := writeFileAtomic(s.path(gameKey), data); err != nil {
		return apperrors.Wrap(err, apperrors.CodePersistenceFailed, "write regions").
			WithMetadata("game", gameKey)
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
