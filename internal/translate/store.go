package translate

import (
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/oklog/ulid/v2"

	apperrors "github.com/GriffinCanCode/game-translator/internal/errors"
	"github.com/GriffinCanCode/game-translator/internal/gamekey"
)

func docPath(dir, prefix, gameKey string) string {
	if gameKey == "" {
		gameKey = gamekey.Default
	}
	return filepath.Join(dir, prefix+"_"+filepath.Base(gameKey)+".json")
}

// readDoc decodes the JSON document at path. A missing file yields the zero
// value. An undecodable file is renamed aside and also yields the zero value.
func readDoc[T any](path string) (T, error) {
	var zero T
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return zero, nil
	}
	if err != nil {
		return zero, apperrors.Wrap(err, apperrors.CodePersistenceFailed, "read").WithMetadata("path", path)
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		aside := path + ".corrupt-" + ulid.Make().String()
		slog.Warn("corrupt document moved aside", "path", path, "to", aside, "error", err)
		if rerr := os.Rename(path, aside); rerr != nil {
			slog.Error("move corrupt document", "path", path, "error", rerr)
		}
		return zero, nil
	}
	return v, nil
}

func writeDoc(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodePersistenceFailed, "encode").WithMetadata("path", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return apperrors.Wrap(err, apperrors.CodePersistenceFailed, "create data dir")
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodePersistenceFailed, "write").WithMetadata("path", path)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return apperrors.Wrap(err, apperrors.CodePersistenceFailed, "write").WithMetadata("path", path)
	}
	if err := tmp.Close(); err != nil {
		return apperrors.Wrap(err, apperrors.CodePersistenceFailed, "write").WithMetadata("path", path)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return apperrors.Wrap(err, apperrors.CodePersistenceFailed, "replace").WithMetadata("path", path)
	}
	return nil
}

func removeDoc(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return apperrors.Wrap(err, apperrors.CodePersistenceFailed, "remove").WithMetadata("path", path)
	}
	return nil
}
