package logging

import (
	"io"
	"log/slog"
)

// OpenJSONFile opens path for appending and returns a JSON handler writing to
// it at the given level. The caller closes the returned file.
func OpenJSONFile(path, level string) (slog.Handler, io.Closer, error) {
	file, err := openLogFile(path)
	if err != nil {
		return nil, nil, err
	}
	levelVar := new(slog.LevelVar)
	levelVar.Set(parseLevel(level))
	return newJSONHandler(file, levelVar, false), file, nil
}
