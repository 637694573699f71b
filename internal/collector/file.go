package collector

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
)

// FileSource reads a dump file of "ip mac" lines, one observation per
// line, as produced by load-balancer export jobs. Lines starting with
// '#' and blank lines are skipped. With RemoveAfterRead set, a cleanly
// parsed file is deleted so the next export starts fresh.
type FileSource struct {
	SourceName      string `json:"name"`
	Path            string `json:"path"`
	RemoveAfterRead bool   `json:"remove_after_read"`

	logger *slog.Logger
}

func NewFileSource(name, path string, removeAfterRead bool, logger *slog.Logger) *FileSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileSource{SourceName: name, Path: path, RemoveAfterRead: removeAfterRead, logger: logger}
}

func (f *FileSource) Name() string {
	if f.SourceName != "" {
		return f.SourceName
	}
	return f.Path
}

func (f *FileSource) Collect(_ context.Context) (map[string]string, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("opening dump file: %w", err)
	}
	defer file.Close()

	table := make(map[string]string)
	scanner := bufio.NewScanner(file)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		ip := fields[0]
		if net.ParseIP(ip) == nil {
			f.logger.Warn("bad dump line", "source", f.Name(), "line", lineNo)
			continue
		}

		mac := ""
		if len(fields) > 1 {
			normalized, err := NormalizeMAC(fields[1])
			if err != nil {
				f.logger.Warn("bad mac in dump", "source", f.Name(), "line", lineNo, "err", err.Error())
			} else {
				mac = normalized
			}
		}
		table[ip] = mac
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading dump file: %w", err)
	}

	if f.RemoveAfterRead {
		if err := os.Remove(f.Path); err != nil {
			f.logger.Warn("could not remove consumed dump file", "path", f.Path, "err", err.Error())
		}
	}
	return table, nil
}
