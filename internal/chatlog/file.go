package chatlog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
)

// fileSink appends one JSON document per conversation to a JSONL file.
// Only the async pump goroutine calls write.
type fileSink struct {
	f *os.File
}

func openFile(path string) (*fileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open chat log: %w", err)
	}
	slog.Info("chat log opened", "path", path)
	return &fileSink{f: f}, nil
}

func (s *fileSink) write(e Entry) {
	line, err := json.Marshal(e)
	if err != nil {
		slog.Warn("chatlog: marshal failed", "error", err)
		return
	}
	line = append(line, '\n')
	if _, err := s.f.Write(line); err != nil {
		slog.Warn("chatlog: write failed", "error", err)
	}
}

func (s *fileSink) Close() error {
	return s.f.Close()
}
