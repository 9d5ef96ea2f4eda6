// Package chatlog persists conversation transcripts as per-chat JSONL
// files. Each line is one turn record in insertion order, so replaying a
// file from the top reconstructs the transcript exactly.
package chatlog

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/germanamz/parley/pkg/chats/turn"
)

// Log is a directory of append-only chat history files, one per chat id.
// Log is safe for concurrent use across different chat ids; callers must
// serialize appends for the same id (the session does).
type Log struct {
	dir string
}

// New creates a Log rooted at dir, creating the directory if needed.
func New(dir string) (*Log, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("chatlog: directory must be provided")
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("chatlog: create directory: %w", err)
	}

	return &Log{dir: dir}, nil
}

// Dir returns the root directory of the log.
func (l *Log) Dir() string { return l.dir }

// Append durably writes one turn record to the chat's history file. The
// file handle is held only for the duration of the write: open, write one
// line, sync, close. A crash mid-run can lose at most the line being
// written, never tear earlier records.
func (l *Log) Append(chatID string, t turn.Turn) error {
	record, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("chatlog: encode turn: %w", err)
	}

	f, err := os.OpenFile(l.path(chatID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("chatlog: open history: %w", err)
	}

	if _, err := f.Write(append(record, '\n')); err != nil {
		_ = f.Close()
		return fmt.Errorf("chatlog: write record: %w", err)
	}

	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("chatlog: sync history: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("chatlog: close history: %w", err)
	}

	return nil
}

// Load replays the chat's history file in order. A missing file is an
// empty history, not an error.
func (l *Log) Load(chatID string) ([]turn.Turn, error) {
	f, err := os.Open(l.path(chatID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("chatlog: open history: %w", err)
	}
	defer func() { _ = f.Close() }()

	var turns []turn.Turn

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		var t turn.Turn
		if err := json.Unmarshal([]byte(line), &t); err != nil {
			return nil, fmt.Errorf("chatlog: decode record %d: %w", len(turns)+1, err)
		}
		turns = append(turns, t)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("chatlog: read history: %w", err)
	}

	return turns, nil
}

// path returns the history file for a chat id, with unsafe characters
// replaced so ids can be used as file names.
func (l *Log) path(chatID string) string {
	return filepath.Join(l.dir, sanitize(chatID)+".jsonl")
}

func sanitize(id string) string {
	if id == "" {
		return "_"
	}

	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}

	return b.String()
}
