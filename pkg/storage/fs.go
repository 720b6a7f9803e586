package storage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// FS is the on-disk Storage implementation, rooted at <base>/sessions/<sid>/.
//
// Layout:
//
//	<base>/sessions/<sid>/
//	  session.json
//	  messages/<key>.json
//	  turns/<agent>-<NNN>.json
//
// Writes go through a temp-file-plus-rename so a crash mid-write never
// leaves a half-written file behind; in-memory state is never touched by
// a failed write.
type FS struct {
	baseDir string

	// turnIndex tracks the next zero-padded turn sequence number per
	// (session, agent) pair, so turn files sort lexically in creation
	// order. The counter lives only in memory: a new FS starts again at
	// 001 and overwrites turn files already on disk.
	turnIndex map[string]int
}

// NewFS creates a Storage rooted at baseDir. baseDir is created lazily on
// first write, matching the teacher's best-effort MkdirAll convention.
func NewFS(baseDir string) *FS {
	return &FS{
		baseDir:   baseDir,
		turnIndex: make(map[string]int),
	}
}

func (f *FS) sessionDir(sid string) string {
	return filepath.Join(f.baseDir, "sessions", sid)
}

func (f *FS) messagesDir(sid string) string {
	return filepath.Join(f.sessionDir(sid), "messages")
}

func (f *FS) turnsDir(sid string) string {
	return filepath.Join(f.sessionDir(sid), "turns")
}

// CreateSession materializes the session directory tree and writes the
// initial session.json.
func (f *FS) CreateSession(s *Session) error {
	dir := f.sessionDir(s.ID)
	if err := os.MkdirAll(filepath.Join(dir, "messages"), 0755); err != nil {
		return newError("CreateSession", ErrKindIO, err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "turns"), 0755); err != nil {
		return newError("CreateSession", ErrKindIO, err)
	}
	return f.SaveSession(s)
}

// SaveSession overwrites session.json. Idempotent.
func (f *FS) SaveSession(s *Session) error {
	dir := f.sessionDir(s.ID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return newError("SaveSession", ErrKindIO, err)
	}
	if s.MessagePaths == nil {
		s.MessagePaths = make(map[string]string)
	}
	if err := writeJSONAtomic(filepath.Join(dir, "session.json"), s); err != nil {
		slog.Error("saving session", "sessionID", s.ID, "error", err)
		return newError("SaveSession", ErrKindIO, err)
	}
	return nil
}

// LoadSession reads session.json back.
func (f *FS) LoadSession(sid string) (*Session, error) {
	data, err := os.ReadFile(filepath.Join(f.sessionDir(sid), "session.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, newError("LoadSession", ErrKindNotFound, err)
		}
		return nil, newError("LoadSession", ErrKindIO, err)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, newError("LoadSession", ErrKindCorrupt, err)
	}
	return &s, nil
}

// SaveMessageContent writes the original (pre-compression) content of
// msg to messages/<key>.json and returns the path. Must be called before
// the message is ever compressed.
func (f *FS) SaveMessageContent(sid string, msg Message) (string, error) {
	dir := f.messagesDir(sid)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", newError("SaveMessageContent", ErrKindIO, err)
	}
	path := filepath.Join(dir, msg.Key+".json")
	if err := writeJSONAtomic(path, msg); err != nil {
		return "", newError("SaveMessageContent", ErrKindIO, err)
	}
	return path, nil
}

// LoadMessageContent restores a Message's original content by key. The
// returned Message has Compressed=false and no OriginalTokens set.
func (f *FS) LoadMessageContent(sid, key string) (*Message, error) {
	path := filepath.Join(f.messagesDir(sid), key+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, newError("LoadMessageContent", ErrKindNotFound, err)
		}
		return nil, newError("LoadMessageContent", ErrKindIO, err)
	}
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, newError("LoadMessageContent", ErrKindCorrupt, err)
	}
	m.Compressed = false
	m.OriginalTokens = 0
	return &m, nil
}

// SaveTurn persists one LLMTurn as turns/<agent>-<NNN>.json, zero-padded
// to 3 digits for stable lexical sort.
func (f *FS) SaveTurn(sid string, turn LLMTurn) error {
	dir := f.turnsDir(sid)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return newError("SaveTurn", ErrKindIO, err)
	}

	idxKey := sid + "/" + turn.Agent
	f.turnIndex[idxKey]++
	n := f.turnIndex[idxKey]
	turn.Index = n

	name := fmt.Sprintf("%s-%03d.json", turn.Agent, n)
	if err := writeJSONAtomic(filepath.Join(dir, name), turn); err != nil {
		return newError("SaveTurn", ErrKindIO, err)
	}
	return nil
}

// writeJSONAtomic marshals v and writes it to path via a temp file plus
// rename, so readers never observe a partial write.
func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
