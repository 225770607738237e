// Package file provides file-based persistence of flows and session snapshots as JSON documents.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dukex/chatflow/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface using the file system.
type Persistence struct {
	root        string
	flowRepo    *FlowRepository
	sessionRepo *SessionRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
// A leading file:// scheme is accepted.
func NewPersistence(root string) persistence.Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:        cleanRoot,
		flowRepo:    NewFlowRepository(cleanRoot),
		sessionRepo: NewSessionRepository(cleanRoot),
	}
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) FlowRepository() persistence.FlowRepository {
	return fp.flowRepo
}

func (fp *Persistence) SessionRepository() persistence.SessionRepository {
	return fp.sessionRepo
}

// documents is a directory of <id>.json files.
type documents struct {
	dir string
}

func checkID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) || filepath.Base(id) != id {
		return fmt.Errorf("%w: %q", persistence.ErrInvalidID, id)
	}

	return nil
}

func (d documents) path(id string) string {
	return filepath.Clean(path.Join(d.dir, id+".json"))
}

// read decodes the document into out; missing documents return fs.ErrNotExist.
func (d documents) read(id string, out any) error {
	if err := checkID(id); err != nil {
		return err
	}

	data, err := os.ReadFile(d.path(id))
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", id, err)
	}

	return nil
}

// write replaces the document through a rename so readers never see a partial file.
func (d documents) write(id string, in any) error {
	if err := checkID(id); err != nil {
		return err
	}

	data, err := json.MarshalIndent(in, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", id, err)
	}

	if err := os.MkdirAll(d.dir, 0o750); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(d.dir, id+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to write %s: %w", id, err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to close %s: %w", id, err)
	}

	if err := os.Rename(tmp.Name(), d.path(id)); err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to replace %s: %w", id, err)
	}

	return nil
}

func (d documents) remove(id string) error {
	if err := checkID(id); err != nil {
		return err
	}

	return os.Remove(d.path(id))
}

// ids lists the stored document ids. A missing directory holds none.
func (d documents) ids() ([]string, error) {
	files, err := fs.Glob(os.DirFS(d.dir), "*.json")
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(files))
	for _, f := range files {
		ids = append(ids, strings.TrimSuffix(f, ".json"))
	}

	return ids, nil
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
