package versionstore

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"path/filepath"
	"sync"

	"github.com/artpar/fndeploy/internal/core/versions"
	"github.com/spf13/afero"
)

// Dir and FileName locate the versions file inside a project.
const (
	Dir      = ".deployer"
	FileName = "versions.json"
)

// record is one element of the versions file.
type record struct {
	APIHost         string                   `json:"apihost"`
	Namespace       string                   `json:"namespace"`
	ActionVersions  map[string]versions.Info `json:"actionVersions"`
	PackageVersions map[string]versions.Info `json:"packageVersions"`
}

// FileStore keeps versions in <project>/.deployer/versions.json, one record
// per namespace and API host.
type FileStore struct {
	fs afero.Fs
	mu sync.Mutex
}

// NewFileStore creates a file store over fsys. A nil fsys means the OS
// filesystem.
func NewFileStore(fsys afero.Fs) *FileStore {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	return &FileStore{fs: fsys}
}

// Path returns the versions file of a project.
func Path(projectPath string) string {
	return filepath.Join(projectPath, Dir, FileName)
}

// Load returns the stored entry for id, or an empty entry when none exists.
func (s *FileStore) Load(_ context.Context, id versions.Identity) (versions.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.read(id.ProjectPath)
	if err != nil {
		return versions.Entry{}, err
	}
	for _, r := range records {
		if r.Namespace == id.Namespace && r.APIHost == id.APIHost {
			return toEntry(r), nil
		}
	}
	return versions.NewEntry(), nil
}

// Save replaces the stored entry for id, keeping records of other targets.
func (s *FileStore) Save(_ context.Context, id versions.Identity, entry versions.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.read(id.ProjectPath)
	if err != nil {
		return err
	}
	next := record{
		APIHost:         id.APIHost,
		Namespace:       id.Namespace,
		ActionVersions:  nonNil(entry.ActionVersions),
		PackageVersions: nonNil(entry.PackageVersions),
	}
	replaced := false
	for i, r := range records {
		if r.Namespace == id.Namespace && r.APIHost == id.APIHost {
			records[i] = next
			replaced = true
			break
		}
	}
	if !replaced {
		records = append(records, next)
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return NewStoreError("Save", id.Namespace, "failed to encode versions", err)
	}
	if err := s.fs.MkdirAll(filepath.Join(id.ProjectPath, Dir), 0o755); err != nil {
		return NewStoreError("Save", id.Namespace, "failed to create versions directory", err)
	}
	if err := afero.WriteFile(s.fs, Path(id.ProjectPath), data, 0o644); err != nil {
		return NewStoreError("Save", id.Namespace, "failed to write versions file", err)
	}
	return nil
}

func (s *FileStore) read(projectPath string) ([]record, error) {
	data, err := afero.ReadFile(s.fs, Path(projectPath))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, NewStoreError("Load", projectPath, "failed to read versions file", err)
	}
	var records []record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, NewStoreError("Load", projectPath, err.Error(), ErrInvalidData)
	}
	return records, nil
}

func toEntry(r record) versions.Entry {
	e := versions.NewEntry()
	for k, v := range r.ActionVersions {
		e.ActionVersions[k] = v
	}
	for k, v := range r.PackageVersions {
		e.PackageVersions[k] = v
	}
	return e
}

func nonNil(m map[string]versions.Info) map[string]versions.Info {
	if m == nil {
		return map[string]versions.Info{}
	}
	return m
}
