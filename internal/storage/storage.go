// Package storage lays out validated PDFs on disk with YAML metadata
// sidecars and a content-hash index for duplicate detection.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/dkoval/paperfetch/internal/model"
)

const (
	rawDir      = "raw"
	metadataDir = "metadata"
)

// Store manages the artifact directory:
//
//	<root>/raw/<slug>.pdf
//	<root>/metadata/<slug>.yaml
type Store struct {
	mu     sync.Mutex
	root   string
	byHash map[string]string // sha256 -> artifact path
	logger zerolog.Logger
}

// Open creates the directory layout if needed and rebuilds the hash index by
// reading the metadata sidecars.
func Open(root string, logger zerolog.Logger) (*Store, error) {
	for _, dir := range []string{rawDir, metadataDir} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			return nil, fmt.Errorf("creating %s directory: %w", dir, err)
		}
	}

	s := &Store{
		root:   root,
		byHash: make(map[string]string),
		logger: logger.With().Str("component", "storage").Logger(),
	}
	if err := s.rebuildIndex(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) rebuildIndex() error {
	entries, err := os.ReadDir(filepath.Join(s.root, metadataDir))
	if err != nil {
		return fmt.Errorf("reading metadata directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		path := filepath.Join(s.root, metadataDir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var artifact model.Artifact
		if err := yaml.Unmarshal(data, &artifact); err != nil {
			s.logger.Warn().Str("sidecar", entry.Name()).Msg("skipping corrupt sidecar")
			continue
		}
		if artifact.SHA256 != "" && artifact.Path != "" {
			s.byHash[artifact.SHA256] = artifact.Path
		}
	}
	s.logger.Debug().Int("artifacts", len(s.byHash)).Msg("rebuilt hash index")
	return nil
}

// Lookup returns the stored artifact path for a content hash, if any.
func (s *Store) Lookup(sha256 string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	path, ok := s.byHash[sha256]
	return path, ok
}

// Exists reports whether an artifact for the slug is already on disk.
func (s *Store) Exists(slug string) bool {
	_, err := os.Stat(s.artifactPath(slug))
	return err == nil
}

// Promote moves a validated temp file into the store and writes its sidecar.
// The artifact's Path field is filled in on return. The rename is atomic on
// the same filesystem, so pass a temp file created under the store's volume.
func (s *Store) Promote(tmpPath, slug string, artifact model.Artifact) (model.Artifact, error) {
	dest := s.artifactPath(slug)
	artifact.Path = dest

	if err := os.Rename(tmpPath, dest); err != nil {
		return model.Artifact{}, fmt.Errorf("promoting artifact: %w", err)
	}

	if err := s.writeSidecar(slug, artifact); err != nil {
		os.Remove(dest)
		return model.Artifact{}, err
	}

	s.mu.Lock()
	s.byHash[artifact.SHA256] = dest
	s.mu.Unlock()

	s.logger.Debug().Str("slug", slug).Int64("bytes", artifact.ByteSize).Msg("stored artifact")
	return artifact, nil
}

func (s *Store) writeSidecar(slug string, artifact model.Artifact) error {
	data, err := yaml.Marshal(artifact)
	if err != nil {
		return fmt.Errorf("marshaling sidecar: %w", err)
	}

	dest := filepath.Join(s.root, metadataDir, slug+".yaml")
	tmp, err := os.CreateTemp(filepath.Join(s.root, metadataDir), ".sidecar-*")
	if err != nil {
		return fmt.Errorf("creating sidecar temp: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing sidecar: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing sidecar: %w", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("renaming sidecar: %w", err)
	}
	return nil
}

// Sidecar reads the metadata sidecar for a slug.
func (s *Store) Sidecar(slug string) (*model.Artifact, error) {
	data, err := os.ReadFile(filepath.Join(s.root, metadataDir, slug+".yaml"))
	if err != nil {
		return nil, fmt.Errorf("reading sidecar: %w", err)
	}
	var artifact model.Artifact
	if err := yaml.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("parsing sidecar: %w", err)
	}
	return &artifact, nil
}

// TempDir returns a directory on the store's volume for download temps, so
// Promote's rename never crosses filesystems.
func (s *Store) TempDir() string {
	return filepath.Join(s.root, rawDir)
}

func (s *Store) artifactPath(slug string) string {
	return filepath.Join(s.root, rawDir, slug+".pdf")
}
