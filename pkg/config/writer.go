package config

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"gopkg.in/yaml.v3"

	"github.com/cecil-the-coder/drivepool/pkg/types"
)

// DefaultLockTimeout bounds the wait for the cross-process file lock
const DefaultLockTimeout = 5 * time.Second

// Writer replaces the providers list of a configuration file in place. The
// rest of the document, comments included, is kept. Writes go through a
// temporary file and a rename, under a lock file next to the target.
type Writer struct {
	path        string
	lockTimeout time.Duration
}

// NewWriter creates a writer for the file at path
func NewWriter(path string) *Writer {
	return &Writer{path: path, lockTimeout: DefaultLockTimeout}
}

// WithLockTimeout overrides DefaultLockTimeout
func (w *Writer) WithLockTimeout(d time.Duration) *Writer {
	w.lockTimeout = d
	return w
}

// LockPath returns the path of the lock file
func (w *Writer) LockPath() string {
	return w.path + ".lock"
}

// WriteProviders implements broker.ConfigWriter
func (w *Writer) WriteProviders(ctx context.Context, providers []types.ProviderConfig) error {
	fileLock := flock.New(w.LockPath())
	lockCtx, cancel := context.WithTimeout(ctx, w.lockTimeout)
	defer cancel()

	acquired, err := fileLock.TryLockContext(lockCtx, 10*time.Millisecond)
	if err != nil {
		return fmt.Errorf("failed to acquire config lock: %w", err)
	}
	if !acquired {
		return fmt.Errorf("failed to acquire config lock: timeout")
	}
	defer fileLock.Unlock() //nolint:errcheck // released on close anyway

	data, err := os.ReadFile(w.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	out, err := replaceProviders(data, providers)
	if err != nil {
		return err
	}
	return writeAtomic(w.path, out)
}

// replaceProviders swaps the "providers" value of the YAML document in data
func replaceProviders(data []byte, providers []types.ProviderConfig) ([]byte, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if doc.Kind == 0 {
		doc = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}}
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, fmt.Errorf("config document is not a mapping")
	}
	root := doc.Content[0]

	var value yaml.Node
	if err := value.Encode(providers); err != nil {
		return nil, fmt.Errorf("failed to encode providers: %w", err)
	}

	replaced := false
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value == "providers" {
			root.Content[i+1] = &value
			replaced = true
			break
		}
	}
	if !replaced {
		root.Content = append(root.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: "providers"}, &value)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return buf.Bytes(), nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, ".drivepool-config-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	// refresh tokens are secrets
	if err := os.Chmod(tmpPath, 0600); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
