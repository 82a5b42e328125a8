// Package audio manages the uploaded WAV files referenced by jobs. Each
// job owns exactly one file, named temp_<job_id>.wav under the
// configured temp dir; the built-in sample lives outside and is never
// removed.
package audio

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var ErrAudioNotFound = fmt.Errorf("audio file not found")

type Store struct {
	dir        string
	samplePath string
}

func NewStore(dir, samplePath string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create audio dir: %w", err)
	}
	return &Store{dir: dir, samplePath: samplePath}, nil
}

// Save writes the uploaded bytes and returns the file path that becomes
// the job's audio reference.
func (s *Store) Save(jobID string, data []byte) (string, error) {
	path := s.pathFor(jobID)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to save audio: %w", err)
	}
	return path, nil
}

// CopyFor duplicates an existing audio file for a reprocessed job so the
// new attempt owns its own copy.
func (s *Store) CopyFor(jobID, srcPath string) (string, error) {
	src, err := os.Open(srcPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrAudioNotFound
		}
		return "", err
	}
	defer src.Close()

	dstPath := s.pathFor(jobID)
	dst, err := os.Create(dstPath)
	if err != nil {
		return "", err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(dstPath)
		return "", fmt.Errorf("failed to copy audio: %w", err)
	}
	return dstPath, nil
}

// Exists reports whether the referenced audio is still on disk.
func (s *Store) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Remove deletes a job's audio file. The sample file is left alone.
func (s *Store) Remove(path string) error {
	if path == "" || path == s.samplePath {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// SamplePath returns the built-in sample audio path, or ErrAudioNotFound
// when it is not on disk.
func (s *Store) SamplePath() (string, error) {
	if s.samplePath == "" {
		return "", ErrAudioNotFound
	}
	if _, err := os.Stat(s.samplePath); err != nil {
		return "", ErrAudioNotFound
	}
	return s.samplePath, nil
}

// Dir returns the temp directory, for the cleanup binary.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) pathFor(jobID string) string {
	safe := strings.ReplaceAll(jobID, string(os.PathSeparator), "_")
	return filepath.Join(s.dir, fmt.Sprintf("temp_%s.wav", safe))
}
