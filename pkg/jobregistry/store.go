package jobregistry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Store persists records in an on-disk directory.
//
// Directory layout:
//
//	<root>/<job_id>/job.json
//
// Each write goes to a temp file renamed over job.json, so readers never see
// a partial record.
type Store struct {
	root string
	now  func() time.Time
}

var _ Registry = (*Store)(nil)

// NewStore returns a store rooted at root. The directory is created on first
// write.
func NewStore(root string) *Store {
	return &Store{root: strings.TrimSpace(root), now: func() time.Time { return time.Now().UTC() }}
}

func (s *Store) RootDir() string {
	return s.root
}

func (s *Store) JobDir(jobID string) string {
	return filepath.Join(s.root, jobID)
}

func (s *Store) JobPath(jobID string) string {
	return filepath.Join(s.JobDir(jobID), "job.json")
}

func (s *Store) ensureRoot() error {
	if strings.TrimSpace(s.root) == "" {
		return fmt.Errorf("job registry root dir is empty")
	}
	return os.MkdirAll(s.root, 0755)
}

func validJobID(jobID string) (string, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return "", fmt.Errorf("job_id is required")
	}
	if strings.ContainsAny(jobID, `/\`) || jobID == "." || jobID == ".." {
		return "", fmt.Errorf("job_id %q is not a valid directory name", jobID)
	}
	return jobID, nil
}

// Put writes rec, stamping CreatedAt (if unset) and UpdatedAt.
func (s *Store) Put(_ context.Context, rec *Record) error {
	if rec == nil {
		return fmt.Errorf("job record is nil")
	}
	jobID, err := validJobID(rec.JobID)
	if err != nil {
		return err
	}
	if err := s.ensureRoot(); err != nil {
		return err
	}

	jobDir := s.JobDir(jobID)
	if err := os.MkdirAll(jobDir, 0755); err != nil {
		return fmt.Errorf("create job dir: %w", err)
	}

	stamp(rec, s.now())
	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal job record: %w", err)
	}
	b = append(b, '\n')

	tmp, err := os.CreateTemp(jobDir, "job.json.tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp job file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp job file: %w", err)
	}

	if err := os.Rename(tmpName, s.JobPath(jobID)); err != nil {
		return fmt.Errorf("rename job file: %w", err)
	}
	return nil
}

// Get loads the record for jobID.
func (s *Store) Get(_ context.Context, jobID string) (*Record, error) {
	jobID, err := validJobID(jobID)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(s.JobPath(jobID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, jobID)
		}
		return nil, err
	}

	trimmed := strings.TrimSpace(string(b))
	if trimmed == "" {
		return nil, fmt.Errorf("job.json is empty")
	}

	var rec Record
	if err := json.Unmarshal([]byte(trimmed), &rec); err != nil {
		return nil, fmt.Errorf("parse job.json: %w", err)
	}
	return &rec, nil
}

// List returns every readable record, newest first. Unreadable entries are
// skipped.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	if err := s.ensureRoot(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read jobs root: %w", err)
	}

	out := make([]Record, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		r, err := s.Get(ctx, entry.Name())
		if err != nil {
			continue
		}
		out = append(out, *r)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Delete removes the record directory for jobID.
func (s *Store) Delete(_ context.Context, jobID string) error {
	jobID, err := validJobID(jobID)
	if err != nil {
		return err
	}
	if _, err := os.Stat(s.JobPath(jobID)); errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	return os.RemoveAll(s.JobDir(jobID))
}

// Close implements Registry. The file store holds no resources.
func (s *Store) Close() error {
	return nil
}
