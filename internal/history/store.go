package history

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/surveillance-cli/internal/model"
)

var (
	// ErrWrite marks a failed persistence step. The previous tables are
	// left in place when it is returned.
	ErrWrite = eris.New("history: write failed")

	// ErrLocked is returned when another writer holds the history lock
	// past the configured timeout.
	ErrLocked = eris.New("history: locked by another writer")
)

// WriteError reports which file could not be persisted. It matches
// ErrWrite with errors.Is.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("history: write %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Is reports whether target is ErrWrite.
func (e *WriteError) Is(target error) bool { return target == ErrWrite }

// StoreOptions configures a Store.
type StoreOptions struct {
	AllPath     string
	CovidPath   string
	Covid       *regexp.Regexp
	LockTimeout time.Duration
}

// Store persists the history table and its COVID-19 subset as CSV files.
// Merges are serialized in-process by a mutex and across processes by an
// advisory lock file next to the history table. Both tables are replaced
// by rename, so readers never observe a partial file.
type Store struct {
	opts StoreOptions
	mu   sync.Mutex

	// rename is os.Rename outside tests.
	rename func(oldpath, newpath string) error
}

// NewStore creates a Store over the given paths.
func NewStore(opts StoreOptions) *Store {
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = 30 * time.Second
	}
	if opts.Covid == nil {
		opts.Covid = regexp.MustCompile(regexp.QuoteMeta("新型冠状病毒"))
	}
	return &Store{opts: opts, rename: os.Rename}
}

// Load reads the full history. A missing file is an empty history.
func (s *Store) Load(ctx context.Context) ([]model.SurveillanceRecord, error) {
	return ReadFile(ctx, s.opts.AllPath)
}

// LoadCovid reads the COVID-19 table.
func (s *Store) LoadCovid(ctx context.Context) ([]model.SurveillanceRecord, error) {
	return ReadFile(ctx, s.opts.CovidPath)
}

// Covid returns the subset pattern.
func (s *Store) Covid() *regexp.Regexp { return s.opts.Covid }

// Merge folds batch into the persisted history and rewrites both tables.
// Either both files are replaced or neither is; a persistence failure is
// returned as a *WriteError.
func (s *Store) Merge(ctx context.Context, batch []model.SurveillanceRecord) (Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.lock(ctx)
	if err != nil {
		return Summary{}, err
	}
	defer unlock()

	existing, err := s.Load(ctx)
	if err != nil {
		return Summary{}, eris.Wrap(err, "history: load existing")
	}

	merged := Merge(batch, existing)
	covid := Subset(merged, s.opts.Covid)

	if err := s.commit(merged, covid); err != nil {
		return Summary{}, err
	}

	sum := summarize(batch, existing, merged, covid)
	zap.L().Info("history: merged batch",
		zap.String("path", s.opts.AllPath),
		zap.Int("batch", sum.Batch),
		zap.Int("existing", sum.Existing),
		zap.Int("added", sum.Added),
		zap.Int("replaced", sum.Replaced),
		zap.Int("total", sum.Total),
		zap.Int("covid", sum.Covid),
	)
	return sum, nil
}

func (s *Store) lock(ctx context.Context) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(s.opts.AllPath), 0o755); err != nil {
		return nil, &WriteError{Path: filepath.Dir(s.opts.AllPath), Err: err}
	}

	fl := flock.New(s.opts.AllPath + ".lock")
	lctx, cancel := context.WithTimeout(ctx, s.opts.LockTimeout)
	defer cancel()

	ok, err := fl.TryLockContext(lctx, 100*time.Millisecond)
	if err != nil && ctx.Err() != nil {
		return nil, eris.Wrap(ctx.Err(), "history: acquire lock")
	}
	if err != nil || !ok {
		return nil, eris.Wrapf(ErrLocked, "history: acquire lock on %s after %s", s.opts.AllPath, s.opts.LockTimeout)
	}
	return func() {
		if err := fl.Unlock(); err != nil {
			zap.L().Warn("history: release lock", zap.Error(err))
		}
	}, nil
}

type target struct {
	path    string
	records []model.SurveillanceRecord
}

// commit writes both tables to temporary files, then swaps them in. If the
// second swap fails the first table is restored from its backup.
func (s *Store) commit(all, covid []model.SurveillanceRecord) error {
	targets := []target{
		{s.opts.AllPath, all},
		{s.opts.CovidPath, covid},
	}

	temps := make([]string, 0, len(targets))
	defer func() {
		for _, t := range temps {
			_ = os.Remove(t)
		}
	}()
	for _, t := range targets {
		tmp, err := writeTemp(t.path, t.records)
		if err != nil {
			return err
		}
		temps = append(temps, tmp)
	}

	var backups []string
	defer func() {
		for _, b := range backups {
			_ = os.Remove(b)
		}
	}()
	for _, t := range targets {
		b, err := backup(t.path)
		if err != nil {
			return err
		}
		backups = append(backups, b)
	}

	for i, t := range targets {
		if err := s.rename(temps[i], t.path); err != nil {
			s.rollback(targets[:i], backups)
			return &WriteError{Path: t.path, Err: err}
		}
	}
	return nil
}

// rollback restores already-swapped targets from their backups. A target
// with no backup did not exist before and is removed.
func (s *Store) rollback(done []target, backups []string) {
	for i, t := range done {
		var err error
		if backups[i] == "" {
			err = os.Remove(t.path)
		} else {
			err = s.rename(backups[i], t.path)
			backups[i] = ""
		}
		if err != nil {
			zap.L().Error("history: rollback failed", zap.String("path", t.path), zap.Error(err))
		}
	}
}

// writeTemp writes records to a synced temporary file beside path.
func writeTemp(path string, records []model.SurveillanceRecord) (string, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", &WriteError{Path: path, Err: err}
	}

	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return "", &WriteError{Path: path, Err: err}
	}
	name := f.Name()

	err = WriteCSV(f, records)
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(name)
		return "", &WriteError{Path: path, Err: err}
	}
	return name, nil
}

// backup copies path to a sibling file and returns its name, or "" when
// path does not exist yet.
func backup(path string) (string, error) {
	src, err := os.Open(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", &WriteError{Path: path, Err: err}
	}
	defer src.Close() //nolint:errcheck

	dst, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".bak-*")
	if err != nil {
		return "", &WriteError{Path: path, Err: err}
	}
	_, err = io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(dst.Name())
		return "", &WriteError{Path: path, Err: err}
	}
	return dst.Name(), nil
}
