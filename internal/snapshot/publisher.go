package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/Althuwaynee/iraqairquality/internal/validation"
)

// Artifact file names.
const (
	NowFile    = "pm10_now.json"
	AlertsFile = "pm10_alerts.json"
)

// Publisher writes artifacts into a directory. Each file is replaced
// atomically, so readers see either the previous or the new document.
type Publisher struct {
	dir    string
	logger zerolog.Logger
}

// NewPublisher creates a Publisher for dir, creating it if needed.
func NewPublisher(dir string, logger zerolog.Logger) (*Publisher, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating artifact directory: %w", err)
	}
	return &Publisher{dir: dir, logger: logger}, nil
}

// Dir returns the artifact directory.
func (p *Publisher) Dir() string {
	return p.dir
}

// NowPath returns the path of the "now" artifact.
func (p *Publisher) NowPath() string {
	return filepath.Join(p.dir, NowFile)
}

// AlertsPath returns the path of the "alerts" artifact.
func (p *Publisher) AlertsPath() string {
	return filepath.Join(p.dir, AlertsFile)
}

// Publish writes both artifacts. Both are encoded and synced before either
// is renamed into place, so a failed encode leaves the previous pair intact.
func (p *Publisher) Publish(now NowDocument, alerts AlertsDocument) error {
	nowTmp, err := stage(p.NowPath(), now)
	if err != nil {
		return err
	}
	alertsTmp, err := stage(p.AlertsPath(), alerts)
	if err != nil {
		_ = os.Remove(nowTmp)
		return err
	}

	if err := commit(nowTmp, p.NowPath()); err != nil {
		_ = os.Remove(alertsTmp)
		return err
	}
	if err := commit(alertsTmp, p.AlertsPath()); err != nil {
		return err
	}
	syncDir(p.dir)

	p.logger.Info().
		Str("dir", p.dir).
		Int("districts", len(alerts.Districts)).
		Time("reference_time", alerts.Metadata.ReferenceTime).
		Msg("artifacts published")
	return nil
}

// WriteAtomic encodes v as indented JSON into a temp file next to path,
// syncs it, and renames it over path.
func WriteAtomic(path string, v any) error {
	tmp, err := stage(path, v)
	if err != nil {
		return err
	}
	if err := commit(tmp, path); err != nil {
		return err
	}
	syncDir(filepath.Dir(path))
	return nil
}

// stage writes v to a synced temp file next to path and returns its name.
// The temp file is removed on error.
func stage(path string, v any) (string, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("creating temp artifact: %w", err)
	}
	tmpName := tmp.Name()

	fail := func(format string, err error) (string, error) {
		tmp.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf(format, filepath.Base(path), err)
	}

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fail("encoding %s: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fail("syncing %s: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		return fail("chmod %s: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("closing %s: %w", filepath.Base(path), err)
	}
	return tmpName, nil
}

func commit(tmpName, path string) error {
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("renaming %s: %w", filepath.Base(path), err)
	}
	return nil
}

// syncDir persists renames. Not every platform can sync a directory.
func syncDir(dir string) {
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		d.Close()
	}
}

// LatestAlerts loads the most recently published alerts artifact.
func (p *Publisher) LatestAlerts(_ context.Context) (*AlertsDocument, error) {
	return LoadAlerts(p.AlertsPath())
}

// LoadAlerts reads and strictly validates an alerts artifact.
func LoadAlerts(path string) (*AlertsDocument, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening alerts artifact: %w", err)
	}
	defer f.Close()

	var doc AlertsDocument
	if err := validation.DecodeStrict(f, &doc, path); err != nil {
		return nil, err
	}
	if err := doc.Validate(path); err != nil {
		return nil, err
	}
	return &doc, nil
}
