package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"
)

var checkpointCronParser = cron.NewParser(
	cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow,
)

// CheckpointerConfig configures periodic registry snapshots.
type CheckpointerConfig struct {
	// Registry is the registry to snapshot.
	Registry *Registry

	// Schedule is a standard 5-field cron expression.
	Schedule string

	// Path writes each snapshot to this file (atomic replace).
	// Optional when Store is set.
	Path string

	// Store saves each snapshot to a SnapshotStore.
	// Optional when Path is set.
	Store *SnapshotStore

	// OnError observes checkpoint failures. Defaults to a no-op.
	OnError func(error)
}

// Checkpointer serializes a registry on a cron schedule so a process
// restart can pick up the latest snapshot via load_on_startup or a
// SnapshotStore lookup.
type Checkpointer struct {
	cfg  CheckpointerConfig
	cron *cron.Cron

	mu      sync.Mutex
	running bool
}

// NewCheckpointer validates the configuration and prepares the
// schedule. At least one of Path and Store must be set.
func NewCheckpointer(cfg CheckpointerConfig) (*Checkpointer, error) {
	if cfg.Registry == nil {
		return nil, errors.New("checkpointer: registry is nil")
	}
	if strings.TrimSpace(cfg.Path) == "" && cfg.Store == nil {
		return nil, errors.New("checkpointer: no snapshot target configured")
	}
	if cfg.OnError == nil {
		cfg.OnError = func(error) {}
	}

	schedule := strings.TrimSpace(cfg.Schedule)
	if schedule == "" {
		return nil, errors.New("checkpointer: schedule is required")
	}
	if _, err := checkpointCronParser.Parse(schedule); err != nil {
		return nil, fmt.Errorf("checkpointer: invalid schedule: %w", err)
	}

	c := &Checkpointer{
		cfg:  cfg,
		cron: cron.New(cron.WithParser(checkpointCronParser)),
	}
	if _, err := c.cron.AddFunc(schedule, c.tick); err != nil {
		return nil, fmt.Errorf("checkpointer: schedule: %w", err)
	}
	return c, nil
}

// Start begins scheduled checkpointing. Starting twice is a no-op.
func (c *Checkpointer) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}
	c.running = true
	c.cron.Start()
}

// Stop halts the schedule and waits for an in-flight checkpoint to
// finish.
func (c *Checkpointer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}
	c.running = false
	<-c.cron.Stop().Done()
}

func (c *Checkpointer) tick() {
	if err := c.Checkpoint(context.Background()); err != nil {
		c.cfg.OnError(err)
	}
}

// Checkpoint serializes the registry once and writes the snapshot to
// every configured target. It is safe to call outside the schedule.
func (c *Checkpointer) Checkpoint(ctx context.Context) error {
	data, err := c.cfg.Registry.Serialize()
	if err != nil {
		return fmt.Errorf("checkpointer: serialize: %w", err)
	}
	if path := strings.TrimSpace(c.cfg.Path); path != "" {
		if err := writeFileAtomic(path, data); err != nil {
			return fmt.Errorf("checkpointer: write %q: %w", path, err)
		}
	}
	if c.cfg.Store != nil {
		if _, err := c.cfg.Store.Save(ctx, data); err != nil {
			return fmt.Errorf("checkpointer: store: %w", err)
		}
	}
	return nil
}

// writeFileAtomic writes via a temp file and rename so readers never
// observe a partial snapshot.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".snapshot-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
