package registry

import (
	"bytes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/petal-labs/stemflow"
)

// snapshotFormat is the self-describing format marker embedded in every
// snapshot. Loading rejects snapshots carrying any other marker.
const snapshotFormat = "stemflow.registry/1"

// encMagic prefixes encrypted snapshots so loading can distinguish
// wrapped ciphertext from a clear JSON envelope.
var encMagic = []byte("STEMFLOW-ENC1\x00")

type snapshot struct {
	Format     string       `json:"format"`
	SnapshotID string       `json:"snapshot_id"`
	CreatedAt  time.Time    `json:"created_at"`
	Flows      []flowRecord `json:"flows"`
}

type flowRecord struct {
	Project string       `json:"project"`
	Name    string       `json:"name"`
	Version string       `json:"version"`
	Tasks   []taskRecord `json:"tasks"`
	Edges   []edgeRecord `json:"edges"`
}

type taskRecord struct {
	Name        string            `json:"name"`
	Slug        string            `json:"slug,omitempty"`
	Type        string            `json:"type,omitempty"`
	Fields      map[string]string `json:"fields,omitempty"`
	Description string            `json:"description,omitempty"`
	MaxRetries  int               `json:"max_retries,omitempty"`
	RetryDelay  int64             `json:"retry_delay_ns,omitempty"`
	Tags        []string          `json:"tags,omitempty"`
	ID          string            `json:"id"`
}

// edgeRecord references tasks by their index in the flow record.
type edgeRecord struct {
	Upstream   int `json:"upstream"`
	Downstream int `json:"downstream"`
}

// Serialize snapshots all registered flows and their computed task ids
// into a self-describing byte string. With an encryption key configured
// the result is a wrapped ciphertext; without one, the registry warns
// and serializes in clear.
func (r *Registry) Serialize() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := snapshot{
		Format:     snapshotFormat,
		SnapshotID: uuid.NewString(),
		CreatedAt:  time.Now().UTC(),
	}
	for _, key := range r.order {
		rec, err := encodeFlow(r.flows[key])
		if err != nil {
			return nil, err
		}
		snap.Flows = append(snap.Flows, rec)
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("registry: marshal snapshot: %w", err)
	}

	if r.cfg.EncryptionKey == "" {
		r.warn(stemflow.Warning{
			Kind:   stemflow.WarnEncryptionUnavailable,
			Detail: "no registry encryption key configured; serializing in clear",
		})
		return data, nil
	}
	return encryptSnapshot(r.cfg.EncryptionKey, data)
}

// LoadSerialized restores the flows of a snapshot and merges them into
// the registry under the usual duplicate-registration rules. Encrypted
// input without a configured key is skipped with a warning; undecodable
// input fails with ErrCorruptRegistry.
func (r *Registry) LoadSerialized(data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cfg.EncryptionKey == "" {
		if isEncrypted(data) {
			r.warn(stemflow.Warning{
				Kind:   stemflow.WarnEncryptionUnavailable,
				Detail: "registry snapshot is encrypted and no key is configured; skipping",
			})
			return nil
		}
		r.warn(stemflow.Warning{
			Kind:   stemflow.WarnEncryptionUnavailable,
			Detail: "no registry encryption key configured; loading clear snapshot",
		})
	} else if isEncrypted(data) {
		plain, err := decryptSnapshot(r.cfg.EncryptionKey, data)
		if err != nil {
			return err
		}
		data = plain
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptRegistry, err)
	}
	if snap.Format != snapshotFormat {
		return fmt.Errorf("%w: unknown format %q", ErrCorruptRegistry, snap.Format)
	}

	flows := make([]*stemflow.Flow, 0, len(snap.Flows))
	for _, rec := range snap.Flows {
		f, err := decodeFlow(rec)
		if err != nil {
			return err
		}
		flows = append(flows, f)
	}
	for _, f := range flows {
		r.register(f)
	}
	return nil
}

// encodeFlow serializes a flow together with its generated task ids.
func encodeFlow(f *stemflow.Flow) (flowRecord, error) {
	ids, err := stemflow.GenerateTaskIDs(f)
	if err != nil {
		return flowRecord{}, fmt.Errorf("registry: flow %q/%q: %w", f.Project, f.Name, err)
	}

	rec := flowRecord{
		Project: f.Project,
		Name:    f.Name,
		Version: f.Version,
	}
	tasks := f.Tasks()
	pos := make(map[*stemflow.Task]int, len(tasks))
	for i, t := range tasks {
		pos[t] = i
		rec.Tasks = append(rec.Tasks, taskRecord{
			Name:        t.Name,
			Slug:        t.Slug,
			Type:        t.Type,
			Fields:      t.Fields,
			Description: t.Description,
			MaxRetries:  t.MaxRetries,
			RetryDelay:  int64(t.RetryDelay),
			Tags:        t.Tags,
			ID:          ids[t].String(),
		})
	}
	for _, e := range f.Edges() {
		rec.Edges = append(rec.Edges, edgeRecord{
			Upstream:   pos[e.Upstream],
			Downstream: pos[e.Downstream],
		})
	}
	return rec, nil
}

func decodeFlow(rec flowRecord) (*stemflow.Flow, error) {
	f := stemflow.NewFlow(rec.Name,
		stemflow.WithProject(rec.Project),
		stemflow.WithVersion(rec.Version),
	)
	tasks := make([]*stemflow.Task, len(rec.Tasks))
	for i, tr := range rec.Tasks {
		tasks[i] = &stemflow.Task{
			Name:        tr.Name,
			Slug:        tr.Slug,
			Type:        tr.Type,
			Fields:      tr.Fields,
			Description: tr.Description,
			MaxRetries:  tr.MaxRetries,
			RetryDelay:  time.Duration(tr.RetryDelay),
			Tags:        tr.Tags,
		}
		if err := f.AddTask(tasks[i]); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptRegistry, err)
		}
	}
	for _, er := range rec.Edges {
		if er.Upstream < 0 || er.Upstream >= len(tasks) || er.Downstream < 0 || er.Downstream >= len(tasks) {
			return nil, fmt.Errorf("%w: edge index out of range", ErrCorruptRegistry)
		}
		if err := f.AddEdge(tasks[er.Upstream], tasks[er.Downstream]); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptRegistry, err)
		}
	}
	return f, nil
}

func isEncrypted(data []byte) bool {
	return bytes.HasPrefix(data, encMagic)
}

// snapshotAEAD derives the cipher from the configured key string. Any
// non-empty string is a valid key.
func snapshotAEAD(key string) (cipher.AEAD, error) {
	sum := sha256.Sum256([]byte(key))
	return chacha20poly1305.NewX(sum[:])
}

func encryptSnapshot(key string, plain []byte) ([]byte, error) {
	aead, err := snapshotAEAD(key)
	if err != nil {
		return nil, fmt.Errorf("registry: init cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("registry: nonce: %w", err)
	}
	out := make([]byte, 0, len(encMagic)+len(nonce)+len(plain)+16)
	out = append(out, encMagic...)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plain, nil), nil
}

func decryptSnapshot(key string, data []byte) ([]byte, error) {
	aead, err := snapshotAEAD(key)
	if err != nil {
		return nil, fmt.Errorf("registry: init cipher: %w", err)
	}
	raw := data[len(encMagic):]
	if len(raw) < aead.NonceSize() {
		return nil, fmt.Errorf("%w: truncated ciphertext", ErrCorruptRegistry)
	}
	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: decryption failed", ErrCorruptRegistry)
	}
	return plain, nil
}
