package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	playground "github.com/devlearn/playground"
	"pkt.systems/pslog"
)

// Storage keys. The version suffix changes whenever the record layout does.
const (
	EditorKey   = "devlearn/editor/v1"
	PracticeKey = "devlearn/practice/v1"
)

// DeviceKey scopes base to one browser. An empty device keeps base unchanged.
func DeviceKey(base, device string) string {
	if device == "" {
		return base
	}
	return base + "/" + device
}

// record is the stored layout.
type record struct {
	HTML       string `json:"html"`
	CSS        string `json:"css"`
	JavaScript string `json:"javascript"`
	Python     string `json:"python"`
	Timestamp  string `json:"timestamp"`
}

// Adapter saves one buffer set under Key.
type Adapter struct {
	Store Store
	Key   string
	// Now stamps saves. Defaults to time.Now.
	Now func() time.Time
}

// NewAdapter creates an adapter for key.
func NewAdapter(store Store, key string) *Adapter {
	return &Adapter{Store: store, Key: key}
}

// Save overwrites whatever was saved under the key.
func (a *Adapter) Save(ctx context.Context, b playground.Buffers) error {
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	data, err := json.Marshal(record{
		HTML:       b.HTML,
		CSS:        b.CSS,
		JavaScript: b.JavaScript,
		Python:     b.Python,
		Timestamp:  now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("encode save: %w", err)
	}
	if err := a.Store.Put(ctx, a.Key, data); err != nil {
		return fmt.Errorf("save %s: %w", a.Key, err)
	}
	return nil
}

// Load returns the saved buffers. A missing key, a read failure and a
// malformed record all report false.
func (a *Adapter) Load(ctx context.Context) (playground.Buffers, bool) {
	rec, err := a.load(ctx)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			pslog.Ctx(ctx).Warn("storage.load.unusable", "key", a.Key, "err", err)
		}
		return playground.Buffers{}, false
	}
	return playground.Buffers{
		HTML:       rec.HTML,
		CSS:        rec.CSS,
		JavaScript: rec.JavaScript,
		Python:     rec.Python,
	}, true
}

// SavedAt returns the timestamp of the last save.
func (a *Adapter) SavedAt(ctx context.Context) (time.Time, bool) {
	rec, err := a.load(ctx)
	if err != nil {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, rec.Timestamp)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func (a *Adapter) load(ctx context.Context) (*record, error) {
	data, err := a.Store.Get(ctx, a.Key)
	if err != nil {
		return nil, err
	}
	var rec *record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode save: %w", err)
	}
	if rec == nil {
		return nil, errors.New("decode save: null record")
	}
	return rec, nil
}
