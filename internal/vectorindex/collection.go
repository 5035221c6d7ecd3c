package vectorindex

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/philippgille/chromem-go"
)

// corruptionSignatures are error substrings that indicate the on-disk
// collection state is unusable rather than merely absent or empty.
var corruptionSignatures = []string{
	"no such column",
	"database disk image is malformed",
	"schema",
	"corrupt",
	"unexpected eof",
}

// Collection wraps a single chromem-go collection rooted at its own
// directory, so that corruption in one collection never affects another.
// ids tracks collection membership in a small sidecar manifest: chromem-go
// does not expose a bulk id-listing call, and reconciliation (C10) needs to
// diff "what's in the index" against the processed-ids registry.
type Collection struct {
	name       string
	dir        string
	embedFunc  chromem.EmbeddingFunc
	mu         sync.Mutex
	db         *chromem.DB
	collection *chromem.Collection
	ids        map[string]struct{}

	// lastOutcome is the health state of the last guarded call that hit
	// corruption (Recovered or Degraded), kept across calls so Validate can
	// report it. It starts at (and stays at) Ok until a guarded call first
	// hits corruption.
	lastOutcome Outcome
}

func openCollection(name, dir string, embedFunc chromem.EmbeddingFunc) (*Collection, error) {
	c := &Collection{name: name, dir: dir, embedFunc: embedFunc, ids: make(map[string]struct{})}
	if err := c.reopen(); err != nil {
		return nil, err
	}
	c.loadManifest()
	return c, nil
}

func (c *Collection) manifestPath() string {
	return filepath.Join(c.dir, "ids.json")
}

func (c *Collection) loadManifest() {
	data, err := os.ReadFile(c.manifestPath())
	if err != nil {
		return
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return
	}
	for _, id := range list {
		c.ids[id] = struct{}{}
	}
}

func (c *Collection) saveManifest() {
	list := make([]string, 0, len(c.ids))
	for id := range c.ids {
		list = append(list, id)
	}
	data, err := json.Marshal(list)
	if err != nil {
		return
	}
	_ = os.WriteFile(c.manifestPath(), data, 0o644)
}

func (c *Collection) reopen() error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("vectorindex: creating %s dir: %w", c.name, err)
	}
	db, err := chromem.NewPersistentDB(c.dir, false)
	if err != nil {
		return fmt.Errorf("vectorindex: opening %s db: %w", c.name, err)
	}
	coll, err := db.GetOrCreateCollection(c.name, c.embedFunc, nil)
	if err != nil {
		return fmt.Errorf("vectorindex: opening %s collection: %w", c.name, err)
	}
	c.db = db
	c.collection = coll
	c.ids = make(map[string]struct{})
	return nil
}

func isCorruption(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, sig := range corruptionSignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}

// guardedCall runs fn against the collection's live chromem.Collection.
// A non-corruption error is passed straight back to the caller with Ok. A
// corruption-shaped error instead removes the collection's on-disk
// directory and reopens it empty; other collections are untouched because
// each one owns a separate chromem.DB.
//
// The call itself still reports Degraded to its immediate caller in both
// the recovered and unrecoverable case, since either way this call's own
// result was lost with the rest of the corrupted data. The distinction
// between the two is instead kept on c.lastOutcome for Validate to report.
func guardedCall[T any](c *Collection, fn func(*chromem.Collection) (T, error)) (T, error, Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	result, err := fn(c.collection)
	if err == nil {
		return result, nil, Ok
	}
	if !isCorruption(err) {
		var zero T
		return zero, err, Ok
	}

	log.Printf("vectorindex: %s collection corrupted, rebuilding: %v", c.name, err)
	var zero T
	if rmErr := os.RemoveAll(c.dir); rmErr != nil {
		log.Printf("vectorindex: failed to remove corrupted %s dir: %v", c.name, rmErr)
		c.lastOutcome = Degraded
		return zero, nil, Degraded
	}
	if reopenErr := c.reopen(); reopenErr != nil {
		log.Printf("vectorindex: failed to reopen %s after corruption: %v", c.name, reopenErr)
		c.lastOutcome = Degraded
		return zero, nil, Degraded
	}

	c.lastOutcome = Recovered
	return zero, nil, Degraded
}

// Count returns the number of documents in the collection.
func (c *Collection) Count(ctx context.Context) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.collection.Count()
}

// Status summarizes a collection's health for operator reporting.
type Status struct {
	Name      string `json:"name"`
	Status    string `json:"status"`
	ItemCount int    `json:"item_count"`
	Message   string `json:"message"`
}

// Validate reports the collection's health, combining a live item count
// with the outcome of the last corruption recovery attempt (if any), so
// that a collection rebuilt after corruption keeps reporting degraded
// instead of silently going back to healthy once it happens to be empty.
func (c *Collection) Validate() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := c.collection.Count()
	switch c.lastOutcome {
	case Recovered:
		return Status{Name: c.name, Status: "degraded", ItemCount: count,
			Message: "collection was corrupted and has been rebuilt empty"}
	case Degraded:
		return Status{Name: c.name, Status: "degraded", ItemCount: count,
			Message: "collection is corrupted and could not be recovered"}
	default:
		return Status{Name: c.name, Status: "healthy", ItemCount: count, Message: "ok"}
	}
}
