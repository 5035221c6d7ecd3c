// Package vectorindex implements the isolated, per-collection persistent
// vector store: one on-disk directory and chromem-go database per entity
// kind, so that corruption in one never cascades into another.
package vectorindex

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/philippgille/chromem-go"
)

// EmbedderFunc produces an embedding vector for a piece of text. It is
// satisfied by *embedclient.Client.Embed.
type EmbedderFunc func(ctx context.Context, text string) ([]float32, error)

// Index owns the three isolated collections the matching pipeline writes
// to and queries.
type Index struct {
	Researchers   *Collection
	Opportunities *Collection
	Proposals     *Collection
}

// Open creates (or reopens) the three collections rooted under root, each
// in its own subdirectory.
func Open(root string, embed EmbedderFunc) (*Index, error) {
	fn := chromem.EmbeddingFunc(embed)

	researchers, err := openCollection("researchers", filepath.Join(root, "researchers"), fn)
	if err != nil {
		return nil, err
	}
	opportunities, err := openCollection("opportunities", filepath.Join(root, "opportunities"), fn)
	if err != nil {
		return nil, err
	}
	proposals, err := openCollection("proposals", filepath.Join(root, "proposals"), fn)
	if err != nil {
		return nil, err
	}

	return &Index{Researchers: researchers, Opportunities: opportunities, Proposals: proposals}, nil
}

// Validate reports the health of every collection, keyed by name.
func (idx *Index) Validate() map[string]Status {
	return map[string]Status{
		"researchers":   idx.Researchers.Validate(),
		"opportunities": idx.Opportunities.Validate(),
		"proposals":     idx.Proposals.Validate(),
	}
}

// Record is the generic shape stored in a collection: an id, a flattened
// metadata map (string values only, per chromem-go's constraints), and the
// text that gets embedded.
type Record struct {
	ID       string
	Metadata map[string]string
	Text     string
	// Entity is marshaled to JSON and stored as the document's content
	// payload alongside Text, so a full round trip is possible without a
	// separate store. When Entity is non-nil it is marshaled and used as
	// Content instead of Text; Text is still what gets embedded.
	Entity any
}

func (r Record) toDocument() (chromem.Document, error) {
	content := r.Text
	if r.Entity != nil {
		payload, err := json.Marshal(r.Entity)
		if err != nil {
			return chromem.Document{}, fmt.Errorf("vectorindex: marshal entity for %s: %w", r.ID, err)
		}
		content = string(payload)
	}
	return chromem.Document{
		ID:       r.ID,
		Metadata: r.Metadata,
		Content:  content,
	}, nil
}

// Upsert writes or replaces a single record. chromem-go's AddDocument
// replaces any existing document with the same ID.
func (c *Collection) Upsert(ctx context.Context, r Record) (Outcome, error) {
	doc, err := r.toDocument()
	if err != nil {
		return Ok, err
	}
	_, callErr, outcome := guardedCall(c, func(coll *chromem.Collection) (struct{}, error) {
		return struct{}{}, coll.AddDocument(ctx, doc)
	})
	if outcome == Ok && callErr == nil {
		c.mu.Lock()
		c.ids[r.ID] = struct{}{}
		c.saveManifest()
		c.mu.Unlock()
	}
	return outcome, callErr
}

// UpsertBatch writes multiple records concurrently.
func (c *Collection) UpsertBatch(ctx context.Context, records []Record, concurrency int) (Outcome, error) {
	docs := make([]chromem.Document, 0, len(records))
	for _, r := range records {
		doc, err := r.toDocument()
		if err != nil {
			return Ok, err
		}
		docs = append(docs, doc)
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	_, callErr, outcome := guardedCall(c, func(coll *chromem.Collection) (struct{}, error) {
		return struct{}{}, coll.AddDocuments(ctx, docs, concurrency)
	})
	if outcome == Ok && callErr == nil {
		c.mu.Lock()
		for _, r := range records {
			c.ids[r.ID] = struct{}{}
		}
		c.saveManifest()
		c.mu.Unlock()
	}
	return outcome, callErr
}

// Get fetches a single document by id. A miss is reported as ErrNotFound.
func (c *Collection) Get(ctx context.Context, id string) (chromem.Document, Outcome, error) {
	doc, callErr, outcome := guardedCall(c, func(coll *chromem.Collection) (chromem.Document, error) {
		return coll.GetByID(ctx, id)
	})
	if outcome == Degraded {
		return chromem.Document{}, outcome, nil
	}
	if callErr != nil {
		return chromem.Document{}, outcome, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return doc, outcome, nil
}

// QueryResult is a single ranked hit.
type QueryResult struct {
	ID         string
	Metadata   map[string]string
	Content    string
	Similarity float32
}

// Query runs a nearest-neighbor search for queryText, returning up to n
// results in descending similarity order with a stable id tiebreak on exact
// ties (chromem-go does not itself guarantee tie order).
func (c *Collection) Query(ctx context.Context, queryText string, n int, where map[string]string) ([]QueryResult, Outcome, error) {
	results, callErr, outcome := guardedCall(c, func(coll *chromem.Collection) ([]chromem.Result, error) {
		count := coll.Count()
		if count == 0 {
			return nil, nil
		}
		if n > count {
			n = count
		}
		return coll.Query(ctx, queryText, n, where, nil)
	})
	if outcome == Degraded {
		return nil, outcome, nil
	}
	if callErr != nil {
		return nil, outcome, fmt.Errorf("vectorindex: query %s: %w", c.name, callErr)
	}

	out := make([]QueryResult, 0, len(results))
	for _, r := range results {
		out = append(out, QueryResult{ID: r.ID, Metadata: r.Metadata, Content: r.Content, Similarity: r.Similarity})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].ID < out[j].ID
	})
	return out, outcome, nil
}

// Delete removes a document by id. Deleting a missing id is a no-op.
func (c *Collection) Delete(ctx context.Context, id string) (Outcome, error) {
	_, callErr, outcome := guardedCall(c, func(coll *chromem.Collection) (struct{}, error) {
		return struct{}{}, coll.Delete(ctx, nil, nil, id)
	})
	if outcome == Ok && callErr == nil {
		c.mu.Lock()
		delete(c.ids, id)
		c.saveManifest()
		c.mu.Unlock()
	}
	if outcome == Degraded {
		c.mu.Lock()
		delete(c.ids, id)
		c.mu.Unlock()
	}
	return outcome, callErr
}

// AllIDs lists every document id currently in the collection, backed by the
// sidecar id manifest maintained on every Upsert/Delete.
func (c *Collection) AllIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.ids))
	for id := range c.ids {
		ids = append(ids, id)
	}
	return ids
}
