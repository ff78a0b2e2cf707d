package internal

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.etcd.io/bbolt"
)

const (
	EntriesFilename = "entries.db"
	IndexFilename   = "index.ann"

	DefaultTopK  = 3
	DefaultTrees = 10

	embedBatchSize = 32
)

var (
	bucketChunks = []byte("chunks")
	bucketMeta   = []byte("meta")
	keyIdentity  = []byte("embedder")
	keyTreeItems = []byte("tree_items")
)

type storedEntry struct {
	Chunk  Chunk     `json:"chunk"`
	Vector []float32 `json:"vector"`
}

type IndexStats struct {
	Dir      string
	Chunks   int
	Identity *EmbedderIdentity
	Sources  map[string]int
}

// VectorIndex keeps chunk rows and their vectors in bbolt and answers
// similarity queries from annoy trees rebuilt after every commit, or by an
// exact scan while the index is too small for trees. Writers hold
// the lock across load-modify-persist; readers only see committed snapshots.
type VectorIndex struct {
	mu     sync.RWMutex
	dir    string
	trees  int
	logger logrus.FieldLogger

	embMu       sync.Mutex
	embedder    Embedder
	newEmbedder func(context.Context) (Embedder, error)

	db       *bbolt.DB
	tree     *annTree
	entries  map[uint32]IndexEntry
	identity *EmbedderIdentity
}

type IndexOption func(*VectorIndex)

func WithTrees(n int) IndexOption {
	return func(v *VectorIndex) {
		if n > 0 {
			v.trees = n
		}
	}
}

// WithEmbedderLoader defers creating the embedder until the index first
// needs one. A failed load is retried on the next call.
func WithEmbedderLoader(load func(context.Context) (Embedder, error)) IndexOption {
	return func(v *VectorIndex) {
		v.newEmbedder = load
	}
}

func WithIndexLogger(logger logrus.FieldLogger) IndexOption {
	return func(v *VectorIndex) {
		v.logger = orDiscard(logger)
	}
}

// NewVectorIndex returns an unopened index rooted at dir. Without an embedder
// or loader the index can be inspected and cleared but not written or
// searched.
func NewVectorIndex(dir string, embedder Embedder, opts ...IndexOption) *VectorIndex {
	v := &VectorIndex{
		dir:      dir,
		embedder: embedder,
		trees:    DefaultTrees,
		logger:   DiscardLogger(),
		entries:  make(map[uint32]IndexEntry),
	}
	for _, o := range opts {
		o(v)
	}
	return v
}

func (v *VectorIndex) Dir() string {
	return v.dir
}

func (v *VectorIndex) getEmbedder(ctx context.Context) (Embedder, error) {
	v.embMu.Lock()
	defer v.embMu.Unlock()

	if v.embedder != nil {
		return v.embedder, nil
	}
	if v.newEmbedder == nil {
		return nil, ErrNoEmbedder
	}

	e, err := v.newEmbedder(ctx)
	if err != nil {
		return nil, err
	}
	v.embedder = e
	return e, nil
}

// Load opens persisted state. A missing directory yields an empty index; a
// corrupt one is moved aside and replaced by an empty index.
func (v *VectorIndex) Load(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.closeLocked()

	err := v.openLocked()
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrIndexCorrupt) {
		return err
	}

	v.logger.WithError(err).Warn("index storage is unreadable, starting with an empty index")
	v.closeLocked()

	moved, qerr := quarantine(v.dir)
	if qerr != nil {
		return fmt.Errorf("move corrupt index aside: %w", qerr)
	}
	v.logger.WithField("path", moved).Info("corrupt index moved aside")

	return v.openLocked()
}

func (v *VectorIndex) openLocked() error {
	if err := os.MkdirAll(v.dir, 0755); err != nil {
		return fmt.Errorf("create index directory: %w", err)
	}

	db, err := bbolt.Open(filepath.Join(v.dir, EntriesFilename), 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		if errors.Is(err, bbolt.ErrTimeout) {
			return fmt.Errorf("open entries: index is locked by another process: %w", err)
		}
		return fmt.Errorf("%w: open entries: %v", ErrIndexCorrupt, err)
	}

	entries := make(map[uint32]IndexEntry)
	var identity *EmbedderIdentity
	treeItems := -1

	err = db.Update(func(tx *bbolt.Tx) error {
		chunks, err := tx.CreateBucketIfNotExists(bucketChunks)
		if err != nil {
			return err
		}
		meta, err := tx.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return err
		}

		if data := meta.Get(keyIdentity); data != nil {
			var id EmbedderIdentity
			if err := json.Unmarshal(data, &id); err != nil {
				return fmt.Errorf("%w: decode embedder identity: %v", ErrIndexCorrupt, err)
			}
			identity = &id
		}
		if data := meta.Get(keyTreeItems); len(data) == 8 {
			treeItems = int(binary.BigEndian.Uint64(data))
		}

		return chunks.ForEach(func(k, val []byte) error {
			if len(k) != 8 {
				return fmt.Errorf("%w: bad entry key %x", ErrIndexCorrupt, k)
			}
			var stored storedEntry
			if err := json.Unmarshal(val, &stored); err != nil {
				return fmt.Errorf("%w: decode entry: %v", ErrIndexCorrupt, err)
			}
			id := uint32(binary.BigEndian.Uint64(k))
			entries[id] = IndexEntry{ID: id, Vector: stored.Vector, Chunk: stored.Chunk}
			return nil
		})
	})
	if err != nil {
		db.Close()
		if errors.Is(err, ErrIndexCorrupt) {
			return err
		}
		return fmt.Errorf("%w: read entries: %v", ErrIndexCorrupt, err)
	}

	if len(entries) > 0 && identity == nil {
		db.Close()
		return fmt.Errorf("%w: entries without embedder identity", ErrIndexCorrupt)
	}

	v.db = db
	v.entries = entries
	v.identity = identity
	v.tree = nil

	if len(entries) < minTreeItems {
		return nil
	}

	treePath := filepath.Join(v.dir, IndexFilename)
	if treeItems == len(entries) {
		tree, err := safeLoadAnnTree(treePath, sortedEntries(entries), identity.Dimension, v.trees)
		if err == nil {
			v.tree = tree
			return nil
		}
		v.logger.WithError(err).Debug("saved trees unusable")
	}

	// The rows are the source of truth; the trees can always be rebuilt.
	v.logger.Debug("rebuilding trees from entries")
	tree, err := buildAnnTree(sortedEntries(entries), identity.Dimension, v.trees)
	if err != nil {
		v.closeLocked()
		return fmt.Errorf("%w: %v", ErrIndexCorrupt, err)
	}
	v.tree = tree

	if err := v.persistLocked(); err != nil {
		v.logger.WithError(err).Warn("failed to save rebuilt trees")
	}
	return nil
}

func safeLoadAnnTree(path string, entries []IndexEntry, dimension, trees int) (tree *annTree, err error) {
	defer func() {
		if r := recover(); r != nil {
			tree, err = nil, fmt.Errorf("load trees: %v", r)
		}
	}()
	return loadAnnTree(path, entries, dimension, trees)
}

func (v *VectorIndex) ensureOpenLocked() error {
	if v.db != nil {
		return nil
	}
	return v.openLocked()
}

func (v *VectorIndex) closeLocked() {
	if v.db != nil {
		if err := v.db.Close(); err != nil {
			v.logger.WithError(err).Warn("close entries")
		}
	}
	v.db = nil
	v.tree = nil
	v.entries = make(map[uint32]IndexEntry)
	v.identity = nil
}

func (v *VectorIndex) checkIdentity(id EmbedderIdentity) error {
	if v.identity != nil && !v.identity.Compatible(id) {
		return fmt.Errorf("%w: index uses %s, current embedder is %s (run `glance index rebuild` or `glance index clear`)",
			ErrEmbedderMismatch, v.identity, id)
	}
	return nil
}

// Add embeds chunks and commits them in one transaction, then refreshes and
// persists the trees. Nothing is committed when embedding fails.
func (v *VectorIndex) Add(ctx context.Context, chunks []Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	return v.write(ctx, chunks, func(IndexEntry) bool { return false })
}

// Replace swaps every chunk stored for source with chunks in one commit. With
// no chunks it only removes the source.
func (v *VectorIndex) Replace(ctx context.Context, source string, chunks []Chunk) (int, error) {
	return v.write(ctx, chunks, func(e IndexEntry) bool { return e.Chunk.Metadata.Source == source })
}

func (v *VectorIndex) write(ctx context.Context, chunks []Chunk, drop func(IndexEntry) bool) (int, error) {
	var (
		id      EmbedderIdentity
		vectors [][]float32
	)

	if len(chunks) > 0 {
		embedder, err := v.getEmbedder(ctx)
		if err != nil {
			return 0, err
		}
		id = embedder.Identity()

		v.mu.RLock()
		err = v.checkIdentity(id)
		v.mu.RUnlock()
		if err != nil {
			return 0, err
		}

		vectors, err = embedChunks(ctx, embedder, chunks)
		if err != nil {
			return 0, err
		}
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.ensureOpenLocked(); err != nil {
		return 0, err
	}
	if len(chunks) > 0 {
		// A concurrent writer may have set the identity while we were embedding.
		if err := v.checkIdentity(id); err != nil {
			return 0, err
		}
	}

	var removed []uint32
	for eid, e := range v.entries {
		if drop(e) {
			removed = append(removed, eid)
		}
	}
	if len(chunks) == 0 && len(removed) == 0 {
		return 0, nil
	}

	setIdentity := v.identity == nil && len(chunks) > 0
	added := make([]IndexEntry, 0, len(chunks))

	err := v.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketChunks)
		meta := tx.Bucket(bucketMeta)
		if err := meta.Delete(keyTreeItems); err != nil {
			return err
		}

		for _, eid := range removed {
			if err := b.Delete(entryKey(uint64(eid))); err != nil {
				return err
			}
		}

		if setIdentity {
			data, err := json.Marshal(id)
			if err != nil {
				return err
			}
			if err := meta.Put(keyIdentity, data); err != nil {
				return err
			}
		}

		for i, c := range chunks {
			seq, err := b.NextSequence()
			if err != nil {
				return err
			}
			data, err := json.Marshal(storedEntry{Chunk: c, Vector: vectors[i]})
			if err != nil {
				return err
			}
			if err := b.Put(entryKey(seq), data); err != nil {
				return err
			}
			added = append(added, IndexEntry{ID: uint32(seq), Vector: vectors[i], Chunk: c})
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("commit entries: %w", err)
	}

	if setIdentity {
		v.identity = &id
	}
	for _, eid := range removed {
		delete(v.entries, eid)
	}
	for _, e := range added {
		v.entries[e.ID] = e
	}

	if err := v.refreshLocked(); err != nil {
		return len(added), err
	}

	v.logger.WithFields(logrus.Fields{
		"added":   len(added),
		"removed": len(removed),
		"total":   len(v.entries),
	}).Debug("index updated")

	return len(added), nil
}

// Rebuild re-embeds every stored chunk with the current embedder, replacing
// the vectors and the recorded identity.
func (v *VectorIndex) Rebuild(ctx context.Context) (int, error) {
	embedder, err := v.getEmbedder(ctx)
	if err != nil {
		return 0, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.ensureOpenLocked(); err != nil {
		return 0, err
	}

	current := sortedEntries(v.entries)
	chunks := make([]Chunk, len(current))
	for i, e := range current {
		chunks[i] = e.Chunk
	}

	vectors, err := embedChunks(ctx, embedder, chunks)
	if err != nil {
		return 0, err
	}

	id := embedder.Identity()
	rebuilt := make(map[uint32]IndexEntry, len(chunks))

	err = v.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketChunks); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
			return err
		}
		b, err := tx.CreateBucket(bucketChunks)
		if err != nil {
			return err
		}

		data, err := json.Marshal(id)
		if err != nil {
			return err
		}
		meta := tx.Bucket(bucketMeta)
		if err := meta.Put(keyIdentity, data); err != nil {
			return err
		}
		if err := meta.Delete(keyTreeItems); err != nil {
			return err
		}

		for i, c := range chunks {
			seq, err := b.NextSequence()
			if err != nil {
				return err
			}
			data, err := json.Marshal(storedEntry{Chunk: c, Vector: vectors[i]})
			if err != nil {
				return err
			}
			if err := b.Put(entryKey(seq), data); err != nil {
				return err
			}
			rebuilt[uint32(seq)] = IndexEntry{ID: uint32(seq), Vector: vectors[i], Chunk: c}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("commit rebuilt entries: %w", err)
	}

	v.entries = rebuilt
	v.identity = &id

	if err := v.refreshLocked(); err != nil {
		return len(rebuilt), err
	}
	return len(rebuilt), nil
}

func (v *VectorIndex) refreshLocked() error {
	if len(v.entries) < minTreeItems || v.identity == nil {
		v.tree = nil
		return v.persistLocked()
	}

	tree, err := buildAnnTree(sortedEntries(v.entries), v.identity.Dimension, v.trees)
	if err != nil {
		return fmt.Errorf("build trees: %w", err)
	}
	v.tree = tree

	return v.persistLocked()
}

func (v *VectorIndex) Persist(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.persistLocked()
}

func (v *VectorIndex) persistLocked() error {
	if v.db == nil {
		return nil
	}

	treePath := filepath.Join(v.dir, IndexFilename)
	items := 0
	if v.tree == nil {
		if err := os.Remove(treePath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove trees: %w", err)
		}
	} else {
		if err := v.tree.save(treePath); err != nil {
			return err
		}
		items = len(v.tree.ids)
	}

	// Recorded after the file is written so a crash in between leaves a
	// count that forces a rebuild on the next load.
	return v.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMeta).Put(keyTreeItems, entryKey(uint64(items)))
	})
}

// Search returns up to k chunks ordered by similarity. An empty index returns
// no results even when no embedder is configured.
func (v *VectorIndex) Search(ctx context.Context, query string, k int) ([]SearchResult, error) {
	if k <= 0 {
		k = DefaultTopK
	}

	v.mu.RLock()
	empty := len(v.entries) == 0
	v.mu.RUnlock()
	if empty {
		return nil, nil
	}

	embedder, err := v.getEmbedder(ctx)
	if err != nil {
		return nil, err
	}
	id := embedder.Identity()

	v.mu.RLock()
	err = v.checkIdentity(id)
	v.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	vec, err := embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	var (
		ids    []uint32
		scores []float32
	)
	if v.tree != nil {
		ids, scores, err = v.tree.nearest(vec, k)
	} else {
		ids, scores, err = scanNearest(sortedEntries(v.entries), vec, k)
	}
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(ids))
	for i, id := range ids {
		e, ok := v.entries[id]
		if !ok {
			continue
		}
		results = append(results, SearchResult{Chunk: e.Chunk, Score: scores[i]})
	}

	return results, nil
}

// Retrieve joins the contents of the k nearest chunks, most similar first.
func (v *VectorIndex) Retrieve(ctx context.Context, query string, k int) (string, error) {
	results, err := v.Search(ctx, query, k)
	if err != nil {
		return "", err
	}

	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = r.Chunk.Content
	}
	return strings.Join(parts, "\n\n"), nil
}

// Clear drops every entry and removes the storage directory. It reports
// whether there was anything to clear; clearing twice is not an error.
func (v *VectorIndex) Clear(ctx context.Context) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	existed := len(v.entries) > 0
	if _, err := os.Stat(v.dir); err == nil {
		existed = true
	}

	v.closeLocked()

	if err := os.RemoveAll(v.dir); err != nil {
		return existed, fmt.Errorf("remove index: %w", err)
	}

	return existed, nil
}

func (v *VectorIndex) Stats() IndexStats {
	v.mu.RLock()
	defer v.mu.RUnlock()

	stats := IndexStats{
		Dir:     v.dir,
		Chunks:  len(v.entries),
		Sources: make(map[string]int),
	}
	if v.identity != nil {
		id := *v.identity
		stats.Identity = &id
	}
	for _, e := range v.entries {
		stats.Sources[e.Chunk.Metadata.Source]++
	}
	return stats
}

// Close releases the entries file and the embedder.
func (v *VectorIndex) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	var err error
	if v.db != nil {
		err = v.db.Close()
		v.db = nil
	}

	v.embMu.Lock()
	defer v.embMu.Unlock()
	if v.embedder != nil {
		if cerr := v.embedder.Close(); cerr != nil && err == nil {
			err = cerr
		}
		v.embedder = nil
	}

	return err
}

func embedChunks(ctx context.Context, e Embedder, chunks []Chunk) ([][]float32, error) {
	vectors := make([][]float32, 0, len(chunks))

	for start := 0; start < len(chunks); start += embedBatchSize {
		end := min(start+embedBatchSize, len(chunks))

		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Content)
		}

		batch, err := e.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed chunks: %w", err)
		}
		if len(batch) != len(texts) {
			return nil, fmt.Errorf("embed chunks: got %d vectors for %d texts", len(batch), len(texts))
		}
		vectors = append(vectors, batch...)
	}

	return vectors, nil
}

func entryKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}

func sortedEntries(entries map[uint32]IndexEntry) []IndexEntry {
	out := make([]IndexEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func quarantine(dir string) (string, error) {
	dest := fmt.Sprintf("%s.corrupt-%s", dir, time.Now().Format("20060102-150405"))
	if err := os.Rename(dir, dest); err != nil {
		return "", err
	}
	return dest, nil
}
