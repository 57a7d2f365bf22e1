// Package cache persists grammar verdicts for SPARQL strings in BadgerDB so
// repeated validation of the same text skips the parser.
package cache

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/zeebo/xxh3"

	"github.com/aleksaelezovic/graphdbi/pkg/diag"
	"github.com/aleksaelezovic/graphdbi/pkg/sparql/validate"
)

// Key tables, one per grammar.
const (
	tableQuery  byte = 0x01
	tableUpdate byte = 0x02
)

// GrammarVersion leads every key. Bump it whenever the parser accepts or
// rejects something it did not before, so stale verdicts stop matching.
const GrammarVersion byte = 2

// KeySize is the size of a fingerprint: version byte, table byte and a
// 128-bit hash.
const KeySize = 18

var _ validate.VerdictCache = (*Verdicts)(nil)

// Verdicts is a BadgerDB-backed validate.VerdictCache.
type Verdicts struct {
	db   *badger.DB
	ttl  time.Duration
	diag diag.Sink
}

// Options configure Open.
type Options struct {
	// Dir holds the database files. Empty means in-memory.
	Dir string
	// TTL bounds the lifetime of each verdict. Zero keeps verdicts forever.
	TTL  time.Duration
	Diag diag.Sink
}

// Open opens or creates the verdict store.
func Open(o Options) (*Verdicts, error) {
	opts := badger.DefaultOptions(o.Dir)
	if o.Dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil // Disable default logger

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open verdict cache: %w", err)
	}
	return &Verdicts{db: db, ttl: o.TTL, diag: diag.OrDiscard(o.Diag)}, nil
}

// Fingerprint returns the key under which a verdict for query is stored.
func Fingerprint(grammar, query string) ([KeySize]byte, error) {
	var key [KeySize]byte
	key[0] = GrammarVersion
	switch grammar {
	case validate.GrammarQuery:
		key[1] = tableQuery
	case validate.GrammarUpdate:
		key[1] = tableUpdate
	default:
		return key, fmt.Errorf("unknown grammar %q", grammar)
	}
	hash := xxh3.HashString128(query)
	binary.BigEndian.PutUint64(key[2:10], hash.Hi)
	binary.BigEndian.PutUint64(key[10:18], hash.Lo)
	return key, nil
}

// Get returns the stored verdict. Lookup failures are logged and reported
// as a miss.
func (v *Verdicts) Get(grammar, query string) (valid, found bool) {
	key, err := Fingerprint(grammar, query)
	if err != nil {
		v.diag.Warn("verdict cache lookup skipped", "error", err)
		return false, false
	}

	err = v.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key[:])
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) != 1 {
				return fmt.Errorf("corrupt verdict of %d bytes", len(val))
			}
			valid, found = val[0] == 1, true
			return nil
		})
	})
	if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		v.diag.Warn("verdict cache lookup failed", "error", err)
		return false, false
	}
	return valid, found
}

// Put stores a verdict. Write failures are logged and otherwise ignored.
func (v *Verdicts) Put(grammar, query string, valid bool) {
	key, err := Fingerprint(grammar, query)
	if err != nil {
		v.diag.Warn("verdict cache write skipped", "error", err)
		return
	}

	val := []byte{0}
	if valid {
		val[0] = 1
	}
	err = v.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(key[:], val)
		if v.ttl > 0 {
			e = e.WithTTL(v.ttl)
		}
		return txn.SetEntry(e)
	})
	if err != nil {
		v.diag.Warn("verdict cache write failed", "error", err)
	}
}

// Len counts the live verdicts of the current GrammarVersion.
func (v *Verdicts) Len() (int, error) {
	n := 0
	err := v.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte{GrammarVersion}
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// Purge drops every stored verdict.
func (v *Verdicts) Purge() error {
	return v.db.DropAll()
}

// Close closes the database
func (v *Verdicts) Close() error {
	return v.db.Close()
}
