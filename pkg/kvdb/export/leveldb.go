// Package export provides destinations for kvdb.Client.ExportTo: an embedded
// LevelDB store and a JSON stream in the import format.
package export

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/Ratio1/kvdb_sdk_go/pkg/kvdb"
)

// LevelDB is a local key-value store on disk. It can receive an export and
// also serves as a kvdb.Backend, so an exported copy can be read back with
// a regular client.
type LevelDB struct {
	db *leveldb.DB
}

var (
	_ kvdb.Backend = (*LevelDB)(nil)
	_ kvdb.Setter  = (*LevelDB)(nil)
)

// OpenLevelDB opens or creates the database at dir.
func OpenLevelDB(dir string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("export: open leveldb %s: %w", dir, err)
	}
	return &LevelDB{db: db}, nil
}

// Close releases the database.
func (l *LevelDB) Close() error {
	return l.db.Close()
}

// Set stores value as JSON under key.
func (l *LevelDB) Set(ctx context.Context, key string, value any, _ *kvdb.Options) error {
	if !kvdb.IsValidValue(value) {
		return fmt.Errorf("export: %q: %w", key, kvdb.ErrInvalidValue)
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("export: encode %q: %w", key, err)
	}
	return l.SetRaw(ctx, key, raw)
}

func (l *LevelDB) GetRaw(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, err := l.db.Get([]byte(key), nil)
	if err == leveldb.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("export: get %q: %w", key, err)
	}
	return v, nil
}

func (l *LevelDB) SetRaw(ctx context.Context, key string, raw []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := l.db.Put([]byte(key), raw, nil); err != nil {
		return fmt.Errorf("export: put %q: %w", key, err)
	}
	return nil
}

func (l *LevelDB) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := l.db.Delete([]byte(key), nil); err != nil {
		return fmt.Errorf("export: delete %q: %w", key, err)
	}
	return nil
}

func (l *LevelDB) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	iter := l.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer iter.Release()
	keys := []string{}
	for iter.Next() {
		keys = append(keys, string(iter.Key()))
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("export: list %q: %w", prefix, err)
	}
	return keys, nil
}

// WriteBatch stores records atomically.
func (l *LevelDB) WriteBatch(records []kvdb.Record) error {
	batch := new(leveldb.Batch)
	for _, rec := range records {
		raw, err := json.Marshal(rec.Data)
		if err != nil {
			return fmt.Errorf("export: encode %q: %w", rec.ID, err)
		}
		batch.Put([]byte(rec.ID), raw)
	}
	return l.db.Write(batch, nil)
}
