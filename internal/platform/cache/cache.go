// Package cache persists evaluated definition results in LevelDB so repeated
// runs on the same day skip the warehouse.
package cache

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/ehr/cohortreports/internal/reporting/evaluation"
)

const keyPrefix = "eval:"

func init() {
	gob.Register(evaluation.Record{})
	gob.Register(map[string]interface{}{})
	gob.Register([]interface{}{})
	gob.Register(time.Time{})
}

type entry struct {
	StoredAt time.Time
	Data     map[int]interface{}
}

// LevelCache implements evaluation.Cache. Entries older than ttl are treated
// as misses; a zero ttl keeps them forever.
type LevelCache struct {
	db     *leveldb.DB
	ttl    time.Duration
	now    func() time.Time
	logger zerolog.Logger
}

// Open opens or creates the LevelDB directory at dir.
func Open(dir string, ttl time.Duration, logger zerolog.Logger) (*LevelCache, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("open cache %s: %w", dir, err)
	}
	return New(db, ttl, logger), nil
}

func New(db *leveldb.DB, ttl time.Duration, logger zerolog.Logger) *LevelCache {
	return &LevelCache{
		db:     db,
		ttl:    ttl,
		now:    time.Now,
		logger: logger.With().Str("component", "cache").Logger(),
	}
}

func (c *LevelCache) Get(key string) (map[int]interface{}, bool) {
	raw, err := c.db.Get([]byte(keyPrefix+key), nil)
	if err != nil {
		if !errors.Is(err, leveldb.ErrNotFound) {
			c.logger.Warn().Err(err).Msg("cache read failed")
		}
		return nil, false
	}
	var e entry
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&e); err != nil {
		c.logger.Warn().Err(err).Msg("cache entry undecodable")
		return nil, false
	}
	if c.expired(e) {
		return nil, false
	}
	if e.Data == nil {
		e.Data = map[int]interface{}{}
	}
	return e.Data, true
}

func (c *LevelCache) Put(key string, data map[int]interface{}) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(entry{StoredAt: c.now(), Data: data}); err != nil {
		c.logger.Warn().Err(err).Msg("cache entry unencodable")
		return
	}
	if err := c.db.Put([]byte(keyPrefix+key), buf.Bytes(), nil); err != nil {
		c.logger.Warn().Err(err).Msg("cache write failed")
	}
}

func (c *LevelCache) expired(e entry) bool {
	return c.ttl > 0 && c.now().Sub(e.StoredAt) > c.ttl
}

// Sweep deletes expired and undecodable entries and returns how many went.
func (c *LevelCache) Sweep() (int, error) {
	iter := c.db.NewIterator(util.BytesPrefix([]byte(keyPrefix)), nil)
	defer iter.Release()

	batch := new(leveldb.Batch)
	for iter.Next() {
		var e entry
		if err := gob.NewDecoder(bytes.NewReader(iter.Value())).Decode(&e); err != nil || c.expired(e) {
			batch.Delete(append([]byte(nil), iter.Key()...))
		}
	}
	if err := iter.Error(); err != nil {
		return 0, fmt.Errorf("iterate cache: %w", err)
	}
	if err := c.db.Write(batch, nil); err != nil {
		return 0, fmt.Errorf("delete expired entries: %w", err)
	}
	return batch.Len(), nil
}

func (c *LevelCache) Close() error {
	return c.db.Close()
}
