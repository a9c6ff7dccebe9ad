package storage

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/fxamacker/cbor/v2"
	"github.com/segmentio/ksuid"
	"github.com/sirupsen/logrus"

	"github.com/ssargent/votable/pkg/tabular"
)

// ErrUnknownTable is returned for a table ID the spool does not hold.
var ErrUnknownTable = errors.New("storage: unknown spooled table")

const (
	idLen       = 20 // binary KSUID
	rowTag      = 'r'
	manifestTag = 'm'
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("storage: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("storage: CBOR decoder initialization failed: " + err.Error())
	}
}

// Spool keeps streamed tables on disk so they can be read back in any order. Each table
// is stored under its own KSUID: one key per row holding the row in BINARY2 form, and a
// CBOR manifest describing the columns.
type Spool struct {
	db  *pebble.DB
	log logrus.FieldLogger
}

// Open opens or creates a spool in dir.
func Open(dir string, log logrus.FieldLogger) (*Spool, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Spool{db: db, log: log}, nil
}

// Create starts a new table. Rows are written as they arrive and the table can be read
// once EndTable has been called.
func (s *Spool) Create(meta tabular.TableMeta) (*SpoolWriter, error) {
	w := &SpoolWriter{spool: s, id: ksuid.New()}
	if err := w.StartTable(meta); err != nil {
		return nil, err
	}
	return w, nil
}

// Collector adapts Create to the collector hook of the parser options.
func (s *Spool) Collector(meta tabular.TableMeta) (tabular.Collector, error) {
	return s.Create(meta)
}

// Table returns a spooled table.
func (s *Spool) Table(id ksuid.KSUID) (*SpoolTable, error) {
	raw, closer, err := s.db.Get(manifestKey(id))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, id)
	}
	if err != nil {
		return nil, err
	}
	var m manifest
	err = decMode.Unmarshal(raw, &m)
	closer.Close()
	if err != nil {
		return nil, fmt.Errorf("storage: manifest of %s: %w", id, err)
	}
	return newSpoolTable(s, id, m)
}

// Tables lists the IDs of the complete tables in the spool.
func (s *Spool) Tables() ([]ksuid.KSUID, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var ids []ksuid.KSUID
	for iter.First(); iter.Valid(); iter.Next() {
		k := iter.Key()
		if len(k) == idLen+1 && k[idLen] == manifestTag {
			id, err := ksuid.FromBytes(k[:idLen])
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
	}
	return ids, iter.Error()
}

// Delete removes a table and its rows.
func (s *Spool) Delete(id ksuid.KSUID) error {
	start, end := tableBounds(id)
	return s.db.DeleteRange(start, end, pebble.NoSync)
}

// Close closes the underlying database.
func (s *Spool) Close() error {
	return s.db.Close()
}

func manifestKey(id ksuid.KSUID) []byte {
	return append(id.Bytes(), manifestTag)
}

func rowPrefix(id ksuid.KSUID) []byte {
	return append(id.Bytes(), rowTag)
}

func rowKey(id ksuid.KSUID, n int64) []byte {
	k := rowPrefix(id)
	return append(k,
		byte(n>>56), byte(n>>48), byte(n>>40), byte(n>>32),
		byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
}

// tableBounds returns the key range holding everything stored for id.
func tableBounds(id ksuid.KSUID) ([]byte, []byte) {
	start := id.Bytes()
	end := append(id.Bytes(), 0xff)
	return start, end
}
