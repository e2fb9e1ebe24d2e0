// Package boltfs stores the flat filesystem in a bbolt database so a disk
// survives between runs.
//
// Layout:
//
//	dir/<name>           -> inode number (8 bytes, big endian)
//	inodes/<inode>       -> CBOR inode record
//	data/<inode>         -> file contents
package boltfs

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/containerd/errdefs"
	"github.com/fxamacker/cbor/v2"
	bolt "go.etcd.io/bbolt"

	"github.com/ucd-os-blue-s18/pintos-p2/internal/fsys"
)

var (
	bucketDir    = []byte("dir")
	bucketInodes = []byte("inodes")
	bucketData   = []byte("data")
)

// record is the persisted part of an inode.
type record struct {
	Length  int64  `cbor:"1,keyasint"`
	Name    string `cbor:"2,keyasint,omitempty"`
	Created int64  `cbor:"3,keyasint,omitempty"`
	// Orphan marks an inode that was unlinked while open. Open scrubs
	// these, since no handle survives a restart.
	Orphan bool `cbor:"4,keyasint,omitempty"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("boltfs: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("boltfs: CBOR decoder initialization failed: " + err.Error())
	}
}

// Backend is a bbolt-backed fsys.Backend.
type Backend struct {
	db *bolt.DB
}

// Open opens or creates the database at path.
func Open(path string) (*Backend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create db dir: %w", err)
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout:        30 * time.Second,
		NoFreelistSync: true,
		FreelistType:   bolt.FreelistMapType,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketDir, bucketInodes, bucketData} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return scrubOrphans(tx)
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}
	return &Backend{db: db}, nil
}

// New opens the database at path as a filesystem.
func New(path string, opts ...fsys.Option) (*fsys.FS, error) {
	b, err := Open(path)
	if err != nil {
		return nil, err
	}
	return fsys.New(b, opts...), nil
}

func scrubOrphans(tx *bolt.Tx) error {
	var orphans [][]byte
	err := tx.Bucket(bucketInodes).ForEach(func(k, v []byte) error {
		var rec record
		if err := decMode.Unmarshal(v, &rec); err != nil {
			return fmt.Errorf("inode %x: %w", k, err)
		}
		if rec.Orphan {
			orphans = append(orphans, append([]byte(nil), k...))
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, k := range orphans {
		if err := tx.Bucket(bucketInodes).Delete(k); err != nil {
			return err
		}
		if err := tx.Bucket(bucketData).Delete(k); err != nil {
			return err
		}
	}
	return nil
}

func key(ino fsys.Inum) []byte {
	return binary.BigEndian.AppendUint64(nil, uint64(ino))
}

func getRecord(tx *bolt.Tx, ino fsys.Inum) (record, error) {
	var rec record
	v := tx.Bucket(bucketInodes).Get(key(ino))
	if v == nil {
		return rec, fmt.Errorf("inode %d: %w", ino, errdefs.ErrNotFound)
	}
	if err := decMode.Unmarshal(v, &rec); err != nil {
		return rec, fmt.Errorf("inode %d: failed to decode record: %w", ino, err)
	}
	return rec, nil
}

func putRecord(tx *bolt.Tx, ino fsys.Inum, rec record) error {
	v, err := encMode.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal inode record: %w", err)
	}
	return tx.Bucket(bucketInodes).Put(key(ino), v)
}

func (b *Backend) Lookup(name string) (fsys.Inum, error) {
	var ino fsys.Inum
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketDir).Get([]byte(name))
		if v == nil {
			return fmt.Errorf("%q: %w", name, errdefs.ErrNotFound)
		}
		ino = fsys.Inum(binary.BigEndian.Uint64(v))
		return nil
	})
	return ino, err
}

func (b *Backend) Create(name string, length int64) (fsys.Inum, error) {
	var ino fsys.Inum
	err := b.db.Update(func(tx *bolt.Tx) error {
		dir := tx.Bucket(bucketDir)
		if dir.Get([]byte(name)) != nil {
			return fmt.Errorf("%q: %w", name, errdefs.ErrAlreadyExists)
		}
		seq, err := tx.Bucket(bucketInodes).NextSequence()
		if err != nil {
			return err
		}
		ino = fsys.Inum(seq)
		rec := record{Length: length, Name: name, Created: time.Now().Unix()}
		if err := putRecord(tx, ino, rec); err != nil {
			return err
		}
		if err := tx.Bucket(bucketData).Put(key(ino), make([]byte, length)); err != nil {
			return err
		}
		return dir.Put([]byte(name), key(ino))
	})
	return ino, err
}

// Unlink removes the directory entry and marks the inode orphaned until
// Free.
func (b *Backend) Unlink(name string) (fsys.Inum, error) {
	var ino fsys.Inum
	err := b.db.Update(func(tx *bolt.Tx) error {
		dir := tx.Bucket(bucketDir)
		v := dir.Get([]byte(name))
		if v == nil {
			return fmt.Errorf("%q: %w", name, errdefs.ErrNotFound)
		}
		ino = fsys.Inum(binary.BigEndian.Uint64(v))
		rec, err := getRecord(tx, ino)
		if err != nil {
			return err
		}
		rec.Orphan = true
		if err := putRecord(tx, ino, rec); err != nil {
			return err
		}
		return dir.Delete([]byte(name))
	})
	return ino, err
}

func (b *Backend) Length(ino fsys.Inum) (int64, error) {
	var n int64
	err := b.db.View(func(tx *bolt.Tx) error {
		rec, err := getRecord(tx, ino)
		n = rec.Length
		return err
	})
	return n, err
}

func (b *Backend) ReadAt(ino fsys.Inum, p []byte, off int64) (int, error) {
	var n int
	err := b.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketData).Get(key(ino))
		if data == nil {
			return fmt.Errorf("inode %d: %w", ino, errdefs.ErrNotFound)
		}
		n = fsys.Clamp(int64(len(data)), off, len(p))
		if n > 0 {
			copy(p, data[off:off+int64(n)])
		}
		return nil
	})
	return n, err
}

// WriteAt rewrites the whole data value in one transaction, so a write
// costs the size of the file rather than of p. Files are bounded by the
// FS size limit, which keeps that copy small.
func (b *Backend) WriteAt(ino fsys.Inum, p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketData)
		data := bucket.Get(key(ino))
		if data == nil {
			return fmt.Errorf("inode %d: %w", ino, errdefs.ErrNotFound)
		}
		// Values returned by Get are only valid for the life of the
		// transaction and must not be modified.
		size := max(int64(len(data)), off+int64(len(p)))
		updated := make([]byte, size)
		copy(updated, data)
		copy(updated[off:], p)
		if size > int64(len(data)) {
			rec, err := getRecord(tx, ino)
			if err != nil {
				return err
			}
			rec.Length = size
			if err := putRecord(tx, ino, rec); err != nil {
				return err
			}
		}
		return bucket.Put(key(ino), updated)
	})
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

func (b *Backend) Free(ino fsys.Inum) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		if _, err := getRecord(tx, ino); err != nil {
			return err
		}
		if err := tx.Bucket(bucketInodes).Delete(key(ino)); err != nil {
			return err
		}
		return tx.Bucket(bucketData).Delete(key(ino))
	})
}

func (b *Backend) Close() error {
	return b.db.Close()
}
