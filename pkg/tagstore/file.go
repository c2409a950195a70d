package tagstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// ImageVersion is the current version of the on-disk image format.
const ImageVersion = 1

// encMode is the CBOR encoder mode for store images.
// Canonical sorting keeps the image deterministic for identical content.
var encMode cbor.EncMode

// decMode is the CBOR decoder mode for store images.
var decMode cbor.DecMode

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:        cbor.SortCanonical,
		IndefLength: cbor.IndefLengthForbidden,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey: cbor.DupMapKeyQuiet,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR decoder mode: %v", err))
	}
}

// storeImage is the on-disk representation of a FileStore.
type storeImage struct {
	Version int               `cbor:"1,keyasint"`
	Tags    map[uint32][]byte `cbor:"2,keyasint"`
}

// FileStore is a file-backed implementation of the Store interface.
//
// The whole store is held in memory and written to disk as a single CBOR
// image on every mutation. Writes go to a temporary file first and are
// renamed into place, so a crash mid-write leaves the previous image
// intact. Mutations return the write error to the caller; nothing is
// retried.
type FileStore struct {
	mu   sync.RWMutex
	path string
	tags map[uint32][]byte
}

// OpenFileStore opens the tag store image at path, creating parent
// directories as needed. A missing image is an empty store.
func OpenFileStore(path string) (*FileStore, error) {
	s := &FileStore{
		path: path,
		tags: make(map[uint32][]byte),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read tag store image: %w", err)
	}

	var image storeImage
	if err := decMode.Unmarshal(data, &image); err != nil {
		return nil, fmt.Errorf("failed to decode tag store image: %w", err)
	}
	if image.Tags != nil {
		s.tags = image.Tags
	}
	return s, nil
}

// Path returns the image file path.
func (s *FileStore) Path() string {
	return s.path
}

// StoreTag writes value under tag and persists the image.
func (s *FileStore) StoreTag(tag uint32, value []byte) error {
	if len(value) > MaxValueSize {
		return ErrValueTooBig
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prior, hadPrior := s.tags[tag]
	s.tags[tag] = append([]byte(nil), value...)

	if err := s.writeImage(); err != nil {
		// Roll back so memory matches the durable state.
		if hadPrior {
			s.tags[tag] = prior
		} else {
			delete(s.tags, tag)
		}
		return err
	}
	return nil
}

// GetTag returns a copy of the value stored under tag.
func (s *FileStore) GetTag(tag uint32) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, exists := s.tags[tag]
	if !exists {
		return nil, false
	}
	return append([]byte(nil), value...), true
}

// DeleteTag removes the value under tag and persists the image.
// Deleting an absent tag is a no-op and does not touch the disk.
func (s *FileStore) DeleteTag(tag uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prior, exists := s.tags[tag]
	if !exists {
		return nil
	}

	delete(s.tags, tag)
	if err := s.writeImage(); err != nil {
		s.tags[tag] = prior
		return err
	}
	return nil
}

// Tags returns all occupied tags.
func (s *FileStore) Tags() []uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tags := make([]uint32, 0, len(s.tags))
	for tag := range s.tags {
		tags = append(tags, tag)
	}
	return tags
}

// writeImage serializes the store and atomically replaces the image file.
// Caller must hold s.mu.
func (s *FileStore) writeImage() error {
	image := storeImage{
		Version: ImageVersion,
		Tags:    s.tags,
	}

	data, err := encMode.Marshal(&image)
	if err != nil {
		return fmt.Errorf("failed to encode tag store image: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create tag store directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tagstore-*")
	if err != nil {
		return fmt.Errorf("failed to create temp image: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write tag store image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close tag store image: %w", err)
	}
	if err := os.Chmod(tmpName, 0600); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to set tag store permissions: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace tag store image: %w", err)
	}
	return nil
}
