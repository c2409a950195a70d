package tagstore

import "errors"

// Store errors.
var (
	ErrStoreClosed = errors.New("tag store closed")
	ErrValueTooBig = errors.New("value exceeds maximum tag size")
)

// MaxValueSize is the largest value accepted for a single tag.
// Security records are small fixed-layout structs; anything bigger
// indicates a caller bug.
const MaxValueSize = 512

// Store is a flat persistent key/value backend addressed by fixed-width
// numeric tags.
//
// Implementations must be safe for concurrent access. StoreTag overwrites
// any prior value under the same tag. DeleteTag of an absent tag is a
// no-op and must not fail.
type Store interface {
	// StoreTag writes value under tag, replacing any prior value.
	StoreTag(tag uint32, value []byte) error

	// GetTag returns the value stored under tag. The second return is
	// false if the tag holds nothing. The returned slice is a copy the
	// caller may retain.
	GetTag(tag uint32) ([]byte, bool)

	// DeleteTag removes the value under tag, if any.
	DeleteTag(tag uint32) error

	// Tags returns all occupied tags, in unspecified order.
	Tags() []uint32
}
