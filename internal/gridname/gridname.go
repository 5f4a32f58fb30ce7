// Package gridname parses grid artifact filenames of the form
// `<itemId><role><ext>`, for example `440p.png` or `730_hero.jpg`.
package gridname

import (
	"errors"
	"fmt"
	"regexp"
)

var (
	namePattern   = regexp.MustCompile(`^(\d+)(p|_[^.]+)?(\.\w+)$`)
	suffixPattern = regexp.MustCompile(`^(p|_[^.]+)?(\.\w+)$`)
)

var ErrNoMatch = errors.New("gridname: name does not match grid grammar")

// Key identifies one logical artifact regardless of its file extension.
type Key struct {
	ItemID string
	Role   string
}

func (k Key) String() string {
	return k.ItemID + k.Role
}

// Name is a parsed artifact filename.
type Name struct {
	Key
	Ext string
}

func (n Name) String() string {
	return n.ItemID + n.Role + n.Ext
}

// WithItemID returns the same role and extension under another item id.
func (n Name) WithItemID(id string) Name {
	n.ItemID = id
	return n
}

// Parse splits a primary filename. Names outside the grammar return ErrNoMatch.
func Parse(filename string) (Name, error) {
	m := namePattern.FindStringSubmatch(filename)
	if m == nil {
		return Name{}, fmt.Errorf("%w: %q", ErrNoMatch, filename)
	}
	return Name{Key: Key{ItemID: m[1], Role: m[2]}, Ext: m[3]}, nil
}

// ParseSuffix parses the `<role><ext>` tail of an aliased name and attaches
// it to itemID.
func ParseSuffix(itemID, suffix string) (Name, error) {
	m := suffixPattern.FindStringSubmatch(suffix)
	if m == nil {
		return Name{}, fmt.Errorf("%w: %q", ErrNoMatch, itemID+suffix)
	}
	return Name{Key: Key{ItemID: itemID, Role: m[1]}, Ext: m[2]}, nil
}
