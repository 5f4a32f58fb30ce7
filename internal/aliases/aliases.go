// Package aliases maps local shortcut item ids to the backend-safe names
// their artifacts are stored under remotely.
package aliases

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash/crc32"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Map is read-only once built. A nil *Map behaves as an empty map.
type Map struct {
	toRemote map[string]string
	toLocal  map[string]string
	// remote names sorted longest first so prefix lookups prefer the most specific alias
	byLength []string
}

// New builds a Map from local item id to remote alias.
func New(localToRemote map[string]string) *Map {
	m := &Map{
		toRemote: make(map[string]string, len(localToRemote)),
		toLocal:  make(map[string]string, len(localToRemote)),
	}
	for local, remote := range localToRemote {
		m.toRemote[local] = remote
		m.toLocal[remote] = local
		m.byLength = append(m.byLength, remote)
	}
	sort.Slice(m.byLength, func(i, j int) bool {
		if len(m.byLength[i]) != len(m.byLength[j]) {
			return len(m.byLength[i]) > len(m.byLength[j])
		}
		return m.byLength[i] < m.byLength[j]
	})
	return m
}

func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.toRemote)
}

// Remote returns the alias for a local item id.
func (m *Map) Remote(localID string) (string, bool) {
	if m == nil {
		return "", false
	}
	alias, ok := m.toRemote[localID]
	return alias, ok
}

// Local splits a remote filename into the local item id owning its alias
// prefix and the remaining `<role><ext>` suffix.
func (m *Map) Local(remoteName string) (localID, suffix string, ok bool) {
	if m == nil {
		return "", "", false
	}
	for _, alias := range m.byLength {
		if strings.HasPrefix(remoteName, alias) {
			return m.toLocal[alias], remoteName[len(alias):], true
		}
	}
	return "", "", false
}

// HashName is the alias of a shortcut: the hex SHA-256 of its display name.
func HashName(appName string) string {
	sum := sha256.Sum256([]byte(appName))
	return hex.EncodeToString(sum[:])
}

// ShortcutID derives the grid image id Steam assigns to a non-catalog shortcut.
func ShortcutID(exe, appName string) string {
	crc := crc32.ChecksumIEEE([]byte(exe + appName))
	return strconv.FormatUint(uint64(crc|0x80000000), 10)
}

// Shortcut is one entry of the aliases file.
type Shortcut struct {
	Name string `yaml:"name"`
	Exe  string `yaml:"exe,omitempty"`
	ID   string `yaml:"id,omitempty"`

	// Cloud replaces the hashed name as the remote file prefix.
	Cloud string `yaml:"cloud,omitempty"`
}

type file struct {
	Shortcuts []Shortcut `yaml:"shortcuts"`
}

// Load reads a YAML list of shortcuts. An entry without an id derives it from
// exe and name, and one without a cloud name uses the hash of its name.
func Load(path string) (*Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read aliases: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Map, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse aliases: %w", err)
	}

	entries := make(map[string]string, len(f.Shortcuts))
	for i, sc := range f.Shortcuts {
		if sc.Name == "" {
			return nil, fmt.Errorf("parse aliases: shortcut %d has no name", i)
		}
		id := sc.ID
		if id == "" {
			if sc.Exe == "" {
				return nil, fmt.Errorf("parse aliases: shortcut %q needs an id or exe", sc.Name)
			}
			id = ShortcutID(sc.Exe, sc.Name)
		}
		cloud := sc.Cloud
		switch {
		case cloud == "":
			cloud = HashName(sc.Name)
		case strings.ContainsAny(cloud, `/\`):
			return nil, fmt.Errorf("parse aliases: shortcut %q has cloud name %q with a path separator", sc.Name, cloud)
		}
		entries[id] = cloud
	}
	return New(entries), nil
}
