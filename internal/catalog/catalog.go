// Package catalog holds the in-memory snapshot of the audio assets the bot can
// play, resolves free-text queries against it and renders it for humans.
//
// A [Catalog] is built once at startup by [Catalog.Load] and is read-only
// afterwards, so every method is safe for concurrent use without locking.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrCatalogLoad is returned by [Catalog.Load] when an asset directory cannot
// be read. It is fatal: the bot refuses to start without its catalog.
var ErrCatalogLoad = errors.New("catalog: load failed")

// Category partitions the catalog into independent namespaces.
type Category string

const (
	// Sound is a short effect clip.
	Sound Category = "sound"

	// Music is a longer track.
	Music Category = "music"
)

// IsValid reports whether c is a known category.
func (c Category) IsValid() bool {
	return c == Sound || c == Music
}

// Asset is a single cataloged audio file.
type Asset struct {
	// Filename is the on-disk name including its extension. It is the asset identity.
	Filename string

	// Category is the namespace the asset was loaded into.
	Category Category

	// DisplayName is Filename with its extension stripped.
	DisplayName string

	// SetPrefix is the part of DisplayName before the first underscore.
	// Only meaningful when HasSet is true.
	SetPrefix string

	// HasSet reports whether DisplayName contains an underscore.
	HasSet bool
}

// newAsset derives the display attributes from a filename.
func newAsset(cat Category, filename string) Asset {
	display := strings.TrimSuffix(filename, filepath.Ext(filename))
	prefix, _, found := strings.Cut(display, "_")
	a := Asset{
		Filename:    filename,
		Category:    cat,
		DisplayName: display,
	}
	if found {
		a.SetPrefix = prefix
		a.HasSet = true
	}
	return a
}

// Catalog is the immutable list of known sounds and music tracks.
type Catalog struct {
	soundDir string
	musicDir string

	sounds []Asset
	music  []Asset
}

// New creates an empty catalog for the two asset directories. Call [Catalog.Load]
// exactly once before serving requests.
func New(soundDir, musicDir string) *Catalog {
	return &Catalog{
		soundDir: soundDir,
		musicDir: musicDir,
	}
}

// Load scans the sound directory and then the music directory and appends every
// entry found, in directory listing order. No filtering by extension is done.
//
// Load is meant to run once; calling it again appends duplicates.
func (c *Catalog) Load() error {
	sounds, err := scan(Sound, c.soundDir)
	if err != nil {
		return err
	}
	music, err := scan(Music, c.musicDir)
	if err != nil {
		return err
	}
	c.sounds = append(c.sounds, sounds...)
	c.music = append(c.music, music...)
	return nil
}

// scan lists dir without sorting so the catalog keeps the filesystem order.
func scan(cat Category, dir string) ([]Asset, error) {
	f, err := os.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s directory %q: %w", ErrCatalogLoad, cat, dir, err)
	}
	defer f.Close()

	names, err := f.Readdirnames(-1)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s directory %q: %w", ErrCatalogLoad, cat, dir, err)
	}

	assets := make([]Asset, 0, len(names))
	for _, name := range names {
		assets = append(assets, newAsset(cat, name))
	}
	return assets, nil
}

// list returns the backing slice for cat. Callers must not modify it.
func (c *Catalog) list(cat Category) []Asset {
	switch cat {
	case Sound:
		return c.sounds
	case Music:
		return c.music
	default:
		return nil
	}
}

// List returns a copy of the assets in cat, in catalog order.
func (c *Catalog) List(cat Category) []Asset {
	src := c.list(cat)
	out := make([]Asset, len(src))
	copy(out, src)
	return out
}

// Exists reports whether an asset with exactly this filename is cataloged in cat.
func (c *Catalog) Exists(cat Category, filename string) bool {
	for _, a := range c.list(cat) {
		if a.Filename == filename {
			return true
		}
	}
	return false
}

// Len returns the number of assets in cat.
func (c *Catalog) Len(cat Category) int {
	return len(c.list(cat))
}

// Dir returns the directory backing cat.
func (c *Catalog) Dir(cat Category) string {
	if cat == Music {
		return c.musicDir
	}
	return c.soundDir
}

// Path returns the filesystem path of a.
func (c *Catalog) Path(a Asset) string {
	return filepath.Join(c.Dir(a.Category), a.Filename)
}

// Locate maps a bare filename to its on-disk path, checking sounds before music.
// It returns false when the name is not cataloged.
func (c *Catalog) Locate(filename string) (string, bool) {
	for _, cat := range []Category{Sound, Music} {
		if c.Exists(cat, filename) {
			return filepath.Join(c.Dir(cat), filename), true
		}
	}
	return "", false
}
