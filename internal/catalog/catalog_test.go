package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// writeAssets creates an empty file for each name inside dir.
func writeAssets(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), nil, 0o644); err != nil {
			t.Fatalf("write %s: %v", n, err)
		}
	}
}

// newLoadedCatalog builds sound and music directories under t.TempDir and
// loads a catalog from them.
func newLoadedCatalog(t *testing.T, sounds, music []string) *Catalog {
	t.Helper()
	root := t.TempDir()
	soundDir := filepath.Join(root, "sounds")
	musicDir := filepath.Join(root, "music")
	for _, d := range []string{soundDir, musicDir} {
		if err := os.Mkdir(d, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", d, err)
		}
	}
	writeAssets(t, soundDir, sounds...)
	writeAssets(t, musicDir, music...)

	c := New(soundDir, musicDir)
	if err := c.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return c
}

// fromNames builds a catalog in memory with a fixed order, bypassing the
// directory scan whose order is filesystem-dependent.
func fromNames(sounds ...string) *Catalog {
	c := New("sounds", "music")
	for _, n := range sounds {
		c.sounds = append(c.sounds, newAsset(Sound, n))
	}
	return c
}

func TestLoad_ExistsForEveryAsset(t *testing.T) {
	t.Parallel()

	sounds := []string{"laser_1.ogg", "laser_2.ogg", "boom.ogg", "README"}
	music := []string{"theme.ogg"}
	c := newLoadedCatalog(t, sounds, music)

	for _, n := range sounds {
		if !c.Exists(Sound, n) {
			t.Errorf("Exists(sound, %q) = false after load", n)
		}
	}
	for _, n := range music {
		if !c.Exists(Music, n) {
			t.Errorf("Exists(music, %q) = false after load", n)
		}
	}
	if c.Exists(Music, "boom.ogg") {
		t.Error("categories must be disjoint: boom.ogg reported as music")
	}
	if got := c.Len(Sound); got != len(sounds) {
		t.Errorf("Len(sound) = %d, want %d (no extension filtering)", got, len(sounds))
	}
}

func TestLoad_MissingDirectory(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	c := New(filepath.Join(root, "nope"), root)
	err := c.Load()
	if err == nil {
		t.Fatal("expected error for missing sound directory")
	}
	if !errors.Is(err, ErrCatalogLoad) {
		t.Errorf("error %v should wrap ErrCatalogLoad", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("error %v should wrap os.ErrNotExist", err)
	}
}

func TestLoad_MissingMusicDirectory(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	c := New(root, filepath.Join(root, "nope"))
	if err := c.Load(); !errors.Is(err, ErrCatalogLoad) {
		t.Fatalf("Load() = %v, want ErrCatalogLoad", err)
	}
}

func TestLoad_TwiceAppendsDuplicates(t *testing.T) {
	t.Parallel()

	c := newLoadedCatalog(t, []string{"boom.ogg"}, nil)
	if err := c.Load(); err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if got := c.Len(Sound); got != 2 {
		t.Errorf("Len(sound) after two loads = %d, want 2", got)
	}
}

func TestList_ReturnsCopy(t *testing.T) {
	t.Parallel()

	c := fromNames("a.ogg", "b.ogg")
	l := c.List(Sound)
	l[0].Filename = "mutated"
	if c.List(Sound)[0].Filename != "a.ogg" {
		t.Error("List must not expose the backing slice")
	}
	if got := c.List(Category("bogus")); len(got) != 0 {
		t.Errorf("List(bogus) = %v, want empty", got)
	}
}

func TestNewAsset(t *testing.T) {
	t.Parallel()

	tests := []struct {
		filename    string
		wantDisplay string
		wantPrefix  string
		wantSet     bool
	}{
		{"boom.ogg", "boom", "", false},
		{"laser_1.ogg", "laser_1", "laser", true},
		{"a_b_c.mp3", "a_b_c", "a", true},
		{"noext", "noext", "", false},
		{"_leading.ogg", "_leading", "", true},
		{"my.track.ogg", "my.track", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			t.Parallel()
			a := newAsset(Sound, tt.filename)
			if a.DisplayName != tt.wantDisplay {
				t.Errorf("DisplayName = %q, want %q", a.DisplayName, tt.wantDisplay)
			}
			if a.SetPrefix != tt.wantPrefix {
				t.Errorf("SetPrefix = %q, want %q", a.SetPrefix, tt.wantPrefix)
			}
			if a.HasSet != tt.wantSet {
				t.Errorf("HasSet = %v, want %v", a.HasSet, tt.wantSet)
			}
		})
	}
}

func TestPathAndLocate(t *testing.T) {
	t.Parallel()

	c := newLoadedCatalog(t, []string{"laser_1.ogg"}, []string{"theme.ogg"})

	a := c.List(Sound)[0]
	if got, want := c.Path(a), filepath.Join(c.Dir(Sound), "laser_1.ogg"); got != want {
		t.Errorf("Path = %q, want %q", got, want)
	}

	p, ok := c.Locate("theme.ogg")
	if !ok {
		t.Fatal("Locate(theme.ogg) not found")
	}
	if filepath.Dir(p) != c.Dir(Music) {
		t.Errorf("Locate(theme.ogg) = %q, want under %q", p, c.Dir(Music))
	}
	if _, ok := c.Locate("missing.ogg"); ok {
		t.Error("Locate(missing.ogg) should not be found")
	}
}

func TestCategory_IsValid(t *testing.T) {
	t.Parallel()

	if !Sound.IsValid() || !Music.IsValid() {
		t.Error("sound and music must be valid")
	}
	if Category("video").IsValid() {
		t.Error("video must not be valid")
	}
}
