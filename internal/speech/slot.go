package speech

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	slotPrefix = "speech-"

	// maxArchiveName bounds an archive file name, extension excluded.
	maxArchiveName = 128

	archiveExt = "mp3"
)

// slot is the set of files one request owns inside the speech directory:
// the raw provider audio and its transcoded sibling.
type slot struct {
	dir string
	id  uuid.UUID
}

func newSlot(dir string, id uuid.UUID) slot { return slot{dir: dir, id: id} }

func (s slot) base() string { return filepath.Join(s.dir, slotPrefix+s.id.String()) }

// raw is where the provider's audio is written, e.g. speech-<id>.mpg.
func (s slot) raw(ext string) string { return s.base() + "." + ext }

// opus is the playback file, e.g. speech-<id>.play.opus. Its stem differs
// from raw's so an Opus clip from the provider is never its own target.
func (s slot) opus() string { return s.base() + ".play.opus" }

// clear removes every file belonging to the slot. Missing files are fine.
func (s slot) clear() error {
	matches, err := filepath.Glob(s.base() + ".*")
	if err != nil {
		return err
	}
	var errs []error
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// archiveName derives the archive file name for msg: the message lowercased
// with every character other than ASCII letters and digits replaced by an
// underscore, then a dash and the Unix time in milliseconds. The message part
// is shortened so the whole name stays within maxArchiveName and the
// timestamp survives.
func archiveName(msg string, at time.Time, ext string) string {
	var b strings.Builder
	for _, r := range msg {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + 'a' - 'A')
		default:
			b.WriteByte('_')
		}
	}
	suffix := fmt.Sprintf("-%d", at.UnixMilli())
	stem := b.String()
	if room := maxArchiveName - len(suffix); len(stem) > room {
		stem = stem[:max(room, 0)]
	}
	return stem + suffix + "." + ext
}

// archiveExtFor maps a provider extension to the archive extension. MPEG
// audio is archived as .mp3; other formats keep their native extension.
func archiveExtFor(ext string) string {
	if ext == "mpg" || ext == "mp3" {
		return archiveExt
	}
	return ext
}

// isSlotFile reports whether name looks like a file created by a slot.
func isSlotFile(name string) bool {
	return strings.HasPrefix(name, slotPrefix)
}
