package media

import (
	"os"

	"github.com/dhowden/tag"
	"github.com/pkg/errors"
)

// Tags is the subset of embedded source metadata used in exports.
type Tags struct {
	Title  string
	Artist string
	Album  string
	Format string
}

// ReadTags reads ID3/MP4/FLAC/OGG metadata from the source file.
// Plain WAV input has no tags and returns tag.ErrNoTagsFound.
func ReadTags(path string) (Tags, error) {
	f, err := os.Open(path)
	if err != nil {
		return Tags{}, errors.Wrap(err, "open source")
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return Tags{}, err
	}
	return Tags{
		Title:  m.Title(),
		Artist: m.Artist(),
		Album:  m.Album(),
		Format: string(m.FileType()),
	}, nil
}
