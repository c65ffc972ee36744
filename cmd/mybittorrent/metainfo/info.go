package metainfo

import (
	"crypto/sha1"
	"fmt"

	bencode "github.com/jackpal/bencode-go"
)

// Info is the info dictionary of a torrent. Exactly one of Length and Files is set.
type Info struct {
	Name        string `mapstructure:"name"`
	PieceLength int64  `mapstructure:"piece length"`
	Pieces      string `mapstructure:"pieces"`
	Length      *int64 `mapstructure:"length"`
	Files       []File `mapstructure:"files"`
	Private     *int64 `mapstructure:"private"`
}

type File struct {
	Length int64    `mapstructure:"length"`
	Path   []string `mapstructure:"path"`
	MD5Sum string   `mapstructure:"md5sum"`
}

func (i *Info) Validate() error {
	switch {
	case i.Length != nil && i.Files != nil:
		return fmt.Errorf("%w: both length and files are present", ErrInvalidInfo)
	case i.Length == nil && i.Files == nil:
		return fmt.Errorf("%w: neither length nor files is present", ErrInvalidInfo)
	case i.PieceLength <= 0:
		return fmt.Errorf("%w: piece length %d", ErrInvalidInfo, i.PieceLength)
	case len(i.Pieces)%sha1.Size != 0:
		return fmt.Errorf("%w: pieces length %d is not a multiple of %d", ErrInvalidInfo, len(i.Pieces), sha1.Size)
	}
	for n, f := range i.Files {
		if len(f.Path) == 0 {
			return fmt.Errorf("%w: file %d has an empty path", ErrInvalidInfo, n)
		}
	}
	return nil
}

func (i *Info) IsMultiFile() bool {
	return i.Files != nil
}

func (i *Info) TotalLength() int64 {
	if i.Length != nil {
		return *i.Length
	}
	var total int64
	for _, f := range i.Files {
		total += f.Length
	}
	return total
}

func (i *Info) PieceCount() int {
	return len(i.Pieces) / sha1.Size
}

func (i *Info) PieceHash(index int) ([]byte, error) {
	if index < 0 || index >= i.PieceCount() {
		return nil, fmt.Errorf("piece index %d out of range [0, %d)", index, i.PieceCount())
	}
	return []byte(i.Pieces[index*sha1.Size : (index+1)*sha1.Size]), nil
}

// Hash returns the SHA-1 of the canonical bencoding of the dictionary.
// Only keys that are present are encoded, and the codec orders them by raw bytes.
func (i *Info) Hash() (InfoHash, error) {
	h := sha1.New()
	if err := bencode.Marshal(h, i.bencodeValue()); err != nil {
		return InfoHash{}, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	var hash InfoHash
	copy(hash[:], h.Sum(nil))
	return hash, nil
}

func (i *Info) bencodeValue() map[string]any {
	v := map[string]any{
		"name":         i.Name,
		"piece length": i.PieceLength,
		"pieces":       i.Pieces,
	}
	if i.Length != nil {
		v["length"] = *i.Length
	}
	if i.Files != nil {
		files := make([]any, 0, len(i.Files))
		for _, f := range i.Files {
			path := make([]any, 0, len(f.Path))
			for _, p := range f.Path {
				path = append(path, p)
			}
			file := map[string]any{
				"length": f.Length,
				"path":   path,
			}
			if f.MD5Sum != "" {
				file["md5sum"] = f.MD5Sum
			}
			files = append(files, file)
		}
		v["files"] = files
	}
	if i.Private != nil {
		v["private"] = *i.Private
	}
	return v
}
