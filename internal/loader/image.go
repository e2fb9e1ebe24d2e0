package loader

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ucd-os-blue-s18/pintos-p2/internal/fsys"
)

// Magic starts every program image. The entry point name follows it on the
// same line.
const Magic = "#!uprog "

// ErrBadImage indicates a file that is not a program image.
var ErrBadImage = errors.New("not a program image")

// Header returns the image bytes for a program whose entry point is entry.
func Header(entry string) []byte {
	return []byte(Magic + entry + "\n")
}

// Install writes an image for entry as file name. The caller must hold the
// filesystem serializer.
func Install(fs fsys.FileSystem, name, entry string) error {
	img := Header(entry)
	if err := fs.Create(name, int64(len(img))); err != nil {
		return err
	}
	f, err := fs.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()
	n, err := f.Write(img)
	if err != nil {
		return err
	}
	if n != len(img) {
		return fmt.Errorf("install %q: short write %d of %d", name, n, len(img))
	}
	return nil
}

// parseHeader returns the entry point named by an image's first line.
func parseHeader(img []byte) (string, error) {
	if !bytes.HasPrefix(img, []byte(Magic)) {
		return "", ErrBadImage
	}
	line, _, found := bytes.Cut(img[len(Magic):], []byte("\n"))
	if !found {
		return "", fmt.Errorf("unterminated header: %w", ErrBadImage)
	}
	entry := strings.TrimSpace(string(line))
	if entry == "" {
		return "", fmt.Errorf("empty entry point: %w", ErrBadImage)
	}
	return entry, nil
}
