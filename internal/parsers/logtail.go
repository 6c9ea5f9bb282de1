package parsers

import (
	"fmt"
	"os"
)

// ReadFrom reads the bytes of path from byte offset pos to EOF, returning
// the chunk and the offset to resume from next time. It never advances
// past what was actually read; callers that find a trailing partial
// entry must subtract its length from the returned offset before
// persisting it (§4.2: "Parser tolerates partial last line (defer until
// next read)").
func ReadFrom(path string, pos int64) ([]byte, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, pos, nil
		}
		return nil, pos, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, pos, fmt.Errorf("stat %s: %w", path, err)
	}

	// §9 open question resolved: reset on start-from-empty (the file was
	// truncated/rotated under us), preserve position across a normal
	// restart against an existing, unchanged file.
	if info.Size() < pos {
		pos = 0
	}
	if info.Size() == pos {
		return nil, pos, nil
	}

	if _, err := f.Seek(pos, 0); err != nil {
		return nil, pos, fmt.Errorf("seek %s: %w", path, err)
	}
	buf := make([]byte, info.Size()-pos)
	n, err := f.Read(buf)
	if err != nil {
		return nil, pos, fmt.Errorf("read %s: %w", path, err)
	}
	return buf[:n], pos + int64(n), nil
}
