package backup

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
)

var osOpen = os.Open

// checksum reads the entire file at path and returns its sha256 digest as
// 64 lowercase hex characters, along with the file stats taken while the
// handle was open. Every byte counts; there is no size or mtime shortcut.
var checksum = func(path string) (string, os.FileInfo, error) {
	file, err := osOpen(path)
	if err != nil {
		return "", nil, err
	}
	defer file.Close()

	stats, err := file.Stat()
	if err != nil {
		return "", nil, err
	}

	// Buffer size is a speed/memory trade-off with rapidly diminishing
	// returns, so scale with the file but keep it bounded
	chunkSize := stats.Size() / 16
	if chunkSize < 32*1024 {
		chunkSize = 32 * 1024
	} else if chunkSize > 1024*1024 {
		chunkSize = 1024 * 1024
	}

	sum := sha256.New()
	if _, err = io.Copy(sum, bufio.NewReaderSize(file, int(chunkSize))); err != nil {
		return "", nil, err
	}

	return hex.EncodeToString(sum.Sum(make([]byte, 0))), stats, nil
}
