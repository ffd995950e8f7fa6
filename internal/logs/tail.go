package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

const maxLineBytes = 1024 * 1024

// Page is a batch of lines plus the byte offset to resume from.
type Page struct {
	Lines  []string
	Offset int64
}

// Last returns up to n trailing lines of path. A missing file yields an
// empty page.
func Last(path string, n int) (Page, error) {
	file, size, err := open(path)
	if err != nil || file == nil {
		return Page{}, err
	}
	defer file.Close()

	if n <= 0 {
		return Page{Offset: size}, nil
	}

	ring := make([]string, n)
	count, idx := 0, 0
	offset, err := scan(file, func(line string) {
		ring[idx] = line
		idx = (idx + 1) % n
		if count < n {
			count++
		}
	})
	if err != nil {
		return Page{}, err
	}

	lines := make([]string, count)
	start := 0
	if count == n {
		start = idx
	}
	for i := range count {
		lines[i] = ring[(start+i)%n]
	}
	return Page{Lines: lines, Offset: offset}, nil
}

// Since returns the complete lines written after offset. When the file is
// shorter than offset it was rotated and reading restarts at zero.
func Since(path string, offset int64) (Page, error) {
	file, size, err := open(path)
	if err != nil || file == nil {
		return Page{}, err
	}
	defer file.Close()

	if offset < 0 || offset > size {
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return Page{}, fmt.Errorf("seek log file: %w", err)
	}
	var lines []string
	read, err := scan(file, func(line string) { lines = append(lines, line) })
	if err != nil {
		return Page{}, err
	}
	return Page{Lines: lines, Offset: offset + read}, nil
}

// Follow polls path from offset and hands each new batch to emit until ctx
// is cancelled or emit fails.
func Follow(ctx context.Context, path string, offset int64, poll time.Duration, emit func([]string) error) error {
	if poll <= 0 {
		poll = 250 * time.Millisecond
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		page, err := Since(path, offset)
		if err != nil {
			return err
		}
		offset = page.Offset
		if len(page.Lines) > 0 {
			if err := emit(page.Lines); err != nil {
				return err
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Filter keeps lines containing every non-empty needle.
func Filter(lines []string, needles ...string) []string {
	out := lines[:0:0]
	for _, line := range lines {
		keep := true
		for _, needle := range needles {
			if needle != "" && !strings.Contains(line, needle) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, line)
		}
	}
	return out
}

func open(path string) (*os.File, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, 0, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		file.Close()
		return nil, 0, fmt.Errorf("log path %q is a directory", path)
	}
	return file, info.Size(), nil
}

// scan feeds complete lines to fn and reports how many bytes they covered.
// A trailing partial line is left for the next read.
func scan(r io.Reader, fn func(string)) (int64, error) {
	reader := bufio.NewReaderSize(r, 64*1024)
	var consumed int64
	for {
		line, err := reader.ReadString('\n')
		if errors.Is(err, io.EOF) {
			return consumed, nil
		}
		if err != nil {
			return consumed, fmt.Errorf("read log file: %w", err)
		}
		consumed += int64(len(line))
		if len(line) > maxLineBytes {
			line = line[:maxLineBytes]
		}
		fn(strings.TrimRight(line, "\r\n"))
	}
}
