package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const maxLineBytes = 1024 * 1024

// TailOptions selects what Tail returns.
type TailOptions struct {
	// Offset < 0 means "the last Limit lines"; otherwise read from this byte
	// offset.
	Offset int64
	Limit  int
	// Follow waits up to Wait for new lines when none are available.
	Follow bool
	Wait   time.Duration
	// Match keeps only lines containing this substring (a task ID, a run ID).
	Match string
}

// TailResult holds lines read and the offset to resume from.
type TailResult struct {
	Lines  []string
	Offset int64
}

// Tail reads the log at path. A missing file yields no lines and offset 0.
func Tail(ctx context.Context, path string, opts TailOptions) (TailResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if opts.Follow && opts.Wait > 0 {
				return waitForLines(ctx, path, 0, opts)
			}
			return TailResult{}, nil
		}
		return TailResult{Offset: opts.Offset}, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return TailResult{Offset: opts.Offset}, fmt.Errorf("log path %q is a directory", path)
	}
	if opts.Wait < 0 {
		opts.Wait = 0
	}

	var result TailResult
	if opts.Offset < 0 {
		result.Lines, result.Offset, err = lastLines(path, opts.Limit, opts.Match)
	} else {
		result.Lines, result.Offset, err = readFrom(path, opts.Offset, opts.Match)
	}
	if err != nil {
		return TailResult{Offset: opts.Offset}, err
	}
	if len(result.Lines) == 0 && opts.Follow && opts.Wait > 0 {
		return waitForLines(ctx, path, result.Offset, opts)
	}
	return result, nil
}

func lastLines(path string, limit int, match string) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if limit <= 0 {
		end, err := file.Seek(0, io.SeekEnd)
		if err != nil {
			return nil, 0, fmt.Errorf("seek log file: %w", err)
		}
		return nil, end, nil
	}

	ring := make([]string, 0, limit)
	start := 0
	offset, err := scanLines(file, match, func(line string) {
		if len(ring) < limit {
			ring = append(ring, line)
			return
		}
		ring[start] = line
		start = (start + 1) % limit
	})
	if err != nil {
		return nil, 0, err
	}
	lines := make([]string, 0, len(ring))
	lines = append(lines, ring[start:]...)
	lines = append(lines, ring[:start]...)
	return lines, offset, nil
}

func readFrom(path string, offset int64, match string) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, offset, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if info, err := file.Stat(); err == nil && offset > info.Size() {
		// Rotated or truncated; restart from the top.
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return nil, offset, fmt.Errorf("seek log file: %w", err)
	}
	var lines []string
	read, err := scanLines(file, match, func(line string) {
		lines = append(lines, line)
	})
	if err != nil {
		return nil, offset, err
	}
	return lines, offset + read, nil
}

// scanLines feeds complete lines to fn and returns the bytes consumed. A
// trailing partial line is left for the next read.
func scanLines(r io.Reader, match string, fn func(string)) (int64, error) {
	reader := bufio.NewReaderSize(r, 64*1024)
	var consumed int64
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return consumed, nil
			}
			return consumed, fmt.Errorf("read log file: %w", err)
		}
		consumed += int64(len(line))
		if len(line) > maxLineBytes {
			line = line[:maxLineBytes]
		}
		line = strings.TrimRight(line, "\r\n")
		if match == "" || strings.Contains(line, match) {
			fn(line)
		}
	}
}

// waitForLines blocks until new matching lines arrive, Wait elapses, or ctx
// ends. It watches the log's directory so a file created after the call is
// still picked up.
func waitForLines(ctx context.Context, path string, offset int64, opts TailOptions) (TailResult, error) {
	result := TailResult{Offset: offset}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return result, fmt.Errorf("watch log file: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return result, fmt.Errorf("watch log directory: %w", err)
	}

	timer := time.NewTimer(opts.Wait)
	defer timer.Stop()

	for {
		lines, next, err := readFrom(path, result.Offset, opts.Match)
		if err != nil {
			return result, err
		}
		result.Offset = next
		if len(lines) > 0 {
			result.Lines = lines
			return result, nil
		}

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-timer.C:
			return result, nil
		case err, ok := <-watcher.Errors:
			if ok {
				return result, fmt.Errorf("watch log file: %w", err)
			}
			return result, nil
		case event, ok := <-watcher.Events:
			if !ok {
				return result, nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) || event.Has(fsnotify.Create) {
				result.Offset = 0
			}
		}
	}
}
