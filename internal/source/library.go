package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"

	"github.com/Snd-R/Komelia-sub005/internal/observable"
	"github.com/Snd-R/Komelia-sub005/internal/page"
)

var ErrNoBook = errors.New("no such book")

// Options configures OpenLibrary.
type Options struct {
	Sort SortStrategy
	// StartPage is the 1-based page the first book opens on. Zero opens on
	// the first page, or on the image given as a path.
	StartPage     int
	RetryAttempts uint
	RetryDelay    time.Duration
	Logger        *slog.Logger
}

type book struct {
	meta    page.Book
	archive Archive
	entries []string
}

// Library is an ordered list of local books. It tracks reading progress in
// memory.
type Library struct {
	logger   *slog.Logger
	attempts uint
	delay    time.Duration

	mu       sync.Mutex
	books    []*book
	byID     map[string]*book
	current  int
	progress map[string]int

	state *observable.Value[*page.BookState]
}

// BookID is the stable identifier of the book at path.
func BookID(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+filepath.ToSlash(path))).String()
}

// OpenLibrary opens every path as a book. A plain image opens its folder,
// starting on that image. Paths that cannot be read are skipped with a
// warning; it fails only if no book is left.
func OpenLibrary(ctx context.Context, paths []string, opts Options) (*Library, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sorter := opts.Sort
	if sorter == nil {
		sorter = NaturalSortStrategy{}
	}
	l := &Library{
		logger:   logger.With("component", "library"),
		attempts: opts.RetryAttempts,
		delay:    opts.RetryDelay,
		byID:     make(map[string]*book),
		progress: make(map[string]int),
	}
	if l.attempts == 0 {
		l.attempts = 3
	}
	if l.delay == 0 {
		l.delay = 50 * time.Millisecond
	}

	startPage := opts.StartPage
	for _, path := range paths {
		target, image := path, ""
		if info, err := os.Stat(path); err == nil && !info.IsDir() && IsImage(path) {
			target, image = filepath.Dir(path), filepath.Base(path)
		}
		if _, ok := l.byID[BookID(target)]; ok {
			continue
		}

		b, err := openBook(ctx, target, sorter)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			l.logger.Warn("skipping book", "path", path, "error", err)
			continue
		}
		if image != "" && len(l.books) == 0 && startPage == 0 {
			for i, name := range b.entries {
				if name == image {
					startPage = i + 1
					break
				}
			}
		}
		l.books = append(l.books, b)
		l.byID[b.meta.ID] = b
		l.logger.Debug("book opened", "path", target, "pages", len(b.entries))
	}
	if len(l.books) == 0 {
		return nil, fmt.Errorf("open %s: %w", strings.Join(paths, ", "), ErrNoBook)
	}

	if startPage > 0 {
		l.progress[l.books[0].meta.ID] = startPage
	}
	l.state = observable.NewValue(l.stateLocked())
	return l, nil
}

func openBook(ctx context.Context, path string, sorter SortStrategy) (*book, error) {
	archive, err := Open(path)
	if err != nil {
		return nil, err
	}
	entries, err := archive.Entries(ctx)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%s has no pages", path)
	}
	entries = sorter.Sort(entries)

	id := BookID(path)
	meta := page.Book{ID: id, Title: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))}
	meta.Pages = make([]page.Metadata, len(entries))
	for i, name := range entries {
		meta.Pages[i] = page.Metadata{BookID: id, PageNumber: i + 1, FileName: name}
	}
	return &book{meta: meta, archive: archive, entries: entries}, nil
}

func (l *Library) stateLocked() *page.BookState {
	state := &page.BookState{
		Current:   l.books[l.current].meta,
		StartPage: max(l.progress[l.books[l.current].meta.ID], 1),
	}
	if l.current > 0 {
		previous := l.books[l.current-1].meta
		state.Previous = &previous
	}
	if l.current < len(l.books)-1 {
		next := l.books[l.current+1].meta
		state.Next = &next
	}
	return state
}

func (l *Library) Books() *observable.Value[*page.BookState] { return l.state }

func (l *Library) LoadNextBook(ctx context.Context) error {
	return l.move(1)
}

func (l *Library) LoadPreviousBook(ctx context.Context) error {
	return l.move(-1)
}

func (l *Library) move(delta int) error {
	l.mu.Lock()
	next := l.current + delta
	if next < 0 || next >= len(l.books) {
		l.mu.Unlock()
		return ErrNoBook
	}
	l.current = next
	state := l.stateLocked()
	l.mu.Unlock()

	l.logger.Info("book changed", "title", state.Current.Title)
	l.state.Set(state)
	return nil
}

// OnProgressChange records the 1-based page last shown in the current book.
func (l *Library) OnProgressChange(ctx context.Context, pageNumber int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.progress[l.books[l.current].meta.ID] = pageNumber
	return nil
}

// Progress returns the last page recorded for a book, or 0.
func (l *Library) Progress(bookID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.progress[bookID]
}

// PageBytes reads the encoded page, retrying transient read errors.
func (l *Library) PageBytes(ctx context.Context, meta page.Metadata) ([]byte, error) {
	l.mu.Lock()
	b, ok := l.byID[meta.BookID]
	l.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("book %s: %w", meta.BookID, ErrNoBook)
	}
	if meta.PageNumber < 1 || meta.PageNumber > len(b.entries) {
		return nil, fmt.Errorf("page %d of %s: %w", meta.PageNumber, b.meta.Title, ErrEntryNotFound)
	}
	name := b.entries[meta.PageNumber-1]

	return retry.DoWithData(
		func() ([]byte, error) {
			return b.archive.Read(ctx, name)
		},
		retry.Context(ctx),
		retry.Attempts(l.attempts),
		retry.Delay(l.delay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, ErrEntryNotFound) && !errors.Is(err, fs.ErrNotExist) &&
				!errors.Is(err, context.Canceled)
		}),
		retry.OnRetry(func(n uint, err error) {
			l.logger.Debug("retrying page read", "book", b.meta.Title, "entry", name, "attempt", n+1, "error", err)
		}),
	)
}
