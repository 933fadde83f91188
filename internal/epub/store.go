// Package epub implements the cleanup engine's Document Store against an
// ePub container. It opens a container, lists spine chapters, extracts plain
// text from chapter XHTML, rebuilds chapter documents from cleaned text, and
// persists the modified container. Unmodified entries are copied through
// byte-for-byte.
package epub

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"
	"sync"
)

// ChapterInfo identifies one spine chapter.
type ChapterInfo struct {
	ID    string // container-relative file path of the chapter document
	Title string
}

// ErrNotFound is returned for unknown chapter ids.
var ErrNotFound = fmt.Errorf("chapter not found")

// Store is an ePub-backed document store. RebuildChapter and Persist are
// safe for concurrent callers; persistence serializes on one mutex around
// "read modified-set, write full container".
type Store struct {
	inPath  string
	outPath string
	logger  *slog.Logger

	entries  []entry          // original container entries, in order
	chapters []ChapterInfo    // spine chapters, in reading order
	byID     map[string]int   // chapter id -> entries index

	mu       sync.Mutex
	modified map[string][]byte // chapter id -> rebuilt document
}

type entry struct {
	name   string
	data   []byte
	method uint16
}

// Open reads an ePub container into memory and indexes its spine chapters.
// outPath is where Persist writes the modified container; it may equal
// inPath to rewrite in place.
func Open(inPath, outPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if outPath == "" {
		outPath = inPath
	}

	zr, err := zip.OpenReader(inPath)
	if err != nil {
		return nil, fmt.Errorf("open container: %w", err)
	}
	defer zr.Close()

	s := &Store{
		inPath:   inPath,
		outPath:  outPath,
		logger:   logger.With("component", "epub"),
		byID:     make(map[string]int),
		modified: make(map[string][]byte),
	}

	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open entry %s: %w", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read entry %s: %w", f.Name, err)
		}
		s.entries = append(s.entries, entry{name: f.Name, data: data, method: f.Method})
	}

	if err := s.index(); err != nil {
		return nil, err
	}

	s.logger.Info("container opened", "path", inPath, "entries", len(s.entries), "chapters", len(s.chapters))
	return s, nil
}

// ListChapters returns spine chapters in reading order.
func (s *Store) ListChapters(ctx context.Context) ([]ChapterInfo, error) {
	out := make([]ChapterInfo, len(s.chapters))
	copy(out, s.chapters)
	return out, nil
}

// ChapterText extracts the plain text of one chapter document.
func (s *Store) ChapterText(ctx context.Context, id string) (string, error) {
	i, ok := s.byID[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return ExtractText(s.entries[i].data)
}

// RebuildChapter rebuilds one chapter document from cleaned text and records
// it in the modified set. The original document supplies the title.
func (s *Store) RebuildChapter(ctx context.Context, id, cleanedText string) error {
	i, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	title := documentTitle(s.entries[i].data)
	doc := RenderChapter(title, cleanedText)

	s.mu.Lock()
	s.modified[id] = doc
	s.mu.Unlock()
	return nil
}

// Persist writes the container to outPath: modified chapters replaced,
// everything else copied through unchanged. Safe to call repeatedly; each
// call writes the full container with the current modified set.
func (s *Store) Persist(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	for _, e := range s.entries {
		data := e.data
		if repl, ok := s.modified[e.name]; ok {
			data = repl
		}

		// mimetype must keep its Store method per the ePub spec.
		header := &zip.FileHeader{Name: e.name, Method: e.method}
		w, err := zw.CreateHeader(header)
		if err != nil {
			return fmt.Errorf("create entry %s: %w", e.name, err)
		}
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("write entry %s: %w", e.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalize container: %w", err)
	}

	if err := os.WriteFile(s.outPath, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("persist container: %w", err)
	}

	s.logger.Debug("container persisted", "path", s.outPath, "modified_chapters", len(s.modified))
	return nil
}

// ModifiedCount returns how many chapters are in the modified set.
func (s *Store) ModifiedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.modified)
}

// index locates the package document and builds the spine chapter list.
func (s *Store) index() error {
	opfPath, err := s.rootfilePath()
	if err != nil {
		return err
	}
	opfData, ok := s.lookup(opfPath)
	if !ok {
		return fmt.Errorf("package document %s missing from container", opfPath)
	}

	var pkg opfPackage
	if err := xml.Unmarshal(opfData, &pkg); err != nil {
		return fmt.Errorf("parse package document: %w", err)
	}

	items := make(map[string]opfItem, len(pkg.Manifest.Items))
	for _, item := range pkg.Manifest.Items {
		items[item.ID] = item
	}

	opfDir := path.Dir(opfPath)
	for _, ref := range pkg.Spine.Itemrefs {
		item, ok := items[ref.IDRef]
		if !ok || item.MediaType != "application/xhtml+xml" {
			continue
		}
		if strings.Contains(item.Properties, "nav") {
			continue
		}
		href := item.Href
		if opfDir != "." {
			href = path.Join(opfDir, href)
		}
		i, ok := s.indexOf(href)
		if !ok {
			continue
		}
		s.byID[href] = i
		s.chapters = append(s.chapters, ChapterInfo{
			ID:    href,
			Title: documentTitle(s.entries[i].data),
		})
	}

	if len(s.chapters) == 0 {
		return fmt.Errorf("no spine chapters found in %s", s.inPath)
	}
	return nil
}

// rootfilePath reads META-INF/container.xml for the package document path.
func (s *Store) rootfilePath() (string, error) {
	data, ok := s.lookup("META-INF/container.xml")
	if !ok {
		return "", fmt.Errorf("META-INF/container.xml missing")
	}
	var c containerXML
	if err := xml.Unmarshal(data, &c); err != nil {
		return "", fmt.Errorf("parse container.xml: %w", err)
	}
	if len(c.Rootfiles) == 0 {
		return "", fmt.Errorf("container.xml has no rootfiles")
	}
	return c.Rootfiles[0].FullPath, nil
}

func (s *Store) lookup(name string) ([]byte, bool) {
	if i, ok := s.indexOf(name); ok {
		return s.entries[i].data, true
	}
	return nil, false
}

func (s *Store) indexOf(name string) (int, bool) {
	for i, e := range s.entries {
		if e.name == name {
			return i, true
		}
	}
	return 0, false
}

// OPF / container XML types

type containerXML struct {
	Rootfiles []struct {
		FullPath string `xml:"full-path,attr"`
	} `xml:"rootfiles>rootfile"`
}

type opfPackage struct {
	Manifest struct {
		Items []opfItem `xml:"item"`
	} `xml:"manifest"`
	Spine struct {
		Itemrefs []opfItemref `xml:"itemref"`
	} `xml:"spine"`
}

type opfItem struct {
	ID         string `xml:"id,attr"`
	Href       string `xml:"href,attr"`
	MediaType  string `xml:"media-type,attr"`
	Properties string `xml:"properties,attr"`
}

type opfItemref struct {
	IDRef string `xml:"idref,attr"`
}
