package cleanup

import (
	"context"
	"fmt"
	"strings"

	"github.com/telltaleatheist/bookforge-sub001/internal/segment"
)

// chapterWork tracks one chapter through processing. Each results slot is
// written exactly once, by the worker that completed that chunk; the done
// counter decides when the chapter can be reassembled.
type chapterWork struct {
	info    ChapterInfo
	index   int // position in the job's chapter list
	results []ChunkResult
	done    int // guarded by the scheduler's results mutex
}

func (c *chapterWork) complete() bool { return c.done == len(c.results) }

// assemble joins the chapter's results in chunk-index order. Skipped chunks
// contribute nothing; everything else contributes its (possibly original)
// text.
func (c *chapterWork) assemble() string {
	parts := make([]string, 0, len(c.results))
	for _, r := range c.results {
		text := strings.TrimSpace(r.Text)
		if text == "" {
			continue
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, "\n\n")
}

// manifest is the full work plan for a job: every chapter's chunks in
// document order, flattened into one queue.
type manifest struct {
	chapters []*chapterWork
	chunks   []Chunk
}

// loadedChapter is a chapter with its extracted text, before segmentation.
type loadedChapter struct {
	info ChapterInfo
	text string
}

// loadChapters reads every chapter's text and drops empty chapters entirely,
// so they are never rebuilt or counted toward progress.
func loadChapters(ctx context.Context, store DocumentStore) ([]loadedChapter, error) {
	infos, err := store.ListChapters(ctx)
	if err != nil {
		return nil, fmt.Errorf("list chapters: %w", err)
	}

	var out []loadedChapter
	for _, info := range infos {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := store.ChapterText(ctx, info.ID)
		if err != nil {
			return nil, fmt.Errorf("chapter %s: %w", info.ID, err)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		out = append(out, loadedChapter{info: info, text: text})
	}
	if len(out) == 0 {
		return nil, ErrNoContent
	}
	return out, nil
}

// buildManifest segments every chapter and flattens the chunks into one
// document-order queue.
func buildManifest(chapters []loadedChapter, chunkSize int) *manifest {
	m := &manifest{}
	globalPos := 0
	for chapterIdx, ch := range chapters {
		pieces := segment.Split(ch.text, chunkSize)
		work := &chapterWork{
			info:    ch.info,
			index:   chapterIdx,
			results: make([]ChunkResult, len(pieces)),
		}
		for i, piece := range pieces {
			m.chunks = append(m.chunks, Chunk{
				ChapterIndex: chapterIdx,
				Index:        i,
				GlobalPos:    globalPos,
				Text:         piece,
			})
			globalPos++
		}
		m.chapters = append(m.chapters, work)
	}
	return m
}

// record stores a chunk result and reports whether it completed its chapter.
// Caller must hold the results lock.
func (m *manifest) record(res ChunkResult) (*chapterWork, bool) {
	ch := m.chapters[res.Chunk.ChapterIndex]
	ch.results[res.Chunk.Index] = res
	ch.done++
	return ch, ch.complete()
}
