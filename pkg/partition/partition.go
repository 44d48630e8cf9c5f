// Package partition drives the page decoder across a whole NVS partition
// image and resolves namespaces and blob chains into the final record list.
//
// Decoding is best-effort and per-page isolated: after the structural size
// check, nothing aborts the pass. Corrupt pages, entries, and blobs are
// skipped at the smallest affected unit and surfaced as warnings.
package partition

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/nvskit/nvskit/pkg/blob"
	"github.com/nvskit/nvskit/pkg/entry"
	"github.com/nvskit/nvskit/pkg/format"
	"github.com/nvskit/nvskit/pkg/namespace"
	"github.com/nvskit/nvskit/pkg/page"
	"github.com/nvskit/nvskit/pkg/record"
)

var (
	// ErrNotPageAligned is returned when the image length is not a multiple
	// of the page size. This is the only fatal decode error.
	ErrNotPageAligned = errors.New("partition: image size is not a multiple of the page size")
	// ErrBadPageSize is returned for page sizes that cannot hold a header,
	// a bitmap and a whole number of entries.
	ErrBadPageSize = errors.New("partition: invalid page size")
)

// Options configures a decode pass.
type Options struct {
	// PageSize is the NVS page size in bytes. Zero selects
	// format.DefaultPageSize.
	PageSize int
	// Logger receives per-page debug traces. Nil disables tracing.
	Logger *zerolog.Logger
}

func (o Options) normalized() (Options, error) {
	if o.PageSize == 0 {
		o.PageSize = format.DefaultPageSize
	}
	body := o.PageSize - format.HeaderSize - format.BitmapSize
	if body < format.EntrySize || body%format.EntrySize != 0 {
		return o, fmt.Errorf("%w: %d", ErrBadPageSize, o.PageSize)
	}
	if o.Logger == nil {
		nop := zerolog.Nop()
		o.Logger = &nop
	}
	return o, nil
}

// Result is the outcome of one decode pass.
type Result struct {
	// Records is the ordered list of decoded logical items. Multiple
	// physical entries for the same (namespace, key) collapse into one
	// record, the newest version winning.
	Records []record.Record
	// Namespaces is the resolved index-to-name table.
	Namespaces map[uint8]string
	// Warnings itemizes every skipped page, entry, and blob.
	Warnings []Warning
}

func (r *Result) warnf(pageIdx int, kind WarningKind, f string, args ...any) {
	r.Warnings = append(r.Warnings, Warning{Page: pageIdx, Kind: kind, Detail: fmt.Sprintf(f, args...)})
}

var typeTags = map[uint8]record.Type{
	format.TypeU8:  record.TypeU8,
	format.TypeI8:  record.TypeI8,
	format.TypeU16: record.TypeU16,
	format.TypeI16: record.TypeI16,
	format.TypeU32: record.TypeU32,
	format.TypeI32: record.TypeI32,
	format.TypeU64: record.TypeU64,
	format.TypeI64: record.TypeI64,
}

// item is one classified entry annotated with the page it came from.
type item struct {
	pg *page.Result
	c  *entry.Classified
}

// blobKey identifies a blob chain before namespace resolution.
type blobKey struct {
	ns  uint8
	key string
}

// Decode parses a whole partition image into records. Only a structurally
// invalid input fails; all data-level problems are recovered and reported
// in Result.Warnings.
func Decode(data []byte, opts Options) (*Result, error) {
	opts, err := opts.normalized()
	if err != nil {
		return nil, err
	}
	if len(data)%opts.PageSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes, page size %d", ErrNotPageAligned, len(data), opts.PageSize)
	}

	res := &Result{Namespaces: map[uint8]string{}}

	numPages := len(data) / opts.PageSize
	pages := make([]*page.Result, 0, numPages)
	for i := 0; i < numPages; i++ {
		pr, err := page.Decode(data[i*opts.PageSize:(i+1)*opts.PageSize], i)
		if err != nil {
			// Unreachable for a validated page size; treated as a corrupt
			// page rather than aborting the pass.
			res.warnf(i, WarnCorruptPage, "%v", err)
			continue
		}
		opts.Logger.Debug().
			Int("page", i).
			Uint32("seq", pr.Header.Sequence).
			Str("state", format.PageStateName(pr.Header.State)).
			Int("entries", len(pr.Entries)).
			Msg("decoded page")

		switch {
		case pr.UnknownState:
			res.warnf(i, WarnUnknownPageState, "state 0x%08x", pr.Header.State)
			continue
		case pr.Skipped:
			continue
		case pr.CorruptHeader:
			res.warnf(i, WarnCorruptPage, "header crc mismatch")
			continue
		}
		for _, se := range pr.SlotErrors {
			res.warnf(i, WarnCorruptEntry, "slot %d: %v", se.Slot, se.Err)
		}
		pages = append(pages, pr)
	}

	// Wear leveling reuses pages, so the logical write order is the header
	// sequence number, not the physical offset. Everything below iterates
	// in sequence order so that newer entries win.
	sort.SliceStable(pages, func(a, b int) bool {
		return pages[a].Header.Sequence < pages[b].Header.Sequence
	})

	var items []item
	for _, pr := range pages {
		for _, raw := range pr.Entries {
			c, err := entry.Classify(raw)
			if err != nil {
				res.warnf(pr.Index, WarnCorruptEntry, "slot %d: %v", raw.Slot, err)
				continue
			}
			if c.Kind == entry.KindIgnore {
				continue
			}
			items = append(items, item{pr, c})
		}
	}

	// Namespace definitions can live on any page, including pages written
	// after the entries that reference them, so the table is built over the
	// whole partition before anything else is attributed.
	table := namespace.NewTable()
	for _, it := range items {
		if it.c.Kind == entry.KindNamespaceDef {
			table.Register(uint8(it.c.Uint), it.c.Key)
		}
	}
	res.Namespaces = table.Snapshot()

	// Collect blob chunks and find the newest index entry per (ns, key);
	// superseded index entries are ignored without assembly.
	chunks := make(map[blobKey][]blob.Chunk)
	chunkPage := make(map[blobKey]int)
	lastIndex := make(map[blobKey]*entry.Classified)
	for _, it := range items {
		k := blobKey{it.c.Namespace, it.c.Key}
		switch it.c.Kind {
		case entry.KindBlobData:
			if _, ok := chunks[k]; !ok {
				chunkPage[k] = it.pg.Index
			}
			chunks[k] = append(chunks[k], blob.Chunk{Index: it.c.ChunkIndex, Data: it.c.Bytes})
		case entry.KindBlobIndex:
			lastIndex[k] = it.c
		}
	}

	resolve := func(it item) (string, bool) {
		name, err := table.Resolve(it.c.Namespace)
		if err != nil {
			res.warnf(it.pg.Index, WarnUnresolvedNamespace,
				"slot %d: namespace index %d for key %q", it.c.Slot, it.c.Namespace, it.c.Key)
			return "", false
		}
		return name, true
	}

	// Emission pass, in sequence order. Latest-wins deduplication keeps the
	// first appearance's position but the newest entry's content.
	var out []record.Record
	seen := make(map[string]int)
	add := func(r record.Record) {
		k := r.Namespace + "\x00" + r.Key
		if i, ok := seen[k]; ok {
			out[i] = r
		} else {
			seen[k] = len(out)
			out = append(out, r)
		}
	}

	for _, it := range items {
		c := it.c
		switch c.Kind {
		case entry.KindNamespaceDef:
			// Consumed by the namespace pass.

		case entry.KindPrimitive:
			name, ok := resolve(it)
			if !ok {
				continue
			}
			r := record.Record{Namespace: name, Key: c.Key, Type: typeTags[c.Type]}
			if c.Signed {
				r.Value = c.Int
			} else {
				r.Value = c.Uint
			}
			add(r)

		case entry.KindString:
			name, ok := resolve(it)
			if !ok {
				continue
			}
			add(record.Record{
				Namespace: name,
				Key:       c.Key,
				Type:      record.TypeStr,
				Value:     strings.TrimRight(string(c.Bytes), "\x00"),
			})

		case entry.KindBlob:
			name, ok := resolve(it)
			if !ok {
				continue
			}
			add(record.Record{Namespace: name, Key: c.Key, Type: record.TypeBlob, Value: c.Bytes})

		case entry.KindBlobIndex:
			k := blobKey{c.Namespace, c.Key}
			if lastIndex[k] != c {
				continue // superseded by a newer index entry
			}
			name, ok := resolve(it)
			if !ok {
				continue
			}
			assembled, err := blob.Assemble(blob.Index{
				Size:       c.Size,
				ChunkCount: c.ChunkCount,
				ChunkStart: c.ChunkStart,
			}, chunks[k])
			if err != nil {
				res.warnf(it.pg.Index, WarnCorruptBlob, "namespace %q key %q: %v", name, c.Key, err)
				continue
			}
			add(record.Record{Namespace: name, Key: c.Key, Type: record.TypeBlob, Value: assembled})

		case entry.KindBlobData:
			// Claimed by the index entry's assembly; orphans are reported
			// below.
		}
	}

	// Chunks that no index entry claims would otherwise vanish silently.
	orphans := make([]blobKey, 0)
	for k := range chunks {
		if _, ok := lastIndex[k]; !ok {
			orphans = append(orphans, k)
		}
	}
	sort.Slice(orphans, func(a, b int) bool {
		if orphans[a].ns != orphans[b].ns {
			return orphans[a].ns < orphans[b].ns
		}
		return orphans[a].key < orphans[b].key
	})
	for _, k := range orphans {
		res.warnf(chunkPage[k], WarnCorruptBlob,
			"namespace index %d key %q: %d blob chunk(s) without an index entry",
			k.ns, k.key, len(chunks[k]))
	}

	res.Records = out
	opts.Logger.Debug().
		Int("records", len(res.Records)).
		Int("warnings", len(res.Warnings)).
		Msg("decode complete")
	return res, nil
}
