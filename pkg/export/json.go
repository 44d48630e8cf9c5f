// Package export serializes decoded records for the two external
// collaborators: the editable JSON dump, and the CSV dialect plus blob
// files consumed by the partition-image generator.
package export

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/klauspost/compress/zstd"

	"github.com/nvskit/nvskit/pkg/partition"
	"github.com/nvskit/nvskit/pkg/record"
)

// Dump is the editable JSON document produced from a decode pass.
type Dump struct {
	// Namespaces maps decimal namespace indexes to names.
	Namespaces map[string]string   `json:"namespaces"`
	Entries    []record.Record     `json:"entries"`
	Warnings   []partition.Warning `json:"warnings,omitempty"`
}

// NewDump converts a decode result into its dump representation.
func NewDump(res *partition.Result) *Dump {
	ns := make(map[string]string, len(res.Namespaces))
	for idx, name := range res.Namespaces {
		ns[strconv.Itoa(int(idx))] = name
	}
	return &Dump{Namespaces: ns, Entries: res.Records, Warnings: res.Warnings}
}

// zstdMagic is the zstd frame magic number, used to sniff compressed dumps.
var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

// WriteJSON writes the dump as indented JSON, optionally zstd-compressed.
func WriteJSON(w io.Writer, d *Dump, compress bool) error {
	if !compress {
		return writeJSON(w, d)
	}
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("create zstd writer: %w", err)
	}
	if err := writeJSON(zw, d); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}

func writeJSON(w io.Writer, d *Dump) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(d); err != nil {
		return fmt.Errorf("encode dump: %w", err)
	}
	return nil
}

// ReadJSON loads a dump, transparently handling zstd-compressed input, and
// resolves blob file references into inline bytes.
func ReadJSON(r io.Reader) (*Dump, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(len(zstdMagic))
	if err == nil && bytes.Equal(head, zstdMagic) {
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("open zstd reader: %w", err)
		}
		defer zr.Close()
		return readJSON(zr)
	}
	return readJSON(br)
}

func readJSON(r io.Reader) (*Dump, error) {
	var d Dump
	if err := json.NewDecoder(r).Decode(&d); err != nil {
		return nil, fmt.Errorf("decode dump: %w", err)
	}
	for i := range d.Entries {
		ref, ok := d.Entries[i].Value.(record.FileRef)
		if !ok {
			continue
		}
		data, err := os.ReadFile(ref.Path)
		if err != nil {
			return nil, fmt.Errorf("blob %q: %w", d.Entries[i].Key, err)
		}
		d.Entries[i].Value = data
	}
	return &d, nil
}
