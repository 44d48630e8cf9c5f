package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"

	"github.com/nvskit/nvskit/pkg/record"
)

// WriteCSV emits records in the dialect the NVS partition generator
// consumes: a header row, then per namespace a marker row followed by that
// namespace's key rows. Blob bytes are not inlined; they are written under
// blobDir as content-addressed files and referenced by path.
func WriteCSV(w io.Writer, records []record.Record, blobDir string) error {
	if _, err := fmt.Fprintln(w, "key,type,encoding,value"); err != nil {
		return err
	}

	// Namespaces appear in first-record order; records stay in decode
	// order within their namespace.
	var order []string
	grouped := make(map[string][]record.Record)
	for _, r := range records {
		if _, ok := grouped[r.Namespace]; !ok {
			order = append(order, r.Namespace)
		}
		grouped[r.Namespace] = append(grouped[r.Namespace], r)
	}

	for _, ns := range order {
		if _, err := fmt.Fprintf(w, "%s,namespace,,\n", ns); err != nil {
			return err
		}
		for _, r := range grouped[ns] {
			row, err := EncodeRow(r, blobDir)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintln(w, row); err != nil {
				return err
			}
		}
	}
	return nil
}

// EncodeRow renders one record as a generator CSV row. Blob values are
// materialized as files under blobDir.
func EncodeRow(r record.Record, blobDir string) (string, error) {
	switch r.Type {
	case record.TypeStr:
		s, ok := r.Value.(string)
		if !ok {
			return "", fmt.Errorf("record %q: expected string value, have %T", r.Key, r.Value)
		}
		return fmt.Sprintf("%s,data,string,%s", r.Key, s), nil

	case record.TypeBlob:
		switch v := r.Value.(type) {
		case record.FileRef:
			return fmt.Sprintf("%s,file,binary,%s", r.Key, v.Path), nil
		case []byte:
			path, err := writeBlobFile(v, blobDir)
			if err != nil {
				return "", fmt.Errorf("record %q: %w", r.Key, err)
			}
			return fmt.Sprintf("%s,file,binary,%s", r.Key, path), nil
		default:
			return "", fmt.Errorf("record %q: expected blob value, have %T", r.Key, r.Value)
		}

	default:
		if !r.Type.Integer() {
			return "", fmt.Errorf("record %q: unknown type %q", r.Key, r.Type)
		}
		switch v := r.Value.(type) {
		case uint64:
			return fmt.Sprintf("%s,data,%s,%d", r.Key, r.Type, v), nil
		case int64:
			return fmt.Sprintf("%s,data,%s,%d", r.Key, r.Type, v), nil
		default:
			return "", fmt.Errorf("record %q: expected integer value, have %T", r.Key, r.Value)
		}
	}
}

// writeBlobFile stores data under dir with a name derived from its xxhash,
// so that identical blobs map to the same file.
func writeBlobFile(data []byte, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create blob dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("blob_%016x.bin", xxhash.Sum64(data)))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write blob file: %w", err)
	}
	return path, nil
}
