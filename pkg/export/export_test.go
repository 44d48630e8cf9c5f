package export

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/nvskit/nvskit/pkg/partition"
	"github.com/nvskit/nvskit/pkg/record"
)

func sampleResult() *partition.Result {
	return &partition.Result{
		Records: []record.Record{
			{Namespace: "cfg", Key: "v1", Type: record.TypeU32, Value: uint64(42)},
			{Namespace: "cfg", Key: "temp", Type: record.TypeI8, Value: int64(-7)},
			{Namespace: "cfg", Key: "ssid", Type: record.TypeStr, Value: "unit-test-net"},
			{Namespace: "wifi", Key: "cert", Type: record.TypeBlob, Value: []byte{0xDE, 0xAD, 0xBE, 0xEF}},
		},
		Namespaces: map[uint8]string{1: "cfg", 2: "wifi"},
		Warnings: []partition.Warning{
			{Page: 3, Kind: partition.WarnCorruptEntry, Detail: "slot 9: entry: header crc mismatch"},
		},
	}
}

func TestWriteCSV(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	if err := WriteCSV(&buf, sampleResult().Records, dir); err != nil {
		t.Fatalf("WriteCSV failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if lines[0] != "key,type,encoding,value" {
		t.Errorf("wrong header row: %q", lines[0])
	}
	if lines[1] != "cfg,namespace,," {
		t.Errorf("expected cfg namespace marker first, got %q", lines[1])
	}
	if lines[2] != "v1,data,u32,42" {
		t.Errorf("wrong integer row: %q", lines[2])
	}
	if lines[3] != "temp,data,i8,-7" {
		t.Errorf("wrong signed row: %q", lines[3])
	}
	if lines[4] != "ssid,data,string,unit-test-net" {
		t.Errorf("wrong string row: %q", lines[4])
	}
	if lines[5] != "wifi,namespace,," {
		t.Errorf("expected wifi namespace marker, got %q", lines[5])
	}
	if !strings.HasPrefix(lines[6], "cert,file,binary,") {
		t.Fatalf("wrong blob row: %q", lines[6])
	}

	// The referenced blob file must hold the original bytes.
	path := strings.TrimPrefix(lines[6], "cert,file,binary,")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading blob file: %v", err)
	}
	if !bytes.Equal(data, []byte{0xDE, 0xAD, 0xBE, 0xEF}) {
		t.Errorf("blob file contents mismatch: %x", data)
	}
}

func TestWriteCSVDeduplicatesBlobFiles(t *testing.T) {
	dir := t.TempDir()
	records := []record.Record{
		{Namespace: "a", Key: "one", Type: record.TypeBlob, Value: []byte("same bytes")},
		{Namespace: "a", Key: "two", Type: record.TypeBlob, Value: []byte("same bytes")},
	}
	var buf bytes.Buffer
	if err := WriteCSV(&buf, records, dir); err != nil {
		t.Fatalf("WriteCSV failed: %v", err)
	}

	files, err := filepath.Glob(filepath.Join(dir, "blob_*.bin"))
	if err != nil {
		t.Fatalf("glob failed: %v", err)
	}
	if len(files) != 1 {
		t.Errorf("identical blobs should share one content-addressed file, got %d", len(files))
	}
}

func TestEncodeRowFileRef(t *testing.T) {
	row, err := EncodeRow(record.Record{
		Namespace: "a", Key: "cert", Type: record.TypeBlob,
		Value: record.FileRef{Path: "blobs/new_cert.bin"},
	}, t.TempDir())
	if err != nil {
		t.Fatalf("EncodeRow failed: %v", err)
	}
	if row != "cert,file,binary,blobs/new_cert.bin" {
		t.Errorf("wrong row: %q", row)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	dump := NewDump(sampleResult())

	var buf bytes.Buffer
	if err := WriteJSON(&buf, dump, false); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	got, err := ReadJSON(&buf)
	if err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	if !reflect.DeepEqual(got.Entries, dump.Entries) {
		t.Errorf("entries changed across the round trip:\n%+v\n%+v", got.Entries, dump.Entries)
	}
	if !reflect.DeepEqual(got.Namespaces, dump.Namespaces) {
		t.Errorf("namespaces changed across the round trip")
	}
	if !reflect.DeepEqual(got.Warnings, dump.Warnings) {
		t.Errorf("warnings changed across the round trip")
	}
}

func TestJSONRoundTripCompressed(t *testing.T) {
	dump := NewDump(sampleResult())

	var buf bytes.Buffer
	if err := WriteJSON(&buf, dump, true); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), zstdMagic) {
		t.Fatalf("compressed dump does not start with the zstd magic")
	}

	got, err := ReadJSON(&buf)
	if err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	if !reflect.DeepEqual(got.Entries, dump.Entries) {
		t.Errorf("entries changed across the compressed round trip")
	}
}

func TestReadJSONResolvesFileRefs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cert.bin")
	want := []byte{1, 2, 3, 4}
	if err := os.WriteFile(path, want, 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	in := `{
  "namespaces": {"1": "wifi"},
  "entries": [
    {"namespace": "wifi", "key": "cert", "type": "blob", "value": {"file": ` + jsonString(path) + `}}
  ]
}`
	got, err := ReadJSON(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	if len(got.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(got.Entries))
	}
	data, ok := got.Entries[0].Value.([]byte)
	if !ok || !bytes.Equal(data, want) {
		t.Errorf("file reference not resolved: %v", got.Entries[0].Value)
	}
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
