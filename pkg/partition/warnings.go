package partition

import "fmt"

// WarningKind labels the non-fatal problems found during a decode pass.
type WarningKind string

const (
	// WarnCorruptPage marks a page whose header CRC failed; its entries
	// were skipped.
	WarnCorruptPage WarningKind = "corrupt_page"
	// WarnCorruptEntry marks a single skipped entry slot (bad CRC, bad
	// type code, span overrun, illegal bitmap state, bad payload).
	WarnCorruptEntry WarningKind = "corrupt_entry"
	// WarnUnresolvedNamespace marks an entry referencing a namespace index
	// that was never defined.
	WarnUnresolvedNamespace WarningKind = "unresolved_namespace"
	// WarnCorruptBlob marks a blob omitted from the output because its
	// chunk chain was incomplete or inconsistent.
	WarnCorruptBlob WarningKind = "corrupt_blob"
	// WarnUnknownPageState marks a page whose state tag is not a defined
	// value.
	WarnUnknownPageState WarningKind = "unknown_page_state"
)

// Warning describes one skipped page, entry, or blob. Decoding never drops
// data without emitting a corresponding warning.
type Warning struct {
	Page   int         `json:"page_index"`
	Kind   WarningKind `json:"kind"`
	Detail string      `json:"detail"`
}

func (w Warning) String() string {
	return fmt.Sprintf("page %d: %s: %s", w.Page, w.Kind, w.Detail)
}
