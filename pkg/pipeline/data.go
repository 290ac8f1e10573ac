package pipeline

import "encoding/json"

// DataKind tags the concrete shape carried by a Data value.
type DataKind string

const (
	KindText   DataKind = "Text"
	KindBinary DataKind = "Binary"
	KindJSON   DataKind = "Json"
	KindRecord DataKind = "KeyValue"
	KindRecords DataKind = "Records"
	KindBatch  DataKind = "Batch"
	KindMap    DataKind = "Map"
	KindEmpty  DataKind = "Empty"
)

// Data is the algebraic value passed between stage runners: exactly one of
// the fields matching Kind is populated. A terminator Empty value closes a
// stream and, when ExitCode is non-zero, marks the upstream stage as having
// failed for the purposes of a downstream Conditional edge.
type Data struct {
	Kind DataKind

	Text    string
	Binary  []byte
	JSON    json.RawMessage
	KV      map[string]string
	Records []map[string]string
	Batch   []Data
	Map     map[string]Data

	// ExitCode is only meaningful on a Kind == KindEmpty terminator.
	ExitCode int
}

// Empty builds a terminator value carrying exitCode.
func Empty(exitCode int) Data {
	return Data{Kind: KindEmpty, ExitCode: exitCode}
}

// IsTerminator reports whether d closes its stream.
func (d Data) IsTerminator() bool { return d.Kind == KindEmpty }

// Text builds a KindText value.
func TextData(s string) Data { return Data{Kind: KindText, Text: s} }

// Size approximates the byte footprint of d, used for stage throughput
// metrics (bytes processed).
func (d Data) Size() int {
	switch d.Kind {
	case KindText:
		return len(d.Text)
	case KindBinary:
		return len(d.Binary)
	case KindJSON:
		return len(d.JSON)
	case KindRecord:
		n := 0
		for k, v := range d.KV {
			n += len(k) + len(v)
		}
		return n
	case KindRecords:
		n := 0
		for _, r := range d.Records {
			for k, v := range r {
				n += len(k) + len(v)
			}
		}
		return n
	case KindBatch:
		n := 0
		for _, item := range d.Batch {
			n += item.Size()
		}
		return n
	case KindMap:
		n := 0
		for k, v := range d.Map {
			n += len(k) + v.Size()
		}
		return n
	default:
		return 0
	}
}
