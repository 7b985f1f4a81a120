package metrics

import "fmt"

// IoOperation identifies an instrumented filesystem operation.
type IoOperation int

const (
	OpOpen IoOperation = iota
	OpRead
	OpList
	OpGlob
	OpGetFileSize

	ioOperationCount
)

// LatencyHeuristic sizes the latency histogram of an operation.
type LatencyHeuristic struct {
	MinMillis float64
	MaxMillis float64
	Buckets   int
}

// ioOperationTable is the single source of operation names and latency
// heuristics, indexed by IoOperation.
var ioOperationTable = [ioOperationCount]struct {
	name    string
	latency LatencyHeuristic
}{
	OpOpen:        {"open", LatencyHeuristic{0, 1000, 100}},
	OpRead:        {"read", LatencyHeuristic{0, 1000, 100}},
	OpList:        {"list", LatencyHeuristic{0, 3000, 100}},
	OpGlob:        {"glob", LatencyHeuristic{0, 3000, 100}},
	OpGetFileSize: {"get_file_size", LatencyHeuristic{0, 1000, 100}},
}

// Request size histogram range shared by all operations.
const (
	requestSizeMin     = 0
	requestSizeMax     = 6 * 1024 * 1024
	requestSizeBuckets = 128
)

func (op IoOperation) String() string {
	if !op.Valid() {
		return fmt.Sprintf("IoOperation(%d)", int(op))
	}
	return ioOperationTable[op].name
}

// Valid reports whether op is a known operation.
func (op IoOperation) Valid() bool {
	return op >= 0 && op < ioOperationCount
}

// Latency returns the histogram heuristic for op.
func (op IoOperation) Latency() LatencyHeuristic {
	return ioOperationTable[op].latency
}

// IoOperations returns every operation in enum order.
func IoOperations() []IoOperation {
	ops := make([]IoOperation, ioOperationCount)
	for i := range ops {
		ops[i] = IoOperation(i)
	}
	return ops
}

// ParseIoOperation maps an operation name back to its IoOperation.
func ParseIoOperation(name string) (IoOperation, error) {
	for i, row := range ioOperationTable {
		if row.name == name {
			return IoOperation(i), nil
		}
	}
	return 0, fmt.Errorf("unknown io operation %q", name)
}
