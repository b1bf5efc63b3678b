package core

// DefaultBatchSize is the number of records handed to the write strategy at
// once when no size is configured.
const DefaultBatchSize = 1000

// Accumulator groups records into fixed-size batches in source order.
// It performs no I/O; the caller writes each batch it hands back.
type Accumulator struct {
	size int
	buf  []RegistryRecord
}

// NewAccumulator returns an accumulator for batches of size records.
func NewAccumulator(size int) *Accumulator {
	if size <= 0 {
		size = DefaultBatchSize
	}
	return &Accumulator{size: size, buf: make([]RegistryRecord, 0, size)}
}

// Add appends a record. When the batch is full it is returned and the
// accumulator starts a new one; otherwise Add returns nil.
func (a *Accumulator) Add(rec RegistryRecord) []RegistryRecord {
	a.buf = append(a.buf, rec)
	if len(a.buf) < a.size {
		return nil
	}
	return a.take()
}

// Flush returns the pending partial batch, or nil when empty.
func (a *Accumulator) Flush() []RegistryRecord {
	if len(a.buf) == 0 {
		return nil
	}
	return a.take()
}

func (a *Accumulator) take() []RegistryRecord {
	batch := a.buf
	// The handed-out slice is owned by the caller from here on.
	a.buf = make([]RegistryRecord, 0, a.size)
	return batch
}
