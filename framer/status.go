package framer

// Status holds the framer's monotonic observability counters. All
// fields only ever increase between calls to Decoder.ResetStatus.
type Status struct {
	TotalBytes       uint64
	IgnoredBytes     uint64
	Resyncs          uint64
	StructuralErrors uint64
	HeaderCRCErrors  uint64
	PayloadCRCErrors uint64
	DataFrames       uint64
	LinkFrames       uint64
}
