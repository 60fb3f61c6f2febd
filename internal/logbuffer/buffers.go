package logbuffer

import (
	"fmt"

	"github.com/rzbill/strand/internal/atomicbuf"
	"github.com/rzbill/strand/internal/mapped"
)

// LogBuffers splits one log region into its three term buffers and the
// metadata section. The region is either a mapped file shared with the
// driver or a plain slice in tests.
type LogBuffers struct {
	file       *mapped.File
	terms      [PartitionCount]*atomicbuf.Buffer
	meta       *MetaData
	termLength int32
}

// WrapSlice wraps an in-memory log region.
func WrapSlice(mem []byte) (*LogBuffers, error) {
	return wrap(nil, mem)
}

// MapExisting maps a driver-created log file.
func MapExisting(path string) (*LogBuffers, error) {
	f, err := mapped.OpenFile(path)
	if err != nil {
		return nil, err
	}
	lb, err := wrap(f, f.Mem())
	if err != nil {
		f.Close()
		return nil, err
	}
	return lb, nil
}

// MapNew creates and maps a fresh log file sized for termLength. The caller
// initialises the metadata section before sharing the path.
func MapNew(path string, termLength int32) (*LogBuffers, error) {
	if err := CheckTermLength(termLength); err != nil {
		return nil, err
	}
	f, err := mapped.CreateFile(path, ComputeLogLength(termLength))
	if err != nil {
		return nil, err
	}
	lb, err := wrap(f, f.Mem())
	if err != nil {
		f.Close()
		return nil, err
	}
	return lb, nil
}

func wrap(f *mapped.File, mem []byte) (*LogBuffers, error) {
	logLength := int64(len(mem))
	if logLength <= int64(LogMetaDataLength) {
		return nil, fmt.Errorf("logbuffer: region of %d bytes too small for a log", logLength)
	}
	termLength := ComputeTermLength(logLength)
	if err := CheckTermLength(termLength); err != nil {
		return nil, err
	}
	if ComputeLogLength(termLength) != logLength {
		return nil, fmt.Errorf("logbuffer: region length %d does not decompose into %d terms plus metadata", logLength, PartitionCount)
	}

	whole := atomicbuf.Wrap(mem)
	lb := &LogBuffers{file: f, termLength: termLength}
	for i := 0; i < PartitionCount; i++ {
		lb.terms[i] = whole.Slice(int32(i)*termLength, termLength)
	}
	lb.meta = WrapMetaData(whole.Slice(termLength*PartitionCount, LogMetaDataLength))
	return lb, nil
}

// Term returns the term buffer for a partition index.
func (lb *LogBuffers) Term(partition int) *atomicbuf.Buffer { return lb.terms[partition] }

// Meta returns the metadata view.
func (lb *LogBuffers) Meta() *MetaData { return lb.meta }

// TermLength returns the per-partition term length.
func (lb *LogBuffers) TermLength() int32 { return lb.termLength }

// Path returns the backing file path, or empty for slice-backed logs.
func (lb *LogBuffers) Path() string {
	if lb.file == nil {
		return ""
	}
	return lb.file.Path()
}

// Close unmaps the backing file if any.
func (lb *LogBuffers) Close() error {
	if lb.file == nil {
		return nil
	}
	return lb.file.Close()
}
