package inspect

import (
	"sort"

	"github.com/rzbill/strand/internal/logbuffer"
)

// FrameInfo is one published frame with its derived stream coordinates.
type FrameInfo struct {
	logbuffer.Frame
	Partition      int
	StreamPosition int64
}

// Scan decodes every published frame of a mapped log, sorted by stream
// position. Pad frames are included; callers filter them out if unwanted.
func Scan(lb *logbuffer.LogBuffers) []FrameInfo {
	meta := lb.Meta()
	initialTermID := meta.InitialTermID()
	shift := logbuffer.PositionBitsToShift(lb.TermLength())

	var frames []FrameInfo
	for partition := 0; partition < logbuffer.PartitionCount; partition++ {
		for _, f := range logbuffer.ScanTerm(lb.Term(partition), 0) {
			// A zeroed partition scans as empty. Frames are not filtered by
			// term id, so a frame left from an earlier cycle is included.
			frames = append(frames, FrameInfo{
				Frame:          f,
				Partition:      partition,
				StreamPosition: logbuffer.ComputePosition(f.TermID, f.TermOffset, shift, initialTermID),
			})
		}
	}
	sort.Slice(frames, func(i, j int) bool { return frames[i].StreamPosition < frames[j].StreamPosition })
	return frames
}

// ScanFile maps path read-only for the duration of the scan.
func ScanFile(path string) ([]FrameInfo, error) {
	lb, err := logbuffer.MapExisting(path)
	if err != nil {
		return nil, err
	}
	defer lb.Close()
	return Scan(lb), nil
}
