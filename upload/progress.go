package upload

// Progress is reported after each chunk transition. Delivery is
// monotonic in UploadedChunks/UploadedBytes even though chunks may
// complete out of order on the wire (spec.md §4.6 "Progress reporting").
type Progress struct {
	TotalBytes     int64
	UploadedBytes  int64
	TotalChunks    int
	UploadedChunks int
}
