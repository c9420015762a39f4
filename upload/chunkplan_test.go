package upload_test

import (
	"reflect"
	"testing"

	"github.com/cloudmega/megasdk/upload"
)

// TestPlanChunksS2 reproduces spec.md §8 S2 literally.
func TestPlanChunksS2(t *testing.T) {
	const size = 3145728 // 3 MiB
	want := []upload.Chunk{
		{Offset: 0, Length: 131072},
		{Offset: 131072, Length: 262144},
		{Offset: 393216, Length: 393216},
		{Offset: 786432, Length: 524288},
		{Offset: 1310720, Length: 655360},
		{Offset: 1966080, Length: 786432},
		{Offset: 2752512, Length: 393216},
	}

	got := upload.PlanChunks(size)
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("PlanChunks(%d) =\n%+v\nwant\n%+v", size, got, want)
	}

	var total int64
	for _, c := range got {
		total += c.Length
	}
	if total != size {
		t.Errorf("chunk lengths sum to %d, want %d", total, size)
	}
}

func TestPlanChunksMonotonicAndCapped(t *testing.T) {
	got := upload.PlanChunks(10 * 1024 * 1024)
	var total int64
	for i, c := range got {
		if c.Length > 1048576 {
			t.Errorf("chunk %d length %d exceeds 1 MiB cap", i, c.Length)
		}
		if i > 0 && c.Length < got[i-1].Length && i != len(got)-1 {
			t.Errorf("chunk %d length %d is smaller than chunk %d's %d (non-final chunks must be non-decreasing)", i, c.Length, i-1, got[i-1].Length)
		}
		total += c.Length
	}
	if total != 10*1024*1024 {
		t.Errorf("chunk lengths sum to %d, want %d", total, 10*1024*1024)
	}
}

func TestPlanChunksEmptySource(t *testing.T) {
	if got := upload.PlanChunks(0); got != nil {
		t.Errorf("PlanChunks(0) = %v, want nil", got)
	}
}
