package occurrence_test

import (
	"testing"
	"time"

	"moim/src-server/occurrence"
)

func TestSplitByLocalDaySingleDay(t *testing.T) {
	seoul, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		t.Fatal(err)
	}

	start := time.Date(2024, 6, 30, 10, 0, 0, 0, seoul)
	end := time.Date(2024, 6, 30, 12, 0, 0, 0, seoul)
	slices := occurrence.SplitByLocalDay(start, end, seoul)
	if len(slices) != 1 {
		t.Fatalf("expected 1 slice, got %d", len(slices))
	}
	if !slices[0].Start.Equal(start) || !slices[0].End.Equal(end) {
		t.Error("single-day interval should come back unchanged", slices[0])
	}
}

func TestSplitByLocalDayAcrossMidnight(t *testing.T) {
	seoul, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		t.Fatal(err)
	}

	start := time.Date(2024, 6, 30, 22, 0, 0, 0, seoul)
	end := time.Date(2024, 7, 1, 2, 0, 0, 0, seoul)
	slices := occurrence.SplitByLocalDay(start, end, seoul)
	if len(slices) != 2 {
		t.Fatalf("expected 2 slices, got %d", len(slices))
	}

	midnight := time.Date(2024, 7, 1, 0, 0, 0, 0, seoul)
	if !slices[0].Start.Equal(start) {
		t.Error("first slice should start at the original start", slices[0].Start)
	}
	if !slices[0].End.Equal(midnight) || !slices[1].Start.Equal(midnight) {
		t.Error("interior boundary should be local midnight", slices[0].End, slices[1].Start)
	}
	if !slices[1].End.Equal(end) {
		t.Error("last slice should end at the original end", slices[1].End)
	}
}

func TestSplitByLocalDayReconstructsInterval(t *testing.T) {
	seoul, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		t.Fatal(err)
	}

	start := time.Date(2024, 3, 1, 13, 30, 0, 0, seoul)
	end := time.Date(2024, 3, 5, 9, 15, 0, 0, seoul)
	slices := occurrence.SplitByLocalDay(start, end, seoul)
	if len(slices) != 5 {
		t.Fatalf("expected 5 slices, got %d", len(slices))
	}

	var total time.Duration
	for i, slice := range slices {
		total += slice.End.Sub(slice.Start)
		if i > 0 && !slices[i-1].End.Equal(slice.Start) {
			t.Error("slices should be contiguous", i)
		}
		if i > 0 {
			local := slice.Start.In(seoul)
			if local.Hour() != 0 || local.Minute() != 0 || local.Second() != 0 {
				t.Error("interior boundary should be local midnight", local)
			}
		}
	}
	if total != end.Sub(start) {
		t.Error("slice durations should sum to the original duration", total)
	}
}

func TestSplitByLocalDayInvertedInterval(t *testing.T) {
	seoul, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		t.Fatal(err)
	}

	start := time.Date(2024, 6, 30, 12, 0, 0, 0, seoul)
	end := time.Date(2024, 6, 30, 10, 0, 0, 0, seoul)
	slices := occurrence.SplitByLocalDay(start, end, seoul)
	if len(slices) != 1 {
		t.Fatalf("inverted interval should come back unsplit, got %d slices", len(slices))
	}
	if !slices[0].Start.Equal(start) || !slices[0].End.Equal(end) {
		t.Error("inverted interval should come back unchanged")
	}
}
