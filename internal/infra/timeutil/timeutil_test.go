package timeutil_test

import (
	"testing"
	"time"

	"github.com/bebra552/TgGroopSoft/internal/infra/timeutil"
)

func TestParseLocation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		in         string
		wantOffset int
		wantErr    bool
	}{
		{name: "UTC", in: "UTC", wantOffset: 0},
		{name: "смещение с двоеточием", in: "+03:00", wantOffset: 3 * 3600},
		{name: "смещение без двоеточия", in: "-0730", wantOffset: -(7*3600 + 30*60)},
		{name: "GMT префикс", in: "GMT+5", wantOffset: 5 * 3600},
		{name: "пустая строка", in: "  ", wantErr: true},
		{name: "мусор", in: "Mars/Olympus", wantErr: true},
		{name: "слишком большое смещение", in: "+15", wantErr: true},
	}

	ref := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			loc, err := timeutil.ParseLocation(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("ParseLocation(%q) expected error", tc.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseLocation(%q) unexpected error: %v", tc.in, err)
			}
			if _, off := ref.In(loc).Zone(); off != tc.wantOffset {
				t.Fatalf("ParseLocation(%q) offset = %d, want %d", tc.in, off, tc.wantOffset)
			}
		})
	}
}

func TestParseLocationLocal(t *testing.T) {
	t.Parallel()

	loc, err := timeutil.ParseLocation("Local")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loc != time.Local {
		t.Fatalf("expected time.Local, got %v", loc)
	}
}
