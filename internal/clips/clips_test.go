package clips

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testTimeline() Timeline {
	scores := []float64{0.2, 0.8, 0.5, 0.1}
	t := make(Timeline, len(scores))
	for i, s := range scores {
		t[i] = ScoredWindow{
			FeatureWindow: FeatureWindow{Start: time.Duration(i) * 2 * time.Second, End: time.Duration(i+1) * 2 * time.Second},
			Engagement:    s,
		}
	}
	return t
}

func TestTimelineIntegral(t *testing.T) {
	tl := testTimeline()

	tests := []struct {
		name       string
		start, end time.Duration
		want       float64
	}{
		{"whole", 0, 8 * time.Second, 3.2},
		{"one window", 2 * time.Second, 4 * time.Second, 1.6},
		{"partial windows", time.Second, 5 * time.Second, 0.2 + 1.6 + 0.5},
		{"empty", 3 * time.Second, 3 * time.Second, 0},
		{"past end", 8 * time.Second, 10 * time.Second, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tl.Integral(tt.start, tt.end); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Integral(%s, %s) = %f, want %f", tt.start, tt.end, got, tt.want)
			}
		})
	}

	if tl.Duration() != 8*time.Second || (Timeline{}).Duration() != 0 {
		t.Error("unexpected timeline duration")
	}
	if m := tl.Mean(2*time.Second, 6*time.Second); math.Abs(m-0.65) > 1e-9 {
		t.Errorf("expected mean 0.65, got %f", m)
	}
	if tl.Mean(4*time.Second, 2*time.Second) != 0 {
		t.Error("inverted range should have zero mean")
	}
}

func TestCandidateOverlaps(t *testing.T) {
	a := Candidate{Start: 10 * time.Second, End: 20 * time.Second}
	tests := []struct {
		b    Candidate
		want bool
	}{
		{Candidate{Start: 15 * time.Second, End: 25 * time.Second}, true},
		{Candidate{Start: 20 * time.Second, End: 30 * time.Second}, false},
		{Candidate{Start: 0, End: 10 * time.Second}, false},
		{Candidate{Start: 12 * time.Second, End: 14 * time.Second}, true},
	}
	for _, tt := range tests {
		if got := a.Overlaps(tt.b); got != tt.want || tt.b.Overlaps(a) != tt.want {
			t.Errorf("Overlaps(%v) = %v, want %v", tt.b, got, tt.want)
		}
	}
}

func TestNewSourceItemClassifies(t *testing.T) {
	dir := t.TempDir()
	local := filepath.Join(dir, "lecture.mp4")
	if err := os.WriteFile(local, nil, 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		descriptor string
		kind       SourceKind
		name       string
	}{
		{local, SourceLocal, "lecture"},
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", SourceRemote, "dQw4w9WgXcQ"},
		{"https://youtu.be/dQw4w9WgXcQ", SourceRemote, "dQw4w9WgXcQ"},
		{"dQw4w9WgXcQ", SourceRemote, "dQw4w9WgXcQ"},
		{"missing file.mov", SourceLocal, "missing_file"},
		{"???.mp4", SourceLocal, "source"},
	}
	for _, tt := range tests {
		item := NewSourceItem(4, "  "+tt.descriptor+" ")
		if item.Kind != tt.kind {
			t.Errorf("%s: expected %s, got %s", tt.descriptor, tt.kind, item.Kind)
		}
		if got := item.Name(); got != tt.name {
			t.Errorf("%s: expected name %q, got %q", tt.descriptor, tt.name, got)
		}
		if item.Index != 4 || item.ID == "" {
			t.Errorf("%s: index or id not assigned: %+v", tt.descriptor, item)
		}
	}
}

func TestNewSourceItemsKeepsOrder(t *testing.T) {
	items := NewSourceItems([]string{"a.mp4", "b.mp4", "c.mp4"})
	seen := map[string]bool{}
	for i, item := range items {
		if item.Index != i {
			t.Errorf("expected index %d, got %d", i, item.Index)
		}
		if seen[item.ID] {
			t.Errorf("duplicate id %s", item.ID)
		}
		seen[item.ID] = true
	}
}

func TestPlatformValidate(t *testing.T) {
	valid := Platform{Name: "tiktok", Width: 1080, Height: 1920, FPS: 30, Format: "mp4", MinDuration: 3 * time.Second, MaxDuration: time.Minute}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid platform rejected: %v", err)
	}
	if r := valid.AspectRatio(); math.Abs(r-0.5625) > 1e-9 {
		t.Errorf("expected 9:16 aspect, got %f", r)
	}

	for name, mod := range map[string]func(*Platform){
		"no name":      func(p *Platform) { p.Name = "" },
		"zero width":   func(p *Platform) { p.Width = 0 },
		"negative fps": func(p *Platform) { p.FPS = -1 },
		"no format":    func(p *Platform) { p.Format = "" },
		"min over max": func(p *Platform) { p.MinDuration = 2 * time.Minute },
	} {
		p := valid
		mod(&p)
		if err := p.Validate(); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}
