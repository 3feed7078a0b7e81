package version_test

import (
	"errors"
	"testing"

	"github.com/bilusteknoloji/cpm/internal/version"
)

func TestRangeMatches(t *testing.T) {
	tests := []struct {
		rangeStr string
		ver      string
		want     bool
	}{
		{"1.0", "1.0", true},
		{"1.0", "0.9", false},
		{">= 1.2, < 2.0", "1.5", true},
		{">= 1.2, < 2.0", "2.0", false},
		{">= 1.2, < 2.0", "1.2", true},
		{"== 1.0", "1.0", true},
		{"== 1.0", "1.1", false},
		{"!= 1.0", "1.0", false},
		{"!= 1.0", "1.1", true},
	}

	for _, tt := range tests {
		t.Run(tt.rangeStr+"_"+tt.ver, func(t *testing.T) {
			r, err := version.ParseRange(tt.rangeStr)
			if err != nil {
				t.Fatalf("ParseRange(%q): %v", tt.rangeStr, err)
			}

			v := version.MustParse(tt.ver)

			if got := v.Satisfies(r); got != tt.want {
				t.Errorf("Satisfies(%q) on %q = %v, want %v", tt.rangeStr, tt.ver, got, tt.want)
			}
		})
	}
}

func TestParseRangeIllegal(t *testing.T) {
	tests := []string{
		">= 2.0, < 1.0",
		"== 1.0, == 2.0",
		"== 1.0, != 1.0",
	}

	for _, rangeStr := range tests {
		t.Run(rangeStr, func(t *testing.T) {
			_, err := version.ParseRange(rangeStr)
			if !errors.Is(err, version.ErrIllegalRange) {
				t.Errorf("ParseRange(%q) error = %v, want ErrIllegalRange", rangeStr, err)
			}
		})
	}
}

func TestMergeCommutativeAndIdempotent(t *testing.T) {
	a, err := version.ParseRange(">= 1.0, < 3.0")
	if err != nil {
		t.Fatal(err)
	}

	b, err := version.ParseRange(">= 2.0, < 4.0")
	if err != nil {
		t.Fatal(err)
	}

	ab, err := version.Merge(a, b)
	if err != nil {
		t.Fatalf("Merge(a,b): %v", err)
	}

	ba, err := version.Merge(b, a)
	if err != nil {
		t.Fatalf("Merge(b,a): %v", err)
	}

	if !ab.Equal(ba) {
		t.Errorf("Merge not commutative: Merge(a,b)=%s, Merge(b,a)=%s", ab, ba)
	}

	aa, err := version.Merge(a, a)
	if err != nil {
		t.Fatalf("Merge(a,a): %v", err)
	}

	if !aa.Equal(a) {
		t.Errorf("Merge not idempotent: Merge(a,a)=%s, a=%s", aa, a)
	}

	want := version.MustParse("2.0")
	if !ab.Matches(want) {
		t.Errorf("merged range %s should match 2.0", ab)
	}

	dontWant := version.MustParse("1.5")
	if ab.Matches(dontWant) {
		t.Errorf("merged range %s should not match 1.5", ab)
	}
}

func TestMergeIllegalRange(t *testing.T) {
	a, err := version.ParseRange(">= 2.0")
	if err != nil {
		t.Fatal(err)
	}

	b, err := version.ParseRange("< 1.0")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := version.Merge(a, b); !errors.Is(err, version.ErrIllegalRange) {
		t.Errorf("Merge(%s, %s) error = %v, want ErrIllegalRange", a, b, err)
	}
}

func TestMergeWithAny(t *testing.T) {
	a, err := version.ParseRange(">= 1.0")
	if err != nil {
		t.Fatal(err)
	}

	merged, err := version.Merge(a, version.Any())
	if err != nil {
		t.Fatal(err)
	}

	if !merged.Equal(a) {
		t.Errorf("Merge(a, Any()) = %s, want %s", merged, a)
	}
}
