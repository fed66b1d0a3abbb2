package parser

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/kilonova-lab/specconv/internal/models"
)

const testName = "sim_TP_x_x_x_wind2_x_md0.500_vd0.100_mw0.250_vw0.050.dat"

// synthFile builds T blocks of N rows with M flux values each. Flux values
// encode their (t, w, a) index so reshape errors are visible.
func synthFile(times []float64, n, m int) string {
	var sb strings.Builder
	for ti, t := range times {
		if ti > 0 {
			sb.WriteString("\n\n\n")
		}
		fmt.Fprintf(&sb, "# time %g\n", t)
		for w := 0; w < n; w++ {
			fmt.Fprintf(&sb, "%d.0 %d.0", w, w+1)
			for a := 0; a < m; a++ {
				fmt.Fprintf(&sb, " %d", ti*10000+w*100+a)
			}
			if w < n-1 {
				sb.WriteString("\n")
			}
		}
	}
	return sb.String()
}

func TestParseBytesShape(t *testing.T) {
	cases := []struct {
		name  string
		times []float64
		n, m  int
	}{
		{"single block", []float64{1}, 1, 1},
		{"small cube", []float64{1, 2, 3}, 4, 5},
		{"wide angles", []float64{0.5, 1.5}, 2, 54},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			spec, err := ParseBytes(testName, []byte(synthFile(tc.times, tc.n, tc.m)), Options{})
			if err != nil {
				t.Fatalf("ParseBytes failed: %v", err)
			}
			want := [3]int{len(tc.times), tc.n, tc.m}
			if spec.Flux.Shape != want {
				t.Fatalf("Expected shape %v, got %v", want, spec.Flux.Shape)
			}
			if len(spec.Flux.Data) != spec.Flux.Len() {
				t.Errorf("Expected %d flux values, got %d", spec.Flux.Len(), len(spec.Flux.Data))
			}
			if len(spec.Angles) != tc.m {
				t.Errorf("Expected %d angle bins, got %d", tc.m, len(spec.Angles))
			}
			if len(spec.Wavelengths) != tc.n {
				t.Errorf("Expected %d wavelength bins, got %d", tc.n, len(spec.Wavelengths))
			}
			last := len(tc.times) - 1
			got := spec.Flux.At(last, tc.n-1, tc.m-1)
			wantVal := float64(last*10000 + (tc.n-1)*100 + tc.m - 1)
			if got != wantVal {
				t.Errorf("Expected flux[%d][%d][%d] = %g, got %g", last, tc.n-1, tc.m-1, wantVal, got)
			}
		})
	}
}

func TestAngleBinsFour(t *testing.T) {
	bins := AngleBins(4)
	edges := []float64{1, 0.5, 0, -0.5, -1}
	if len(bins) != 4 {
		t.Fatalf("Expected 4 bins, got %d", len(bins))
	}
	for i, b := range bins {
		if b.Low != math.Acos(edges[i]) || b.High != math.Acos(edges[i+1]) {
			t.Errorf("bin %d: expected (%v, %v), got (%v, %v)",
				i, math.Acos(edges[i]), math.Acos(edges[i+1]), b.Low, b.High)
		}
	}
	if bins[0].Low != 0 || bins[3].High != math.Pi {
		t.Errorf("Expected bins to span [0, pi], got [%v, %v]", bins[0].Low, bins[3].High)
	}
}

func TestAngleBinsContiguous(t *testing.T) {
	bins := AngleBins(11)
	for i := 1; i < len(bins); i++ {
		if bins[i].Low != bins[i-1].High {
			t.Errorf("bin %d low %v does not match previous high %v", i, bins[i].Low, bins[i-1].High)
		}
	}
}

func TestBlockOrderPreserved(t *testing.T) {
	times := []float64{3, 1, 2}
	spec, err := ParseBytes(testName, []byte(synthFile(times, 2, 3)), Options{})
	if err != nil {
		t.Fatalf("ParseBytes failed: %v", err)
	}
	if !reflect.DeepEqual(spec.Time, times) {
		t.Errorf("Expected time %v in file order, got %v", times, spec.Time)
	}
	if spec.Flux.At(0, 0, 0) != 0 || spec.Flux.At(1, 0, 0) != 10000 {
		t.Errorf("Expected flux to follow block order, got %v and %v", spec.Flux.At(0, 0, 0), spec.Flux.At(1, 0, 0))
	}
}

func TestRaggedBlocksShapeError(t *testing.T) {
	content := "# time 1\n0 1 1 2 3\n1 2 4 5 6\n\n\n# time 2\n0 1 1 2\n1 2 4 5"
	_, err := ParseBytes(testName, []byte(content), Options{})
	var shapeErr *ShapeError
	if !errors.As(err, &shapeErr) {
		t.Fatalf("Expected ShapeError, got %v", err)
	}
	if shapeErr.Block != 2 {
		t.Errorf("Expected failing block 2, got %d", shapeErr.Block)
	}
}

func TestRaggedRowsShapeError(t *testing.T) {
	content := "# time 1\n0 1 1 2 3\n1 2 4 5"
	_, err := ParseBytes(testName, []byte(content), Options{})
	var shapeErr *ShapeError
	if !errors.As(err, &shapeErr) {
		t.Fatalf("Expected ShapeError, got %v", err)
	}
}

func TestCompensatingRowCountsShapeError(t *testing.T) {
	// Same total per block, different (N, M) split.
	content := "t 1\n0 1 1 2 3 4 5 6\n1 2 1 2 3 4 5 6\n\n\n" +
		"t 2\n0 1 1 2 3 4\n1 2 1 2 3 4\n2 3 1 2 3 4"
	_, err := ParseBytes(testName, []byte(content), Options{})
	var shapeErr *ShapeError
	if !errors.As(err, &shapeErr) {
		t.Fatalf("Expected ShapeError, got %v", err)
	}
}

func TestIdempotentParse(t *testing.T) {
	content := []byte(synthFile([]float64{0.25, 0.5, 0.75}, 3, 4))
	a, err := ParseBytes(testName, content, Options{})
	if err != nil {
		t.Fatalf("first parse failed: %v", err)
	}
	b, err := ParseBytes(testName, content, Options{})
	if err != nil {
		t.Fatalf("second parse failed: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Error("Expected identical results for identical input")
	}
}

func TestWavelengthPolicy(t *testing.T) {
	content := "t 1\n0 1 5 6\n1 2 7 8\n\n\nt 2\n0 1.5 5 6\n1.5 2 7 8"

	spec, err := ParseBytes(testName, []byte(content), Options{WavelengthPolicy: PolicyLastBlock})
	if err != nil {
		t.Fatalf("last-block policy failed: %v", err)
	}
	want := []models.BinEdges{{Low: 0, High: 1.5}, {Low: 1.5, High: 2}}
	if !reflect.DeepEqual(spec.Wavelengths, want) {
		t.Errorf("Expected last block's bins %v, got %v", want, spec.Wavelengths)
	}
	if len(spec.Warnings) != 1 {
		t.Errorf("Expected 1 warning, got %v", spec.Warnings)
	}

	_, err = ParseBytes(testName, []byte(content), Options{WavelengthPolicy: PolicyStrict})
	var shapeErr *ShapeError
	if !errors.As(err, &shapeErr) {
		t.Fatalf("Expected ShapeError under strict policy, got %v", err)
	}
}

func TestWavelengthWarningsNameOddBlock(t *testing.T) {
	content := "t 1\n0 1 5\n\n\nt 2\n5 6 7\n\n\nt 3\n5 6 8"

	spec, err := ParseBytes(testName, []byte(content), Options{WavelengthPolicy: PolicyLastBlock})
	if err != nil {
		t.Fatalf("last-block policy failed: %v", err)
	}
	if want := []models.BinEdges{{Low: 5, High: 6}}; !reflect.DeepEqual(spec.Wavelengths, want) {
		t.Errorf("Expected bins %v, got %v", want, spec.Wavelengths)
	}
	want := []string{"block 1 wavelength bins differ from block 3; using the last block's table"}
	if !reflect.DeepEqual(spec.Warnings, want) {
		t.Errorf("Expected warnings %q, got %q", want, spec.Warnings)
	}

	_, err = ParseBytes(testName, []byte(content), Options{WavelengthPolicy: PolicyStrict})
	var shapeErr *ShapeError
	if !errors.As(err, &shapeErr) {
		t.Fatalf("Expected ShapeError under strict policy, got %v", err)
	}
	if shapeErr.Block != 2 {
		t.Errorf("Expected strict mode to reject block 2, got block %d", shapeErr.Block)
	}
}

func TestParseWavelengthPolicy(t *testing.T) {
	for in, want := range map[string]WavelengthPolicy{"": PolicyLastBlock, "last": PolicyLastBlock, "strict": PolicyStrict} {
		got, err := ParseWavelengthPolicy(in)
		if err != nil || got != want {
			t.Errorf("ParseWavelengthPolicy(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseWavelengthPolicy("first"); err == nil {
		t.Error("Expected error for unknown policy")
	}
}

func TestParseBytesErrors(t *testing.T) {
	cases := []struct {
		name    string
		file    string
		content string
		check   func(error) bool
	}{
		{"empty file", testName, "  \n\n ", isFormat},
		{"short row", testName, "t 1\n0 1", isFormat},
		{"bad flux", testName, "t 1\n0 1 x", isFormat},
		{"bad time", testName, "time later\n0 1 2", isFormat},
		{"header only", testName, "t 1", isFormat},
		{"bad filename", "spectrum.dat", "t 1\n0 1 2", isMetadata},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseBytes(tc.file, []byte(tc.content), Options{})
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !tc.check(err) {
				t.Errorf("Unexpected error type %T: %v", err, err)
			}
		})
	}
}

func TestParseReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, testName)
	if err := os.WriteFile(path, []byte(synthFile([]float64{1, 2}, 2, 2)), 0644); err != nil {
		t.Fatal(err)
	}
	spec, err := Parse(path, Options{})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if spec.Source != path {
		t.Errorf("Expected source %s, got %s", path, spec.Source)
	}
	if spec.Metadata.Wind != models.WindTwo {
		t.Errorf("Expected wind two, got %v", spec.Metadata.Wind)
	}

	if _, err := Parse(filepath.Join(dir, "missing_"+testName), Options{}); err == nil {
		t.Error("Expected error for missing file")
	}
}

func isFormat(err error) bool {
	var e *FormatError
	return errors.As(err, &e)
}

func isMetadata(err error) bool {
	var e *MetadataError
	return errors.As(err, &e)
}
