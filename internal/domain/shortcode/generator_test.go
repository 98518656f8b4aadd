package shortcode

import (
	"strings"
	"testing"
)

func TestGenerate_LengthAndAlphabet(t *testing.T) {
	for _, length := range []int{1, 2, 3, 8, 16} {
		for i := 0; i < 200; i++ {
			got := Generate(length)
			if len(got) != length {
				t.Fatalf("length %d: got %q (len %d)", length, got, len(got))
			}
			for _, r := range got {
				if !strings.ContainsRune(Alphabet, r) {
					t.Fatalf("char %q outside alphabet in %q", r, got)
				}
			}
		}
	}
}

func TestGenerate_NonPositiveLength(t *testing.T) {
	if got := Generate(0); got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}
	if got := Generate(-3); got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}
}

func TestGenerate_NotConstant(t *testing.T) {
	// Con longitud 8 la probabilidad de repetir 50 veces el mismo valor es
	// despreciable; si pasa, el generador está roto.
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		seen[Generate(8)] = true
	}
	if len(seen) < 2 {
		t.Fatalf("generator produced a constant value")
	}
}
