package match

import (
	"reflect"
	"testing"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"aspirin/paracetamol", []string{"aspirin", "paracetamol"}},
		{"a, b/c", []string{"a", " b", "c"}},
		{"aspirin/aspirin", []string{"aspirin"}},
		{"single", []string{"single"}},
		{"x/", []string{"x", ""}},
	}
	for _, tt := range tests {
		got := Tokenize(tt.in)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Tokenize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
