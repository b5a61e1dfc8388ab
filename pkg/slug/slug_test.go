package slug

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMake(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Margherita Pizza", "margherita-pizza"},
		{"  Tomato   Soup  ", "tomato-soup"},
		{"Crème Brûlée!", "creme-brulee"},
		{"Fish & Chips", "fish-and-chips"},
		{"Çorba", "corba"},
		{"Coke 330ml", "coke-330ml"},
		{"---", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, Make(tt.input))
		})
	}
}

func TestUnique(t *testing.T) {
	used := map[string]bool{"caesar-salad": true, "caesar-salad-2": true}
	taken := func(s string) bool { return used[s] }

	assert.Equal(t, "caesar-salad-3", Unique("Caesar Salad", taken))
	assert.Equal(t, "greek-salad", Unique("Greek Salad", taken))
	assert.Equal(t, "item", Unique("!!!", taken))
}

func TestReference(t *testing.T) {
	assert.Equal(t, "ORD-1A2B3C4D", Reference("ORD", "1a2b3c4d-5e6f-7a8b", 8))
	assert.Equal(t, "ORD-AB", Reference("ORD", "a-b", 8))
	assert.Equal(t, "ORD-", Reference("ORD", "abc", 0))
}
