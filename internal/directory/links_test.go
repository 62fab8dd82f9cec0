package directory

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeLink(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"whitespace", "   \t", ""},
		{"bare host", "calendly.com/x", "https://calendly.com/x"},
		{"www https", "https://www.calendly.com/x", "https://calendly.com/x"},
		{"www http", "http://www.calendly.com/x", "https://calendly.com/x"},
		{"plain http", "http://calendly.com/x", "https://calendly.com/x"},
		{"already canonical", "https://calendly.com/x", "https://calendly.com/x"},
		{"upper case host", "HTTPS://WWW.CALENDLY.COM/Jane", "https://calendly.com/Jane"},
		{"bare www host", "www.calendly.com/x", "https://calendly.com/x"},
		{"site relative", "https://www.meetingsfor1000.com/calendly.com/xyz", "https://calendly.com/xyz"},
		{"site relative without www", "http://meetingsfor1000.com/calendly.com/xyz", "https://calendly.com/xyz"},
		{"site relative twice", "https://meetingsfor1000.com/https://meetingsfor1000.com/calendly.com/a", "https://calendly.com/a"},
		{"site root only", "https://meetingsfor1000.com/", ""},
		{"padded", "  calendly.com/x  ", "https://calendly.com/x"},
		{"other host untouched", "https://cal.com/jane", "https://cal.com/jane"},
		{"no path bare host untouched", "calendly.com", "calendly.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeLink(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, NormalizeLink(got), "normalize must be idempotent")
		})
	}
}

func TestNormalizeLink_IdempotentOnOddInputs(t *testing.T) {
	inputs := []string{
		"https://meetingsfor1000.com/ calendly.com/x",
		"HTTP://WWW.MEETINGSFOR1000.COM/www.calendly.com/y",
		"https://www.calendly.com",
		"http://calendly.comevil.com",
		",,,",
		"mailto:someone@example.com",
	}
	for _, in := range inputs {
		once := NormalizeLink(in)
		assert.Equal(t, once, NormalizeLink(once), "input %q", in)
	}
}

func TestParseLinks(t *testing.T) {
	assert.Nil(t, ParseLinks(""))
	assert.Nil(t, ParseLinks(" , ,"))
	assert.Equal(t,
		[]string{"https://calendly.com/a", "https://calendly.com/b"},
		ParseLinks("calendly.com/a, https://www.calendly.com/b ,"),
	)
}

func TestNormalizeLinks(t *testing.T) {
	got := NormalizeLinks([]string{"http://calendly.com/a", "", "https://calendly.com/b"})
	assert.Equal(t, []string{"https://calendly.com/a", "https://calendly.com/b"}, got)
}
