package language

import (
	"reflect"
	"testing"
)

func TestCanonical(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{"en", "eng"},
		{"eng", "eng"},
		{"English", "eng"},
		{"fre", "fra"},
		{"ger", "deu"},
		{"chi", "zho"},
		{" JA ", "jpn"},
		{"", ""},
		// Unrecognized codes pass through instead of collapsing to "und".
		{"tlh", "tlh"},
		{"xx", "xx"},
	}
	for _, tc := range cases {
		if got := Canonical(tc.input); got != tc.want {
			t.Errorf("Canonical(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestMatches(t *testing.T) {
	if !Matches("en", "eng") {
		t.Error("en should match eng")
	}
	if !Matches("fre", "fra") {
		t.Error("bibliographic alternate should match")
	}
	if Matches("eng", "jpn") {
		t.Error("distinct languages must not match")
	}
	if Matches("", "") {
		t.Error("empty must not match empty")
	}
}

func TestDisplayName(t *testing.T) {
	if got := DisplayName("jpn"); got != "Japanese" {
		t.Errorf("DisplayName(jpn) = %q", got)
	}
	if got := DisplayName(""); got != "Unknown" {
		t.Errorf("DisplayName(empty) = %q", got)
	}
	if got := DisplayName("tlh"); got != "Tlh" {
		t.Errorf("DisplayName(tlh) = %q", got)
	}
}

func TestExtractFromTags(t *testing.T) {
	if got := ExtractFromTags(map[string]string{"LANGUAGE": "fre"}); got != "fra" {
		t.Errorf("ExtractFromTags = %q, want fra", got)
	}
	if got := ExtractFromTags(nil); got != "" {
		t.Errorf("ExtractFromTags(nil) = %q", got)
	}
}

func TestNormalizeList(t *testing.T) {
	got := NormalizeList([]string{"en", "eng", "FRENCH", "", "ja"})
	want := []string{"eng", "fra", "jpn"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("NormalizeList = %v, want %v", got, want)
	}
}
