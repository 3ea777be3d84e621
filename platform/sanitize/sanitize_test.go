package sanitize

import "testing"

func TestTextStripsMarkupAndCollapsesWhitespace(t *testing.T) {
	if got := Text("<b>Land</b>  Cruiser "); got != "Land Cruiser" {
		t.Fatalf("Text = %q, want %q", got, "Land Cruiser")
	}
	if got := Text("Toyota"); got != "Toyota" {
		t.Fatalf("plain text must pass through, got %q", got)
	}
}

func TestStripHTMLCatchesEntityEncodedTags(t *testing.T) {
	if got := StripHTML("&lt;script&gt;x&lt;/script&gt;GR Sport"); got != "xGR Sport" {
		t.Fatalf("StripHTML = %q", got)
	}
}
