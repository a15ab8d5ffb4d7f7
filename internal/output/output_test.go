package output

import (
	"bytes"
	"strings"
	"testing"
)

func TestPlural(t *testing.T) {
	if Plural(1, "file", "files") != "file" {
		t.Error("singular expected for 1")
	}
	if Plural(0, "file", "files") != "files" {
		t.Error("plural expected for 0")
	}
	if Count(3, "entry", "entries") != "3 entries" {
		t.Error("unexpected count rendering:", Count(3, "entry", "entries"))
	}
}

func TestFilesize(t *testing.T) {
	cases := map[int64]string{
		1:               "1 byte",
		1000:            "1000 bytes",
		75 * 1024:       "75 KiB (76800 bytes)",
		3 * 1024 * 1024: "3.0 MiB (3145728 bytes)",
	}
	for size, expected := range cases {
		if actual := Filesize(size); actual != expected {
			t.Errorf("size %d: expected %q but got %q", size, expected, actual)
		}
	}
}

func TestVisualFileTree(t *testing.T) {
	tree := NewVisualFileTree("volume 1")
	tree.InsertDir("dir")
	tree.InsertPath("dir/file", "")
	tree.InsertPath("dir/sub/deep", "~ ")
	tree.InsertPath("top", "")
	tree.InsertPath("dir", "") //known directory, not added twice

	rendered := tree.Render()
	lines := strings.Split(strings.TrimSpace(rendered), "\n")
	if len(lines) != 6 {
		t.Fatalf("expected 6 lines but got:\n%s", rendered)
	}
	for i, suffix := range []string{"volume 1", "dir", "file", "sub", "~ deep", "top"} {
		if !strings.HasSuffix(lines[i], suffix) {
			t.Errorf("line %d: expected %q but got %q", i, suffix, lines[i])
		}
	}
	if strings.Index(lines[4], "~") <= strings.Index(lines[3], "sub") {
		t.Error("deep entry must be nested below sub:\n" + rendered)
	}
}

func TestPrinter(t *testing.T) {
	var out, diag bytes.Buffer
	p := NewPrinterTo(&out, &diag, []Class{Required, Error}, true)

	p.Out(Required, "%d volumes\n", 2)
	p.Out(Verbose, "hidden\n")
	p.Out(Error, "broken\n")

	if out.String() != "2 volumes\n" {
		t.Errorf("unexpected output: %q", out.String())
	}
	if diag.String() != TerminalFormatAsError("broken")+"\n" {
		t.Errorf("unexpected diagnosis: %q", diag.String())
	}
}
