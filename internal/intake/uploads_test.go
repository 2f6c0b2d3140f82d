package intake

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func fixedUploads(t *testing.T) *Uploads {
	t.Helper()
	u, err := NewUploads(filepath.Join(t.TempDir(), "records"))
	if err != nil {
		t.Fatal(err)
	}
	u.now = func() time.Time { return time.UnixMilli(1708881234000) }
	return u
}

func TestUploadsSave(t *testing.T) {
	u := fixedUploads(t)

	path, err := u.Save("meeting.m4a", strings.NewReader("fake-audio"))
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(u.Dir(), "1708881234000-meeting.m4a"); path != want {
		t.Errorf("path = %q, want %q", path, want)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "fake-audio" {
		t.Errorf("content = %q", data)
	}
}

func TestUploadsSave_SameMillisecond(t *testing.T) {
	u := fixedUploads(t)

	p1, err := u.Save("a.mp3", strings.NewReader("1"))
	if err != nil {
		t.Fatal(err)
	}
	p2, err := u.Save("a.mp3", strings.NewReader("2"))
	if err != nil {
		t.Fatal(err)
	}
	if p1 == p2 {
		t.Fatalf("uploads collided on %q", p1)
	}
	if filepath.Base(p2) != "1708881234001-a.mp3" {
		t.Errorf("second path = %q", p2)
	}
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"clip.wav", "clip.wav"},
		{"../../etc/passwd", "passwd"},
		{`C:\Users\me\voice.m4a`, "voice.m4a"},
		{"", "upload"},
		{"..", "upload"},
		{"/", "upload"},
	}
	for _, tt := range tests {
		if got := sanitizeName(tt.in); got != tt.want {
			t.Errorf("sanitizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestUploadsAdopt(t *testing.T) {
	u := fixedUploads(t)
	src := filepath.Join(t.TempDir(), "dropped.ogg")
	if err := os.WriteFile(src, []byte("ogg"), 0o644); err != nil {
		t.Fatal(err)
	}

	path, err := u.Adopt(src)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(path) != "1708881234000-dropped.ogg" {
		t.Errorf("path = %q", path)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Error("source should be moved away")
	}
	if data, _ := os.ReadFile(path); string(data) != "ogg" {
		t.Errorf("content = %q", data)
	}
}

func TestUploads_Owns(t *testing.T) {
	u, err := NewUploads(filepath.Join(t.TempDir(), "records"))
	if err != nil {
		t.Fatal(err)
	}
	dir := u.Dir()
	tests := []struct {
		name string
		path string
		want bool
	}{
		{"inside", filepath.Join(dir, "1-a.wav"), true},
		{"nested", filepath.Join(dir, "sub", "b.wav"), true},
		{"dir_itself", dir, false},
		{"parent_escape", filepath.Join(dir, "..", "a.wav"), false},
		{"sibling_prefix", dir + "-other" + string(filepath.Separator) + "a.wav", false},
		{"elsewhere", filepath.Join(t.TempDir(), "a.wav"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			abs, ok := u.Owns(tt.path)
			if ok != tt.want {
				t.Fatalf("Owns(%q) = %v, want %v", tt.path, ok, tt.want)
			}
			if ok && !filepath.IsAbs(abs) {
				t.Errorf("Owns returned relative path %q", abs)
			}
		})
	}
}
