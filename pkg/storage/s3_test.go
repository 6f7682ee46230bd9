package storage

import "testing"

func TestValidateImageType(t *testing.T) {
	cases := []struct {
		contentType string
		filename    string
		want        bool
	}{
		{"image/jpeg", "photo.jpg", true},
		{"image/png", "photo.png", true},
		{"", "photo.webp", true},
		{"", "PHOTO.JPG", true},
		{"application/pdf", "doc.pdf", false},
		{"", "video.mp4", false},
		{"text/html", "page.html", false},
	}
	for _, c := range cases {
		if got := ValidateImageType(c.contentType, c.filename); got != c.want {
			t.Errorf("ValidateImageType(%q, %q) = %v, want %v", c.contentType, c.filename, got, c.want)
		}
	}
}

func TestContentTypeForFilename(t *testing.T) {
	if ct := ContentTypeForFilename("a.png"); ct != "image/png" {
		t.Errorf("png content type = %q", ct)
	}
	if ct := ContentTypeForFilename("a.bin"); ct != "application/octet-stream" {
		t.Errorf("fallback content type = %q", ct)
	}
}

func TestObjectKeys(t *testing.T) {
	if k := ProductImageKey("p1", "hero.jpg"); k != "products/p1/hero.jpg" {
		t.Errorf("product key = %q", k)
	}
	// path traversal in filename is stripped
	if k := ProductImageKey("p1", "../../etc/passwd"); k != "products/p1/passwd" {
		t.Errorf("sanitized key = %q", k)
	}
	if k := ChatExportKey("s1"); k != "exports/s1/chat.json" {
		t.Errorf("export key = %q", k)
	}
}
