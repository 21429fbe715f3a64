package domain

import "testing"

func TestNormalizeAddress(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"whatsapp:+1 (555) 123-4567", "15551234567"},
		{"+15551234567", "15551234567"},
		{"  whatsapp:+15551234567  ", "15551234567"},
		{"User42@Example.com", "user42@example.com"},
		{"", ""},
	}
	for _, c := range cases {
		if got := NormalizeAddress(c.in); got != c.want {
			t.Errorf("NormalizeAddress(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestTypeForContent(t *testing.T) {
	cases := []struct {
		name  string
		body  string
		media []MediaAttachment
		want  InteractionType
	}{
		{"text only", "hello", nil, TypeText},
		{"image wins over body", "look", []MediaAttachment{{ContentType: "image/jpeg"}}, TypeImage},
		{"audio", "", []MediaAttachment{{ContentType: "audio/ogg"}}, TypeAudio},
		{"video", "", []MediaAttachment{{ContentType: "video/mp4"}}, TypeVideo},
		{"unknown content type is a document", "", []MediaAttachment{{ContentType: "application/x-unknown"}}, TypeDocument},
		{"first attachment decides", "", []MediaAttachment{{ContentType: "audio/mpeg"}, {ContentType: "image/png"}}, TypeAudio},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := TypeForContent(c.body, c.media); got != c.want {
				t.Errorf("got %s, want %s", got, c.want)
			}
		})
	}
}

func TestPlaceholder(t *testing.T) {
	if TypeImage.Placeholder() != "Image message" {
		t.Errorf("unexpected placeholder: %q", TypeImage.Placeholder())
	}
	if TypeText.Placeholder() == "" {
		t.Error("text placeholder must not be empty")
	}
}
