package media

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	contractx "github.com/tanpawarit/chative-fintech-support/agent/contract"
)

type fakeTranscriber struct {
	text     string
	err      error
	lastMime string
	calls    int
}

func (f *fakeTranscriber) Transcribe(_ context.Context, _ []byte, mimeType string) (string, error) {
	f.calls++
	f.lastMime = mimeType
	return f.text, f.err
}

type fakeDescriber struct {
	desc        Description
	err         error
	lastCaption string
}

func (f *fakeDescriber) Describe(_ context.Context, _ []byte, _ string, caption string) (Description, error) {
	f.lastCaption = caption
	return f.desc, f.err
}

func attachment(mime string, payload []byte) *contractx.Attachment {
	return &contractx.Attachment{Base64: base64.StdEncoding.EncodeToString(payload), MimeType: mime, FileName: "f"}
}

func TestNormalizeAudioAddsTag(t *testing.T) {
	t.Parallel()

	tr := &fakeTranscriber{text: "j'ai envoyé dix mille francs"}
	n := NewNormalizer(tr, nil, Config{})

	got := n.Normalize(context.Background(), "", attachment("audio/ogg; codecs=opus", []byte("voice")))
	if got != AudioTag+" j'ai envoyé dix mille francs" {
		t.Fatalf("unexpected normalized text: %q", got)
	}
	if tr.lastMime != "audio/ogg; codecs=opus" {
		t.Fatalf("unexpected mime passed: %q", tr.lastMime)
	}
}

func TestNormalizeImageKeepsUserText(t *testing.T) {
	t.Parallel()

	d := &fakeDescriber{desc: Description{Type: "receipt", Text: "Reçu T-Money de 10000 FCFA, statut échoué."}}
	n := NewNormalizer(nil, d, Config{})

	got := n.Normalize(context.Background(), "Regardez mon reçu", attachment("image/png", []byte("png")))
	if !strings.HasPrefix(got, "Regardez mon reçu\n\n"+ImageTag) {
		t.Fatalf("unexpected normalized text: %q", got)
	}
	if !strings.Contains(got, "(type: receipt)") {
		t.Fatalf("missing detected type: %q", got)
	}
	if d.lastCaption != "Regardez mon reçu" {
		t.Fatalf("caption not forwarded: %q", d.lastCaption)
	}
}

func TestNormalizeDropsOnFailure(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cases := []struct {
		name string
		n    *Normalizer
		att  *contractx.Attachment
	}{
		{name: "unsupported", n: NewNormalizer(&fakeTranscriber{text: "x"}, nil, Config{}), att: attachment("application/pdf", []byte("pdf"))},
		{name: "transcription error", n: NewNormalizer(&fakeTranscriber{err: errors.New("boom")}, nil, Config{}), att: attachment("audio/mpeg", []byte("mp3"))},
		{name: "not configured", n: NewNormalizer(nil, nil, Config{}), att: attachment("image/jpeg", []byte("jpg"))},
		{name: "too large", n: NewNormalizer(&fakeTranscriber{text: "x"}, nil, Config{MaxAudioBytes: 2}), att: attachment("audio/wav", []byte("wave"))},
		{name: "bad base64", n: NewNormalizer(&fakeTranscriber{text: "x"}, nil, Config{}), att: &contractx.Attachment{Base64: "%%%", MimeType: "audio/ogg"}},
		{name: "empty transcript", n: NewNormalizer(&fakeTranscriber{text: "  "}, nil, Config{}), att: attachment("audio/ogg", []byte("ogg"))},
	}
	for _, tc := range cases {
		if got := tc.n.Normalize(ctx, "  Aide  ", tc.att); got != "Aide" {
			t.Fatalf("%s: expected original text, got %q", tc.name, got)
		}
	}
}

func TestNormalizeWithoutAttachment(t *testing.T) {
	t.Parallel()

	tr := &fakeTranscriber{text: "x"}
	n := NewNormalizer(tr, nil, Config{})
	if got := n.Normalize(context.Background(), "Bonjour", nil); got != "Bonjour" {
		t.Fatalf("unexpected text: %q", got)
	}
	if tr.calls != 0 {
		t.Fatal("transcriber must not be called")
	}
}

func TestDecodeBase64DataURL(t *testing.T) {
	t.Parallel()

	raw := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("hello"))
	data, err := decodeBase64(raw)
	if err != nil || string(data) != "hello" {
		t.Fatalf("decodeBase64() = %q, %v", data, err)
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := map[string]Kind{
		"audio/ogg; codecs=opus": KindAudio,
		"AUDIO/AMR":              KindAudio,
		"image/webp":             KindImage,
		"video/mp4":              KindUnsupported,
		"":                       KindUnsupported,
	}
	for mime, want := range cases {
		if got := Classify(mime); got != want {
			t.Fatalf("Classify(%q) = %s, want %s", mime, got, want)
		}
	}
	if audioExtension("audio/x-m4a") != "m4a" || audioExtension("audio/unknown") != "ogg" {
		t.Fatal("unexpected audio extension mapping")
	}
}

func TestParseDescription(t *testing.T) {
	t.Parallel()

	d := ParseDescription("TYPE: receipt\nDESCRIPTION: Reçu Flooz de 2000 FCFA.\nRéférence PEN-42.")
	if d.Type != "receipt" || d.Text != "Reçu Flooz de 2000 FCFA.\nRéférence PEN-42." {
		t.Fatalf("unexpected description: %#v", d)
	}
	d = ParseDescription("Une photo floue.")
	if d.Type != "unknown" || d.Text != "Une photo floue." {
		t.Fatalf("unexpected fallback description: %#v", d)
	}
}
