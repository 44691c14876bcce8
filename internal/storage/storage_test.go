package storage

import (
	"context"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectName(t *testing.T) {
	name := ObjectName("r1", KindImage, "my photo.jpg")
	assert.Regexp(t, regexp.MustCompile(`^reports/r1/images/[0-9a-f-]{36}-my_photo\.jpg$`), name)

	tests := map[string]string{
		"../../etc/passwd": "passwd",
		`C:\tmp\clip.mp3`:  "clip.mp3",
		"":                 "file",
		"a?b#c.png":        "abc.png",
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.True(t, strings.HasSuffix(ObjectName("r", KindAudio, in), "-"+want))
		})
	}
}

func TestPublicURLRoundTrip(t *testing.T) {
	url := PublicURL("nest-media", "reports/r1/audio/x.mp3")
	assert.Equal(t, "https://storage.googleapis.com/nest-media/reports/r1/audio/x.mp3", url)

	obj, err := ObjectFromURL("nest-media", url)
	require.NoError(t, err)
	assert.Equal(t, "reports/r1/audio/x.mp3", obj)

	_, err = ObjectFromURL("other", url)
	assert.ErrorIs(t, err, ErrForeignURL)
	_, err = ObjectFromURL("nest-media", PublicURL("nest-media", ""))
	assert.ErrorIs(t, err, ErrForeignURL)
}

func TestKindForContentType(t *testing.T) {
	tests := []struct {
		ct   string
		kind string
		ok   bool
	}{
		{"image/png", KindImage, true},
		{"IMAGE/JPEG", KindImage, true},
		{"audio/mpeg", KindAudio, true},
		{"application/pdf", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		kind, ok := KindForContentType(tt.ct)
		assert.Equal(t, tt.kind, kind, tt.ct)
		assert.Equal(t, tt.ok, ok, tt.ct)
	}
}

func TestMemoryStore(t *testing.T) {
	m := NewMemory("b")
	url, err := m.Upload(context.Background(), "reports/r1/images/a.png", "image/png", strings.NewReader("png"))
	require.NoError(t, err)
	assert.Equal(t, "https://storage.googleapis.com/b/reports/r1/images/a.png", url)
	assert.Equal(t, "png", string(m.Objects()["reports/r1/images/a.png"].Data))

	require.NoError(t, m.Delete(context.Background(), url))
	assert.Empty(t, m.Objects())

	m.FailUploads = true
	_, err = m.Upload(context.Background(), "x", "image/png", strings.NewReader(""))
	assert.Error(t, err)
}

func TestNewGCSRequiresBucket(t *testing.T) {
	_, err := NewGCS(context.Background(), "", "")
	assert.ErrorIs(t, err, ErrDisabled)
}
