package documents

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractPlainText(t *testing.T) {
	for _, name := range []string{"not.txt", "okuma.md", "veri.csv"} {
		got, err := ExtractText(name, []byte("satır bir\nsatır iki"))
		require.NoError(t, err)
		assert.Equal(t, "satır bir\nsatır iki", got)
	}
}

func TestExtractUnsupportedFormat(t *testing.T) {
	_, err := ExtractText("binary.exe", []byte{0x4d, 0x5a})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestExtractCaseInsensitiveExtension(t *testing.T) {
	got, err := ExtractText("NOT.TXT", []byte("içerik"))
	require.NoError(t, err)
	assert.Equal(t, "içerik", got)
}

func TestChunkerSplit(t *testing.T) {
	c, err := NewChunker(20, 5)
	if err != nil {
		t.Skipf("token encoding unavailable: %v", err)
	}

	assert.Nil(t, c.Split(""))

	short := "kısa bir metin"
	assert.Equal(t, []string{short}, c.Split(short))

	long := ""
	for i := 0; i < 40; i++ {
		long += "kelime sayısı artıyor "
	}
	chunks := c.Split(long)
	require.Greater(t, len(chunks), 1)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, c.TokenCount(chunk), 20)
	}
}

func TestChunkerValidation(t *testing.T) {
	_, err := NewChunker(0, 0)
	assert.Error(t, err)
	_, err = NewChunker(100, 100)
	assert.Error(t, err)
	_, err = NewChunker(100, -1)
	assert.Error(t, err)
}
