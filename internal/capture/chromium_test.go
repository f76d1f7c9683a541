package capture

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionsWithDefaults(t *testing.T) {
	tests := []struct {
		name    string
		in      Options
		wantErr error
	}{
		{name: "missing url", in: Options{OutputPath: "out.png"}, wantErr: ErrNoURL},
		{name: "missing output", in: Options{URL: "http://localhost"}, wantErr: ErrNoOutput},
		{name: "ok", in: Options{URL: "http://localhost", OutputPath: "out.png"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.in.withDefaults()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, DefaultWidth, got.Width)
			assert.Equal(t, DefaultHeight, got.Height)
			assert.Equal(t, DefaultSelector, got.Selector)
			assert.Equal(t, DefaultTimeout, got.Timeout)
		})
	}
}

func TestOptionsKeepExplicitValues(t *testing.T) {
	got, err := Options{
		URL:        "http://localhost",
		OutputPath: "out.png",
		Width:      800,
		Height:     480,
		Selector:   "#root",
		Timeout:    time.Second,
	}.withDefaults()
	require.NoError(t, err)
	assert.Equal(t, 800, got.Width)
	assert.Equal(t, 480, got.Height)
	assert.Equal(t, "#root", got.Selector)
	assert.Equal(t, time.Second, got.Timeout)
}

func TestCapturePNGValidatesBeforeLaunch(t *testing.T) {
	err := CapturePNG(context.Background(), Options{})
	assert.ErrorIs(t, err, ErrNoURL)
}

func TestWriteFileAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "var", "preview.png")
	require.NoError(t, writeFileAtomic(path, []byte("png")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "png", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
