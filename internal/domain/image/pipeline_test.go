package image

import (
	"bytes"
	"context"
	stdimage "image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pestscan-server/internal/platform/config"
	"pestscan-server/internal/platform/errors"
	testhelpers "pestscan-server/internal/platform/testing"
)

func newTestPipeline(t *testing.T) *Pipeline {
	t.Helper()
	security := config.DefaultConfig().Security
	p, err := NewPipeline(Options{Security: &security})
	require.NoError(t, err)
	return p
}

func TestNewPipeline_RequiresSecurity(t *testing.T) {
	_, err := NewPipeline(Options{})
	assert.True(t, errors.IsKind(err, errors.KindConfig))
}

func TestPipeline_DecodePNG(t *testing.T) {
	p := newTestPipeline(t)
	data := testhelpers.EncodePNG(t, testhelpers.GradientImage(64, 48))

	img, err := p.Decode(data, "image/png")
	require.NoError(t, err)

	assert.Equal(t, 64, img.Width)
	assert.Equal(t, 48, img.Height)
	assert.Equal(t, "png", img.Format)
	assert.Equal(t, uint8(255), img.Pixels.Pix[3])
}

func TestPipeline_DecodeJPEG(t *testing.T) {
	p := newTestPipeline(t)
	data := testhelpers.EncodeJPEG(t, testhelpers.GradientImage(40, 40))

	img, err := p.Decode(data, "")
	require.NoError(t, err)
	assert.Equal(t, "jpeg", img.Format)
}

func TestPipeline_DecodeDropsAlpha(t *testing.T) {
	src := stdimage.NewNRGBA(stdimage.Rect(0, 0, 2, 2))
	for i := 0; i < len(src.Pix); i += 4 {
		src.Pix[i], src.Pix[i+1], src.Pix[i+2], src.Pix[i+3] = 200, 100, 50, 0
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, src))

	img, err := newTestPipeline(t).Decode(buf.Bytes(), "png")
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{R: 200, G: 100, B: 50, A: 255}, img.Pixels.RGBAAt(1, 1))
}

func TestPipeline_DecodeFailures(t *testing.T) {
	p := newTestPipeline(t)

	tests := []struct {
		name     string
		data     []byte
		declared string
	}{
		{name: "empty", data: nil},
		{name: "garbage", data: []byte("definitely not an image")},
		{name: "zip archive", data: []byte{0x50, 0x4B, 0x03, 0x04, 0x00}},
		{name: "format not allowed", data: []byte("GIF89a"), declared: "gif"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Decode(tt.data, tt.declared)
			require.Error(t, err)
			assert.True(t, errors.IsKind(err, errors.KindDecode))
			assert.Contains(t, errors.Message(err), "Failed to load image")
		})
	}
}

func TestPipeline_DimensionLimit(t *testing.T) {
	security := config.DefaultConfig().Security
	security.MaxWidth = 32
	p, err := NewPipeline(Options{Security: &security})
	require.NoError(t, err)

	_, err = p.Decode(testhelpers.EncodePNG(t, testhelpers.GradientImage(64, 16)), "png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimensions exceed limit")
}

func TestPipeline_ReadEnforcesMaxSize(t *testing.T) {
	security := config.DefaultConfig().Security
	security.MaxFileSize = 8
	p, err := NewPipeline(Options{Security: &security})
	require.NoError(t, err)

	_, err = p.Read(context.Background(), Input{Reader: bytes.NewReader(make([]byte, 9))})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindDecode))

	raw, err := p.Read(context.Background(), Input{Reader: bytes.NewReader(make([]byte, 8))})
	require.NoError(t, err)
	assert.Len(t, raw, 8)
}

func TestPipeline_Process(t *testing.T) {
	p := newTestPipeline(t)
	data := testhelpers.EncodePNG(t, testhelpers.GradientImage(33, 35))

	img, err := p.Process(context.Background(), Input{Reader: bytes.NewReader(data), DeclaredFormat: "png", Source: "upload"})
	require.NoError(t, err)
	assert.Equal(t, 33, img.Width)
}

func TestNormalizeFormat(t *testing.T) {
	assert.Equal(t, "jpeg", NormalizeFormat("image/jpeg"))
	assert.Equal(t, "jpeg", NormalizeFormat(".JPG"))
	assert.Equal(t, "webp", NormalizeFormat("image/webp"))
	assert.Equal(t, "", NormalizeFormat(""))
}
