package image

import (
	"bytes"
	"context"
	"fmt"
	stdimage "image"
	"image/color"
	"io"

	"golang.org/x/image/draw"

	"pestscan-server/internal/platform/config"
	"pestscan-server/internal/platform/errors"
	"pestscan-server/internal/platform/logging"
)

// Pipeline turns untrusted upload bytes into a RawImage.
type Pipeline struct {
	validator *SecurityValidator
	logger    *logging.Logger
	security  *config.SecurityConfig
}

// Options configures the pipeline behaviour.
type Options struct {
	Security *config.SecurityConfig
	Logger   *logging.Logger
}

// Input describes a streaming image payload.
type Input struct {
	Reader         io.Reader
	DeclaredFormat string
	Source         string
}

func NewPipeline(opts Options) (*Pipeline, error) {
	if opts.Security == nil {
		return nil, errors.New(errors.KindConfig, "image.pipeline", "security config is required")
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}

	return &Pipeline{
		validator: NewSecurityValidator(opts.Security, opts.Logger),
		logger:    opts.Logger,
		security:  opts.Security,
	}, nil
}

// MaxFileSize is the upload ceiling in bytes.
func (p *Pipeline) MaxFileSize() int64 {
	if p.security.MaxFileSize <= 0 {
		return 10 * 1024 * 1024
	}
	return p.security.MaxFileSize
}

// Read streams input into memory, refusing payloads above MaxFileSize.
func (p *Pipeline) Read(ctx context.Context, input Input) ([]byte, error) {
	if input.Reader == nil {
		return nil, errors.New(errors.KindDecode, "image.read", "image reader is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	maxSize := p.MaxFileSize()
	limited := &io.LimitedReader{R: input.Reader, N: maxSize + 1}

	buf := bytes.NewBuffer(make([]byte, 0, 32*1024))
	if _, err := io.Copy(buf, limited); err != nil {
		return nil, errors.Wrap(errors.KindDecode, "image.read", "stream image bytes", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limited.N <= 0 {
		return nil, errors.Newf(errors.KindDecode, "image.read", "image exceeds maximum size of %d bytes", maxSize)
	}
	return buf.Bytes(), nil
}

// Decode validates raw and decodes it into an opaque RGBA buffer.
func (p *Pipeline) Decode(raw []byte, declaredFormat string) (*RawImage, error) {
	validation := p.validator.ValidateBytes(raw, declaredFormat)
	if !validation.IsValid {
		cause := validation.Error
		if cause == nil {
			cause = fmt.Errorf("image validation failed")
		}
		return nil, errors.Wrap(errors.KindDecode, "image.decode", "Failed to load image", cause)
	}

	decoded, format, err := stdimage.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, errors.Wrap(errors.KindDecode, "image.decode", "Failed to load image", err)
	}

	return &RawImage{
		Pixels: ToRGB(decoded),
		Width:  decoded.Bounds().Dx(),
		Height: decoded.Bounds().Dy(),
		Format: format,
	}, nil
}

// Process is Read followed by Decode.
func (p *Pipeline) Process(ctx context.Context, input Input) (*RawImage, error) {
	raw, err := p.Read(ctx, input)
	if err != nil {
		return nil, err
	}
	return p.Decode(raw, input.DeclaredFormat)
}

// ToRGB copies src into a zero-origin RGBA with alpha forced to 255. Colour
// channels of translucent pixels are kept unpremultiplied, matching an RGB
// conversion that simply drops the alpha channel.
func ToRGB(src stdimage.Image) *stdimage.RGBA {
	b := src.Bounds()
	dst := stdimage.NewRGBA(stdimage.Rect(0, 0, b.Dx(), b.Dy()))

	if o, ok := src.(interface{ Opaque() bool }); ok && o.Opaque() {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
		return dst
	}

	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			c := color.NRGBAModel.Convert(src.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			i := dst.PixOffset(x, y)
			dst.Pix[i], dst.Pix[i+1], dst.Pix[i+2], dst.Pix[i+3] = c.R, c.G, c.B, 255
		}
	}
	return dst
}
