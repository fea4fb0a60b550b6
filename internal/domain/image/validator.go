package image

import (
	"bytes"
	"fmt"
	stdimage "image"
	"strings"

	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"pestscan-server/internal/platform/config"
	"pestscan-server/internal/platform/logging"
)

// SecurityValidator performs layered security checks against incoming image payloads.
type SecurityValidator struct {
	config *config.SecurityConfig
	logger *logging.Logger
}

func NewSecurityValidator(cfg *config.SecurityConfig, logger *logging.Logger) *SecurityValidator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &SecurityValidator{
		config: cfg,
		logger: logger,
	}
}

var imageSignatures = map[string][]byte{
	"jpeg": {0xFF, 0xD8},
	"jpg":  {0xFF, 0xD8},
	"png":  {0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A},
	"webp": {0x52, 0x49, 0x46, 0x46},
}

// NormalizeFormat maps MIME types and extensions onto decoder format names.
func NormalizeFormat(declared string) string {
	f := strings.ToLower(strings.TrimSpace(declared))
	f = strings.TrimPrefix(f, "image/")
	f = strings.TrimPrefix(f, ".")
	if f == "jpg" {
		return "jpeg"
	}
	return f
}

// ValidateBytes validates raw bytes directly.
func (v *SecurityValidator) ValidateBytes(raw []byte, declaredFormat string) ValidationResult {
	result := ValidationResult{IsValid: false}
	declaredFormat = NormalizeFormat(declaredFormat)

	if len(raw) == 0 {
		result.Error = fmt.Errorf("empty image payload")
		return result
	}

	if int64(len(raw)) > v.config.MaxFileSize {
		result.Error = fmt.Errorf(
			"file size exceeds limit: %d bytes (max %d bytes)",
			len(raw),
			v.config.MaxFileSize,
		)
		result.SecurityRisk = "file too large"
		v.logger.WarnTag("QUALITY", "oversized image: size=%d max_size=%d format=%s",
			len(raw), v.config.MaxFileSize, declaredFormat)
		return result
	}

	if declaredFormat != "" && !v.isFormatAllowed(declaredFormat) {
		result.Error = fmt.Errorf("unsupported format: %s", declaredFormat)
		result.SecurityRisk = "unapproved format"
		return result
	}

	if v.hasForeignSignature(raw) {
		result.Error = fmt.Errorf("payload is not an image")
		result.SecurityRisk = "foreign file signature"
		return result
	}

	decodeResult := v.validateImageDecoding(raw, declaredFormat)
	if !decodeResult.IsValid {
		if declaredFormat != "" && !v.validateFileSignature(raw, declaredFormat) {
			v.logger.WarnTag("QUALITY", "file signature mismatch: declared_format=%s actual_header=%x",
				declaredFormat, raw[:min(len(raw), 16)])
		}
		return decodeResult
	}

	decodeResult.FileSize = int64(len(raw))
	return decodeResult
}

func (v *SecurityValidator) isFormatAllowed(format string) bool {
	if v.config == nil || len(v.config.AllowedFormats) == 0 || format == "" {
		return true
	}
	format = NormalizeFormat(format)
	for _, allowed := range v.config.AllowedFormats {
		if NormalizeFormat(allowed) == format {
			return true
		}
	}
	return false
}

func (v *SecurityValidator) validateFileSignature(raw []byte, format string) bool {
	signature, ok := imageSignatures[strings.ToLower(format)]
	if !ok || len(signature) == 0 {
		return true
	}
	if len(raw) < len(signature) {
		return false
	}
	return bytes.Equal(signature, raw[:len(signature)])
}

// hasForeignSignature flags executables, PDFs and archives.
func (v *SecurityValidator) hasForeignSignature(raw []byte) bool {
	foreign := [][]byte{
		{0x4D, 0x5A},
		{0x25, 0x50, 0x44, 0x46},
		{0x50, 0x4B, 0x03, 0x04},
		{0x1F, 0x8B, 0x08},
	}
	for _, signature := range foreign {
		if bytes.HasPrefix(raw, signature) {
			v.logger.WarnTag("QUALITY", "rejected foreign signature %x", signature)
			return true
		}
	}
	return false
}

func (v *SecurityValidator) validateImageDecoding(raw []byte, format string) ValidationResult {
	result := ValidationResult{Format: format}

	cfg, actualFormat, err := stdimage.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		result.Error = fmt.Errorf("decode image config: %w", err)
		result.SecurityRisk = "corrupted image data"
		return result
	}
	if actualFormat != "" {
		result.Format = actualFormat
	}
	if !v.isFormatAllowed(result.Format) {
		result.Error = fmt.Errorf("unsupported format: %s", result.Format)
		result.SecurityRisk = "unapproved format"
		return result
	}

	if cfg.Width <= 0 || cfg.Height <= 0 {
		result.Error = fmt.Errorf("invalid dimensions: %dx%d", cfg.Width, cfg.Height)
		return result
	}
	if (v.config.MaxWidth > 0 && cfg.Width > v.config.MaxWidth) || (v.config.MaxHeight > 0 && cfg.Height > v.config.MaxHeight) {
		result.Error = fmt.Errorf("dimensions exceed limit: %dx%d (max %dx%d)",
			cfg.Width, cfg.Height, v.config.MaxWidth, v.config.MaxHeight)
		result.SecurityRisk = "dimensions too large"
		return result
	}

	totalPixels := int64(cfg.Width) * int64(cfg.Height)
	if v.config.MaxPixels > 0 && totalPixels > v.config.MaxPixels {
		result.Error = fmt.Errorf("pixel count exceeds limit: %d (max %d)", totalPixels, v.config.MaxPixels)
		result.SecurityRisk = "pixel count too high"
		return result
	}

	result.IsValid = true
	result.Width = cfg.Width
	result.Height = cfg.Height
	return result
}
