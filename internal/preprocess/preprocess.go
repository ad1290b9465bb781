package preprocess

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io/fs"
	"os"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/Brownie44l1/kaleo-api/internal/logger"
)

const Channels = 3

// MaxPixels matches Pillow's decompression bomb error threshold.
const MaxPixels = 2 * 89478485

var (
	ErrEmptyImage    = errors.New("empty image")
	ErrImageTooLarge = errors.New("image too large")
)

type Size struct {
	Height int `json:"height"`
	Width  int `json:"width"`
}

// Config mirrors the fields of a ViTImageProcessor preprocessor_config.json
// that affect pixel values.
type Config struct {
	DoResize      bool      `json:"do_resize"`
	DoRescale     bool      `json:"do_rescale"`
	DoNormalize   bool      `json:"do_normalize"`
	RescaleFactor float32   `json:"rescale_factor"`
	ImageMean     []float32 `json:"image_mean"`
	ImageStd      []float32 `json:"image_std"`
	Size          Size      `json:"size"`
}

func DefaultConfig() Config {
	return Config{
		DoResize:      true,
		DoRescale:     true,
		DoNormalize:   true,
		RescaleFactor: 1.0 / 255.0,
		ImageMean:     []float32{0.5, 0.5, 0.5},
		ImageStd:      []float32{0.5, 0.5, 0.5},
		Size:          Size{Height: 224, Width: 224},
	}
}

// LoadConfig reads a preprocessor config. A missing file yields the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to read preprocessor config: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse preprocessor config: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if len(c.ImageMean) != Channels || len(c.ImageStd) != Channels {
		return fmt.Errorf("image_mean and image_std need %d values, got %d and %d",
			Channels, len(c.ImageMean), len(c.ImageStd))
	}
	for i, s := range c.ImageStd {
		if s == 0 {
			return fmt.Errorf("image_std[%d] is zero", i)
		}
	}
	if c.Size.Height <= 0 || c.Size.Width <= 0 {
		return fmt.Errorf("invalid target size %dx%d", c.Size.Width, c.Size.Height)
	}
	return nil
}

type Processor struct {
	cfg Config
}

func NewProcessor(cfg Config) (*Processor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Processor{cfg: cfg}, nil
}

// TensorLen is the number of float32 values PixelValues produces.
func (p *Processor) TensorLen() int {
	return Channels * p.cfg.Size.Height * p.cfg.Size.Width
}

// Decode decodes any registered format (JPEG, PNG, GIF, WebP, BMP, TIFF).
func Decode(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", ErrEmptyImage
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("cannot identify image file: %w", err)
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > MaxPixels {
		return nil, "", fmt.Errorf("%w: %d pixels exceeds limit of %d pixels",
			ErrImageTooLarge, pixels, MaxPixels)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("cannot identify image file: %w", err)
	}
	return img, format, nil
}

// ToRGB copies img into an opaque NRGBA. Colour values stay straight
// (not premultiplied) and alpha is dropped.
func ToRGB(img image.Image) *image.NRGBA {
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xff
	}
	return dst
}

// Resize scales img to the configured size with bicubic interpolation.
func (p *Processor) Resize(img image.Image) image.Image {
	b := img.Bounds()
	if b.Dx() == p.cfg.Size.Width && b.Dy() == p.cfg.Size.Height {
		return img
	}
	return resize.Resize(uint(p.cfg.Size.Width), uint(p.cfg.Size.Height), img, resize.Bicubic)
}

// PixelValues packs img into a [3, H, W] channel-first tensor, rescaled and
// normalized per the config.
func (p *Processor) PixelValues(img image.Image) []float32 {
	if p.cfg.DoResize {
		img = p.Resize(img)
	}

	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	plane := width * height
	out := make([]float32, Channels*plane)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			idx := y*width + x
			out[idx] = p.scale(0, r>>8)
			out[plane+idx] = p.scale(1, g>>8)
			out[2*plane+idx] = p.scale(2, bl>>8)
		}
	}
	return out
}

func (p *Processor) scale(channel int, v uint32) float32 {
	f := float32(v)
	if p.cfg.DoRescale {
		f *= p.cfg.RescaleFactor
	}
	if p.cfg.DoNormalize {
		f = (f - p.cfg.ImageMean[channel]) / p.cfg.ImageStd[channel]
	}
	return f
}

// Process runs the whole pipeline: RGB conversion, resize and tensor packing.
func (p *Processor) Process(ctx context.Context, img image.Image) []float32 {
	log := logger.FromContext(ctx)
	b := img.Bounds()
	log.Debug("preprocessing image", "width", b.Dx(), "height", b.Dy(), "mode", colorMode(img))

	rgb := ToRGB(img)
	pixels := p.PixelValues(p.Resize(rgb))

	log.Debug("processed input", "shape", []int{1, Channels, p.cfg.Size.Height, p.cfg.Size.Width})
	return pixels
}

func colorMode(img image.Image) string {
	switch img.(type) {
	case *image.Gray, *image.Gray16:
		return "L"
	case *image.Paletted:
		return "P"
	case *image.CMYK:
		return "CMYK"
	case *image.YCbCr:
		return "YCbCr"
	case *image.NRGBA, *image.NRGBA64, *image.RGBA, *image.RGBA64:
		return "RGBA"
	default:
		return "unknown"
	}
}
