package processor

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

// Thresholds for the binarize variant and the tesseract input
const (
	BinarizeThreshold  uint8 = 140
	TesseractThreshold uint8 = 160
)

const (
	contrastLow  = 25.0
	contrastHigh = 40.0
)

var sharpenKernel = [9]float64{
	0, -1, 0,
	-1, 5, -1,
	0, -1, 0,
}

// Luma is the rounded Rec. 601 brightness of a pixel
func Luma(c color.NRGBA) uint8 {
	return uint8(math.Round(0.299*float64(c.R) + 0.587*float64(c.G) + 0.114*float64(c.B)))
}

// Binarize maps every pixel to pure white (luma >= threshold) or pure black
func Binarize(img image.Image, threshold uint8) *image.NRGBA {
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		if Luma(c) >= threshold {
			return color.NRGBA{R: 255, G: 255, B: 255, A: 255}
		}
		return color.NRGBA{R: 0, G: 0, B: 0, A: 255}
	})
}

func contrastLowFilter(img image.Image) *image.NRGBA {
	return imaging.AdjustContrast(imaging.Grayscale(img), contrastLow)
}

func contrastHighSharpenFilter(img image.Image) *image.NRGBA {
	contrasted := imaging.AdjustContrast(imaging.Grayscale(img), contrastHigh)
	return imaging.Convolve3x3(contrasted, sharpenKernel, nil)
}

func binarizeFilter(threshold uint8) func(image.Image) *image.NRGBA {
	return func(img image.Image) *image.NRGBA {
		return Binarize(imaging.Grayscale(img), threshold)
	}
}

func scaleFilter(factor float64) func(image.Image) *image.NRGBA {
	return func(img image.Image) *image.NRGBA {
		b := img.Bounds()
		w := int(math.Max(1, math.Round(float64(b.Dx())*factor)))
		h := int(math.Max(1, math.Round(float64(b.Dy())*factor)))
		return imaging.Resize(img, w, h, imaging.Lanczos)
	}
}
