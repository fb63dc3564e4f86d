package cocods

import (
	"image"
	_ "image/gif"  // Register the GIF decoder.
	_ "image/jpeg" // Register the JPEG decoder.
	_ "image/png"  // Register the PNG decoder.
	"math"
	"os"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"  // Register the BMP decoder.
	_ "golang.org/x/image/tiff" // Register the TIFF decoder.
	_ "golang.org/x/image/webp" // Register the WebP decoder.
)

// resizeShorterSide resamples img so that its shorter side is shorterSide pixels, keeping the
// aspect ratio. If the longer side would then exceed maxLongerSide (when > 0), the image is
// instead scaled so that the longer side is maxLongerSide.
func resizeShorterSide(img image.Image, shorterSide, maxLongerSide int) *image.NRGBA {
	imgBounds := img.Bounds()
	imgWidth := imgBounds.Dx()
	imgHeight := imgBounds.Dy()

	imgLonger := imgWidth
	imgShorter := imgHeight
	isLandscape := true
	if imgHeight > imgWidth {
		imgLonger = imgHeight
		imgShorter = imgWidth
		isLandscape = false
	}

	// Calculate the target dimensions.
	longerSide := int(math.Round(float64(shorterSide) * (float64(imgLonger) / float64(imgShorter))))
	if maxLongerSide > 0 && longerSide > maxLongerSide {
		longerSide = maxLongerSide
		shorterSide = int(math.Round(float64(longerSide) * (float64(imgShorter) / float64(imgLonger))))
	}
	if shorterSide < 1 {
		shorterSide = 1
	}

	if isLandscape {
		return resizeImage(img, longerSide, shorterSide)
	}
	return resizeImage(img, shorterSide, longerSide)
}

// resizeImage resamples img to width x height, selecting the filter based on the direction of the
// rescaling operation.
func resizeImage(img image.Image, width, height int) *image.NRGBA {
	b := img.Bounds()
	filter := imaging.Linear
	if width*height < b.Dx()*b.Dy() {
		filter = imaging.Box
	}
	return imaging.Resize(img, width, height, filter)
}

// fitWithin downscales img, keeping the aspect ratio, so that it fits into width x height. Images
// that already fit are returned unchanged.
func fitWithin(img *image.NRGBA, width, height int) *image.NRGBA {
	b := img.Bounds()
	if b.Dx() <= width && b.Dy() <= height {
		return img
	}

	scale := math.Min(float64(width)/float64(b.Dx()), float64(height)/float64(b.Dy()))
	w := int(math.Round(float64(b.Dx()) * scale))
	h := int(math.Round(float64(b.Dy()) * scale))
	w = max(1, min(w, width))
	h = max(1, min(h, height))
	return resizeImage(img, w, h)
}

// toRGB converts img of any color model, including grayscale and paletted images, to an
// 8-bit per channel NRGBA image with its origin at (0, 0).
func toRGB(img image.Image) *image.NRGBA {
	return imaging.Clone(img)
}

// decodeImageConfig opens the file at path and returns the results of image.DecodeConfig.
func decodeImageConfig(path string) (config image.Config, format string, err error) {
	file, err := os.Open(path)
	if err != nil {
		return image.Config{}, "", err
	}
	defer file.Close()

	return image.DecodeConfig(file)
}

// loadImage reads and decodes the image at path and returns the results of image.Decode.
func loadImage(path string) (img image.Image, format string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	return image.Decode(f)
}
