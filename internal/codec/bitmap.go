package codec

import (
	"fmt"
	"image"
)

// FlipVertical flips bitmap data vertically (in-place).
// DCL stores rows bottom-up, this flips them to top-down.
func FlipVertical(data []byte, width, height, bytesPerPixel int) {
	if height <= 1 {
		return
	}

	rowDelta := width * bytesPerPixel
	if rowDelta <= 0 || len(data) < height*rowDelta {
		return
	}

	tmp := make([]byte, rowDelta)
	half := height / 2

	for i := 0; i < half; i++ {
		topLine := i * rowDelta
		bottomLine := (height - 1 - i) * rowDelta

		copy(tmp, data[topLine:topLine+rowDelta])
		copy(data[topLine:topLine+rowDelta], data[bottomLine:bottomLine+rowDelta])
		copy(data[bottomLine:bottomLine+rowDelta], tmp)
	}
}

// SwapTriples reverses the byte order of every 3-byte pixel (in-place).
func SwapTriples(data []byte) {
	for i := 0; i+2 < len(data); i += 3 {
		data[i], data[i+2] = data[i+2], data[i]
	}
}

// BGR24ToRGBA converts 24-bit BGR to 32-bit RGBA
func BGR24ToRGBA(src []byte, dst []byte) {
	srcIdx := 0
	dstIdx := 0

	for srcIdx+2 < len(src) && dstIdx+3 < len(dst) {
		dst[dstIdx] = src[srcIdx+2]   // R
		dst[dstIdx+1] = src[srcIdx+1] // G
		dst[dstIdx+2] = src[srcIdx]   // B
		dst[dstIdx+3] = 255

		srcIdx += 3
		dstIdx += 4
	}
}

// ToImage turns a decoded pixel buffer into an upright RGBA image: the bytes
// of each triple are swapped and the rows flipped. pixels is not modified.
func ToImage(pixels []byte) (*image.RGBA, error) {
	if len(pixels) != PixelBufferSize {
		return nil, fmt.Errorf("dcl: pixel buffer is %d bytes, want %d", len(pixels), PixelBufferSize)
	}

	raw := make([]byte, len(pixels))
	copy(raw, pixels)
	FlipVertical(raw, Width, Height, BytesPerPixel)

	img := image.NewRGBA(image.Rect(0, 0, Width, Height))
	BGR24ToRGBA(raw, img.Pix)

	return img, nil
}
