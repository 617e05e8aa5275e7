package bodymap

import (
	"bytes"
	_ "embed"
	"fmt"
	"image"
	"image/png"
	"sync"
)

//go:embed assets/body-diagram.png
var referencePNG []byte

var loadReference = sync.OnceValues(func() (image.Image, error) {
	img, err := png.Decode(bytes.NewReader(referencePNG))
	if err != nil {
		return nil, fmt.Errorf("decode body diagram: %w", err)
	}
	return img, nil
})

// Reference returns the static body diagram drawn under every surface.
func Reference() (image.Image, error) {
	return loadReference()
}

// ReferencePNG returns the encoded body diagram for serving to clients.
func ReferencePNG() []byte {
	return referencePNG
}

// ReferenceSize returns the native size of the body diagram.
func ReferenceSize() (int, int) {
	img, err := Reference()
	if err != nil {
		return 0, 0
	}
	b := img.Bounds()
	return b.Dx(), b.Dy()
}

// NewReferenceSurface creates a surface sized to the body diagram.
func NewReferenceSurface() *Surface {
	return NewSurface(ReferenceSize())
}
