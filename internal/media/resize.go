package media

import (
	"bytes"
	"fmt"

	"github.com/disintegration/imaging"
)

const avatarMaxDim = 256

// ShrinkAvatar decodes an image and downsizes it to at most 256px on its
// longer side, re-encoding as JPEG. Images already small enough are only
// re-encoded.
func ShrinkAvatar(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	b := img.Bounds()
	if b.Dx() > avatarMaxDim || b.Dy() > avatarMaxDim {
		if b.Dx() >= b.Dy() {
			img = imaging.Resize(img, avatarMaxDim, 0, imaging.Lanczos)
		} else {
			img = imaging.Resize(img, 0, avatarMaxDim, imaging.Lanczos)
		}
	}
	var out bytes.Buffer
	if err := imaging.Encode(&out, img, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, fmt.Errorf("encode avatar: %w", err)
	}
	return out.Bytes(), nil
}
