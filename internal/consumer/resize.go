package consumer

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"

	"github.com/evision-ai/evision-lib/internal/model"
)

// resize rescales payload to target using golang.org/x/image/draw's
// CatmullRom scaler, the same resampling family go4vl's image helpers pull
// in for webcam frame conversion. Unknown pixel formats or a zero-sized
// native shape pass through unchanged, since the grabber reported no usable
// geometry to resize from.
func resize(payload model.RawFrame, target model.Shape) model.RawFrame {
	if payload.Width <= 0 || payload.Height <= 0 || !target.Valid() {
		return payload
	}
	src := toImage(payload)
	if src == nil {
		return payload
	}

	dstRect := image.Rect(0, 0, target.Width, target.Height)
	dst := image.NewRGBA(dstRect)
	draw.CatmullRom.Scale(dst, dstRect, src, src.Bounds(), draw.Over, nil)

	return model.RawFrame{
		Data:        dst.Pix,
		Width:       target.Width,
		Height:      target.Height,
		PixelFormat: "RGBA",
	}
}

// crop cuts zone out of payload's coordinate frame. When the view has a
// target shape, zone was validated against it at Add time; otherwise it was
// not validated, and the crop is clipped to the frame bounds (an empty
// intersection leaves the payload uncropped).
func crop(payload model.RawFrame, zone model.Zone) model.RawFrame {
	src := toImage(payload)
	if src == nil {
		return payload
	}

	rect := image.Rect(zone.StartX, zone.StartY, zone.StartX+zone.Width, zone.StartY+zone.Height)
	rect = rect.Intersect(src.Bounds())
	if rect.Empty() {
		return payload
	}

	sub := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(sub, sub.Bounds(), src, rect.Min, draw.Src)

	return model.RawFrame{
		Data:        sub.Pix,
		Width:       rect.Dx(),
		Height:      rect.Dy(),
		PixelFormat: "RGBA",
	}
}

// toImage interprets a RawFrame's packed bytes as an image.Image, handling
// the two pixel formats the grabber package produces (RGBA from the image
// codecs, RGB from go-gst's videoconvert output).
func toImage(payload model.RawFrame) image.Image {
	switch payload.PixelFormat {
	case "RGBA":
		img := &image.RGBA{
			Pix:    payload.Data,
			Stride: 4 * payload.Width,
			Rect:   image.Rect(0, 0, payload.Width, payload.Height),
		}
		return img
	case "RGB":
		return &rgbImage{data: payload.Data, width: payload.Width, height: payload.Height}
	default:
		return nil
	}
}

// rgbImage is a minimal image.Image adapter over packed 3-byte-per-pixel RGB
// data, avoiding an upfront copy into image.RGBA just to hand the buffer to
// draw.CatmullRom.Scale.
type rgbImage struct {
	data          []byte
	width, height int
}

func (r *rgbImage) ColorModel() color.Model { return color.RGBAModel }
func (r *rgbImage) Bounds() image.Rectangle { return image.Rect(0, 0, r.width, r.height) }
func (r *rgbImage) At(x, y int) color.Color {
	if x < 0 || y < 0 || x >= r.width || y >= r.height {
		return color.RGBA{}
	}
	i := (y*r.width + x) * 3
	return color.RGBA{R: r.data[i], G: r.data[i+1], B: r.data[i+2], A: 0xff}
}
