package utils

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"strings"

	"github.com/SanAfaGal/powergym-back-sub000/config"
	"gocv.io/x/gocv"
	"gorgonia.org/tensor"
)

// magic numbers for the supported encodings
var imageSignatures = map[string][]byte{
	"jpg":  {0xFF, 0xD8, 0xFF},
	"jpeg": {0xFF, 0xD8, 0xFF},
	"png":  {0x89, 0x50, 0x4E, 0x47},
	"webp": {0x52, 0x49, 0x46, 0x46},
}

// SniffImageFormat identifies the encoding of raw image bytes from their
// magic numbers. Returns an empty string for unknown formats.
func SniffImageFormat(data []byte) string {
	if bytes.HasPrefix(data, imageSignatures["jpg"]) {
		return "jpeg"
	}
	if bytes.HasPrefix(data, imageSignatures["png"]) {
		return "png"
	}
	if bytes.HasPrefix(data, imageSignatures["webp"]) && len(data) >= 12 && bytes.Equal(data[8:12], []byte("WEBP")) {
		return "webp"
	}
	return ""
}

// DecodeBase64Payload strips an optional data-URI prefix and decodes the
// base64 body, enforcing the configured size limit on the decoded bytes.
func DecodeBase64Payload(payload string, maxSizeMB float64) ([]byte, error) {
	payload = strings.TrimSpace(payload)
	if idx := strings.Index(payload, ";base64,"); idx >= 0 && strings.HasPrefix(payload, "data:") {
		payload = payload[idx+len(";base64,"):]
	}
	if payload == "" {
		return nil, config.NewValidationError("image payload is empty")
	}

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, config.NewValidationError("image payload is not valid base64")
	}

	maxBytes := int(maxSizeMB * 1024 * 1024)
	if maxBytes > 0 && len(raw) > maxBytes {
		return nil, config.NewValidationError("image exceeds maximum size of %.1f MB", maxSizeMB)
	}
	return raw, nil
}

// DecodeImagePayload decodes a base64 image payload into a 3-channel RGB Mat,
// rejecting oversized payloads and formats outside the allow-list.
func DecodeImagePayload(payload string, params *config.ImageParams) (*gocv.Mat, error) {
	raw, err := DecodeBase64Payload(payload, params.MaxSizeMB)
	if err != nil {
		return nil, err
	}

	format := SniffImageFormat(raw)
	if format == "" {
		return nil, config.NewValidationError("unsupported image format, allowed: %s", strings.Join(params.AllowedFormats, ", "))
	}
	allowed := false
	for _, f := range params.AllowedFormats {
		if strings.EqualFold(f, format) || (format == "jpeg" && strings.EqualFold(f, "jpg")) {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, config.NewValidationError("image format %q is not allowed", format)
	}

	return ConvertImageToMat(raw)
}

// ConvertImageToMat decodes encoded image bytes into an RGB Mat.
func ConvertImageToMat(bImage []byte) (*gocv.Mat, error) {
	dstMat := gocv.NewMat()
	srcMat, err := gocv.IMDecode(bImage, gocv.IMReadColor)
	if err != nil {
		return &dstMat, config.NewValidationError("cannot decode image: %v", err)
	}
	defer srcMat.Close()
	if srcMat.Empty() {
		return &dstMat, config.NewValidationError("cannot decode image: empty pixel data")
	}

	gocv.CvtColor(srcMat, &dstMat, gocv.ColorBGRToRGB)
	return &dstMat, nil
}

// EncodeThumbnail crops the face region with a small margin, resizes it to the
// configured thumbnail dimensions and JPEG-encodes it at the configured
// quality.
func EncodeThumbnail(img gocv.Mat, box config.BoundingBox, params *config.ImageParams) ([]byte, error) {
	imgH, imgW := img.Size()[0], img.Size()[1]

	marginX := box.Width() * 0.2
	marginY := box.Height() * 0.2
	x1 := int(max(box.X1-marginX, 0))
	y1 := int(max(box.Y1-marginY, 0))
	x2 := int(min(box.X2+marginX, float64(imgW)))
	y2 := int(min(box.Y2+marginY, float64(imgH)))
	if x2 <= x1 || y2 <= y1 {
		x1, y1, x2, y2 = 0, 0, imgW, imgH
	}

	roi := img.Region(image.Rect(x1, y1, x2, y2))
	defer roi.Close()

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(roi, &resized, image.Point{X: params.ThumbnailWidth, Y: params.ThumbnailHeight}, 0, 0, gocv.InterpolationArea)

	bgr := gocv.NewMat()
	defer bgr.Close()
	gocv.CvtColor(resized, &bgr, gocv.ColorRGBToBGR)

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, bgr, []int{gocv.IMWriteJpegQuality, params.ThumbnailQuality})
	if err != nil {
		return nil, fmt.Errorf("cannot encode thumbnail: %w", err)
	}
	defer buf.Close()

	out := make([]byte, len(buf.GetBytes()))
	copy(out, buf.GetBytes())
	return out, nil
}

func TensorToPoints(t *tensor.Dense) ([]gocv.Point2f, error) {
	shape := t.Shape()
	if len(shape) != 2 || shape[1] != 2 {
		return nil, fmt.Errorf("expected a 2D tensor with shape (n, 2), got shape: %v", shape)
	}
	data := t.Float32s()
	n := shape[0]
	points := make([]gocv.Point2f, n)
	for i := 0; i < n; i++ {
		points[i] = gocv.Point2f{
			X: data[i*2],
			Y: data[i*2+1],
		}
	}

	return points, nil
}

func TensorToPoint2fVector(t *tensor.Dense) (gocv.Point2fVector, error) {
	points, err := TensorToPoints(t)
	if err != nil {
		return gocv.NewPoint2fVector(), err
	}
	pointVector := gocv.NewPoint2fVectorFromPoints(points)
	return pointVector, nil
}
