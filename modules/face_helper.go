package modules

import (
	"errors"
	"image"

	"github.com/SanAfaGal/powergym-back-sub000/utils"
	"gocv.io/x/gocv"
	"gorgonia.org/tensor"
)

// arcFaceTemplate holds the canonical 5-point landmark positions for a
// 112x112 recognition crop.
var arcFaceTemplate = tensor.New(
	tensor.Of(tensor.Float32),
	tensor.WithShape(5, 2),
	tensor.WithBacking([]float32{
		38.2946, 51.6963,
		73.5318, 51.5014,
		56.0252, 71.7366,
		41.5493, 92.3655,
		70.7299, 92.2041,
	}),
)

// AlignmentTemplate scales the canonical landmark template to the requested
// crop size.
func AlignmentTemplate(size int) (*tensor.Dense, error) {
	if size == 112 {
		return arcFaceTemplate, nil
	}
	scaled, err := arcFaceTemplate.MulScalar(float32(size)/112.0, true)
	if err != nil {
		return nil, err
	}
	return scaled, nil
}

// AlignWarpFace warps the source image so the detected landmarks land on the
// template positions, producing a size x size recognition crop.
func AlignWarpFace(img gocv.Mat, landmarks *tensor.Dense, size int) (gocv.Mat, error) {
	out := gocv.NewMat()

	template, err := AlignmentTemplate(size)
	if err != nil {
		return out, err
	}

	srcPoints, err := utils.TensorToPoint2fVector(landmarks)
	if err != nil {
		return out, err
	}
	defer srcPoints.Close()

	dstPoints, err := utils.TensorToPoint2fVector(template)
	if err != nil {
		return out, err
	}
	defer dstPoints.Close()

	inliers := gocv.NewMat()
	defer inliers.Close()
	transform := gocv.EstimateAffinePartial2DWithParams(srcPoints, dstPoints, inliers, int(gocv.HomograpyMethodLMEDS), 3.0, 2000, 0.99, 10)
	defer transform.Close()
	if transform.Empty() {
		return out, errors.New("cannot estimate alignment transform from landmarks")
	}

	gocv.WarpAffine(img, &out, transform, image.Point{X: size, Y: size})
	return out, nil
}
