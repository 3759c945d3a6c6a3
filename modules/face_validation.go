package modules

import (
	"math"

	"github.com/SanAfaGal/powergym-back-sub000/config"
)

const (
	characteristicsCheck = "characteristics"
	faceSizeCheck        = "face_size"
	faceAngleCheck       = "face_angle"
	landmarkCheck        = "landmark_quality"
)

// validationFailurePolicy decides what happens when a validation step cannot
// be computed. The angle estimate is noisy enough that a broken measurement
// is ignored; a face-size or landmark measurement that cannot be computed is
// treated as the rejection itself.
var validationFailurePolicy = map[string]bool{
	characteristicsCheck: false,
	faceSizeCheck:        false,
	faceAngleCheck:       true,
	landmarkCheck:        false,
}

// FaceValidator rejects detections that are unlikely to be a usable human
// face: implausible attributes, tiny faces, extreme angles and degenerate
// landmark layouts.
type FaceValidator struct {
	params *config.FaceValidationParams
}

func NewFaceValidator(cfg *config.FaceValidationParams) *FaceValidator {
	if cfg == nil {
		cfg = config.DefaultFaceValidationParams
	}
	return &FaceValidator{params: cfg}
}

// Validate runs the ordered checks; the first failure short-circuits with its
// specific rejection.
func (v *FaceValidator) Validate(det *config.FaceDetection, imgWidth, imgHeight int) error {
	if err := v.checkCharacteristics(det); err != nil {
		return err
	}
	if err := v.checkFaceSize(det, imgWidth, imgHeight); err != nil {
		return err
	}
	if err := v.checkFaceAngle(det); err != nil {
		return err
	}
	if err := v.checkLandmarkQuality(det); err != nil {
		return err
	}
	return nil
}

// checkCharacteristics validates the optional attribute estimates and the
// landmark count. Absent attributes pass; present ones must be plausible.
func (v *FaceValidator) checkCharacteristics(det *config.FaceDetection) error {
	if det.Age != nil {
		if *det.Age < v.params.MinAge || *det.Age > v.params.MaxAge {
			return config.NewQualityError("estimated age %d outside accepted range [%d, %d]", *det.Age, v.params.MinAge, v.params.MaxAge)
		}
	}
	if det.Gender != nil && !det.Gender.Valid() {
		return config.NewQualityError("unrecognized gender estimate")
	}
	if det.Landmarks != nil && len(det.Landmarks) < 5 {
		return config.NewQualityError("face has %d landmarks, at least 5 required", len(det.Landmarks))
	}
	return nil
}

func (v *FaceValidator) checkFaceSize(det *config.FaceDetection, imgWidth, imgHeight int) error {
	imgArea := float64(imgWidth) * float64(imgHeight)
	if imgArea <= 0 {
		// fail closed: an unmeasurable face size is a rejection
		return config.NewQualityError("face too small relative to the image")
	}
	ratio := det.Box.Area() / imgArea
	if ratio < v.params.MinFaceSizeRatio {
		return config.NewQualityError("face too small relative to the image")
	}
	return nil
}

// checkFaceAngle estimates yaw/tilt from the eye landmarks, falling back to
// the bounding-box aspect ratio when landmarks are unavailable.
func (v *FaceValidator) checkFaceAngle(det *config.FaceDetection) error {
	angle, err := estimateFaceAngle(det)
	if err != nil {
		if validationFailurePolicy[faceAngleCheck] {
			return nil
		}
		return config.NewQualityError("face angle could not be estimated")
	}
	if angle > v.params.MaxFaceAngle {
		return config.NewQualityError("face angle %.1f° exceeds maximum of %.1f°", angle, v.params.MaxFaceAngle)
	}
	return nil
}

// checkLandmarkQuality rejects landmark sets clustered into a tiny region,
// which indicates a detection artifact rather than a face.
func (v *FaceValidator) checkLandmarkQuality(det *config.FaceDetection) error {
	if det.Landmarks == nil {
		return nil
	}
	if len(det.Landmarks) < 5 {
		return config.NewQualityError("face has %d landmarks, at least 5 required", len(det.Landmarks))
	}

	minX, minY := math.MaxFloat64, math.MaxFloat64
	maxX, maxY := -math.MaxFloat64, -math.MaxFloat64
	for _, p := range det.Landmarks {
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}

	if maxX-minX < v.params.MinLandmarkSpanX || maxY-minY < v.params.MinLandmarkSpanY {
		return config.NewQualityError("facial landmarks are too tightly clustered")
	}
	return nil
}

// estimateFaceAngle derives a coarse off-frontal angle in degrees. With
// landmarks, the eye pair gives roll directly and the nose offset against the
// eye midpoint approximates yaw; without them, box aspect ratio is the only
// proxy left.
func estimateFaceAngle(det *config.FaceDetection) (float64, error) {
	if len(det.Landmarks) >= 5 {
		leftEye, rightEye, nose := det.Landmarks[0], det.Landmarks[1], det.Landmarks[2]

		dx := rightEye.X - leftEye.X
		dy := rightEye.Y - leftEye.Y
		if dx == 0 {
			return 90.0, nil
		}
		roll := math.Abs(math.Atan2(dy, dx)) * 180.0 / math.Pi

		midX := (leftEye.X + rightEye.X) / 2.0
		eyeSpan := math.Abs(dx)
		yaw := math.Abs(nose.X-midX) / eyeSpan * 90.0

		return math.Max(roll, yaw), nil
	}

	w, h := det.Box.Width(), det.Box.Height()
	if w <= 0 || h <= 0 {
		return 0, config.NewQualityError("degenerate bounding box")
	}
	aspect := w / h
	// frontal faces sit around 0.75-0.85; strong profiles narrow the box
	if aspect < 0.6 {
		return 45.0, nil
	}
	return 0.0, nil
}
