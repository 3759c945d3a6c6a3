package config

import (
	"gorgonia.org/tensor"
)

type Size struct {
	Width  int
	Height int
}

func (s *Size) Max() int {
	if s.Height > s.Width {
		return s.Height
	}
	return s.Width
}

func (s *Size) Min() int {
	if s.Height < s.Width {
		return s.Height
	}
	return s.Width
}

type Coordinate2D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type BoundingBox struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

func (b *BoundingBox) Width() float64 {
	return b.X2 - b.X1
}

func (b *BoundingBox) Height() float64 {
	return b.Y2 - b.Y1
}

func (b *BoundingBox) Area() float64 {
	w, h := b.Width(), b.Height()
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

type Gender int

const (
	GenderFemale Gender = 0
	GenderMale   Gender = 1
)

func (g Gender) Valid() bool {
	return g == GenderFemale || g == GenderMale
}

func (g Gender) String() string {
	switch g {
	case GenderFemale:
		return "female"
	case GenderMale:
		return "male"
	default:
		return "unknown"
	}
}

// FaceDetection is the transient output of a single detection. Age and Gender
// are present only when the attribute model ran for this face.
type FaceDetection struct {
	Box        BoundingBox    `json:"box"`
	Landmarks  []Coordinate2D `json:"landmarks"`
	Confidence float64        `json:"confidence"`
	Age        *int           `json:"age,omitempty"`
	Gender     *Gender        `json:"gender,omitempty"`
}

// LandmarkTensor packs the landmark points into a (n, 2) tensor for the
// alignment helpers.
func (d *FaceDetection) LandmarkTensor() *tensor.Dense {
	backing := make([]float32, 0, len(d.Landmarks)*2)
	for _, p := range d.Landmarks {
		backing = append(backing, float32(p.X), float32(p.Y))
	}
	return tensor.New(
		tensor.Of(tensor.Float32),
		tensor.WithShape(len(d.Landmarks), 2),
		tensor.WithBacking(backing),
	)
}

// LivenessCheck reports a single anti-spoofing sub-check.
type LivenessCheck struct {
	IsAttack   bool    `json:"is_attack"`
	Confidence float64 `json:"confidence"`
	Detail     string  `json:"detail,omitempty"`
}

// LivenessVerify aggregates the anti-spoofing sub-checks.
type LivenessVerify struct {
	IsLive     bool          `json:"is_live"`
	Confidence float64       `json:"confidence"`
	Reason     string        `json:"reason,omitempty"`
	PhotoPrint LivenessCheck `json:"photo_print"`
	Phone      LivenessCheck `json:"phone_screen"`
	Screen     LivenessCheck `json:"screen"`
}

// SubjectInfo is the resolved owner of a biometric record. The client entity
// itself lives outside this core; only the fields authentication needs are
// carried here.
type SubjectInfo struct {
	ID       string `json:"id"`
	FullName string `json:"full_name"`
	IsActive bool   `json:"is_active"`
}

type OperationResult struct {
	Success   bool      `json:"success"`
	ErrorKind ErrorKind `json:"error_kind,omitempty"`
	Error     string    `json:"error,omitempty"`
}

type RegisterResult struct {
	OperationResult
	RecordID  string `json:"record_id,omitempty"`
	SubjectID string `json:"subject_id,omitempty"`
}

type AuthenticateResult struct {
	OperationResult
	SubjectID  string       `json:"subject_id,omitempty"`
	Subject    *SubjectInfo `json:"subject,omitempty"`
	Similarity float64      `json:"similarity"`
	Distance   float64      `json:"distance"`
}

type CompareResult struct {
	OperationResult
	Match      bool    `json:"match"`
	Distance   float64 `json:"distance"`
	Confidence float64 `json:"confidence"`
}

type DeleteResult struct {
	OperationResult
	Message string `json:"message,omitempty"`
}
