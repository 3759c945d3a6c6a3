package modules

import (
	"github.com/SanAfaGal/powergym-back-sub000/config"
	gotritonclient "github.com/okieraised/go-triton-client"
	"gocv.io/x/gocv"
)

// FaceModel is the detection/extraction capability the pipeline is built on.
// It is constructed once at startup and injected; implementations must
// tolerate concurrent calls from multiple worker goroutines.
type FaceModel interface {
	// DetectFaces returns every detectable face in the image. Group photos
	// are allowed here; single-face enforcement is the caller's concern.
	DetectFaces(img gocv.Mat) ([]config.FaceDetection, error)

	// ExtractEmbedding aligns the detected face and returns its
	// L2-normalized identity embedding.
	ExtractEmbedding(img gocv.Mat, det config.FaceDetection) ([]float64, error)

	// Dimensions reports the embedding dimensionality the model produces.
	Dimensions() int

	// Version identifies the extraction model for record metadata.
	Version() string
}

// DetectSingleFace runs detection and enforces the exactly-one-face contract.
// Multi-face images are refused outright rather than guessing which face to
// use.
func DetectSingleFace(model FaceModel, img gocv.Mat) (config.FaceDetection, error) {
	faces, err := model.DetectFaces(img)
	if err != nil {
		return config.FaceDetection{}, err
	}
	if len(faces) == 0 {
		return config.FaceDetection{}, config.NewDetectionError("no face detected in the image")
	}
	if len(faces) > 1 {
		return config.FaceDetection{}, config.NewDetectionError("multiple faces detected in the image, expected exactly one")
	}
	return faces[0], nil
}

// TritonFaceModel implements FaceModel over a Triton inference server,
// composing the detection, recognition and attribute clients.
type TritonFaceModel struct {
	detection *FaceDetectionClient
	faceID    *FaceIDClient
	attribute *FaceAttributeClient
	params    *config.PipelineParams
}

// NewTritonFaceModel wires the model clients against a shared Triton
// connection. The attribute model is optional: when its configuration cannot
// be fetched, age/gender enrichment is skipped instead of failing startup.
func NewTritonFaceModel(tritonClient *gotritonclient.TritonGRPCClient, params *config.PipelineParams) (*TritonFaceModel, error) {

	model := &TritonFaceModel{params: params}

	detectionClient, err := NewFaceDetectionClient(tritonClient, params.Detection)
	if err != nil {
		return nil, err
	}
	model.detection = detectionClient

	faceIDClient, err := NewFaceIDClient(tritonClient, params.FaceID)
	if err != nil {
		return nil, err
	}
	model.faceID = faceIDClient

	attributeClient, err := NewFaceAttributeClient(tritonClient, params.Attribute)
	if err == nil {
		model.attribute = attributeClient
	}

	return model, nil
}

func (m *TritonFaceModel) DetectFaces(img gocv.Mat) ([]config.FaceDetection, error) {
	faces, err := m.detection.InferSingle(img)
	if err != nil {
		return nil, err
	}

	if m.attribute == nil {
		return faces, nil
	}

	for i := range faces {
		aligned, err := AlignWarpFace(img, faces[i].LandmarkTensor(), m.params.Attribute.ImgSize)
		if err != nil {
			continue
		}
		age, gender, err := m.attribute.InferSingle(aligned)
		aligned.Close()
		if err != nil {
			continue
		}
		faces[i].Age = &age
		g := gender
		faces[i].Gender = &g
	}
	return faces, nil
}

func (m *TritonFaceModel) ExtractEmbedding(img gocv.Mat, det config.FaceDetection) ([]float64, error) {
	aligned, err := AlignWarpFace(img, det.LandmarkTensor(), m.params.FaceID.ImgSize)
	if err != nil {
		return nil, err
	}
	defer aligned.Close()

	return m.faceID.InferSingle(aligned)
}

func (m *TritonFaceModel) Dimensions() int {
	return m.params.FaceID.Dimensions
}

func (m *TritonFaceModel) Version() string {
	return m.params.FaceID.ModelVersion
}
