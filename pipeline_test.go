package powergym

import (
	"encoding/base64"
	"math/rand"
	"testing"

	"github.com/SanAfaGal/powergym-back-sub000/config"
	"github.com/SanAfaGal/powergym-back-sub000/store"
	"github.com/SanAfaGal/powergym-back-sub000/utils"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"gocv.io/x/gocv"
)

// genNoiseImage fills a 3-channel Mat with seeded noise so the liveness
// heuristics see natural texture instead of a flat panel.
func genNoiseImage(rows, cols int) gocv.Mat {
	mat := gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV8UC3)
	rng := rand.New(rand.NewSource(42))
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			mat.SetUCharAt(y, x*3, uint8(rng.Intn(256)))
			mat.SetUCharAt(y, x*3+1, uint8(rng.Intn(256)))
			mat.SetUCharAt(y, x*3+2, uint8(rng.Intn(256)))
		}
	}
	return mat
}

func genNoisePayload(t *testing.T) string {
	mat := genNoiseImage(320, 320)
	defer mat.Close()

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, mat)
	assert.NoError(t, err)
	defer buf.Close()

	return base64.StdEncoding.EncodeToString(buf.GetBytes())
}

func genUniformPayload(t *testing.T) string {
	mat := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(128, 128, 128, 0), 320, 320, gocv.MatTypeCV8UC3)
	defer mat.Close()

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, mat)
	assert.NoError(t, err)
	defer buf.Close()

	return base64.StdEncoding.EncodeToString(buf.GetBytes())
}

func genTestDetection() config.FaceDetection {
	return config.FaceDetection{
		Box: config.BoundingBox{X1: 60, Y1: 60, X2: 260, Y2: 260},
		Landmarks: []config.Coordinate2D{
			{X: 120, Y: 130},
			{X: 200, Y: 130},
			{X: 160, Y: 170},
			{X: 130, Y: 210},
			{X: 190, Y: 210},
		},
		Confidence: 0.99,
	}
}

func unitEmbedding(axis int) []float64 {
	v := make([]float64, 512)
	v[axis] = 1.0
	return v
}

type stubFaceModel struct {
	faces      []config.FaceDetection
	embeddings [][]float64
	calls      int
	extractErr error
}

func (m *stubFaceModel) DetectFaces(img gocv.Mat) ([]config.FaceDetection, error) {
	return m.faces, nil
}

func (m *stubFaceModel) ExtractEmbedding(img gocv.Mat, det config.FaceDetection) ([]float64, error) {
	if m.extractErr != nil {
		return nil, m.extractErr
	}
	emb := m.embeddings[m.calls%len(m.embeddings)]
	m.calls++
	return emb, nil
}

func (m *stubFaceModel) Dimensions() int { return 512 }

func (m *stubFaceModel) Version() string { return "stub-r50" }

type stubRepo struct {
	stored      []*store.BiometricRecord
	search      []store.SimilarRecord
	searchErr   error
	storeErr    error
	deactivated []string
}

func (r *stubRepo) Store(subjectID string, embedding []float64, thumbnail []byte) (*store.BiometricRecord, error) {
	if r.storeErr != nil {
		return nil, r.storeErr
	}
	for _, rec := range r.stored {
		if rec.SubjectID == subjectID {
			rec.IsActive = false
		}
	}
	rec := &store.BiometricRecord{
		ID:            uuid.New(),
		SubjectID:     subjectID,
		BiometricType: store.BiometricTypeFace,
		Thumbnail:     thumbnail,
		IsActive:      true,
	}
	rec.SetEmbedding(embedding)
	r.stored = append(r.stored, rec)
	return rec, nil
}

func (r *stubRepo) SearchSimilar(embedding []float64, limit int, maxDistance float64, excludeSubject string) ([]store.SimilarRecord, error) {
	if r.searchErr != nil {
		return nil, r.searchErr
	}
	return r.search, nil
}

func (r *stubRepo) GetActiveBySubject(subjectID string) (*store.BiometricRecord, error) {
	for _, rec := range r.stored {
		if rec.SubjectID == subjectID && rec.IsActive {
			return rec, nil
		}
	}
	return nil, config.NewNotFoundError("no active biometric record for subject %s", subjectID)
}

func (r *stubRepo) Deactivate(subjectID string) error {
	found := false
	for _, rec := range r.stored {
		if rec.SubjectID == subjectID && rec.IsActive {
			rec.IsActive = false
			found = true
		}
	}
	if !found {
		return config.NewNotFoundError("no active biometric record for subject %s", subjectID)
	}
	r.deactivated = append(r.deactivated, subjectID)
	return nil
}

type stubResolver struct {
	subjects map[string]*config.SubjectInfo
}

func (s *stubResolver) Resolve(subjectID string) (*config.SubjectInfo, error) {
	if info, ok := s.subjects[subjectID]; ok {
		return info, nil
	}
	return nil, config.NewNotFoundError("subject %s not found", subjectID)
}

func newTestPipeline(model *stubFaceModel, repo *stubRepo, resolver SubjectResolver) *FacePipeline {
	return NewFacePipeline(model, repo, resolver, config.DefaultPipelineParams(), nil)
}

func TestPipelineRegister(t *testing.T) {
	model := &stubFaceModel{
		faces:      []config.FaceDetection{genTestDetection()},
		embeddings: [][]float64{unitEmbedding(0)},
	}
	repo := &stubRepo{}
	pipeline := newTestPipeline(model, repo, nil)

	res := pipeline.Register("member-1", genNoisePayload(t))
	assert.True(t, res.Success)
	assert.NotEmpty(t, res.RecordID)
	assert.Equal(t, "member-1", res.SubjectID)
	assert.Len(t, repo.stored, 1)
	assert.True(t, repo.stored[0].IsActive)
}

func TestPipelineRegisterRequiresSubjectID(t *testing.T) {
	pipeline := newTestPipeline(&stubFaceModel{}, &stubRepo{}, nil)

	res := pipeline.Register("", genNoisePayload(t))
	assert.False(t, res.Success)
	assert.Equal(t, config.ErrKindInputValidation, res.ErrorKind)
}

func TestPipelineRegisterRejectsInvalidPayload(t *testing.T) {
	pipeline := newTestPipeline(&stubFaceModel{}, &stubRepo{}, nil)

	res := pipeline.Register("member-1", "!!! not base64 !!!")
	assert.False(t, res.Success)
	assert.Equal(t, config.ErrKindInputValidation, res.ErrorKind)
}

func TestPipelineRegisterRejectsOversizedImage(t *testing.T) {
	params := config.DefaultPipelineParams()
	params.Image = &config.ImageParams{
		MaxSizeMB:        0.0001,
		AllowedFormats:   []string{"jpg", "jpeg", "png"},
		ThumbnailWidth:   160,
		ThumbnailHeight:  160,
		ThumbnailQuality: 85,
	}
	pipeline := NewFacePipeline(&stubFaceModel{}, &stubRepo{}, nil, params, nil)

	res := pipeline.Register("member-1", genNoisePayload(t))
	assert.False(t, res.Success)
	assert.Equal(t, config.ErrKindInputValidation, res.ErrorKind)
}

func TestPipelineRegisterRejectsMultipleFaces(t *testing.T) {
	model := &stubFaceModel{
		faces:      []config.FaceDetection{genTestDetection(), genTestDetection()},
		embeddings: [][]float64{unitEmbedding(0)},
	}
	pipeline := newTestPipeline(model, &stubRepo{}, nil)

	res := pipeline.Register("member-1", genNoisePayload(t))
	assert.False(t, res.Success)
	assert.Equal(t, config.ErrKindDetectionFailure, res.ErrorKind)
	assert.Contains(t, res.Error, "multiple faces")
}

func TestPipelineRegisterRejectsNoFace(t *testing.T) {
	model := &stubFaceModel{faces: nil, embeddings: [][]float64{unitEmbedding(0)}}
	pipeline := newTestPipeline(model, &stubRepo{}, nil)

	res := pipeline.Register("member-1", genNoisePayload(t))
	assert.False(t, res.Success)
	assert.Equal(t, config.ErrKindDetectionFailure, res.ErrorKind)
	assert.Contains(t, res.Error, "no face detected")
}

func TestPipelineRegisterRejectsSpoofedImage(t *testing.T) {
	model := &stubFaceModel{
		faces:      []config.FaceDetection{genTestDetection()},
		embeddings: [][]float64{unitEmbedding(0)},
	}
	pipeline := newTestPipeline(model, &stubRepo{}, nil)

	res := pipeline.Register("member-1", genUniformPayload(t))
	assert.False(t, res.Success)
	assert.Equal(t, config.ErrKindSpoofRejection, res.ErrorKind)
}

func TestPipelineUpdateReplacesActiveRecord(t *testing.T) {
	model := &stubFaceModel{
		faces:      []config.FaceDetection{genTestDetection()},
		embeddings: [][]float64{unitEmbedding(0)},
	}
	repo := &stubRepo{}
	pipeline := newTestPipeline(model, repo, nil)

	first := pipeline.Register("member-1", genNoisePayload(t))
	assert.True(t, first.Success)

	second := pipeline.Update("member-1", genNoisePayload(t))
	assert.True(t, second.Success)
	assert.NotEqual(t, first.RecordID, second.RecordID)

	assert.Len(t, repo.stored, 2)
	active := 0
	for _, rec := range repo.stored {
		if rec.IsActive {
			active++
			assert.Equal(t, second.RecordID, rec.ID.String())
		}
	}
	assert.Equal(t, 1, active)
}

func TestPipelineAuthenticate(t *testing.T) {
	model := &stubFaceModel{
		faces:      []config.FaceDetection{genTestDetection()},
		embeddings: [][]float64{unitEmbedding(0)},
	}
	repo := &stubRepo{
		search: []store.SimilarRecord{
			{BiometricRecord: store.BiometricRecord{SubjectID: "member-1"}, Distance: 0.12},
		},
	}
	resolver := &stubResolver{subjects: map[string]*config.SubjectInfo{
		"member-1": {ID: "member-1", FullName: "Ana Torres", IsActive: true},
	}}
	pipeline := newTestPipeline(model, repo, resolver)

	res := pipeline.Authenticate(genNoisePayload(t), nil)
	assert.True(t, res.Success)
	assert.Equal(t, "member-1", res.SubjectID)
	assert.NotNil(t, res.Subject)
	assert.Equal(t, "Ana Torres", res.Subject.FullName)
	assert.InDelta(t, 0.88, res.Similarity, 1e-9)
	assert.InDelta(t, 0.12, res.Distance, 1e-9)
}

func TestPipelineAuthenticateNoMatch(t *testing.T) {
	model := &stubFaceModel{
		faces:      []config.FaceDetection{genTestDetection()},
		embeddings: [][]float64{unitEmbedding(0)},
	}
	pipeline := newTestPipeline(model, &stubRepo{}, nil)

	res := pipeline.Authenticate(genNoisePayload(t), nil)
	assert.False(t, res.Success)
	assert.Equal(t, config.ErrKindNotFound, res.ErrorKind)
	assert.Contains(t, res.Error, "no matching face found")
}

func TestPipelineAuthenticateFailsOnInactiveBestMatch(t *testing.T) {
	model := &stubFaceModel{
		faces:      []config.FaceDetection{genTestDetection()},
		embeddings: [][]float64{unitEmbedding(0)},
	}
	// the closest candidate decides the outcome; a runner-up never wins
	repo := &stubRepo{
		search: []store.SimilarRecord{
			{BiometricRecord: store.BiometricRecord{SubjectID: "member-1"}, Distance: 0.10},
			{BiometricRecord: store.BiometricRecord{SubjectID: "member-2"}, Distance: 0.20},
		},
	}
	resolver := &stubResolver{subjects: map[string]*config.SubjectInfo{
		"member-1": {ID: "member-1", FullName: "Ana Torres", IsActive: false},
		"member-2": {ID: "member-2", FullName: "Luis Rojas", IsActive: true},
	}}
	pipeline := newTestPipeline(model, repo, resolver)

	res := pipeline.Authenticate(genNoisePayload(t), nil)
	assert.False(t, res.Success)
	assert.Equal(t, config.ErrKindNotFound, res.ErrorKind)
}

func TestPipelineAuthenticateFailsOnUnresolvableBestMatch(t *testing.T) {
	model := &stubFaceModel{
		faces:      []config.FaceDetection{genTestDetection()},
		embeddings: [][]float64{unitEmbedding(0)},
	}
	repo := &stubRepo{
		search: []store.SimilarRecord{
			{BiometricRecord: store.BiometricRecord{SubjectID: "ghost"}, Distance: 0.05},
		},
	}
	resolver := &stubResolver{subjects: map[string]*config.SubjectInfo{}}
	pipeline := newTestPipeline(model, repo, resolver)

	res := pipeline.Authenticate(genNoisePayload(t), nil)
	assert.False(t, res.Success)
	assert.Equal(t, config.ErrKindNotFound, res.ErrorKind)
}

func TestPipelineDelete(t *testing.T) {
	model := &stubFaceModel{
		faces:      []config.FaceDetection{genTestDetection()},
		embeddings: [][]float64{unitEmbedding(0)},
	}
	repo := &stubRepo{}
	pipeline := newTestPipeline(model, repo, nil)

	reg := pipeline.Register("member-1", genNoisePayload(t))
	assert.True(t, reg.Success)

	res := pipeline.Delete("member-1")
	assert.True(t, res.Success)
	assert.NotEmpty(t, res.Message)
	assert.Equal(t, []string{"member-1"}, repo.deactivated)

	again := pipeline.Delete("member-1")
	assert.False(t, again.Success)
	assert.Equal(t, config.ErrKindNotFound, again.ErrorKind)
}

func TestPipelineDeleteUnknownSubject(t *testing.T) {
	pipeline := newTestPipeline(&stubFaceModel{}, &stubRepo{}, nil)

	res := pipeline.Delete("member-404")
	assert.False(t, res.Success)
	assert.Equal(t, config.ErrKindNotFound, res.ErrorKind)
}

func TestPipelineCompareFacesSamePerson(t *testing.T) {
	model := &stubFaceModel{
		faces:      []config.FaceDetection{genTestDetection()},
		embeddings: [][]float64{unitEmbedding(0)},
	}
	pipeline := newTestPipeline(model, &stubRepo{}, nil)

	payload := genNoisePayload(t)
	res := pipeline.CompareFaces(payload, payload, nil)
	assert.True(t, res.Success)
	assert.True(t, res.Match)
	assert.InDelta(t, 0.0, res.Distance, 1e-9)
	assert.InDelta(t, 1.0, res.Confidence, 1e-9)
}

func TestPipelineCompareFacesDifferentPeople(t *testing.T) {
	model := &stubFaceModel{
		faces:      []config.FaceDetection{genTestDetection()},
		embeddings: [][]float64{unitEmbedding(0), unitEmbedding(1)},
	}
	pipeline := newTestPipeline(model, &stubRepo{}, nil)

	res := pipeline.CompareFaces(genNoisePayload(t), genNoisePayload(t), nil)
	assert.True(t, res.Success)
	assert.False(t, res.Match)
	assert.InDelta(t, 1.0, res.Distance, 1e-9)
	assert.InDelta(t, 0.0, res.Confidence, 1e-9)
}

func TestPipelineCompareFacesToleranceOverride(t *testing.T) {
	model := &stubFaceModel{
		faces:      []config.FaceDetection{genTestDetection()},
		embeddings: [][]float64{unitEmbedding(0)},
	}
	pipeline := newTestPipeline(model, &stubRepo{}, nil)

	payload := genNoisePayload(t)
	strict := utils.RefPointer(1.1)
	res := pipeline.CompareFaces(payload, payload, strict)
	assert.True(t, res.Success)
	assert.False(t, res.Match)
	assert.InDelta(t, 1.0, res.Confidence, 1e-9)
}
