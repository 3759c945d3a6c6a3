package powergym

import (
	"github.com/SanAfaGal/powergym-back-sub000/config"
	"github.com/SanAfaGal/powergym-back-sub000/modules"
	"github.com/SanAfaGal/powergym-back-sub000/store"
	"github.com/SanAfaGal/powergym-back-sub000/utils"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// SubjectResolver maps a stored subject id to the owning client entity.
// Client management lives outside this core; authentication only needs
// enough to confirm the owner exists and is active.
type SubjectResolver interface {
	Resolve(subjectID string) (*config.SubjectInfo, error)
}

// FacePipeline defines the structure of the face authentication pipeline.
type FacePipeline struct {
	Model        modules.FaceModel
	Repo         store.BiometricRepositoryInterface
	Subjects     SubjectResolver
	AntiSpoofing *modules.AntiSpoofingDetector
	Validator    *modules.FaceValidator
	Params       *config.PipelineParams

	logger *zap.Logger
}

// NewFacePipeline initializes a new pipeline. A nil params falls back to the
// defaults; a nil logger discards output.
func NewFacePipeline(
	model modules.FaceModel,
	repo store.BiometricRepositoryInterface,
	subjects SubjectResolver,
	params *config.PipelineParams,
	logger *zap.Logger,
) *FacePipeline {

	if params == nil {
		params = config.DefaultPipelineParams()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &FacePipeline{
		Model:        model,
		Repo:         repo,
		Subjects:     subjects,
		AntiSpoofing: modules.NewAntiSpoofingDetector(params.AntiSpoofing),
		Validator:    modules.NewFaceValidator(params.Validation),
		Params:       params,
		logger:       logger,
	}
}

// failure maps an error to the fields every operation result carries.
func failure(err error) config.OperationResult {
	return config.OperationResult{
		Success:   false,
		ErrorKind: config.KindOf(err),
		Error:     err.Error(),
	}
}

// processImage decodes the payload and enforces the exactly-one-face
// contract. Enrollment paths additionally screen for presentation attacks
// and run the human-face validator; probe paths only need a detectable face.
// The caller owns the returned Mat.
func (p *FacePipeline) processImage(payload string, enrollment bool) (*gocv.Mat, config.FaceDetection, error) {
	img, err := utils.DecodeImagePayload(payload, p.Params.Image)
	if err != nil {
		return nil, config.FaceDetection{}, err
	}

	if enrollment {
		verify := p.AntiSpoofing.CheckLiveness(*img)
		if !verify.IsLive {
			img.Close()
			return nil, config.FaceDetection{}, config.NewSpoofError("%s", verify.Reason)
		}
	}

	det, err := modules.DetectSingleFace(p.Model, *img)
	if err != nil {
		img.Close()
		return nil, config.FaceDetection{}, err
	}

	if enrollment {
		cols, rows := img.Cols(), img.Rows()
		if err := p.Validator.Validate(&det, cols, rows); err != nil {
			img.Close()
			return nil, config.FaceDetection{}, err
		}
	}

	return img, det, nil
}

/*
Register enrolls a subject's face from a base64-encoded image.

The image is decoded, screened for presentation attacks, reduced to a single
validated face and converted to an embedding; the embedding plus an encrypted
thumbnail are persisted as the subject's only active record.

Inputs:

  - subjectID (string): owner of the new biometric record.
  - payload (string): base64 image, with or without a data-URI prefix.

Outputs:

  - result (*config.RegisterResult): record id on success, error kind otherwise.
*/
func (p *FacePipeline) Register(subjectID, payload string) *config.RegisterResult {
	resp := &config.RegisterResult{SubjectID: subjectID}

	if subjectID == "" {
		err := config.NewValidationError("subject id is required")
		resp.OperationResult = failure(err)
		return resp
	}

	img, det, err := p.processImage(payload, true)
	if err != nil {
		resp.OperationResult = failure(err)
		return resp
	}
	defer img.Close()

	embedding, err := p.Model.ExtractEmbedding(*img, det)
	if err != nil {
		resp.OperationResult = failure(err)
		return resp
	}

	thumbnail, err := utils.EncodeThumbnail(*img, det.Box, p.Params.Image)
	if err != nil {
		resp.OperationResult = failure(err)
		return resp
	}

	record, err := p.Repo.Store(subjectID, embedding, thumbnail)
	if err != nil {
		p.logger.Error("face registration failed",
			zap.String("subject_id", subjectID),
			zap.Error(err),
		)
		resp.OperationResult = failure(err)
		return resp
	}

	p.logger.Info("face registered",
		zap.String("subject_id", subjectID),
		zap.String("record_id", record.ID.String()),
	)

	resp.Success = true
	resp.RecordID = record.ID.String()
	return resp
}

/*
Authenticate identifies the subject on a base64-encoded image.

The probe face is validated and embedded, then matched against active records
by cosine distance. Only the closest candidate is considered: when its owner
cannot be resolved or is inactive, authentication fails instead of falling
back to a worse match.

Inputs:

  - payload (string): base64 image, with or without a data-URI prefix.
  - tolerance (*float64): optional per-call similarity cutoff; nil uses the
    configured default.

Outputs:

  - result (*config.AuthenticateResult): matched subject plus similarity and
    distance on success.
*/
func (p *FacePipeline) Authenticate(payload string, tolerance *float64) *config.AuthenticateResult {
	resp := &config.AuthenticateResult{}

	img, det, err := p.processImage(payload, false)
	if err != nil {
		resp.OperationResult = failure(err)
		return resp
	}
	defer img.Close()

	embedding, err := p.Model.ExtractEmbedding(*img, det)
	if err != nil {
		resp.OperationResult = failure(err)
		return resp
	}

	maxDistance := 1.0 - p.matchTolerance(tolerance)
	candidates, err := p.Repo.SearchSimilar(embedding, p.Params.SearchLimit, maxDistance, "")
	if err != nil {
		resp.OperationResult = failure(err)
		return resp
	}

	noMatch := config.NewNotFoundError("no matching face found")
	if len(candidates) == 0 {
		resp.OperationResult = failure(noMatch)
		return resp
	}

	best := candidates[0]
	subject, err := p.resolveSubject(best.SubjectID)
	if err != nil {
		p.logger.Warn("best match candidate could not be resolved",
			zap.String("subject_id", best.SubjectID),
			zap.Error(err),
		)
		resp.OperationResult = failure(noMatch)
		return resp
	}
	if subject != nil && !subject.IsActive {
		resp.OperationResult = failure(noMatch)
		return resp
	}

	resp.Success = true
	resp.SubjectID = best.SubjectID
	resp.Subject = subject
	resp.Distance = best.Distance
	resp.Similarity = 1.0 - best.Distance

	p.logger.Info("face authenticated",
		zap.String("subject_id", best.SubjectID),
		zap.Float64("similarity", resp.Similarity),
	)
	return resp
}

func (p *FacePipeline) matchTolerance(override *float64) float64 {
	if override != nil {
		return *override
	}
	return p.Params.SimilarityTolerance
}

// resolveSubject consults the resolver when one is wired; without a resolver
// the raw subject id is trusted as-is.
func (p *FacePipeline) resolveSubject(subjectID string) (*config.SubjectInfo, error) {
	if p.Subjects == nil {
		return nil, nil
	}
	return p.Subjects.Resolve(subjectID)
}

/*
Update replaces a subject's enrolled face with a new image.

The new image goes through the full registration gauntlet; on success the
previous record is deactivated and the new one becomes the subject's single
active template.

Inputs:

  - subjectID (string): owner of the record to replace.
  - payload (string): base64 image, with or without a data-URI prefix.

Outputs:

  - result (*config.RegisterResult): new record id on success.
*/
func (p *FacePipeline) Update(subjectID, payload string) *config.RegisterResult {
	return p.Register(subjectID, payload)
}

/*
Delete deactivates a subject's face records.

Records are soft-deleted: flagged inactive, never physically removed, so the
audit trail survives.

Inputs:

  - subjectID (string): owner of the records to deactivate.

Outputs:

  - result (*config.DeleteResult): confirmation message on success, not-found
    error when the subject has no active record.
*/
func (p *FacePipeline) Delete(subjectID string) *config.DeleteResult {
	resp := &config.DeleteResult{}

	if subjectID == "" {
		err := config.NewValidationError("subject id is required")
		resp.OperationResult = failure(err)
		return resp
	}

	if err := p.Repo.Deactivate(subjectID); err != nil {
		resp.OperationResult = failure(err)
		return resp
	}

	p.logger.Info("face records deactivated", zap.String("subject_id", subjectID))

	resp.Success = true
	resp.Message = "biometric data deleted"
	return resp
}

/*
CompareFaces decides whether two images show the same person.

Each image must contain exactly one validated face; neither is checked for
liveness nor persisted.

Inputs:

  - payloadA (string): first base64 image.
  - payloadB (string): second base64 image.
  - tolerance (*float64): optional per-call similarity cutoff; nil uses the
    configured default.

Outputs:

  - result (*config.CompareResult): match decision with cosine distance and a
    confidence in [0, 1].
*/
func (p *FacePipeline) CompareFaces(payloadA, payloadB string, tolerance *float64) *config.CompareResult {
	resp := &config.CompareResult{}

	imgA, detA, err := p.processImage(payloadA, false)
	if err != nil {
		resp.OperationResult = failure(err)
		return resp
	}
	defer imgA.Close()

	imgB, detB, err := p.processImage(payloadB, false)
	if err != nil {
		resp.OperationResult = failure(err)
		return resp
	}
	defer imgB.Close()

	embeddingA, err := p.Model.ExtractEmbedding(*imgA, detA)
	if err != nil {
		resp.OperationResult = failure(err)
		return resp
	}
	embeddingB, err := p.Model.ExtractEmbedding(*imgB, detB)
	if err != nil {
		resp.OperationResult = failure(err)
		return resp
	}

	match, similarity, err := modules.Compare(embeddingA, embeddingB, p.Model.Dimensions(), p.matchTolerance(tolerance))
	if err != nil {
		resp.OperationResult = failure(err)
		return resp
	}

	resp.Success = true
	resp.Match = match
	resp.Distance = 1.0 - similarity
	resp.Confidence = utils.Clamp(similarity, 0, 1)
	return resp
}
