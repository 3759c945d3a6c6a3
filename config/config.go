package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type FaceDetectionParams struct {
	ModelName string        `json:"model_name"`
	Mean      float64       `json:"mean"`
	Scale     float64       `json:"scale"`
	InputSize int           `json:"input_size"`
	Timeout   time.Duration `json:"timeout"`
}

var DefaultFaceDetectionParams = &FaceDetectionParams{
	ModelName: "scrfd",
	Mean:      127.5,
	Scale:     0.00784313725490196,
	InputSize: 640,
	Timeout:   10 * time.Second,
}

func NewFaceDetectionParams(modelName string, mean, scale float64, inputSize int, timeout time.Duration) *FaceDetectionParams {
	return &FaceDetectionParams{
		ModelName: modelName,
		Mean:      mean,
		Scale:     scale,
		InputSize: inputSize,
		Timeout:   timeout,
	}
}

type FaceIDParams struct {
	ModelName    string        `json:"model_name"`
	ModelVersion string        `json:"model_version"`
	Mean         float64       `json:"mean"`
	Scale        float64       `json:"scale"`
	ImgSize      int           `json:"img_size"`
	Dimensions   int           `json:"dimensions"`
	Timeout      time.Duration `json:"timeout"`
}

var DefaultFaceIDParams = &FaceIDParams{
	ModelName:    "face_id",
	ModelVersion: "arcface-r50-v1",
	Mean:         127.5,
	Scale:        0.00784313725490196,
	ImgSize:      112,
	Dimensions:   512,
	Timeout:      10 * time.Second,
}

func NewFaceIDParams(modelName, modelVersion string, mean, scale float64, imgSize, dimensions int, timeout time.Duration) *FaceIDParams {
	return &FaceIDParams{
		ModelName:    modelName,
		ModelVersion: modelVersion,
		Mean:         mean,
		Scale:        scale,
		ImgSize:      imgSize,
		Dimensions:   dimensions,
		Timeout:      timeout,
	}
}

type FaceAttributeParams struct {
	ModelName string        `json:"model_name"`
	Mean      float64       `json:"mean"`
	Scale     float64       `json:"scale"`
	ImgSize   int           `json:"img_size"`
	Timeout   time.Duration `json:"timeout"`
}

var DefaultFaceAttributeParams = &FaceAttributeParams{
	ModelName: "genderage",
	Mean:      0.0,
	Scale:     1.0,
	ImgSize:   96,
	Timeout:   10 * time.Second,
}

// AntiSpoofingParams holds the thresholds for the single-frame liveness
// heuristics. The defaults are starting points tuned on in-house captures,
// not calibrated constants; deployments are expected to re-tune them.
type AntiSpoofingParams struct {
	Enabled              bool    `json:"enabled"`
	MinLivenessScore     float64 `json:"min_liveness_score"`
	PhotoThresholdFloor  float64 `json:"photo_threshold_floor"`
	PhotoThresholdCeil   float64 `json:"photo_threshold_ceil"`
	PhoneConfidenceLimit float64 `json:"phone_confidence_limit"`
	ScreenVarianceLimit  float64 `json:"screen_variance_limit"`
}

var DefaultAntiSpoofingParams = &AntiSpoofingParams{
	Enabled:              true,
	MinLivenessScore:     0.5,
	PhotoThresholdFloor:  0.3,
	PhotoThresholdCeil:   0.4,
	PhoneConfidenceLimit: 0.5,
	ScreenVarianceLimit:  500.0,
}

type FaceValidationParams struct {
	MinAge           int     `json:"min_age"`
	MaxAge           int     `json:"max_age"`
	MinFaceSizeRatio float64 `json:"min_face_size_ratio"`
	MaxFaceAngle     float64 `json:"max_face_angle"`
	MinLandmarkSpanX float64 `json:"min_landmark_span_x"`
	MinLandmarkSpanY float64 `json:"min_landmark_span_y"`
}

var DefaultFaceValidationParams = &FaceValidationParams{
	MinAge:           5,
	MaxAge:           100,
	MinFaceSizeRatio: 0.02,
	MaxFaceAngle:     30.0,
	MinLandmarkSpanX: 10.0,
	MinLandmarkSpanY: 10.0,
}

type ImageParams struct {
	MaxSizeMB        float64  `json:"max_size_mb"`
	AllowedFormats   []string `json:"allowed_formats"`
	ThumbnailWidth   int      `json:"thumbnail_width"`
	ThumbnailHeight  int      `json:"thumbnail_height"`
	ThumbnailQuality int      `json:"thumbnail_quality"`
}

var DefaultImageParams = &ImageParams{
	MaxSizeMB:        10.0,
	AllowedFormats:   []string{"jpg", "jpeg", "png", "webp"},
	ThumbnailWidth:   160,
	ThumbnailHeight:  160,
	ThumbnailQuality: 85,
}

// PipelineParams aggregates every option the face pipeline recognizes.
type PipelineParams struct {
	Detection    *FaceDetectionParams  `json:"detection"`
	FaceID       *FaceIDParams         `json:"face_id"`
	Attribute    *FaceAttributeParams  `json:"attribute"`
	AntiSpoofing *AntiSpoofingParams   `json:"anti_spoofing"`
	Validation   *FaceValidationParams `json:"validation"`
	Image        *ImageParams          `json:"image"`

	// SimilarityTolerance is the system-wide match cutoff, overridable per call.
	SimilarityTolerance float64 `json:"similarity_tolerance"`
	SearchLimit         int     `json:"search_limit"`
}

// DefaultPipelineParams returns fresh copies of the package defaults, so
// callers (and env overrides in LoadPipelineParams) may mutate the result
// without touching the Default*Params globals.
func DefaultPipelineParams() *PipelineParams {
	detection := *DefaultFaceDetectionParams
	faceID := *DefaultFaceIDParams
	attribute := *DefaultFaceAttributeParams
	antiSpoofing := *DefaultAntiSpoofingParams
	validation := *DefaultFaceValidationParams
	image := *DefaultImageParams
	image.AllowedFormats = append([]string(nil), DefaultImageParams.AllowedFormats...)

	return &PipelineParams{
		Detection:           &detection,
		FaceID:              &faceID,
		Attribute:           &attribute,
		AntiSpoofing:        &antiSpoofing,
		Validation:          &validation,
		Image:               &image,
		SimilarityTolerance: 0.6,
		SearchLimit:         5,
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvIntOrDefault(envVar string, defaultVal int) int {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil || val <= 0 {
		log.Printf("Warning: invalid %s '%s', using default %d", envVar, valStr, defaultVal)
		return defaultVal
	}
	return val
}

func getEnvFloatOrDefault(envVar string, defaultVal float64) float64 {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseFloat(valStr, 64)
	if err != nil {
		log.Printf("Warning: invalid %s '%s', using default %v", envVar, valStr, defaultVal)
		return defaultVal
	}
	return val
}

func getEnvBoolOrDefault(envVar string, defaultVal bool) bool {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseBool(valStr)
	if err != nil {
		log.Printf("Warning: invalid %s '%s', using default %v", envVar, valStr, defaultVal)
		return defaultVal
	}
	return val
}

// LoadPipelineParams builds PipelineParams from the environment, falling back
// to the package defaults. A missing .env file is not an error.
func LoadPipelineParams() *PipelineParams {
	_ = godotenv.Load()

	params := DefaultPipelineParams()

	params.SimilarityTolerance = getEnvFloatOrDefault("FACE_SIMILARITY_TOLERANCE", params.SimilarityTolerance)
	params.SearchLimit = getEnvIntOrDefault("FACE_SEARCH_LIMIT", params.SearchLimit)

	params.Detection.ModelName = getEnvOrDefault("FACE_DETECTION_MODEL", params.Detection.ModelName)
	params.Detection.InputSize = getEnvIntOrDefault("FACE_DETECTION_INPUT_SIZE", params.Detection.InputSize)

	params.FaceID.ModelName = getEnvOrDefault("FACE_ID_MODEL", params.FaceID.ModelName)
	params.FaceID.Dimensions = getEnvIntOrDefault("FACE_EMBEDDING_DIMENSIONS", params.FaceID.Dimensions)

	params.AntiSpoofing.Enabled = getEnvBoolOrDefault("ANTI_SPOOFING_ENABLED", params.AntiSpoofing.Enabled)
	params.AntiSpoofing.MinLivenessScore = getEnvFloatOrDefault("MIN_LIVENESS_SCORE", params.AntiSpoofing.MinLivenessScore)

	params.Validation.MinAge = getEnvIntOrDefault("FACE_MIN_AGE", params.Validation.MinAge)
	params.Validation.MaxAge = getEnvIntOrDefault("FACE_MAX_AGE", params.Validation.MaxAge)
	params.Validation.MinFaceSizeRatio = getEnvFloatOrDefault("MIN_FACE_SIZE_RATIO", params.Validation.MinFaceSizeRatio)
	params.Validation.MaxFaceAngle = getEnvFloatOrDefault("MAX_FACE_ANGLE", params.Validation.MaxFaceAngle)

	params.Image.MaxSizeMB = getEnvFloatOrDefault("MAX_IMAGE_SIZE_MB", params.Image.MaxSizeMB)
	if formats := os.Getenv("ALLOWED_IMAGE_FORMATS"); formats != "" {
		parts := strings.Split(formats, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.ToLower(strings.TrimSpace(p))
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			params.Image.AllowedFormats = cleaned
		}
	}
	params.Image.ThumbnailWidth = getEnvIntOrDefault("THUMBNAIL_WIDTH", params.Image.ThumbnailWidth)
	params.Image.ThumbnailHeight = getEnvIntOrDefault("THUMBNAIL_HEIGHT", params.Image.ThumbnailHeight)
	params.Image.ThumbnailQuality = getEnvIntOrDefault("THUMBNAIL_QUALITY", params.Image.ThumbnailQuality)

	return params
}
