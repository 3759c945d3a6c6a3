package modules

import (
	"image"
	"math"

	"github.com/SanAfaGal/powergym-back-sub000/config"
	"github.com/SanAfaGal/powergym-back-sub000/utils"
	gotritonclient "github.com/okieraised/go-triton-client"
	"github.com/okieraised/go-triton-client/triton_proto"
	"gocv.io/x/gocv"
	"gorgonia.org/tensor"
)

// FaceIDClient extracts identity embeddings from aligned face crops via the
// Triton-hosted recognition model.
type FaceIDClient struct {
	tritonClient *gotritonclient.TritonGRPCClient
	ModelParams  *config.FaceIDParams
	ModelConfig  *triton_proto.ModelConfigResponse
}

func NewFaceIDClient(triton *gotritonclient.TritonGRPCClient, cfg *config.FaceIDParams) (*FaceIDClient, error) {

	inferenceConfig, err := triton.GetModelConfiguration(cfg.Timeout, cfg.ModelName, "")
	if err != nil {
		return nil, err
	}

	return &FaceIDClient{
		tritonClient: triton,
		ModelParams:  cfg,
		ModelConfig:  inferenceConfig,
	}, nil
}

func (c *FaceIDClient) preprocess(input gocv.Mat) (*tensor.Dense, error) {
	resizedImg := gocv.NewMat()
	defer resizedImg.Close()
	gocv.Resize(
		input,
		&resizedImg,
		image.Point{
			X: c.ModelParams.ImgSize,
			Y: c.ModelParams.ImgSize,
		},
		0.0,
		0.0,
		gocv.InterpolationLinear,
	)

	imgTensors := tensor.New(
		tensor.Of(tensor.Float32),
		tensor.WithShape(
			int(c.ModelConfig.Config.Input[0].Dims[1]),
			int(c.ModelConfig.Config.Input[0].Dims[2]),
			int(c.ModelConfig.Config.Input[0].Dims[0]),
		),
	)

	for z := range int(c.ModelConfig.Config.Input[0].Dims[0]) {
		for y := range int(c.ModelConfig.Config.Input[0].Dims[1]) {
			for x := range int(c.ModelConfig.Config.Input[0].Dims[2]) {
				err := imgTensors.SetAt((float32(resizedImg.GetVecbAt(y, x)[z])-float32(c.ModelParams.Mean))*float32(c.ModelParams.Scale), y, x, z)
				if err != nil {
					return nil, err
				}
			}
		}
	}
	err := imgTensors.T(2, 0, 1)
	if err != nil {
		return nil, err
	}
	newShape := []int{1}
	newShape = append(newShape, imgTensors.Shape()...)
	err = imgTensors.Reshape(newShape...)
	if err != nil {
		return nil, err
	}
	return imgTensors, nil
}

// InferSingle extracts the embedding of one aligned face crop. The returned
// vector is L2-normalized and exactly ModelParams.Dimensions long; any other
// model output length is a hard failure.
func (c *FaceIDClient) InferSingle(input gocv.Mat) ([]float64, error) {
	inputTensors, err := c.preprocess(input)
	if err != nil {
		return nil, err
	}

	modelRequest := &triton_proto.ModelInferRequest{
		ModelName: c.ModelParams.ModelName,
	}

	modelInputs := make([]*triton_proto.ModelInferRequest_InferInputTensor, 0)
	for _, inputCfg := range c.ModelConfig.Config.Input {
		modelInput := &triton_proto.ModelInferRequest_InferInputTensor{
			Name:     inputCfg.Name,
			Datatype: inputCfg.DataType.String()[5:],
			Shape:    []int64{1, inputCfg.Dims[0], inputCfg.Dims[1], inputCfg.Dims[2]},
			Contents: &triton_proto.InferTensorContents{
				Fp32Contents: inputTensors.Float32s(),
			},
		}
		modelInputs = append(modelInputs, modelInput)
	}

	modelRequest.Inputs = modelInputs
	inferResp, err := c.tritonClient.ModelGRPCInfer(c.ModelParams.Timeout, modelRequest)
	if err != nil {
		return nil, err
	}

	var raw []float32
	for oIdx := range inferResp.GetOutputs() {
		raw = utils.BytesToT32[float32](inferResp.RawOutputContents[oIdx])
	}

	if len(raw) != c.ModelParams.Dimensions {
		return nil, config.NewValidationError("embedding has %d dimensions, expected %d", len(raw), c.ModelParams.Dimensions)
	}

	embedding := utils.Float32sToFloat64s(raw)
	utils.L2Normalize(embedding)

	var check float64
	for _, v := range embedding {
		check += v * v
	}
	if math.Abs(check-1.0) > 1e-6 {
		return nil, config.NewValidationError("embedding could not be normalized")
	}
	return embedding, nil
}
