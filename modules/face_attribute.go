package modules

import (
	"image"

	"github.com/SanAfaGal/powergym-back-sub000/config"
	"github.com/SanAfaGal/powergym-back-sub000/utils"
	gotritonclient "github.com/okieraised/go-triton-client"
	"github.com/okieraised/go-triton-client/triton_proto"
	"gocv.io/x/gocv"
	"gorgonia.org/tensor"
)

// FaceAttributeClient estimates coarse age and gender from an aligned face
// crop. The model emits three floats: two gender logits and age scaled by 100.
type FaceAttributeClient struct {
	tritonClient *gotritonclient.TritonGRPCClient
	ModelParams  *config.FaceAttributeParams
	ModelConfig  *triton_proto.ModelConfigResponse
}

func NewFaceAttributeClient(triton *gotritonclient.TritonGRPCClient, cfg *config.FaceAttributeParams) (*FaceAttributeClient, error) {

	inferenceConfig, err := triton.GetModelConfiguration(cfg.Timeout, cfg.ModelName, "")
	if err != nil {
		return nil, err
	}

	return &FaceAttributeClient{
		tritonClient: triton,
		ModelParams:  cfg,
		ModelConfig:  inferenceConfig,
	}, nil
}

func (c *FaceAttributeClient) preprocess(input gocv.Mat) (*tensor.Dense, error) {
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

// InferSingle returns the estimated age and gender of one aligned face crop.
func (c *FaceAttributeClient) InferSingle(input gocv.Mat) (int, config.Gender, error) {
	inputTensors, err := c.preprocess(input)
	if err != nil {
		return 0, config.GenderFemale, err
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
		return 0, config.GenderFemale, err
	}

	var raw []float32
	for oIdx := range inferResp.GetOutputs() {
		raw = utils.BytesToT32[float32](inferResp.RawOutputContents[oIdx])
	}
	if len(raw) < 3 {
		return 0, config.GenderFemale, config.NewValidationError("attribute model returned %d values, expected 3", len(raw))
	}

	gender := config.GenderFemale
	if raw[1] > raw[0] {
		gender = config.GenderMale
	}
	age := int(raw[2] * 100)

	return age, gender, nil
}
