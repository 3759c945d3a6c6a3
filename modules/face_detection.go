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

// FaceDetectionClient runs the SCRFD-style detection model on a Triton
// inference server. Outputs are detection count, boxes, scores, classes and
// 5-point landmarks, all normalized to the model input and rescaled back to
// source-image coordinates during postprocessing.
type FaceDetectionClient struct {
	tritonClient *gotritonclient.TritonGRPCClient
	ModelConfig  *triton_proto.ModelConfigResponse
	ModelParams  *config.FaceDetectionParams
}

func NewFaceDetectionClient(triton *gotritonclient.TritonGRPCClient, cfg *config.FaceDetectionParams) (*FaceDetectionClient, error) {

	inferenceConfig, err := triton.GetModelConfiguration(cfg.Timeout, cfg.ModelName, "")
	if err != nil {
		return nil, err
	}

	return &FaceDetectionClient{
		tritonClient: triton,
		ModelParams:  cfg,
		ModelConfig:  inferenceConfig,
	}, nil
}

// preprocess letterboxes the input into the model's square input size and
// converts it to a normalized CHW float32 tensor.
func (c *FaceDetectionClient) preprocess(input gocv.Mat) (*tensor.Dense, *config.Size, error) {
	imgH, imgW := input.Size()[0], input.Size()[1]
	imgRatio := float64(imgW) / float64(imgH)
	size := &config.Size{
		Width:  imgW,
		Height: imgH,
	}

	modelH := int(c.ModelConfig.Config.Input[0].Dims[1])
	modelW := int(c.ModelConfig.Config.Input[0].Dims[2])
	modelRatio := float64(modelW) / float64(modelH)

	var newWidth, newHeight int
	if imgRatio > modelRatio {
		newWidth = modelW
		newHeight = int(float64(newWidth) / imgRatio)
	} else {
		newHeight = modelH
		newWidth = int(float64(newHeight) * imgRatio)
	}

	resizedImg := gocv.NewMat()
	defer resizedImg.Close()
	gocv.Resize(input, &resizedImg, image.Point{X: newWidth, Y: newHeight}, 0.0, 0.0, gocv.InterpolationLinear)

	scaledImg := gocv.NewMatWithSizesWithScalar(
		[]int{modelH, modelW},
		gocv.MatTypeCV8UC3,
		gocv.NewScalar(0, 0, 0, 0),
	)
	defer scaledImg.Close()

	roi := scaledImg.Region(image.Rect(0, 0, newWidth, newHeight))
	gocv.Resize(resizedImg, &roi, image.Point{X: roi.Size()[1], Y: roi.Size()[0]}, 0, 0, gocv.InterpolationLinear)

	imgTensors := tensor.New(
		tensor.Of(tensor.Float32),
		tensor.WithShape(int(c.ModelConfig.Config.Input[0].Dims[0]), modelH, modelW),
	)

	for z := range 3 {
		for y := range modelH {
			for x := range modelW {
				err := imgTensors.SetAt((float32(scaledImg.GetVecbAt(y, x)[z])-float32(c.ModelParams.Mean))*float32(c.ModelParams.Scale), z, y, x)
				if err != nil {
					return nil, nil, err
				}
			}
		}
	}
	return imgTensors, size, nil
}

// postprocess converts the raw model outputs into FaceDetection values scaled
// to the source image.
func (c *FaceDetectionClient) postprocess(rawOutputs []*tensor.Dense, size *config.Size) ([]config.FaceDetection, error) {

	results := make([]config.FaceDetection, 0)

	numDets := rawOutputs[0].Ints()
	boxes := rawOutputs[1].Float32s()
	scores := rawOutputs[2].Float32s()
	landmarks := rawOutputs[4].Float32s()

	count := 0
	if len(numDets) > 0 {
		count = int(numDets[0])
	}
	if count > len(scores) {
		count = len(scores)
	}

	scale := float64(c.ModelParams.InputSize)
	if size != nil {
		scale = float64(size.Max())
	}

	for i := 0; i < count; i++ {
		det := config.FaceDetection{
			Box: config.BoundingBox{
				X1: float64(boxes[i*4+0]) * scale,
				Y1: float64(boxes[i*4+1]) * scale,
				X2: float64(boxes[i*4+2]) * scale,
				Y2: float64(boxes[i*4+3]) * scale,
			},
			Confidence: float64(scores[i]),
			Landmarks:  make([]config.Coordinate2D, 0, 5),
		}
		for p := 0; p < 5; p++ {
			det.Landmarks = append(det.Landmarks, config.Coordinate2D{
				X: float64(landmarks[i*10+p*2]) * scale,
				Y: float64(landmarks[i*10+p*2+1]) * scale,
			})
		}
		results = append(results, det)
	}
	return results, nil
}

// InferSingle runs detection on one image and returns every detected face.
func (c *FaceDetectionClient) InferSingle(input gocv.Mat) ([]config.FaceDetection, error) {
	inputTensors, size, err := c.preprocess(input)
	if err != nil {
		return nil, err
	}

	outputs := make([]*tensor.Dense, 0)

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

	for oIdx, output := range inferResp.GetOutputs() {
		outputShape := make([]int, 0, len(output.Shape))
		for _, shp := range output.Shape {
			outputShape = append(outputShape, int(shp))
		}
		var tensors *tensor.Dense
		switch output.Datatype {
		case "FP32":
			content := utils.BytesToT32[float32](inferResp.RawOutputContents[oIdx])
			tensors = tensor.New(
				tensor.Of(tensor.Float32),
				tensor.WithShape(outputShape...),
				tensor.WithBacking(content),
			)

		case "INT32":
			content := utils.BytesToT32[int32](inferResp.RawOutputContents[oIdx])
			ints := make([]int, len(content))
			for i, v := range content {
				ints[i] = int(v)
			}
			tensors = tensor.New(
				tensor.Of(tensor.Int),
				tensor.WithShape(outputShape...),
				tensor.WithBacking(ints),
			)

		}
		outputs = append(outputs, tensors)
	}
	return c.postprocess(outputs, size)
}
