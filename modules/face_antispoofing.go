package modules

import (
	"errors"
	"image"
	"math"

	"github.com/SanAfaGal/powergym-back-sub000/config"
	"github.com/SanAfaGal/powergym-back-sub000/utils"
	"gocv.io/x/gocv"
)

const (
	photoPrintCheck  = "photo_print"
	phoneScreenCheck = "phone_screen"
	screenCheck      = "screen"
)

// livenessFailurePolicy decides what happens when a sub-check itself fails.
// Every heuristic fails open: a broken check must never lock out a legitimate
// member, so an internal failure is converted to a neutral pass at the
// aggregation point instead of bubbling up.
var livenessFailurePolicy = map[string]bool{
	photoPrintCheck:  true,
	phoneScreenCheck: true,
	screenCheck:      true,
}

// AntiSpoofingDetector runs single-frame presentation-attack heuristics over
// a color pixel array. No depth sensor and no temporal signal are available,
// so several individually-noisy measurements are combined per check.
type AntiSpoofingDetector struct {
	params *config.AntiSpoofingParams
}

func NewAntiSpoofingDetector(cfg *config.AntiSpoofingParams) *AntiSpoofingDetector {
	if cfg == nil {
		cfg = config.DefaultAntiSpoofingParams
	}
	return &AntiSpoofingDetector{params: cfg}
}

/*
DetectPhotoAttack scores the likelihood that the image is a printed photo.

Three measurements are averaged into a liveness score:

  - local texture variance (Laplacian response): prints show flatter texture
    than skin under typical lighting.
  - gradient-magnitude variance as a depth proxy: a flat sheet has lower
    gradient variance than a 3D face.
  - edge-density sanity: too few or pathologically many edges both point to a
    non-live capture.

The pass threshold scales with input resolution between the configured floor
and ceiling, since low-resolution sensors naturally capture less texture.
*/
func (d *AntiSpoofingDetector) DetectPhotoAttack(img gocv.Mat) (config.LivenessCheck, error) {
	check := config.LivenessCheck{}

	gray, err := toGray(img)
	if err != nil {
		return check, err
	}
	defer gray.Close()

	lap := gocv.NewMat()
	defer lap.Close()
	gocv.Laplacian(gray, &lap, gocv.MatTypeCV64F, 3, 1, 0, gocv.BorderDefault)
	_, lapVar, err := matMomentsF64(lap)
	if err != nil {
		return check, err
	}
	textureScore := utils.NormalizeScore(lapVar, 0, 1500)

	gradVar, err := gradientMagnitudeVariance(gray)
	if err != nil {
		return check, err
	}
	depthScore := utils.NormalizeScore(gradVar, 0, 6000)

	density, err := edgeDensity(gray)
	if err != nil {
		return check, err
	}
	var edgeScore float64
	switch {
	case density < 0.02:
		edgeScore = density / 0.02
	case density > 0.30:
		edgeScore = 0.30 / density
	default:
		edgeScore = 1.0
	}

	liveScore := (textureScore + depthScore + edgeScore) / 3.0

	minDim := math.Min(float64(gray.Rows()), float64(gray.Cols()))
	threshold := d.params.PhotoThresholdFloor +
		(d.params.PhotoThresholdCeil-d.params.PhotoThresholdFloor)*utils.NormalizeScore(minDim, 480, 1080)

	check.IsAttack = liveScore < threshold
	check.Confidence = utils.Clamp(1.0-liveScore, 0, 1)
	check.Detail = photoPrintCheck
	return check, nil
}

/*
DetectPhoneAttack scores the likelihood that the image is a phone-screen
replay. Four boolean indicators are averaged into the attack confidence:

  - a near-image-spanning 4-corner polygon touching the frame edges (bezel);
  - uniform brightness (low standard deviation) typical of backlit panels;
  - periodic energy in the mid-frequency band of the 2D Fourier spectrum
    produced by the subpixel grid;
  - very low overall brightness variance.
*/
func (d *AntiSpoofingDetector) DetectPhoneAttack(img gocv.Mat) (config.LivenessCheck, error) {
	check := config.LivenessCheck{}

	gray, err := toGray(img)
	if err != nil {
		return check, err
	}
	defer gray.Close()

	_, variance, err := matMomentsU8(gray)
	if err != nil {
		return check, err
	}

	indicators := 0

	hasBorder, err := hasFrameSpanningRectangle(gray)
	if err != nil {
		return check, err
	}
	if hasBorder {
		indicators++
	}

	if math.Sqrt(variance) < 28.0 {
		indicators++
	}

	periodicity, err := spectralPeakRatio(gray)
	if err != nil {
		return check, err
	}
	if periodicity > 25.0 {
		indicators++
	}

	if variance < 600.0 {
		indicators++
	}

	check.Confidence = float64(indicators) / 4.0
	check.IsAttack = check.Confidence > d.params.PhoneConfidenceLimit
	check.Detail = phoneScreenCheck
	return check, nil
}

// DetectScreenAttack reuses the phone-screen indicators and additionally
// flags extremely low global brightness variance as screen-like even when no
// rectangular bezel was found.
func (d *AntiSpoofingDetector) DetectScreenAttack(img gocv.Mat) (config.LivenessCheck, error) {
	check, err := d.DetectPhoneAttack(img)
	if err != nil {
		return config.LivenessCheck{}, err
	}
	check.Detail = screenCheck
	if check.IsAttack {
		return check, nil
	}

	gray, err := toGray(img)
	if err != nil {
		return config.LivenessCheck{}, err
	}
	defer gray.Close()

	_, variance, err := matMomentsU8(gray)
	if err != nil {
		return config.LivenessCheck{}, err
	}
	if variance < d.params.ScreenVarianceLimit {
		check.IsAttack = true
		check.Confidence = utils.Clamp(1.0-variance/d.params.ScreenVarianceLimit, 0.5, 1.0)
	}
	return check, nil
}

// CheckLiveness runs every sub-check in order and returns the aggregate
// verdict. A sub-check flag is honored only when its confidence reaches the
// configured minimum liveness score; the first triggered check short-circuits
// with its specific reason. Sub-check failures follow livenessFailurePolicy.
func (d *AntiSpoofingDetector) CheckLiveness(img gocv.Mat) *config.LivenessVerify {
	verify := &config.LivenessVerify{IsLive: true, Confidence: 1.0}

	if !d.params.Enabled {
		return verify
	}

	type subCheck struct {
		name   string
		run    func(gocv.Mat) (config.LivenessCheck, error)
		slot   *config.LivenessCheck
		reason string
	}
	checks := []subCheck{
		{photoPrintCheck, d.DetectPhotoAttack, &verify.PhotoPrint, "photo attack detected"},
		{phoneScreenCheck, d.DetectPhoneAttack, &verify.Phone, "phone screen detected"},
		{screenCheck, d.DetectScreenAttack, &verify.Screen, "screen attack detected"},
	}

	for _, sc := range checks {
		result, err := sc.run(img)
		if err != nil {
			if livenessFailurePolicy[sc.name] {
				*sc.slot = config.LivenessCheck{IsAttack: false, Confidence: 0.5, Detail: sc.name}
				continue
			}
			verify.IsLive = false
			verify.Reason = sc.reason
			verify.Confidence = 0.5
			return verify
		}
		*sc.slot = result
		if result.IsAttack && result.Confidence >= d.params.MinLivenessScore {
			verify.IsLive = false
			verify.Reason = sc.reason
			verify.Confidence = result.Confidence
			return verify
		}
	}
	return verify
}

func toGray(img gocv.Mat) (gocv.Mat, error) {
	gray := gocv.NewMat()
	if img.Empty() {
		return gray, errors.New("empty image")
	}
	if img.Channels() == 1 {
		img.CopyTo(&gray)
		return gray, nil
	}
	gocv.CvtColor(img, &gray, gocv.ColorRGBToGray)
	return gray, nil
}

// matMomentsU8 computes mean and variance of an 8-bit single-channel Mat,
// sampling large inputs to bound the work.
func matMomentsU8(m gocv.Mat) (float64, float64, error) {
	if m.Empty() || m.Rows() <= 0 || m.Cols() <= 0 {
		return 0, 0, errors.New("empty matrix")
	}
	rows, cols := m.Rows(), m.Cols()
	step := maxInt(1, minInt(rows, cols)/256)

	var sum, sumSq float64
	count := 0
	for y := 0; y < rows; y += step {
		for x := 0; x < cols; x += step {
			v := float64(m.GetUCharAt(y, x))
			sum += v
			sumSq += v * v
			count++
		}
	}
	if count == 0 {
		return 0, 0, errors.New("no samples")
	}
	mean := sum / float64(count)
	variance := sumSq/float64(count) - mean*mean
	return mean, variance, nil
}

// matMomentsF64 computes mean and variance of a CV64F single-channel Mat.
func matMomentsF64(m gocv.Mat) (float64, float64, error) {
	if m.Empty() || m.Rows() <= 0 || m.Cols() <= 0 {
		return 0, 0, errors.New("empty matrix")
	}
	rows, cols := m.Rows(), m.Cols()
	step := maxInt(1, minInt(rows, cols)/256)

	var sum, sumSq float64
	count := 0
	for y := 0; y < rows; y += step {
		for x := 0; x < cols; x += step {
			v := m.GetDoubleAt(y, x)
			sum += v
			sumSq += v * v
			count++
		}
	}
	if count == 0 {
		return 0, 0, errors.New("no samples")
	}
	mean := sum / float64(count)
	variance := sumSq/float64(count) - mean*mean
	return mean, variance, nil
}

func gradientMagnitudeVariance(gray gocv.Mat) (float64, error) {
	sobelX := gocv.NewMat()
	defer sobelX.Close()
	sobelY := gocv.NewMat()
	defer sobelY.Close()
	gocv.Sobel(gray, &sobelX, gocv.MatTypeCV64F, 1, 0, 3, 1, 0, gocv.BorderDefault)
	gocv.Sobel(gray, &sobelY, gocv.MatTypeCV64F, 0, 1, 3, 1, 0, gocv.BorderDefault)

	magnitude := gocv.NewMat()
	defer magnitude.Close()
	gocv.Magnitude(sobelX, sobelY, &magnitude)

	_, variance, err := matMomentsF64(magnitude)
	return variance, err
}

func edgeDensity(gray gocv.Mat) (float64, error) {
	edges := gocv.NewMat()
	defer edges.Close()
	gocv.Canny(gray, &edges, 50, 150)

	total := edges.Rows() * edges.Cols()
	if total == 0 {
		return 0, errors.New("empty edge map")
	}
	return float64(gocv.CountNonZero(edges)) / float64(total), nil
}

// hasFrameSpanningRectangle looks for a 4-corner contour that covers most of
// the image and touches its borders, the signature of a device bezel.
func hasFrameSpanningRectangle(gray gocv.Mat) (bool, error) {
	if gray.Empty() {
		return false, errors.New("empty matrix")
	}
	imgH, imgW := gray.Rows(), gray.Cols()
	imgArea := float64(imgH * imgW)

	edges := gocv.NewMat()
	defer edges.Close()
	gocv.Canny(gray, &edges, 50, 150)

	contours := gocv.FindContours(edges, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	for i := 0; i < contours.Size(); i++ {
		contour := contours.At(i)
		arc := gocv.ArcLength(contour, true)
		approx := gocv.ApproxPolyDP(contour, 0.02*arc, true)

		corners := approx.Size()
		area := gocv.ContourArea(approx)
		if corners != 4 || area < 0.65*imgArea {
			approx.Close()
			continue
		}

		minX, minY := math.MaxFloat64, math.MaxFloat64
		maxX, maxY := -math.MaxFloat64, -math.MaxFloat64
		for _, p := range approx.ToPoints() {
			minX = math.Min(minX, float64(p.X))
			minY = math.Min(minY, float64(p.Y))
			maxX = math.Max(maxX, float64(p.X))
			maxY = math.Max(maxY, float64(p.Y))
		}
		approx.Close()

		marginX := 0.03 * float64(imgW)
		marginY := 0.03 * float64(imgH)
		touches := minX <= marginX || minY <= marginY ||
			maxX >= float64(imgW)-marginX || maxY >= float64(imgH)-marginY
		if touches {
			return true, nil
		}
	}
	return false, nil
}

// spectralPeakRatio measures periodic energy in the mid-frequency band of the
// 2D Fourier magnitude spectrum. Subpixel grids of a displayed screen create
// sharp peaks there; natural images keep the band smooth.
func spectralPeakRatio(gray gocv.Mat) (float64, error) {
	if gray.Empty() {
		return 0, errors.New("empty matrix")
	}

	const dftSize = 256
	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(gray, &resized, image.Point{X: dftSize, Y: dftSize}, 0, 0, gocv.InterpolationArea)

	floatImg := gocv.NewMat()
	defer floatImg.Close()
	resized.ConvertTo(&floatImg, gocv.MatTypeCV32F)

	spectrum := gocv.NewMat()
	defer spectrum.Close()
	gocv.DFT(floatImg, &spectrum, gocv.DftComplexOutput)

	planes := gocv.Split(spectrum)
	defer func() {
		for i := range planes {
			planes[i].Close()
		}
	}()
	if len(planes) < 2 {
		return 0, errors.New("unexpected spectrum layout")
	}

	magnitude := gocv.NewMat()
	defer magnitude.Close()
	gocv.Magnitude(planes[0], planes[1], &magnitude)

	// The DC term sits at the corners; fold coordinates so the radial
	// frequency is measured without an explicit shift.
	var sum, peak float64
	count := 0
	for y := 0; y < dftSize; y++ {
		fy := float64(minInt(y, dftSize-y)) / float64(dftSize)
		for x := 0; x < dftSize; x++ {
			fx := float64(minInt(x, dftSize-x)) / float64(dftSize)
			r := math.Hypot(fx, fy)
			if r < 0.15 || r > 0.45 {
				continue
			}
			v := float64(magnitude.GetFloatAt(y, x))
			sum += v
			if v > peak {
				peak = v
			}
			count++
		}
	}
	if count == 0 {
		return 0, errors.New("empty frequency band")
	}
	if sum == 0 {
		// flat spectrum, nothing periodic
		return 0, nil
	}
	return peak / (sum / float64(count)), nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
