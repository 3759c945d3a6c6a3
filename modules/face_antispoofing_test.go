package modules

import (
	"math/rand"
	"testing"

	"github.com/SanAfaGal/powergym-back-sub000/config"
	"github.com/stretchr/testify/assert"
	"gocv.io/x/gocv"
)

func genNoiseMat(rows, cols int) gocv.Mat {
	mat := gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV8UC3)
	rng := rand.New(rand.NewSource(7))
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			mat.SetUCharAt(y, x*3, uint8(rng.Intn(256)))
			mat.SetUCharAt(y, x*3+1, uint8(rng.Intn(256)))
			mat.SetUCharAt(y, x*3+2, uint8(rng.Intn(256)))
		}
	}
	return mat
}

func genUniformMat(rows, cols int, value float64) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(value, value, value, 0), rows, cols, gocv.MatTypeCV8UC3)
}

func TestCheckLivenessPassesTexturedImage(t *testing.T) {
	d := NewAntiSpoofingDetector(nil)
	img := genNoiseMat(320, 320)
	defer img.Close()

	verify := d.CheckLiveness(img)
	assert.True(t, verify.IsLive)
	assert.Empty(t, verify.Reason)
	assert.False(t, verify.PhotoPrint.IsAttack)
}

func TestCheckLivenessFlagsFlatImage(t *testing.T) {
	d := NewAntiSpoofingDetector(nil)
	img := genUniformMat(320, 320, 128)
	defer img.Close()

	verify := d.CheckLiveness(img)
	assert.False(t, verify.IsLive)
	assert.Equal(t, "photo attack detected", verify.Reason)
	assert.True(t, verify.PhotoPrint.IsAttack)
	assert.GreaterOrEqual(t, verify.Confidence, 0.5)
}

func TestCheckLivenessFailsOpenOnEmptyImage(t *testing.T) {
	d := NewAntiSpoofingDetector(nil)
	img := gocv.NewMat()
	defer img.Close()

	verify := d.CheckLiveness(img)
	assert.True(t, verify.IsLive)
	assert.InDelta(t, 0.5, verify.PhotoPrint.Confidence, 1e-9)
	assert.InDelta(t, 0.5, verify.Phone.Confidence, 1e-9)
	assert.InDelta(t, 0.5, verify.Screen.Confidence, 1e-9)
}

func TestCheckLivenessDisabled(t *testing.T) {
	d := NewAntiSpoofingDetector(&config.AntiSpoofingParams{Enabled: false})
	img := genUniformMat(320, 320, 128)
	defer img.Close()

	verify := d.CheckLiveness(img)
	assert.True(t, verify.IsLive)
	assert.InDelta(t, 1.0, verify.Confidence, 1e-9)
}

func TestDetectPhotoAttackOnFlatImage(t *testing.T) {
	d := NewAntiSpoofingDetector(nil)
	img := genUniformMat(320, 320, 128)
	defer img.Close()

	check, err := d.DetectPhotoAttack(img)
	assert.NoError(t, err)
	assert.True(t, check.IsAttack)
	assert.InDelta(t, 1.0, check.Confidence, 1e-6)
}

func TestDetectPhotoAttackOnNoise(t *testing.T) {
	d := NewAntiSpoofingDetector(nil)
	img := genNoiseMat(320, 320)
	defer img.Close()

	check, err := d.DetectPhotoAttack(img)
	assert.NoError(t, err)
	assert.False(t, check.IsAttack)
}

func TestDetectPhotoAttackEmptyImage(t *testing.T) {
	d := NewAntiSpoofingDetector(nil)
	img := gocv.NewMat()
	defer img.Close()

	_, err := d.DetectPhotoAttack(img)
	assert.Error(t, err)
}

func TestDetectPhoneAttackOnNoise(t *testing.T) {
	d := NewAntiSpoofingDetector(nil)
	img := genNoiseMat(320, 320)
	defer img.Close()

	check, err := d.DetectPhoneAttack(img)
	assert.NoError(t, err)
	assert.False(t, check.IsAttack)
}

func TestDetectScreenAttackOnUniformImage(t *testing.T) {
	d := NewAntiSpoofingDetector(nil)
	img := genUniformMat(320, 320, 128)
	defer img.Close()

	check, err := d.DetectScreenAttack(img)
	assert.NoError(t, err)
	assert.True(t, check.IsAttack)
	assert.GreaterOrEqual(t, check.Confidence, 0.5)
}

func TestDetectScreenAttackOnNoise(t *testing.T) {
	d := NewAntiSpoofingDetector(nil)
	img := genNoiseMat(320, 320)
	defer img.Close()

	check, err := d.DetectScreenAttack(img)
	assert.NoError(t, err)
	assert.False(t, check.IsAttack)
}

func TestPhotoThresholdScalesWithResolution(t *testing.T) {
	d := NewAntiSpoofingDetector(nil)

	low := genNoiseMat(240, 240)
	defer low.Close()
	high := genNoiseMat(1200, 1200)
	defer high.Close()

	checkLow, err := d.DetectPhotoAttack(low)
	assert.NoError(t, err)
	checkHigh, err := d.DetectPhotoAttack(high)
	assert.NoError(t, err)

	// pure noise carries maximal texture at any resolution
	assert.False(t, checkLow.IsAttack)
	assert.False(t, checkHigh.IsAttack)
}
