// Package detector finds faces in webcam frames so they can stir the fluid.
package detector

import (
	"errors"
	"fmt"
	"image"
	"os"

	pigo "github.com/esimov/pigo/core"
)

// MinQuality is the detection score below which a face is discarded.
const MinQuality = 5.0

// iouThreshold is the intersection over union used to merge overlapping detections.
const iouThreshold = 0.2

// perturbFact is the number of perturbations used by the pupil localisation.
const perturbFact = 63

// ErrEmptyCascade is returned when no cascade data is provided.
var ErrEmptyCascade = errors.New("empty cascade file")

// Face is a detected face in image coordinates.
// Eyes is only filled when a pupil cascade is loaded.
type Face struct {
	Row, Col int
	Scale    int
	Q        float32
	Eyes     []Eye
}

// Eye is a localised pupil in image coordinates.
type Eye struct {
	Row, Col int
}

// Center maps the face center from a imgW x imgH image to a gridW x gridH grid.
func (f Face) Center(imgW, imgH, gridW, gridH int) (int, int) {
	return toGrid(f.Row, f.Col, imgW, imgH, gridW, gridH)
}

// Center maps the pupil from a imgW x imgH image to a gridW x gridH grid.
func (e Eye) Center(imgW, imgH, gridW, gridH int) (int, int) {
	return toGrid(e.Row, e.Col, imgW, imgH, gridW, gridH)
}

func toGrid(row, col, imgW, imgH, gridW, gridH int) (int, int) {
	if imgW <= 0 || imgH <= 0 {
		return -1, -1
	}
	return col * gridW / imgW, row * gridH / imgH
}

// Detector wraps an unpacked pigo face classifier and an optional pupil
// localisation cascade.
type Detector struct {
	classifier *pigo.Pigo
	pupils     *pigo.PuplocCascade
	minSize    int
	maxSize    int
}

// Load reads and unpacks the cascade file found at path.
func Load(path string) (*Detector, error) {
	cascade, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return New(cascade)
}

// New unpacks a facefinder cascade.
func New(cascade []byte) (d *Detector, err error) {
	if len(cascade) == 0 {
		return nil, ErrEmptyCascade
	}
	// Unpack indexes the packet without bounds checks.
	defer func() {
		if r := recover(); r != nil {
			d, err = nil, fmt.Errorf("error unpacking the facefinder cascade file: %v", r)
		}
	}()

	p := pigo.NewPigo()
	// Unpack the binary file. This will return the number of cascade trees,
	// the tree depth, the threshold and the prediction from tree's leaf nodes.
	classifier, err := p.Unpack(cascade)
	if err != nil {
		return nil, fmt.Errorf("error unpacking the facefinder cascade file: %w", err)
	}
	return &Detector{classifier: classifier, minSize: 60, maxSize: 1200}, nil
}

// LoadPupils reads the puploc cascade found at path and enables pupil localisation.
func (d *Detector) LoadPupils(path string) error {
	cascade, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return d.UnpackPupils(cascade)
}

// UnpackPupils unpacks a puploc cascade and enables pupil localisation.
func (d *Detector) UnpackPupils(cascade []byte) (err error) {
	if len(cascade) == 0 {
		return ErrEmptyCascade
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("error unpacking the puploc cascade file: %v", r)
		}
	}()

	plc, err := pigo.NewPuplocCascade().UnpackCascade(cascade)
	if err != nil {
		return fmt.Errorf("error unpacking the puploc cascade file: %w", err)
	}
	d.pupils = plc
	return nil
}

// eyeSeed returns the search window of the left (side -1) or right (side 1)
// pupil relative to the face.
func eyeSeed(f Face, side int) pigo.Puploc {
	scale := float32(f.Scale)
	return pigo.Puploc{
		Row:      f.Row - int(0.085*scale),
		Col:      f.Col + side*int(0.185*scale),
		Scale:    scale * 0.4,
		Perturbs: perturbFact,
	}
}

// Detect runs the cascade over img and returns the faces scoring above MinQuality.
func (d *Detector) Detect(img image.Image) []Face {
	bounds := img.Bounds()
	src := pigo.ImgToNRGBA(img)
	pixels := pigo.RgbToGrayscale(src)

	cParams := pigo.CascadeParams{
		MinSize:     d.minSize,
		MaxSize:     d.maxSize,
		ShiftFactor: 0.1,
		ScaleFactor: 1.1,
		ImageParams: pigo.ImageParams{
			Pixels: pixels,
			Rows:   bounds.Dy(),
			Cols:   bounds.Dx(),
			Dim:    bounds.Dx(),
		},
	}

	// Run the classifier over the obtained leaf nodes and return the detection results.
	// The result contains quadruplets representing the row, column, scale and detection score.
	dets := d.classifier.RunCascade(cParams, 0.0)
	dets = d.classifier.ClusterDetections(dets, iouThreshold)

	faces := make([]Face, 0, len(dets))
	for _, det := range dets {
		if det.Q < MinQuality {
			continue
		}
		face := Face{Row: det.Row, Col: det.Col, Scale: det.Scale, Q: det.Q}
		if d.pupils != nil {
			for _, side := range []int{-1, 1} {
				eye := d.pupils.RunDetector(eyeSeed(face, side), cParams.ImageParams, 0.0, false)
				if eye != nil && eye.Row > 0 && eye.Col > 0 {
					face.Eyes = append(face.Eyes, Eye{Row: eye.Row, Col: eye.Col})
				}
			}
		}
		faces = append(faces, face)
	}
	return faces
}
