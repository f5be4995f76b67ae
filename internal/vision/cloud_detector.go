package vision

import (
	"context"
	"fmt"
	"image"

	visionapi "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	gax "github.com/googleapis/gax-go/v2"
)

// AnnotatorClient is the subset of visionapi.ImageAnnotatorClient used here,
// kept as an interface so tests can substitute a fake.
type AnnotatorClient interface {
	BatchAnnotateImages(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest, opts ...gax.CallOption) (*visionpb.BatchAnnotateImagesResponse, error)
	Close() error
}

// CloudDetector serves face and text detection from the Cloud Vision API
type CloudDetector struct {
	client AnnotatorClient
	opts   DetectorOptions
}

// NewCloudDetector dials Cloud Vision with application default credentials
func NewCloudDetector(ctx context.Context, opts DetectorOptions) (*CloudDetector, error) {
	client, err := visionapi.NewImageAnnotatorClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("vision client: %w", err)
	}
	return NewCloudDetectorWithClient(client, opts), nil
}

func NewCloudDetectorWithClient(client AnnotatorClient, opts DetectorOptions) *CloudDetector {
	return &CloudDetector{client: client, opts: opts}
}

func (d *CloudDetector) Close() error {
	return d.client.Close()
}

func (d *CloudDetector) DetectFaces(ctx context.Context, img image.Image) ([]image.Rectangle, error) {
	res, err := d.annotate(ctx, img, visionpb.Feature_FACE_DETECTION)
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	faces := make([]image.Rectangle, 0, len(res.GetFaceAnnotations()))
	for _, face := range res.GetFaceAnnotations() {
		box := polyBounds(face.GetBoundingPoly()).Add(bounds.Min).Intersect(bounds)
		if !box.Empty() {
			faces = append(faces, box)
		}
	}
	return faces, nil
}

func (d *CloudDetector) DetectText(ctx context.Context, img image.Image) (string, error) {
	res, err := d.annotate(ctx, img, visionpb.Feature_DOCUMENT_TEXT_DETECTION)
	if err != nil {
		return "", err
	}
	return res.GetFullTextAnnotation().GetText(), nil
}

func (d *CloudDetector) annotate(ctx context.Context, img image.Image, feature visionpb.Feature_Type) (*visionpb.AnnotateImageResponse, error) {
	content, err := encodePNG(img)
	if err != nil {
		return nil, err
	}

	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{{
			Image: &visionpb.Image{Content: content},
			Features: []*visionpb.Feature{{
				Type:       feature,
				MaxResults: d.opts.MaxResults,
			}},
		}},
	}

	resp, err := d.client.BatchAnnotateImages(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("vision %s: %w", feature, err)
	}
	if len(resp.GetResponses()) == 0 {
		return nil, fmt.Errorf("vision %s: empty response", feature)
	}
	res := resp.GetResponses()[0]
	if st := res.GetError(); st != nil && st.GetCode() != 0 {
		return nil, fmt.Errorf("vision %s: %s", feature, st.GetMessage())
	}
	return res, nil
}

// polyBounds returns the axis-aligned box enclosing a bounding polygon
func polyBounds(poly *visionpb.BoundingPoly) image.Rectangle {
	vertices := poly.GetVertices()
	if len(vertices) == 0 {
		return image.Rectangle{}
	}
	minX, minY := int(vertices[0].GetX()), int(vertices[0].GetY())
	maxX, maxY := minX, minY
	for _, v := range vertices[1:] {
		x, y := int(v.GetX()), int(v.GetY())
		minX, maxX = min(minX, x), max(maxX, x)
		minY, maxY = min(minY, y), max(maxY, y)
	}
	return image.Rect(minX, minY, maxX, maxY)
}
