package processor

import (
	"context"
	"fmt"
	"os"

	"github.com/adverant/nexus/textread-service/internal/clients"
)

// Provider recognizes text in a local image file. Implementations never
// return Go errors: every failure is a failed OCRResult.
type Provider interface {
	Name() string
	Recognize(ctx context.Context, asset ImageAsset) OCRResult
}

// URLProvider can recognize an image the provider fetches itself
type URLProvider interface {
	RecognizeURL(ctx context.Context, imageURL string) OCRResult
}

// OCRSpaceProvider adapts the OCR.Space client
type OCRSpaceProvider struct {
	client   *clients.OCRSpaceClient
	language string
}

// NewOCRSpaceProvider wraps client
func NewOCRSpaceProvider(client *clients.OCRSpaceClient, language string) *OCRSpaceProvider {
	return &OCRSpaceProvider{client: client, language: language}
}

func (p *OCRSpaceProvider) Name() string { return ProviderOCRSpace }

func (p *OCRSpaceProvider) Recognize(ctx context.Context, asset ImageAsset) OCRResult {
	resp, err := p.client.Parse(ctx, &clients.OCRSpaceRequest{
		FilePath:          asset.Path,
		Language:          p.language,
		Scale:             true,
		DetectOrientation: true,
	})
	return p.toResult(resp, err)
}

func (p *OCRSpaceProvider) RecognizeURL(ctx context.Context, imageURL string) OCRResult {
	resp, err := p.client.Parse(ctx, &clients.OCRSpaceRequest{
		ImageURL:          imageURL,
		Language:          p.language,
		Scale:             true,
		DetectOrientation: true,
	})
	return p.toResult(resp, err)
}

func (p *OCRSpaceProvider) toResult(resp *clients.OCRSpaceResponse, err error) OCRResult {
	if err != nil {
		return FailedResult(ProviderOCRSpace, err.Error())
	}
	if resp.IsErroredOnProcessing {
		return FailedResult(ProviderOCRSpace, resp.ErrorText())
	}
	text, confidence := resp.FirstResult()
	return SucceededResult(ProviderOCRSpace, text, confidence)
}

// VisionProvider adapts the Google Vision client
type VisionProvider struct {
	client *clients.VisionClient
}

// NewVisionProvider wraps client
func NewVisionProvider(client *clients.VisionClient) *VisionProvider {
	return &VisionProvider{client: client}
}

func (p *VisionProvider) Name() string { return ProviderVision }

func (p *VisionProvider) Recognize(ctx context.Context, asset ImageAsset) OCRResult {
	data, err := os.ReadFile(asset.Path)
	if err != nil {
		return FailedResult(ProviderVision, fmt.Sprintf("failed to read image: %v", err))
	}
	resp, err := p.client.DetectDocumentText(ctx, data)
	if err != nil {
		return FailedResult(ProviderVision, err.Error())
	}
	return SucceededResult(ProviderVision, resp.Text(), resp.MeanConfidence())
}
