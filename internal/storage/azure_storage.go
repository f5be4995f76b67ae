package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
)

// AzureStorage reads gallery images from Azure Blob Storage. Locators have
// the form azblob://<container>/<blob path>.
type AzureStorage struct {
	client   *azblob.Client
	maxBytes int64
}

func NewAzureStorage(accountName, accountKey string, maxBytes int64) (*AzureStorage, error) {
	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, fmt.Errorf("azure credential: %w", err)
	}

	client, err := azblob.NewClientWithSharedKeyCredential(
		fmt.Sprintf("https://%s.blob.core.windows.net", accountName),
		credential,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("azure client: %w", err)
	}

	return &AzureStorage{client: client, maxBytes: maxBytes}, nil
}

func (s *AzureStorage) Fetch(ctx context.Context, locator string) ([]byte, error) {
	containerName, blobName, err := parseBlobLocator(locator)
	if err != nil {
		return nil, err
	}

	downloadResponse, err := s.client.DownloadStream(ctx, containerName, blobName, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s/%s", ErrObjectNotFound, containerName, blobName)
		}
		return nil, fmt.Errorf("download failed: %w", err)
	}

	body := downloadResponse.Body
	defer body.Close()

	return readLimited(body, s.maxBytes)
}

// parseBlobLocator splits azblob://container/path/to/blob.
func parseBlobLocator(locator string) (string, string, error) {
	u, err := url.Parse(locator)
	if err != nil {
		return "", "", fmt.Errorf("invalid blob locator: %w", err)
	}
	if !strings.EqualFold(u.Scheme, "azblob") {
		return "", "", fmt.Errorf("invalid blob locator: unexpected scheme %q", u.Scheme)
	}
	blob := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || blob == "" {
		return "", "", fmt.Errorf("invalid blob locator: want azblob://<container>/<blob>, got %q", locator)
	}
	return u.Host, blob, nil
}
