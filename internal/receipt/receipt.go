// Package receipt stores receipt files with an external upload service. Only
// the returned URL and key are kept with ledger entries.
package receipt

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/google/uuid"
)

type Upload struct {
	URL string
	Key string
}

type Storage interface {
	Upload(ctx context.Context, r io.Reader, filename string) (Upload, error)
	Delete(ctx context.Context, key string) error
}

type Cloudinary struct {
	cld    *cloudinary.Cloudinary
	folder string
}

func NewCloudinary(cloudName, apiKey, apiSecret, folder string) (*Cloudinary, error) {
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("configuring cloudinary: %w", err)
	}

	return &Cloudinary{cld: cld, folder: folder}, nil
}

func (c *Cloudinary) Upload(ctx context.Context, r io.Reader, filename string) (Upload, error) {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	base := strings.TrimSuffix(path.Base(filename), path.Ext(filename))

	resp, err := c.cld.Upload.Upload(ctx, r, uploader.UploadParams{
		Folder:   c.folder,
		PublicID: base + "-" + uuid.NewString()[:8],
	})
	if err != nil {
		return Upload{}, fmt.Errorf("uploading receipt: %w", err)
	}

	if resp.Error.Message != "" {
		return Upload{}, fmt.Errorf("uploading receipt: %s", resp.Error.Message)
	}

	return Upload{URL: resp.SecureURL, Key: resp.PublicID}, nil
}

func (c *Cloudinary) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	resp, err := c.cld.Upload.Destroy(ctx, uploader.DestroyParams{PublicID: key})
	if err != nil {
		return fmt.Errorf("deleting receipt %s: %w", key, err)
	}

	if resp.Error.Message != "" {
		return fmt.Errorf("deleting receipt %s: %s", key, resp.Error.Message)
	}

	return nil
}

// KeyFromURL derives the public id of a delivery URL such as
// https://res.cloudinary.com/demo/image/upload/v1712/receipts/abc.jpg.
func KeyFromURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parsing receipt url: %w", err)
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")

	idx := -1

	for i, p := range parts {
		if p == "upload" {
			idx = i
			break
		}
	}

	if idx < 0 || idx == len(parts)-1 {
		return "", fmt.Errorf("not a cloudinary delivery url: %s", rawURL)
	}

	rest := parts[idx+1:]
	if len(rest) > 1 && isVersion(rest[0]) {
		rest = rest[1:]
	}

	key := path.Join(rest...)

	return strings.TrimSuffix(key, path.Ext(key)), nil
}

func isVersion(s string) bool {
	if len(s) < 2 || s[0] != 'v' {
		return false
	}

	for _, r := range s[1:] {
		if r < '0' || r > '9' {
			return false
		}
	}

	return true
}
