package uploads

import (
	"context"
	"fmt"
	"io"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

// CloudinaryStore stores thumbnails as Cloudinary assets, keyed by the
// same storage key the disk backend uses as a file path.
type CloudinaryStore struct {
	cld *cloudinary.Cloudinary
}

func NewCloudinaryStore(cld *cloudinary.Cloudinary) *CloudinaryStore {
	return &CloudinaryStore{cld: cld}
}

func (s *CloudinaryStore) Save(ctx context.Context, r io.Reader, key string) error {
	_, err := s.cld.Upload.Upload(ctx, r, uploader.UploadParams{
		PublicID:  key,
		Overwrite: api.Bool(false),
	})
	if err != nil {
		return fmt.Errorf("cloudinary upload: %w", err)
	}
	return nil
}

func (s *CloudinaryStore) Delete(ctx context.Context, key string) error {
	// Destroy on a missing public ID reports "not found" in the result
	// body, not as an error, which matches best-effort delete semantics.
	_, err := s.cld.Upload.Destroy(ctx, uploader.DestroyParams{
		PublicID: key,
	})
	if err != nil {
		return fmt.Errorf("cloudinary destroy: %w", err)
	}
	return nil
}

func (s *CloudinaryStore) URL(key string) string {
	img, err := s.cld.Image(key)
	if err != nil {
		return ""
	}
	url, err := img.String()
	if err != nil {
		return ""
	}
	return url
}
