package uploads

import (
	"context"
	"fmt"
	"io"
	"time"
)

// Store is the blob storage used for product thumbnails. Delete is
// best-effort: removing a key that is already gone is not an error.
type Store interface {
	Save(ctx context.Context, r io.Reader, key string) error
	Delete(ctx context.Context, key string) error
	URL(key string) string
}

// ThumbnailKey builds the storage key for a product thumbnail from the
// current date plus unix timestamp and the original file extension,
// e.g. images/products/2408281724855000.png. Collisions within the same
// second are accepted as negligible.
func ThumbnailKey(now time.Time, ext string) string {
	return fmt.Sprintf("images/products/%s%d%s", now.Format("060102"), now.Unix(), ext)
}
