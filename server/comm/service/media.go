package service

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"

	"matri_server/server/comm/domain"
	commonlog "matri_server/server/common/log"
)

const (
	maxMediaFiles    = 5
	maxMediaFileSize = 10 * 1024 * 1024
	mediaURLPrefix   = "/media/"
	mediaKeyPrefix   = "chat/"
)

var allowedMediaExts = map[string]struct{}{
	".jpeg": {}, ".jpg": {}, ".png": {}, ".gif": {},
	".mp4": {}, ".mov": {}, ".avi": {},
	".pdf": {},
	".mp3": {}, ".wav": {}, ".webm": {}, ".ogg": {},
}

// MediaUpload is one inbound attachment before it reaches blob storage.
type MediaUpload struct {
	Name        string
	ContentType string
	Size        int64
	Reader      io.Reader
}

func validateUploads(uploads []MediaUpload) error {
	if len(uploads) > maxMediaFiles {
		return domain.ErrInvalidInput
	}
	for _, u := range uploads {
		if u.Size <= 0 || u.Size > maxMediaFileSize {
			return domain.ErrInvalidInput
		}
		ext := strings.ToLower(path.Ext(u.Name))
		if _, ok := allowedMediaExts[ext]; !ok {
			return domain.ErrInvalidInput
		}
	}
	return nil
}

// BlobStore is the attachment storage collaborator.
type BlobStore interface {
	Put(ctx context.Context, key, contentType string, r io.Reader, size int64) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Remove(ctx context.Context, key string) error
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// MinIOStore backs BlobStore with one bucket.
type MinIOStore struct {
	client *minio.Client
	bucket string
}

func NewMinIOStore(client *minio.Client, bucket string) *MinIOStore {
	return &MinIOStore{client: client, bucket: bucket}
}

func (s *MinIOStore) Put(ctx context.Context, key, contentType string, r io.Reader, size int64) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	return err
}

func (s *MinIOStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	return s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
}

func (s *MinIOStore) Remove(ctx context.Context, key string) error {
	return s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
}

func (s *MinIOStore) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, expiry, url.Values{})
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

func newMediaObjectKey(name string) string {
	return mediaKeyPrefix + uuid.NewString() + strings.ToLower(path.Ext(name))
}

func mediaURLForKey(key string) string {
	return mediaURLPrefix + key
}

// ObjectKeyFromURL maps a stored attachment URL back to its blob key.
func ObjectKeyFromURL(rawURL string) string {
	return strings.TrimPrefix(rawURL, mediaURLPrefix)
}

func thumbKeyFor(key string) string {
	ext := path.Ext(key)
	return strings.TrimSuffix(key, ext) + "_thumb.jpg"
}

// makeThumbnail renders a 320px JPEG next to an image attachment. Callers
// treat failure as cosmetic.
func makeThumbnail(ctx context.Context, blobs BlobStore, key string) (string, error) {
	obj, err := blobs.Get(ctx, key)
	if err != nil {
		return "", err
	}
	defer obj.Close()

	img, _, err := image.Decode(obj)
	if err != nil {
		return "", err
	}

	thumb := imaging.Thumbnail(img, 320, 320, imaging.Lanczos)
	buf := bytes.NewBuffer(nil)
	if err := imaging.Encode(buf, thumb, imaging.JPEG); err != nil {
		return "", err
	}

	thumbKey := thumbKeyFor(key)
	reader := bytes.NewReader(buf.Bytes())
	if err := blobs.Put(ctx, thumbKey, "image/jpeg", reader, int64(reader.Len())); err != nil {
		return "", fmt.Errorf("upload thumb: %w", err)
	}
	return thumbKey, nil
}

// removeAttachmentBlobs deletes an attachment set, thumbnails included.
// Used both for message deletion and for compensating cleanup when a media
// send fails after some blobs were written.
func removeAttachmentBlobs(ctx context.Context, blobs BlobStore, files []domain.MediaFile) {
	for _, f := range files {
		key := ObjectKeyFromURL(f.URL)
		if err := blobs.Remove(ctx, key); err != nil {
			commonlog.Warnf("event=media_cleanup action=remove status=failed key=%s error=%v", key, err)
		}
		if strings.HasPrefix(f.FileType, "image/") {
			if err := blobs.Remove(ctx, thumbKeyFor(key)); err != nil {
				commonlog.Debugf("event=media_cleanup action=remove_thumb status=failed key=%s error=%v", key, err)
			}
		}
	}
}
