// Write-side operations for the S3 remote store: uploads, folder creation,
// deletion and rename.
package s3

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/falachabt/zymupload/pkg/remote"
)

// progressReader wraps an upload source and reports cumulative bytes read.
type progressReader struct {
	r        io.Reader
	read     int64
	progress remote.ProgressFunc
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	if n > 0 {
		p.read += int64(n)
		if p.progress != nil {
			p.progress(p.read)
		}
	}
	return n, err
}

// Upload stores a new object under the given folder prefix.
//
// The new object's ID (its key) is returned. Uploading a name that already
// exists overwrites the object; duplicate handling is the caller's policy.
func (s *Store) Upload(ctx context.Context, parentID, name string, r io.Reader, size int64, progress remote.ProgressFunc) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if !s.isFolderID(parentID) {
		return "", fmt.Errorf("upload %s: parent is not a folder: %w", name, remote.ErrNotFound)
	}

	key := parentID + name
	body := &progressReader{r: r, progress: progress}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return "", mapError(err, fmt.Sprintf("upload %s", key))
	}

	return key, nil
}

// CreateFolder materializes a folder prefix with a zero-byte marker
// object. Creating an existing folder is a no-op returning the same ID.
func (s *Store) CreateFolder(ctx context.Context, parentID, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if !s.isFolderID(parentID) {
		return "", fmt.Errorf("create folder %s: parent is not a folder: %w", name, remote.ErrNotFound)
	}

	prefix := parentID + name + "/"
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(prefix),
		Body:          strings.NewReader(""),
		ContentLength: aws.Int64(0),
	})
	if err != nil {
		return "", mapError(err, fmt.Sprintf("create folder %s", prefix))
	}

	return prefix, nil
}

// Delete removes an object or folder tree. Non-permanent deletes move keys
// under the trash prefix instead of removing them.
func (s *Store) Delete(ctx context.Context, id string, permanent bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	keys, err := s.collectKeys(ctx, id)
	if err != nil {
		return err
	}

	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !permanent {
			trashKey := s.keyPrefix + trashPrefix + strings.TrimPrefix(key, s.keyPrefix)
			if err := s.copyObject(ctx, key, trashKey); err != nil {
				return err
			}
		}
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return mapError(err, fmt.Sprintf("delete %s", key))
		}
	}

	return nil
}

// Rename changes an object's display name by copying to the new key and
// deleting the old one. For folders every key under the prefix is moved.
func (s *Store) Rename(ctx context.Context, id, newName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	trimmed := strings.TrimSuffix(id, "/")
	parent := ""
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		parent = trimmed[:i+1]
	}

	newID := parent + newName
	if s.isFolderID(id) {
		newID += "/"
	}

	keys, err := s.collectKeys(ctx, id)
	if err != nil {
		return err
	}

	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		dst := newID + strings.TrimPrefix(key, id)
		if err := s.copyObject(ctx, key, dst); err != nil {
			return err
		}
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return mapError(err, fmt.Sprintf("rename %s", key))
		}
	}

	return nil
}

// collectKeys resolves an ID to the list of object keys it covers: a
// single key for files, every key under the prefix for folders.
func (s *Store) collectKeys(ctx context.Context, id string) ([]string, error) {
	if !s.isFolderID(id) {
		return []string{id}, nil
	}

	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(id),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, mapError(err, fmt.Sprintf("listing %s", id))
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("object %s: %w", id, remote.ErrNotFound)
	}
	return keys, nil
}

func (s *Store) copyObject(ctx context.Context, src, dst string) error {
	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		Key:        aws.String(dst),
		CopySource: aws.String(s.bucket + "/" + src),
	})
	if err != nil {
		return mapError(err, fmt.Sprintf("copy %s to %s", src, dst))
	}
	return nil
}
