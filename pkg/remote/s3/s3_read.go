// Read-side operations for the S3 remote store: listings, metadata,
// downloads and search.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/falachabt/zymupload/pkg/remote"
)

// ListChildren lists the direct children of a folder prefix.
//
// CommonPrefixes become subfolders; Contents become files. The folder's
// own marker object and anything under the trash prefix are filtered out.
func (s *Store) ListChildren(ctx context.Context, folderID string) ([]remote.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !s.isFolderID(folderID) {
		return nil, fmt.Errorf("listing %s: not a folder: %w", folderID, remote.ErrNotFound)
	}

	var entries []remote.Entry
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(folderID),
		Delimiter: aws.String("/"),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, mapError(err, fmt.Sprintf("listing folder %s", folderID))
		}

		for _, prefix := range page.CommonPrefixes {
			p := aws.ToString(prefix.Prefix)
			if s.keyPrefix == "" && strings.HasPrefix(p, trashPrefix) {
				continue
			}
			entries = append(entries, remote.Entry{
				ID:   p,
				Name: baseName(p),
				Kind: remote.KindFolder,
			})
		}

		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if key == folderID {
				// The folder's own marker object.
				continue
			}
			entries = append(entries, remote.Entry{
				ID:           key,
				Name:         baseName(key),
				Kind:         remote.KindFile,
				Size:         aws.ToInt64(obj.Size),
				ModifiedTime: aws.ToTime(obj.LastModified),
			})
		}
	}

	return entries, nil
}

// GetMetadata returns the entry for a single object or folder prefix.
func (s *Store) GetMetadata(ctx context.Context, id string) (remote.Entry, error) {
	if err := ctx.Err(); err != nil {
		return remote.Entry{}, err
	}

	if s.isFolderID(id) {
		return remote.Entry{
			ID:   id,
			Name: baseName(id),
			Kind: remote.KindFolder,
		}, nil
	}

	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(id),
	})
	if err != nil {
		return remote.Entry{}, mapError(err, fmt.Sprintf("stat %s", id))
	}

	return remote.Entry{
		ID:           id,
		Name:         baseName(id),
		Kind:         remote.KindFile,
		Size:         aws.ToInt64(head.ContentLength),
		ModifiedTime: aws.ToTime(head.LastModified),
	}, nil
}

// Download streams an object into w, reporting progress at chunk
// granularity. Returns the number of bytes written.
func (s *Store) Download(ctx context.Context, fileID string, w io.Writer, progress remote.ProgressFunc) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(fileID),
	})
	if err != nil {
		var notFound *types.NoSuchKey
		if errors.As(err, &notFound) {
			return 0, fmt.Errorf("download %s: %w", fileID, remote.ErrNotFound)
		}
		return 0, mapError(err, fmt.Sprintf("download %s", fileID))
	}
	defer result.Body.Close()

	var written int64
	buf := make([]byte, s.chunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		n, rerr := result.Body.Read(buf)
		if n > 0 {
			nw, werr := w.Write(buf[:n])
			written += int64(nw)
			if werr != nil {
				return written, fmt.Errorf("download %s: writing local file: %w", fileID, remote.ErrLocalIO)
			}
			if progress != nil {
				progress(written)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return written, mapError(rerr, fmt.Sprintf("download %s", fileID))
		}
	}

	return written, nil
}

// Search returns all entries under the store's root whose name contains
// the query, case-insensitively.
//
// S3 has no server-side name search, so this scans keys with the list
// paginator. Acceptable for interactive use on typical drive sizes; huge
// buckets should prefix their searches.
func (s *Store) Search(ctx context.Context, query string) ([]remote.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	query = strings.ToLower(query)
	var matches []remote.Entry
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.keyPrefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, mapError(err, "search")
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if s.keyPrefix == "" && strings.HasPrefix(key, trashPrefix) {
				continue
			}
			name := baseName(key)
			if !strings.Contains(strings.ToLower(name), query) {
				continue
			}
			kind := remote.KindFile
			if strings.HasSuffix(key, "/") {
				kind = remote.KindFolder
			}
			matches = append(matches, remote.Entry{
				ID:           key,
				Name:         name,
				Kind:         kind,
				Size:         aws.ToInt64(obj.Size),
				ModifiedTime: aws.ToTime(obj.LastModified),
			})
		}
	}

	return matches, nil
}
