package store

import (
	"context"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
)

// BlobProvider maps collections to Azure Blob Storage containers. Each
// record is one blob; blob ETags back the conditional writes directly.
type BlobProvider struct {
	client *azblob.Client
}

// NewBlobProvider wraps an existing service client.
func NewBlobProvider(client *azblob.Client) *BlobProvider {
	return &BlobProvider{client: client}
}

// NewBlobProviderFromConnectionString builds the service client from an
// Azure Storage connection string.
func NewBlobProviderFromConnectionString(connectionString string) (*BlobProvider, error) {
	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("creating blob service client: %w", err)
	}
	return &BlobProvider{client: client}, nil
}

// NewBlobProviderWithCredential builds the service client for an account
// URL using a token credential (managed identity or service principal).
func NewBlobProviderWithCredential(serviceURL string, cred azcore.TokenCredential) (*BlobProvider, error) {
	client, err := azblob.NewClient(serviceURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("creating blob service client: %w", err)
	}
	return &BlobProvider{client: client}, nil
}

func (p *BlobProvider) Collection(ctx context.Context, name string) (Store, error) {
	cc := p.client.ServiceClient().NewContainerClient(name)
	if _, err := cc.Create(ctx, nil); err != nil {
		if !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
			return nil, translateBlobError(err)
		}
	}
	return &blobStore{container: cc}, nil
}

func (p *BlobProvider) Close() error { return nil }

type blobStore struct {
	container *container.Client
}

func (s *blobStore) Get(ctx context.Context, key string) (*Record, error) {
	if key == "" {
		return nil, ErrInvalidData
	}
	bc := s.container.NewBlockBlobClient(key)
	resp, err := bc.DownloadStream(ctx, nil)
	if err != nil {
		return nil, translateBlobError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading blob %s: %v", ErrUnavailable, key, err)
	}
	rec := &Record{Data: data}
	if resp.ETag != nil {
		rec.ETag = string(*resp.ETag)
	}
	return rec, nil
}

func (s *blobStore) Put(ctx context.Context, key string, data []byte, opts *PutOptions) (string, error) {
	if key == "" {
		return "", ErrInvalidData
	}
	uploadOpts := &blockblob.UploadBufferOptions{}
	if opts != nil {
		conditions := &blob.ModifiedAccessConditions{}
		conditional := false
		if opts.IfMatch != "" {
			etag := azcore.ETag(opts.IfMatch)
			conditions.IfMatch = &etag
			conditional = true
		}
		if opts.IfNoneMatchAny {
			etag := azcore.ETagAny
			conditions.IfNoneMatch = &etag
			conditional = true
		}
		if conditional {
			uploadOpts.AccessConditions = &blob.AccessConditions{ModifiedAccessConditions: conditions}
		}
	}

	bc := s.container.NewBlockBlobClient(key)
	resp, err := bc.UploadBuffer(ctx, data, uploadOpts)
	if err != nil {
		return "", translateBlobError(err)
	}
	if resp.ETag != nil {
		return string(*resp.ETag), nil
	}
	return "", nil
}

func (s *blobStore) Delete(ctx context.Context, key string) error {
	if key == "" {
		return ErrInvalidData
	}
	bc := s.container.NewBlockBlobClient(key)
	if _, err := bc.Delete(ctx, nil); err != nil {
		return translateBlobError(err)
	}
	return nil
}

func (s *blobStore) List(ctx context.Context, prefix string) ([]Entry, error) {
	var listOpts *container.ListBlobsFlatOptions
	if prefix != "" {
		listOpts = &container.ListBlobsFlatOptions{Prefix: &prefix}
	}

	var entries []Entry
	pager := s.container.NewListBlobsFlatPager(listOpts)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, translateBlobError(err)
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name == nil {
				continue
			}
			entry := Entry{Key: *item.Name}
			if item.Properties != nil {
				if item.Properties.ContentLength != nil {
					entry.Size = *item.Properties.ContentLength
				}
				if item.Properties.LastModified != nil {
					entry.LastModified = *item.Properties.LastModified
				}
			}
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

// translateBlobError maps SDK failures onto the store's tagged errors.
func translateBlobError(err error) error {
	switch {
	case bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case bloberror.HasCode(err, bloberror.ConditionNotMet, bloberror.BlobAlreadyExists):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	default:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}
