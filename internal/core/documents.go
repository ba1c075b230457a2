package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"claimdesk/internal/blob"
	"claimdesk/pkg/domain"
)

const (
	// DocumentPrefix is the bucket folder uploads are written under.
	DocumentPrefix = "documents/"
	// DefaultMaxDocumentSize bounds uploads when no limit is configured.
	DefaultMaxDocumentSize int64 = 10 << 20

	metaName        = "name"
	presignedExpiry = 15 * time.Minute
)

var (
	allowedDocumentTypes = map[string]string{
		".pdf":  "application/pdf",
		".jpg":  "image/jpeg",
		".jpeg": "image/jpeg",
		".png":  "image/png",
	}
	documentIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*(\.[A-Za-z0-9]+)?$`)
)

// DocumentService stores claim supporting documents in a blob bucket.
type DocumentService struct {
	store   blob.Store
	maxSize int64
	opts    options
}

// NewDocumentService returns a service over store. A non-positive maxSize
// selects DefaultMaxDocumentSize.
func NewDocumentService(store blob.Store, maxSize int64, opts ...Option) *DocumentService {
	if maxSize <= 0 {
		maxSize = DefaultMaxDocumentSize
	}
	return &DocumentService{store: store, maxSize: maxSize, opts: buildOptions(opts)}
}

// MaxSize returns the upload limit in bytes.
func (d *DocumentService) MaxSize() int64 { return d.maxSize }

// Upload validates and stores a document named name. The object key is
// documents/<unix-ms>-<random><ext>.
func (d *DocumentService) Upload(ctx context.Context, name string, r io.Reader) (doc domain.Document, err error) {
	started := d.opts.now()
	defer func() { d.opts.observe(ctx, "documents.upload", started, err) }()

	ext := strings.ToLower(path.Ext(name))
	contentType, ok := allowedDocumentTypes[ext]
	if !ok {
		return domain.Document{}, fmt.Errorf("%w: %q", domain.ErrDocumentType, ext)
	}
	// One byte past the limit marks an oversize body.
	data, err := io.ReadAll(io.LimitReader(r, d.maxSize+1))
	if err != nil {
		return domain.Document{}, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > d.maxSize {
		return domain.Document{}, domain.ErrDocumentTooLarge
	}

	id := fmt.Sprintf("%d-%s%s", started.UnixMilli(), randomSuffix(), ext)
	info, err := d.store.Put(ctx, DocumentPrefix+id, bytes.NewReader(data), blob.PutOptions{
		ContentType: contentType,
		Metadata:    map[string]string{metaName: path.Base(name)},
	})
	if err != nil {
		return domain.Document{}, domain.UpstreamError{Prefix: "failed to store document", Err: err}
	}
	return d.toDocument(ctx, id, info)
}

// List returns every stored document ordered by id.
func (d *DocumentService) List(ctx context.Context) (out []domain.Document, err error) {
	started := d.opts.now()
	defer func() { d.opts.observe(ctx, "documents.list", started, err) }()

	infos, err := d.store.List(ctx, DocumentPrefix)
	if err != nil {
		return nil, domain.UpstreamError{Prefix: "failed to list documents", Err: err}
	}
	out = make([]domain.Document, 0, len(infos))
	for _, info := range infos {
		if info.Metadata == nil {
			// Listings from S3 carry no user metadata.
			if full, herr := d.store.Head(ctx, info.Key); herr == nil {
				info = full
			}
		}
		doc, err := d.toDocument(ctx, strings.TrimPrefix(info.Key, DocumentPrefix), info)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

// Open returns the document and a reader over its content. The caller closes it.
func (d *DocumentService) Open(ctx context.Context, id string) (doc domain.Document, body io.ReadCloser, err error) {
	started := d.opts.now()
	defer func() { d.opts.observe(ctx, "documents.get", started, err) }()

	if !validDocumentID(id) {
		return domain.Document{}, nil, domain.NotFoundError{Entity: domain.EntityDocument, ID: id}
	}
	info, body, err := d.store.Get(ctx, DocumentPrefix+id)
	if errors.Is(err, blob.ErrNotFound) {
		return domain.Document{}, nil, domain.NotFoundError{Entity: domain.EntityDocument, ID: id}
	}
	if err != nil {
		return domain.Document{}, nil, domain.UpstreamError{Err: err}
	}
	return documentFromInfo(id, info, ""), body, nil
}

// Remove deletes the document with id.
func (d *DocumentService) Remove(ctx context.Context, id string) (err error) {
	started := d.opts.now()
	defer func() { d.opts.observe(ctx, "documents.delete", started, err) }()

	if !validDocumentID(id) {
		return domain.NotFoundError{Entity: domain.EntityDocument, ID: id}
	}
	existed, err := d.store.Delete(ctx, DocumentPrefix+id)
	if err != nil {
		return domain.UpstreamError{Prefix: "failed to delete document", Err: err}
	}
	if !existed {
		return domain.NotFoundError{Entity: domain.EntityDocument, ID: id}
	}
	return nil
}

func (d *DocumentService) toDocument(ctx context.Context, id string, info blob.Info) (domain.Document, error) {
	url, err := d.store.PresignURL(ctx, DocumentPrefix+id, blob.SignedURLOptions{Method: "GET", Expiry: presignedExpiry})
	switch {
	case errors.Is(err, blob.ErrUnsupported):
		url = "/documents/" + id
	case err != nil:
		return domain.Document{}, domain.UpstreamError{Prefix: "failed to sign document url", Err: err}
	}
	return documentFromInfo(id, info, url), nil
}

func documentFromInfo(id string, info blob.Info, url string) domain.Document {
	name := info.Metadata[metaName]
	if name == "" {
		name = id
	}
	ct := info.ContentType
	if ct == "" {
		ct = mime.TypeByExtension(path.Ext(id))
	}
	return domain.Document{ID: id, Name: name, Type: ct, Size: info.Size, URL: url, UploadedAt: info.LastModified}
}

func validDocumentID(id string) bool {
	return documentIDPattern.MatchString(id) && !strings.Contains(id, "..")
}

func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
