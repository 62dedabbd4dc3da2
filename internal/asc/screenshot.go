package asc

import (
	"bytes"
	"context"
	"crypto/md5" //nolint:gosec // App Store Connect requires an MD5 source checksum.
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/RaydowCharole/AppStoreIapScript/internal/metrics"
)

// ScreenshotResult is the outcome of a review screenshot upload.
type ScreenshotResult struct {
	ID       string
	State    string
	Complete bool
}

// Uploader drives the reserve / upload / commit sequence for App Store
// review screenshots. Chunks go straight to the presigned URLs returned by
// the reservation and never carry the API bearer token.
type Uploader struct {
	api    *Client
	client *http.Client
	log    *slog.Logger
}

// UploaderOption configures the Uploader.
type UploaderOption func(*Uploader)

// WithUploadHTTPClient overrides the HTTP client used for presigned uploads.
func WithUploadHTTPClient(hc *http.Client) UploaderOption {
	return func(u *Uploader) {
		u.client = hc
	}
}

// WithUploaderLogger sets a custom logger.
func WithUploaderLogger(l *slog.Logger) UploaderOption {
	return func(u *Uploader) {
		u.log = l
	}
}

// NewUploader creates an Uploader that reserves and commits through api.
func NewUploader(api *Client, opts ...UploaderOption) *Uploader {
	u := &Uploader{
		api:    api,
		client: &http.Client{Timeout: 2 * time.Minute},
		log:    api.log,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Upload attaches the file at path as the review screenshot of iapID. A
// missing file fails with *MissingAssetError before any request is made. A
// rejected chunk fails with *UploadError and the reservation is left
// uncommitted. A committed asset that is not yet UPLOAD_COMPLETE is logged
// and still returned.
func (u *Uploader) Upload(ctx context.Context, iapID, path string) (*ScreenshotResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &MissingAssetError{Path: path}
		}
		return nil, fmt.Errorf("stat screenshot: %w", err)
	}
	if info.IsDir() {
		return nil, &MissingAssetError{Path: path}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening screenshot: %w", err)
	}
	defer f.Close()

	checksum, err := md5Hex(f)
	if err != nil {
		return nil, fmt.Errorf("hashing screenshot: %w", err)
	}

	reservation, err := u.reserve(ctx, iapID, filepath.Base(path), info.Size())
	if err != nil {
		return nil, err
	}
	u.log.Debug("screenshot reserved",
		"iap_id", iapID,
		"screenshot_id", reservation.ID,
		"operations", len(reservation.Attributes.UploadOperations),
	)

	for i := range reservation.Attributes.UploadOperations {
		op := &reservation.Attributes.UploadOperations[i]
		if err := u.uploadChunk(ctx, f, info.Size(), op); err != nil {
			return nil, fmt.Errorf("uploading screenshot chunk %d: %w", i, err)
		}
	}

	state, err := u.commit(ctx, reservation.ID, checksum)
	if err != nil {
		return nil, err
	}

	res := &ScreenshotResult{
		ID:       reservation.ID,
		State:    state,
		Complete: state == assetStateUploadComplete,
	}
	if !res.Complete {
		u.log.Warn("screenshot not yet complete",
			"iap_id", iapID,
			"screenshot_id", res.ID,
			"state", state,
		)
	}
	return res, nil
}

func (u *Uploader) reserve(
	ctx context.Context,
	iapID, fileName string,
	size int64,
) (*Resource[ReviewScreenshotAttributes], error) {
	var req reserveScreenshotRequest
	req.Data.Type = typeReviewScreenshots
	req.Data.Attributes.FileName = fileName
	req.Data.Attributes.FileSize = size
	req.Data.Relationships.InAppPurchaseV2 = toOne{
		Data: ResourceRef{Type: typeInAppPurchases, ID: iapID},
	}

	var doc Document[ReviewScreenshotAttributes]
	if err := u.api.CreateResource(ctx, "/v1/inAppPurchaseAppStoreReviewScreenshots", req, &doc); err != nil {
		return nil, fmt.Errorf("reserving screenshot for %s: %w", iapID, err)
	}
	if doc.Data.ID == "" {
		return nil, fmt.Errorf("reserving screenshot for %s: response has no id", iapID)
	}
	return &doc.Data, nil
}

func (u *Uploader) uploadChunk(ctx context.Context, f io.ReaderAt, size int64, op *UploadOperation) error {
	length := size - op.Offset
	if op.Length != nil {
		length = *op.Length
	}
	if op.Offset < 0 || length < 0 || op.Offset+length > size {
		return fmt.Errorf("chunk [%d, +%d) outside file of %d bytes", op.Offset, length, size)
	}

	switch op.Method {
	case http.MethodPut, http.MethodPost:
	default:
		return fmt.Errorf("unsupported upload method %q", op.Method)
	}

	chunk, err := io.ReadAll(io.NewSectionReader(f, op.Offset, length))
	if err != nil {
		return fmt.Errorf("reading chunk: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, op.Method, op.URL, bytes.NewReader(chunk))
	if err != nil {
		return fmt.Errorf("creating upload request: %w", err)
	}
	for _, h := range op.RequestHeaders {
		req.Header.Set(h.Name, h.Value)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		metrics.UploadOperationsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("sending chunk to %s: %w", redactURL(op.URL), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(resp.Body)
		metrics.UploadOperationsTotal.WithLabelValues("failed").Inc()
		u.log.Error("upload error response",
			"url", redactURL(op.URL),
			"status", resp.StatusCode,
			"body", string(body),
		)
		return &UploadError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	metrics.UploadOperationsTotal.WithLabelValues("ok").Inc()
	metrics.UploadBytesTotal.Add(float64(len(chunk)))
	return nil
}

func (u *Uploader) commit(ctx context.Context, screenshotID, checksum string) (string, error) {
	var req commitScreenshotRequest
	req.Data.Type = typeReviewScreenshots
	req.Data.ID = screenshotID
	req.Data.Attributes.Uploaded = true
	req.Data.Attributes.SourceFileChecksum = checksum

	path := "/v1/inAppPurchaseAppStoreReviewScreenshots/" + url.PathEscape(screenshotID)

	var doc Document[ReviewScreenshotAttributes]
	if err := u.api.UpdateResource(ctx, path, req, &doc); err != nil {
		return "", fmt.Errorf("committing screenshot %s: %w", screenshotID, err)
	}
	if s := doc.Data.Attributes.AssetDeliveryState; s != nil {
		return s.State, nil
	}
	return "", nil
}

func md5Hex(r io.ReadSeeker) (string, error) {
	h := md5.New() //nolint:gosec // required by the API
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// redactURL drops the query string, which carries the presigned credentials.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "invalid-url"
	}
	u.RawQuery = ""
	return u.String()
}
