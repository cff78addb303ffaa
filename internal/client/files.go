package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"

	"github.com/banksoal/apiserver/internal/export"
	"github.com/banksoal/apiserver/types"
)

func filePath(id int64, suffix string) string {
	return "/files/" + strconv.FormatInt(id, 10) + suffix
}

// Upload describes a file to attach to a question set.
type Upload struct {
	Category    string
	Filename    string
	ContentType string
	Content     io.Reader
	// Replace soft-deletes the currently active files of the same category.
	Replace bool
}

// UploadFile attaches a file to a question set.
func (c *Client) UploadFile(ctx context.Context, questionSetID int64, up Upload) (types.File, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	if err := mw.WriteField("category", up.Category); err != nil {
		return types.File{}, err
	}
	if up.Replace {
		if err := mw.WriteField("replace", "true"); err != nil {
			return types.File{}, err
		}
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, up.Filename))
	if up.ContentType != "" {
		header.Set("Content-Type", up.ContentType)
	}
	part, err := mw.CreatePart(header)
	if err != nil {
		return types.File{}, err
	}
	if _, err := io.Copy(part, up.Content); err != nil {
		return types.File{}, fmt.Errorf("read upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return types.File{}, err
	}

	var created types.File
	err = c.send(ctx, request{
		method:      http.MethodPost,
		path:        questionSetPath(questionSetID, "/files"),
		body:        &buf,
		contentType: mw.FormDataContentType(),
		timeout:     c.timeouts.File,
	}, decodeInto(&created))
	return created, err
}

// FileHistory lists the replacement chain of a question set, newest first.
// An empty category returns every category.
func (c *Client) FileHistory(ctx context.Context, questionSetID int64, category string) ([]types.File, error) {
	var query url.Values
	if category != "" {
		query = url.Values{"category": {category}}
	}
	var out itemsResponse[types.File]
	if err := c.doJSON(ctx, c.timeouts.Listing, http.MethodGet, questionSetPath(questionSetID, "/files/history"), query, nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// DownloadFile fetches the bytes of one file.
func (c *Client) DownloadFile(ctx context.Context, fileID int64) (export.Blob, error) {
	blob, _, err := c.doBlob(ctx, c.timeouts.File, "/files/download/"+strconv.FormatInt(fileID, 10), nil)
	return blob, err
}

// SoftDeleteFile moves one file to the recycle bin.
func (c *Client) SoftDeleteFile(ctx context.Context, fileID int64) error {
	return c.doLifecycle(ctx, http.MethodPatch, filePath(fileID, "/soft-delete"), nil)
}

// RestoreFile takes one file out of the recycle bin.
func (c *Client) RestoreFile(ctx context.Context, fileID int64) error {
	return c.doLifecycle(ctx, http.MethodPatch, filePath(fileID, "/restore"), nil)
}

// PurgeFile permanently deletes one file.
func (c *Client) PurgeFile(ctx context.Context, fileID int64) error {
	return c.doLifecycle(ctx, http.MethodDelete, filePath(fileID, "/permanent"), nil)
}

// FileRecycleBin lists soft-deleted files.
func (c *Client) FileRecycleBin(ctx context.Context) ([]types.File, error) {
	var out itemsResponse[types.File]
	if err := c.doJSON(ctx, c.timeouts.Listing, http.MethodGet, "/files/recycle-bin/all", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// CombinePreview fetches the preview document of one category
// (questions or answers). Each call bypasses intermediate caches.
func (c *Client) CombinePreview(ctx context.Context, questionSetID int64, category types.Category) (export.Blob, error) {
	query := url.Values{
		"type": {string(category)},
		"_t":   {strconv.FormatInt(c.now().UnixMilli(), 10)},
	}
	blob, _, err := c.doBlob(ctx, c.timeouts.File, "/files/combine-preview/"+strconv.FormatInt(questionSetID, 10), query)
	return blob, err
}

func decodeInto(out any) func(*http.Response) error {
	return func(resp *http.Response) error {
		return json.NewDecoder(resp.Body).Decode(out)
	}
}

func attachmentName(disposition string) string {
	if strings.TrimSpace(disposition) == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(disposition)
	if err != nil {
		return ""
	}
	return params["filename"]
}
