package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/banksoal/apiserver/types"
)

// ListOptions filters and paginates GET /questionsets.
type ListOptions struct {
	Page   int
	Limit  int
	Filter types.QuestionSetFilter
}

func (o ListOptions) values() url.Values {
	q := url.Values{}
	if o.Page > 0 {
		q.Set("page", strconv.Itoa(o.Page))
	}
	if o.Limit > 0 {
		q.Set("limit", strconv.Itoa(o.Limit))
	}
	f := o.Filter
	if f.Query != "" {
		q.Set("q", f.Query)
	}
	if f.SubjectID > 0 {
		q.Set("subject", strconv.FormatInt(f.SubjectID, 10))
	}
	if f.Difficulty != "" {
		q.Set("difficulty", string(f.Difficulty))
	}
	if f.Year > 0 {
		q.Set("year", strconv.Itoa(f.Year))
	}
	if f.Topic != "" {
		q.Set("topic", f.Topic)
	}
	return q
}

// QuestionSetPage is one page of question sets.
type QuestionSetPage struct {
	Items []types.QuestionSet `json:"items"`
	Page  int                 `json:"page"`
	Limit int                 `json:"limit"`
	Total int                 `json:"total"`
}

type itemsResponse[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

func questionSetPath(id int64, suffix string) string {
	return "/questionsets/" + strconv.FormatInt(id, 10) + suffix
}

// ListQuestionSets returns active question sets.
func (c *Client) ListQuestionSets(ctx context.Context, opts ListOptions) (QuestionSetPage, error) {
	var page QuestionSetPage
	err := c.doJSON(ctx, c.timeouts.Listing, http.MethodGet, "/questionsets", opts.values(), nil, &page)
	return page, err
}

// GetQuestionSet fetches a question set with its active files. With download
// set, the server counts it as a download.
func (c *Client) GetQuestionSet(ctx context.Context, id int64, download bool) (types.QuestionSet, error) {
	var query url.Values
	if download {
		query = url.Values{"download": {"true"}}
	}
	var qs types.QuestionSet
	err := c.doJSON(ctx, c.timeouts.Metadata, http.MethodGet, questionSetPath(id, ""), query, nil, &qs)
	return qs, err
}

// CreateQuestionSet creates a question set without files.
func (c *Client) CreateQuestionSet(ctx context.Context, qs types.QuestionSet) (types.QuestionSet, error) {
	var created types.QuestionSet
	err := c.doJSON(ctx, c.timeouts.Metadata, http.MethodPost, "/questionsets", nil, qs, &created)
	return created, err
}

// UpdateQuestionSet applies a partial edit.
func (c *Client) UpdateQuestionSet(ctx context.Context, id int64, patch types.QuestionSetPatch) (types.QuestionSet, error) {
	var updated types.QuestionSet
	err := c.doJSON(ctx, c.timeouts.Metadata, http.MethodPatch, questionSetPath(id, ""), nil, patch, &updated)
	return updated, err
}

// SoftDeleteQuestionSet moves a question set to the recycle bin.
func (c *Client) SoftDeleteQuestionSet(ctx context.Context, id int64) error {
	return c.doLifecycle(ctx, http.MethodPatch, questionSetPath(id, "/soft-delete"), nil)
}

// RestoreQuestionSet takes a question set out of the recycle bin. Servers
// without the dedicated route get a plain PATCH clearing the delete flag.
func (c *Client) RestoreQuestionSet(ctx context.Context, id int64) error {
	err := c.doLifecycle(ctx, http.MethodPatch, questionSetPath(id, "/restore"), nil)
	if !errors.Is(err, ErrNotFound) {
		return err
	}

	body := map[string]any{"isDeleted": false, "deletedAt": nil}
	if fallbackErr := c.doJSON(ctx, c.timeouts.Lifecycle, http.MethodPatch, questionSetPath(id, ""), nil, body, nil); fallbackErr != nil {
		return fmt.Errorf("restore question set %d: %w", id, fallbackErr)
	}
	return nil
}

// DeleteQuestionSet permanently deletes a question set.
func (c *Client) DeleteQuestionSet(ctx context.Context, id int64) error {
	return c.doLifecycle(ctx, http.MethodDelete, questionSetPath(id, ""), nil)
}

// RecycleBin lists soft-deleted question sets.
func (c *Client) RecycleBin(ctx context.Context) ([]types.QuestionSet, error) {
	var out itemsResponse[types.QuestionSet]
	if err := c.doJSON(ctx, c.timeouts.Listing, http.MethodGet, "/questionsets/recycle-bin/all", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// ExportArchive downloads the archive built by the server.
func (c *Client) ExportArchive(ctx context.Context, id int64) (string, []byte, error) {
	blob, filename, err := c.doBlob(ctx, c.timeouts.File, questionSetPath(id, "/export"), nil)
	if err != nil {
		return "", nil, err
	}
	return filename, blob.Data, nil
}
