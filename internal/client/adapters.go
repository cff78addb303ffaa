package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/banksoal/apiserver/internal/export"
	"github.com/banksoal/apiserver/internal/lifecycle"
	"github.com/banksoal/apiserver/types"
)

var (
	_ export.Source           = (*Client)(nil)
	_ export.DownloadRecorder = (*Client)(nil)
)

// QuestionSetForExport implements export.Source.
func (c *Client) QuestionSetForExport(ctx context.Context, id int64) (types.QuestionSet, error) {
	return c.GetQuestionSet(ctx, id, false)
}

// RecordDownload implements export.DownloadRecorder by refetching the set
// with the download flag once the archive is complete.
func (c *Client) RecordDownload(ctx context.Context, id int64) error {
	_, err := c.GetQuestionSet(ctx, id, true)
	return err
}

// FileContent implements export.Source.
func (c *Client) FileContent(ctx context.Context, file types.File) (export.Blob, error) {
	return c.DownloadFile(ctx, file.ID)
}

// Lifecycle exposes the client as a lifecycle.Backend.
func (c *Client) Lifecycle() lifecycle.Backend {
	return lifecycleBackend{c: c}
}

type lifecycleBackend struct {
	c *Client
}

func (b lifecycleBackend) SoftDelete(ctx context.Context, kind lifecycle.Kind, id int64) error {
	switch kind {
	case lifecycle.KindQuestionSet:
		return translate(b.c.SoftDeleteQuestionSet(ctx, id))
	case lifecycle.KindFile:
		return translate(b.c.SoftDeleteFile(ctx, id))
	}
	return unknownKind(kind)
}

func (b lifecycleBackend) Restore(ctx context.Context, kind lifecycle.Kind, id int64) error {
	switch kind {
	case lifecycle.KindQuestionSet:
		return translate(b.c.RestoreQuestionSet(ctx, id))
	case lifecycle.KindFile:
		return translate(b.c.RestoreFile(ctx, id))
	}
	return unknownKind(kind)
}

func (b lifecycleBackend) Purge(ctx context.Context, kind lifecycle.Kind, id int64) error {
	switch kind {
	case lifecycle.KindQuestionSet:
		return translate(b.c.DeleteQuestionSet(ctx, id))
	case lifecycle.KindFile:
		return translate(b.c.PurgeFile(ctx, id))
	}
	return unknownKind(kind)
}

// translate lets the tracker recognise "not found" without knowing about HTTP.
func translate(err error) error {
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: %w", lifecycle.ErrNotFound, err)
	}
	return err
}

func unknownKind(kind lifecycle.Kind) error {
	return fmt.Errorf("unsupported entity kind %q", kind)
}
