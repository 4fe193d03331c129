// Package upload queues branch uploads and forwards them to the documents service.
package upload

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"gatehouse/internal/jobs"
	"gatehouse/pkg/httpclient"
)

const (
	QueueName = "upload"
	JobType   = "upload"
)

var ErrInvalidPayload = errors.New("upload: invalid payload")

// Payload references a file already stored by the caller.
type Payload struct {
	FileID     string `json:"fileId"`
	ProjectID  string `json:"projectId"`
	BranchName string `json:"branchName"`
}

func (p Payload) Validate() error {
	switch {
	case p.FileID == "":
		return fmt.Errorf("%w: fileId is required", ErrInvalidPayload)
	case p.ProjectID == "":
		return fmt.Errorf("%w: projectId is required", ErrInvalidPayload)
	case p.BranchName == "":
		return fmt.Errorf("%w: branchName is required", ErrInvalidPayload)
	}
	return nil
}

// Enqueuer is the part of the scheduler uploads need.
type Enqueuer interface {
	Enqueue(ctx context.Context, queue, jobType string, payload any) (jobs.Job, error)
}

// EnqueueUpload puts p on the single-worker upload queue and returns at once.
func EnqueueUpload(ctx context.Context, e Enqueuer, p Payload) (jobs.Job, error) {
	if err := p.Validate(); err != nil {
		return jobs.Job{}, err
	}
	return e.Enqueue(ctx, QueueName, JobType, p)
}

// Processor runs upload jobs against the documents service.
type Processor struct {
	log  *zap.SugaredLogger
	docs *httpclient.Client
}

func NewProcessor(log *zap.SugaredLogger, docs *httpclient.Client) *Processor {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Processor{log: log, docs: docs}
}

// Handle is the jobs.Handler for JobType.
func (p *Processor) Handle(ctx context.Context, j *jobs.Job) error {
	var pl Payload
	if err := j.Decode(&pl); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := pl.Validate(); err != nil {
		return err
	}
	path := fmt.Sprintf("/api/projects/%s/branches/%s", url.PathEscape(pl.ProjectID), url.PathEscape(pl.BranchName))
	body := map[string]string{"fileId": pl.FileID, "jobId": j.ID}
	if err := p.docs.PostJSON(ctx, path, body, nil); err != nil {
		return fmt.Errorf("forward upload %s: %w", pl.FileID, err)
	}
	p.log.Infow("upload forwarded", "job_id", j.ID, "file_id", pl.FileID, "project", pl.ProjectID, "branch", pl.BranchName)
	return nil
}
