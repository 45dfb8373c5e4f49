package sailthru

import (
	"context"
	"fmt"
)

// GetUser looks up a user by id (an email address or Sailthru id).
func (c *Client) GetUser(ctx context.Context, id string) (Value, error) {
	return c.APIGetParams(ctx, UserParams{ID: id})
}

func (c *Client) SaveUser(ctx context.Context, user UserParams) (Value, error) {
	return c.APIPostParams(ctx, user)
}

func (c *Client) GetSend(ctx context.Context, sendID string) (Value, error) {
	return c.APIGetParams(ctx, SendParams{SendID: sendID})
}

// Send delivers (or schedules) a transactional template to one recipient.
func (c *Client) Send(ctx context.Context, send SendParams) (Value, error) {
	return c.APIPostParams(ctx, send)
}

// CancelSend cancels a scheduled send.
func (c *Client) CancelSend(ctx context.Context, sendID string) (Value, error) {
	return c.APIDeleteParams(ctx, SendParams{SendID: sendID})
}

func (c *Client) GetJob(ctx context.Context, jobID string) (Value, error) {
	return c.APIGetParams(ctx, JobParams{JobID: jobID})
}

// ProcessImportJob uploads a CSV of users into list and returns the created job.
// Progress can be followed with WaitForJob using the returned job_id.
func (c *Client) ProcessImportJob(ctx context.Context, list string, file File, reportEmail string) (Value, error) {
	if file.Content == nil {
		return Value{}, fmt.Errorf("import file %q has no content", file.Name)
	}
	params := JobParams{Job: "import", List: list, ReportEmail: reportEmail}
	return c.APIPostWithFiles(ctx, params, FileParams{"file": file})
}
