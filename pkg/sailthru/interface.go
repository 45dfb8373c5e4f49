package sailthru

import "context"

// SailthruClient defines the interface for Sailthru API operations
type SailthruClient interface {
	APIGet(ctx context.Context, action Action, data map[string]any) (Value, error)
	APIGetParams(ctx context.Context, params Params) (Value, error)

	APIPost(ctx context.Context, action Action, data map[string]any) (Value, error)
	APIPostParams(ctx context.Context, params Params) (Value, error)

	// APIPostWithFiles sends a multipart POST with the given file parts
	APIPostWithFiles(ctx context.Context, params Params, files FileParams) (Value, error)

	APIDelete(ctx context.Context, action Action, data map[string]any) (Value, error)
	APIDeleteParams(ctx context.Context, params Params) (Value, error)

	// SaveUser creates or updates a user profile
	SaveUser(ctx context.Context, user UserParams) (Value, error)

	// GetJob returns the current status document of a job
	GetJob(ctx context.Context, jobID string) (Value, error)

	// WaitForJob polls a job until it completes, fails or opts.MaxElapsed passes
	WaitForJob(ctx context.Context, jobID string, opts WaitOptions) (Value, error)
}

var _ SailthruClient = (*Client)(nil)
