package sailthru

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
)

// Action is the API resource path segment, e.g. "user" in https://api.sailthru.com/user.
type Action string

const (
	ActionAlert       Action = "alert"
	ActionBlast       Action = "blast"
	ActionBlastRepeat Action = "blast_repeat"
	ActionContent     Action = "content"
	ActionEmail       Action = "email"
	ActionEvent       Action = "event"
	ActionInclude     Action = "include"
	ActionJob         Action = "job"
	ActionList        Action = "list"
	ActionPreview     Action = "preview"
	ActionPurchase    Action = "purchase"
	ActionSend        Action = "send"
	ActionSettings    Action = "settings"
	ActionStats       Action = "stats"
	ActionTemplate    Action = "template"
	ActionTrigger     Action = "trigger"
	ActionUser        Action = "user"
)

func (a Action) String() string { return string(a) }

// Params is a typed parameter object that knows which action it targets.
// It is serialized with encoding/json.
type Params interface {
	Action() Action
}

// UserParams targets the user action.
type UserParams struct {
	ID           string            `json:"id,omitempty"`
	Key          string            `json:"key,omitempty"`
	Keys         map[string]string `json:"keys,omitempty"`
	KeysConflict string            `json:"keysconflict,omitempty"`
	Fields       map[string]any    `json:"fields,omitempty"`
	Vars         map[string]any    `json:"vars,omitempty"`
	Lists        map[string]int    `json:"lists,omitempty"`
	OptoutEmail  string            `json:"optout_email,omitempty"`
	Login        map[string]any    `json:"login,omitempty"`
}

func (UserParams) Action() Action { return ActionUser }

// SendParams targets the send action.
type SendParams struct {
	SendID       string         `json:"send_id,omitempty"`
	Template     string         `json:"template,omitempty"`
	Email        string         `json:"email,omitempty"`
	Vars         map[string]any `json:"vars,omitempty"`
	Options      map[string]any `json:"options,omitempty"`
	ScheduleTime string         `json:"schedule_time,omitempty"`
}

func (SendParams) Action() Action { return ActionSend }

// JobParams targets the job action. Job names the job type when creating one;
// JobID selects an existing job when reading its status.
type JobParams struct {
	Job         string `json:"job,omitempty"`
	JobID       string `json:"job_id,omitempty"`
	List        string `json:"list,omitempty"`
	Emails      string `json:"emails,omitempty"`
	ReportEmail string `json:"report_email,omitempty"`
	PostbackURL string `json:"postback_url,omitempty"`
}

func (JobParams) Action() Action { return ActionJob }

// File is one file part of a multipart upload.
type File struct {
	Name    string
	Content io.Reader
}

// FileParams maps form field names to the files uploaded under them.
type FileParams map[string]File

// CallRecord describes one completed API call.
type CallRecord struct {
	ID         uuid.UUID
	Action     Action
	Method     string
	URL        string
	StatusCode int
	Duration   time.Duration
	Error      string
	CreatedAt  time.Time
}

// Recorder receives a CallRecord after every API call. Errors are logged and
// never fail the call.
type Recorder interface {
	RecordCall(ctx context.Context, rec CallRecord) error
}
