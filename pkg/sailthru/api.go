package sailthru

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"

	httpclient "github.com/natserract/sailthru/pkg/http"
	"go.uber.org/zap"
)

// APIGet sends data to action with HTTP GET.
func (c *Client) APIGet(ctx context.Context, action Action, data map[string]any) (Value, error) {
	return c.httpRequest(ctx, http.MethodGet, action, data, nil)
}

// APIGetParams sends a typed parameter object with HTTP GET.
func (c *Client) APIGetParams(ctx context.Context, params Params) (Value, error) {
	return c.httpRequest(ctx, http.MethodGet, params.Action(), params, nil)
}

func (c *Client) APIPost(ctx context.Context, action Action, data map[string]any) (Value, error) {
	return c.httpRequest(ctx, http.MethodPost, action, data, nil)
}

func (c *Client) APIPostParams(ctx context.Context, params Params) (Value, error) {
	return c.httpRequest(ctx, http.MethodPost, params.Action(), params, nil)
}

// APIPostWithFiles sends params as a multipart POST with files attached
// under their field names.
func (c *Client) APIPostWithFiles(ctx context.Context, params Params, files FileParams) (Value, error) {
	return c.httpRequest(ctx, http.MethodPost, params.Action(), params, files)
}

func (c *Client) APIDelete(ctx context.Context, action Action, data map[string]any) (Value, error) {
	return c.httpRequest(ctx, http.MethodDelete, action, data, nil)
}

func (c *Client) APIDeleteParams(ctx context.Context, params Params) (Value, error) {
	return c.httpRequest(ctx, http.MethodDelete, params.Action(), params, nil)
}

func (c *Client) httpRequest(ctx context.Context, method string, action Action, data any, files FileParams) (Value, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	jsonPayload, err := encodeJSON(data)
	if err != nil {
		c.logger.Error("Failed to encode request parameters",
			zap.String("action", action.String()),
			zap.Error(err))
		return Value{}, &SerializationError{Action: action, Err: err}
	}

	payload := c.buildPayload(jsonPayload)
	c.logger.Debug("Built signed payload",
		zap.String("action", action.String()),
		zap.String("method", method),
		zap.String("format", payload[FieldFormat]),
		zap.Int("json_bytes", len(jsonPayload)))

	rec := CallRecord{
		Action: action,
		Method: method,
		URL:    c.httpClient.URLFor(action.String()),
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpclient.RequestOptions{
		Method:  method,
		Path:    action.String(),
		Form:    payload,
		Files:   fileParts(files),
		Context: ctx,
	})
	rec.Duration = time.Since(start)
	if err != nil {
		terr := &TransportError{Method: method, Action: action, Err: err}
		rec.Error = terr.Error()
		c.record(ctx, rec)
		c.logger.Error("API call failed",
			zap.String("action", action.String()),
			zap.String("method", method),
			zap.Error(err))
		return Value{}, terr
	}

	rec.StatusCode = resp.StatusCode
	value, err := c.parseResponse(resp)
	if err != nil {
		rec.Error = err.Error()
	}
	c.record(ctx, rec)
	if err != nil {
		c.logger.Error("API call returned an error",
			zap.String("action", action.String()),
			zap.String("method", method),
			zap.Int("status_code", resp.StatusCode),
			zap.Error(err))
		return Value{}, err
	}

	c.logger.Info("API call completed",
		zap.String("action", action.String()),
		zap.String("method", method),
		zap.Int("status_code", resp.StatusCode),
		zap.Duration("duration", rec.Duration))

	return value, nil
}

func (c *Client) parseResponse(resp *httpclient.Response) (Value, error) {
	value, parseErr := c.handler.Parse(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: snippet(resp.Body)}
		if parseErr == nil {
			apiErr.Response = value
			apiErr.Code, _ = value.Get("error").AsInt64()
			apiErr.Message, _ = value.Get("errormsg").AsString()
		}
		return Value{}, apiErr
	}

	if parseErr != nil {
		var pe *ParseError
		if !errors.As(parseErr, &pe) {
			pe = &ParseError{Format: c.handler.Format(), Body: snippet(resp.Body), Err: parseErr}
		}
		pe.StatusCode = resp.StatusCode
		return Value{}, pe
	}

	return value, nil
}

func fileParts(files FileParams) []httpclient.FilePart {
	if len(files) == 0 {
		return nil
	}
	fields := make([]string, 0, len(files))
	for field := range files {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]httpclient.FilePart, 0, len(files))
	for _, field := range fields {
		f := files[field]
		parts = append(parts, httpclient.FilePart{
			FieldName: field,
			FileName:  f.Name,
			Content:   f.Content,
		})
	}
	return parts
}
