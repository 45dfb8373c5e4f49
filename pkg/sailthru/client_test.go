package sailthru

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/natserract/sailthru/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	method string
	path   string
	form   url.Values
	files  map[string]string
}

type fakeAPI struct {
	mu       sync.Mutex
	requests []recordedRequest
	status   int
	body     string
}

func (f *fakeAPI) handler(w http.ResponseWriter, r *http.Request) {
	rec := recordedRequest{method: r.Method, path: r.URL.Path, files: map[string]string{}}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for field, headers := range r.MultipartForm.File {
			fh, err := headers[0].Open()
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			b, _ := io.ReadAll(fh)
			fh.Close()
			rec.files[field] = headers[0].Filename + ":" + string(b)
		}
	} else if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rec.form = r.Form

	f.mu.Lock()
	f.requests = append(f.requests, rec)
	status, body := f.status, f.body
	f.mu.Unlock()

	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func (f *fakeAPI) last(t *testing.T) recordedRequest {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.requests)
	return f.requests[len(f.requests)-1]
}

func (f *fakeAPI) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func newFakeAPI(t *testing.T, status int, body string) (*fakeAPI, *httptest.Server) {
	t.Helper()
	f := &fakeAPI{status: status, body: body}
	srv := httptest.NewServer(http.HandlerFunc(f.handler))
	t.Cleanup(srv.Close)
	return f, srv
}

func newTestClient(t *testing.T, apiURL, secret string, opts ...Option) *Client {
	t.Helper()
	c, err := New(&config.Config{APIKey: "key", APISecret: secret, APIURL: apiURL}, opts...)
	require.NoError(t, err)
	return c
}

func assertSignedForm(t *testing.T, secret string, form url.Values) {
	t.Helper()
	assert.Equal(t, "key", form.Get(FieldAPIKey))
	assert.Equal(t, "json", form.Get(FieldFormat))
	assert.NotEmpty(t, form.Get(FieldJSON))
	assert.Equal(t, SignatureHash(secret, map[string]string{
		FieldAPIKey: form.Get(FieldAPIKey),
		FieldFormat: form.Get(FieldFormat),
		FieldJSON:   form.Get(FieldJSON),
	}), form.Get(FieldSignature))
}

func TestVerbsRouteToAction(t *testing.T) {
	api, srv := newFakeAPI(t, http.StatusOK, `{"ok":true}`)
	c := newTestClient(t, srv.URL, "secret")
	ctx := context.Background()
	data := map[string]any{"id": "a@b.c"}

	cases := []struct {
		method string
		call   func() (Value, error)
	}{
		{http.MethodGet, func() (Value, error) { return c.APIGet(ctx, ActionUser, data) }},
		{http.MethodPost, func() (Value, error) { return c.APIPost(ctx, ActionUser, data) }},
		{http.MethodDelete, func() (Value, error) { return c.APIDelete(ctx, ActionUser, data) }},
	}
	for _, tc := range cases {
		t.Run(tc.method, func(t *testing.T) {
			v, err := tc.call()
			require.NoError(t, err)
			ok, isBool := v.Get("ok").AsBool()
			assert.True(t, isBool)
			assert.True(t, ok)

			req := api.last(t)
			assert.Equal(t, tc.method, req.method)
			assert.Equal(t, "/user", req.path)
			assert.Equal(t, `{"id":"a@b.c"}`, req.form.Get(FieldJSON))
			assertSignedForm(t, "secret", req.form)
		})
	}
}

func TestTypedParamsRoute(t *testing.T) {
	api, srv := newFakeAPI(t, http.StatusOK, `{}`)
	c := newTestClient(t, srv.URL, "secret")
	ctx := context.Background()

	_, err := c.APIGetParams(ctx, JobParams{JobID: "j1"})
	require.NoError(t, err)
	req := api.last(t)
	assert.Equal(t, http.MethodGet, req.method)
	assert.Equal(t, "/job", req.path)
	assert.Equal(t, `{"job_id":"j1"}`, req.form.Get(FieldJSON))

	_, err = c.CancelSend(ctx, "s1")
	require.NoError(t, err)
	req = api.last(t)
	assert.Equal(t, http.MethodDelete, req.method)
	assert.Equal(t, "/send", req.path)
	assert.Equal(t, `{"send_id":"s1"}`, req.form.Get(FieldJSON))

	_, err = c.Send(ctx, SendParams{Template: "welcome", Email: "a@b.c"})
	require.NoError(t, err)
	req = api.last(t)
	assert.Equal(t, http.MethodPost, req.method)
	assert.Equal(t, `{"email":"a@b.c","template":"welcome"}`, req.form.Get(FieldJSON))
}

func TestTypedParamsMatchMapPayload(t *testing.T) {
	api, srv := newFakeAPI(t, http.StatusOK, `{}`)
	c := newTestClient(t, srv.URL, "secret")
	ctx := context.Background()

	_, err := c.APIPostParams(ctx, UserParams{
		ID:    "a@b.c",
		Vars:  map[string]any{"name": "Ann", "age": 31},
		Lists: map[string]int{"Weekly": 1},
	})
	require.NoError(t, err)
	typed := api.last(t).form

	_, err = c.APIPost(ctx, ActionUser, map[string]any{
		"vars":  map[string]any{"age": 31, "name": "Ann"},
		"lists": map[string]any{"Weekly": 1},
		"id":    "a@b.c",
	})
	require.NoError(t, err)
	raw := api.last(t).form

	assert.Equal(t, raw.Encode(), typed.Encode())
}

func TestNilDataSendsEmptyObject(t *testing.T) {
	api, srv := newFakeAPI(t, http.StatusOK, `{}`)
	c := newTestClient(t, srv.URL, "secret")

	_, err := c.APIGet(context.Background(), ActionSettings, nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", api.last(t).form.Get(FieldJSON))
}

func TestEmptySecretStillSigns(t *testing.T) {
	api, srv := newFakeAPI(t, http.StatusOK, `{}`)
	c := newTestClient(t, srv.URL, "")

	_, err := c.APIGet(context.Background(), ActionUser, map[string]any{"id": "x"})
	require.NoError(t, err)

	form := api.last(t).form
	assert.Len(t, form.Get(FieldSignature), 32)
	assertSignedForm(t, "", form)
}

func TestMalformedResponseIsParseError(t *testing.T) {
	_, srv := newFakeAPI(t, http.StatusOK, `{"ok": tru`)
	c := newTestClient(t, srv.URL, "secret")

	v, err := c.APIGet(context.Background(), ActionUser, nil)
	require.Error(t, err)
	assert.True(t, v.IsNull())

	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "json", pe.Format)
	assert.Equal(t, http.StatusOK, pe.StatusCode)

	var te *TransportError
	assert.False(t, errors.As(err, &te))
}

func TestEmptyResponseIsParseError(t *testing.T) {
	_, srv := newFakeAPI(t, http.StatusOK, "")
	c := newTestClient(t, srv.URL, "secret")

	_, err := c.APIGet(context.Background(), ActionUser, nil)
	var pe *ParseError
	assert.True(t, errors.As(err, &pe))
}

func TestTransportFailureIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	apiURL := srv.URL
	srv.Close()

	c := newTestClient(t, apiURL, "secret")
	_, err := c.APIPost(context.Background(), ActionUser, map[string]any{"id": "x"})
	require.Error(t, err)

	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, http.MethodPost, te.Method)
	assert.Equal(t, ActionUser, te.Action)

	var pe *ParseError
	assert.False(t, errors.As(err, &pe))
}

func TestSerializationErrorSkipsNetwork(t *testing.T) {
	api, srv := newFakeAPI(t, http.StatusOK, `{}`)
	c := newTestClient(t, srv.URL, "secret")

	_, err := c.APIPost(context.Background(), ActionUser, map[string]any{"bad": func() {}})
	var se *SerializationError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, ActionUser, se.Action)
	assert.Zero(t, api.count())
}

func TestAPIErrorCarriesServiceMessage(t *testing.T) {
	_, srv := newFakeAPI(t, http.StatusBadRequest, `{"error":99,"errormsg":"User not found"}`)
	c := newTestClient(t, srv.URL, "secret")

	_, err := c.GetUser(context.Background(), "nobody@example.com")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.EqualValues(t, 99, apiErr.Code)
	assert.Equal(t, "User not found", apiErr.Message)
	assert.Contains(t, err.Error(), "User not found")
}

func TestAPIErrorWithUnparsableBody(t *testing.T) {
	_, srv := newFakeAPI(t, http.StatusBadGateway, `<html>bad gateway</html>`)
	c := newTestClient(t, srv.URL, "secret")

	_, err := c.APIGet(context.Background(), ActionUser, nil)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, "<html>bad gateway</html>", apiErr.Body)
	assert.True(t, apiErr.Response.IsNull())
}

func TestAPIPostWithFiles(t *testing.T) {
	api, srv := newFakeAPI(t, http.StatusOK, `{"job_id":"j1","status":"pending"}`)
	c := newTestClient(t, srv.URL, "secret")

	v, err := c.ProcessImportJob(context.Background(), "Weekly", File{
		Name:    "users.csv",
		Content: strings.NewReader("email\na@b.c\n"),
	}, "")
	require.NoError(t, err)
	jobID, _ := v.Get("job_id").AsString()
	assert.Equal(t, "j1", jobID)

	req := api.last(t)
	assert.Equal(t, http.MethodPost, req.method)
	assert.Equal(t, "/job", req.path)
	assert.Equal(t, `{"job":"import","list":"Weekly"}`, req.form.Get(FieldJSON))
	assertSignedForm(t, "secret", req.form)
	assert.Equal(t, "users.csv:email\na@b.c\n", req.files["file"])
}

func TestProcessImportJobRequiresContent(t *testing.T) {
	api, srv := newFakeAPI(t, http.StatusOK, `{}`)
	c := newTestClient(t, srv.URL, "secret")

	_, err := c.ProcessImportJob(context.Background(), "Weekly", File{Name: "users.csv"}, "")
	assert.Error(t, err)
	assert.Zero(t, api.count())
}

type textHandler struct{}

func (textHandler) Format() string { return "txt" }
func (textHandler) Parse(body []byte) (Value, error) {
	if len(body) == 0 {
		return Value{}, errors.New("empty body")
	}
	return StringValue(string(body)), nil
}

func TestCustomResponseHandler(t *testing.T) {
	api, srv := newFakeAPI(t, http.StatusOK, "hello")
	c := newTestClient(t, srv.URL, "secret", WithResponseHandler(textHandler{}))

	v, err := c.APIGet(context.Background(), ActionStats, nil)
	require.NoError(t, err)
	s, _ := v.AsString()
	assert.Equal(t, "hello", s)
	assert.Equal(t, "txt", api.last(t).form.Get(FieldFormat))
}

func TestCustomHandlerErrorsBecomeParseErrors(t *testing.T) {
	_, srv := newFakeAPI(t, http.StatusOK, "")
	c := newTestClient(t, srv.URL, "secret", WithResponseHandler(textHandler{}))

	_, err := c.APIGet(context.Background(), ActionStats, nil)
	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "txt", pe.Format)
}

type memoryRecorder struct {
	mu      sync.Mutex
	records []CallRecord
}

func (m *memoryRecorder) RecordCall(_ context.Context, rec CallRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func TestRecorderReceivesCalls(t *testing.T) {
	_, srv := newFakeAPI(t, http.StatusOK, `{}`)
	rec := &memoryRecorder{}
	c := newTestClient(t, srv.URL, "secret", WithRecorder(rec))

	_, err := c.APIPost(context.Background(), ActionEvent, map[string]any{"event": "signup"})
	require.NoError(t, err)

	require.Len(t, rec.records, 1)
	got := rec.records[0]
	assert.NotEmpty(t, got.ID.String())
	assert.Equal(t, ActionEvent, got.Action)
	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, srv.URL+"/event", got.URL)
	assert.Equal(t, http.StatusOK, got.StatusCode)
	assert.Empty(t, got.Error)
	assert.False(t, got.CreatedAt.IsZero())
}

type failingRecorder struct{}

func (failingRecorder) RecordCall(context.Context, CallRecord) error {
	return errors.New("db down")
}

func TestRecorderFailureDoesNotFailCall(t *testing.T) {
	_, srv := newFakeAPI(t, http.StatusOK, `{"ok":1}`)
	c := newTestClient(t, srv.URL, "secret", WithRecorder(failingRecorder{}))

	_, err := c.APIGet(context.Background(), ActionUser, nil)
	assert.NoError(t, err)
}

func TestSchemeSelection(t *testing.T) {
	c := newTestClient(t, "https://api.sailthru.com", "secret")
	assert.True(t, c.Scheme().TLS)
	assert.Equal(t, 443, c.Scheme().Port)

	c = newTestClient(t, "http://api.sailthru.com", "secret")
	assert.False(t, c.Scheme().TLS)
	assert.Equal(t, 80, c.Scheme().Port)

	c = newTestClient(t, "", "secret")
	assert.Equal(t, config.DefaultAPIURL, c.APIURL())
	assert.True(t, c.Scheme().TLS)
}

func TestMalformedSchemePolicy(t *testing.T) {
	c := newTestClient(t, "ftp://api.sailthru.com", "secret")
	assert.Equal(t, "http://api.sailthru.com", c.APIURL())
	assert.False(t, c.Scheme().TLS)

	_, err := New(&config.Config{APIKey: "key", APISecret: "secret", APIURL: "ftp://api.sailthru.com", StrictScheme: true})
	assert.ErrorIs(t, err, ErrUnsupportedScheme)
}

func TestNewRequiresConfig(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}

func TestConcurrentCalls(t *testing.T) {
	api, srv := newFakeAPI(t, http.StatusOK, `{}`)
	c := newTestClient(t, srv.URL, "secret")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.APIGet(context.Background(), ActionUser, map[string]any{"id": "x"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, api.count())
}
