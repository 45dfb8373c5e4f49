package sailthru

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
)

// Payload field names.
const (
	FieldAPIKey    = "api_key"
	FieldFormat    = "format"
	FieldJSON      = "json"
	FieldSignature = "sig"
)

// SignatureHash returns the hex MD5 of secret followed by every value of
// params (except sig) in ascending byte order. The digest must match the
// service's own computation, so the hash function is fixed.
func SignatureHash(secret string, params map[string]string) string {
	values := make([]string, 0, len(params))
	for k, v := range params {
		if k == FieldSignature {
			continue
		}
		values = append(values, v)
	}
	sort.Strings(values)

	var data strings.Builder
	data.WriteString(secret)
	for _, v := range values {
		data.WriteString(v)
	}

	sum := md5.Sum([]byte(data.String()))
	return hex.EncodeToString(sum[:])
}

// buildPayload assembles the signed form fields for one request.
func (c *Client) buildPayload(jsonPayload string) map[string]string {
	params := map[string]string{
		FieldAPIKey: c.apiKey,
		FieldFormat: c.handler.Format(),
		FieldJSON:   jsonPayload,
	}
	params[FieldSignature] = SignatureHash(c.apiSecret, params)
	return params
}

// encodeJSON serializes call parameters into their canonical form: objects
// have sorted keys at every level and number literals are kept as written,
// so a typed Params value and the equivalent map encode identically.
// A nil input encodes as an empty object.
func encodeJSON(data any) (string, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	if bytes.Equal(raw, []byte("null")) {
		return "{}", nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return "", err
	}

	canonical, err := json.Marshal(generic)
	if err != nil {
		return "", err
	}
	return string(canonical), nil
}
