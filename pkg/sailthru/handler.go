package sailthru

// ResponseHandler parses raw response bodies in one wire format. Format is
// sent to the service as the "format" field, so it must name a format the
// service can produce.
type ResponseHandler interface {
	Format() string
	Parse(body []byte) (Value, error)
}

// JSONHandler parses JSON response bodies.
type JSONHandler struct{}

func (JSONHandler) Format() string { return "json" }

func (JSONHandler) Parse(body []byte) (Value, error) {
	v, err := decodeValue(body)
	if err != nil {
		return Value{}, &ParseError{Format: "json", Body: snippet(body), Err: err}
	}
	return v, nil
}
