package proto

import (
	"encoding/base64"
	"net/http"
	"sort"
	"strings"
)

// The body of a normal (non-heartbeat) agent response is a textual envelope
// carrying the upstream HTTP headers and the raw bytes base64-encoded, so
// binary payloads survive the string-typed Response body:
//
//	Headers:
//	<Name>: <Value>
//	...
//
//	Body-Base64:
//	<base64>
const (
	envelopePrefix = "Headers:\n"
	envelopeMarker = "\nBody-Base64:\n"
)

// EncodeEnvelope builds the response envelope from upstream headers and raw
// body bytes. Header keys are emitted in sorted order, one line per value.
func EncodeEnvelope(headers http.Header, body []byte) string {
	var sb strings.Builder
	sb.WriteString(envelopePrefix)

	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		for _, v := range headers[k] {
			sb.WriteString(k)
			sb.WriteString(": ")
			sb.WriteString(v)
			sb.WriteString("\n")
		}
	}

	sb.WriteString(envelopeMarker)
	sb.WriteString(base64.StdEncoding.EncodeToString(body))
	return sb.String()
}

// DecodeEnvelope parses an agent response body. It returns the upstream
// headers, the decoded raw bytes, and true when the body is a well-formed
// envelope. Any body that is not one (no prefix, no marker, broken base64)
// yields false and must be relayed verbatim by the caller.
func DecodeEnvelope(body string) (http.Header, []byte, bool) {
	if !strings.HasPrefix(body, envelopePrefix) {
		return nil, nil, false
	}

	rest := body[len(envelopePrefix):]
	idx := strings.Index(rest, envelopeMarker)
	if idx < 0 {
		return nil, nil, false
	}

	headers := http.Header{}
	for _, line := range strings.Split(rest[:idx], "\n") {
		if line == "" {
			continue
		}
		// Split on the first ": "; lines without it are not headers.
		sep := strings.Index(line, ": ")
		if sep < 0 {
			continue
		}
		headers.Add(line[:sep], line[sep+2:])
	}

	encoded := strings.TrimSpace(rest[idx+len(envelopeMarker):])
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, nil, false
	}

	return headers, raw, true
}
