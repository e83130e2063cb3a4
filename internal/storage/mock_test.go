package storage

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const mockEndpoint = "https://mock.s3.local"

// newMockStorage returns an S3Storage whose client talks to an in-memory
// fake over a custom transport. Only the operations used here are served.
func newMockStorage() (*S3Storage, *mockS3) {
	rt := &mockS3{objects: map[string]mockObject{}}
	cfg, _ := config.LoadDefaultConfig(context.Background(),
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("AKIA", "SECRET", "")),
	)
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.HTTPClient = &http.Client{Transport: rt}
		o.UsePathStyle = true
		o.BaseEndpoint = aws.String(mockEndpoint)
	})

	return newS3Storage(client, S3Options{Region: "us-east-1", Endpoint: mockEndpoint, PathStyle: true}), rt
}

type mockObject struct {
	body        []byte
	contentType string
}

type mockS3 struct {
	mu      sync.Mutex
	objects map[string]mockObject // "bucket/key"
	failPut bool
}

func (m *mockS3) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.objects))
	for k := range m.objects {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (m *mockS3) RoundTrip(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	bucket, key, _ := strings.Cut(strings.TrimPrefix(req.URL.Path, "/"), "/")
	query := req.URL.Query()

	var body []byte
	if req.Body != nil {
		body, _ = io.ReadAll(req.Body)
		if strings.Contains(req.Header.Get("Content-Encoding"), "aws-chunked") || req.Header.Get("X-Amz-Decoded-Content-Length") != "" {
			if decoded, ok := decodeAWSChunked(body); ok {
				body = decoded
			}
		}
	}

	switch {
	case req.Method == http.MethodPut:
		if m.failPut {
			return respond(http.StatusBadRequest, "<Error><Code>InvalidRequest</Code><Message>boom</Message></Error>"), nil
		}
		m.objects[bucket+"/"+key] = mockObject{body: body, contentType: req.Header.Get("Content-Type")}
		return respond(http.StatusOK, ""), nil

	case req.Method == http.MethodPost && query.Has("delete"):
		var payload struct {
			Objects []struct {
				Key string `xml:"Key"`
			} `xml:"Object"`
		}
		if err := xml.Unmarshal(body, &payload); err != nil {
			return respond(http.StatusBadRequest, "<Error><Code>MalformedXML</Code></Error>"), nil
		}
		for _, o := range payload.Objects {
			delete(m.objects, bucket+"/"+o.Key)
		}
		return respond(http.StatusOK, `<?xml version="1.0" encoding="UTF-8"?><DeleteResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/"></DeleteResult>`), nil

	case req.Method == http.MethodGet && query.Get("list-type") == "2":
		prefix := query.Get("prefix")
		var keys []string
		for k := range m.objects {
			b, objectKey, _ := strings.Cut(k, "/")
			if b == bucket && strings.HasPrefix(objectKey, prefix) {
				keys = append(keys, objectKey)
			}
		}
		sort.Strings(keys)

		var b strings.Builder
		b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/"><IsTruncated>false</IsTruncated>`)
		for _, k := range keys {
			fmt.Fprintf(&b, "<Contents><Key>%s</Key><Size>%d</Size><LastModified>2024-01-01T00:00:00Z</LastModified></Contents>", k, len(m.objects[bucket+"/"+k].body))
		}
		b.WriteString("</ListBucketResult>")
		return respond(http.StatusOK, b.String()), nil
	}

	return respond(http.StatusNotImplemented, ""), nil
}

func respond(status int, body string) *http.Response {
	header := http.Header{}
	if body != "" {
		header.Set("Content-Type", "application/xml")
	}
	return &http.Response{
		StatusCode: status,
		Header:     header,
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
	}
}

// decodeAWSChunked strips aws-chunked framing: <hex>[;ext]\r\n<data>\r\n ... 0\r\n<trailers>
func decodeAWSChunked(b []byte) ([]byte, bool) {
	var out []byte
	for {
		line, rest, found := bytes.Cut(b, []byte("\r\n"))
		if !found {
			return nil, false
		}
		sizeHex, _, _ := strings.Cut(string(line), ";")
		size, err := strconv.ParseInt(strings.TrimSpace(sizeHex), 16, 64)
		if err != nil {
			return nil, false
		}
		if size == 0 {
			return out, true
		}
		if int64(len(rest)) < size {
			return nil, false
		}
		out = append(out, rest[:size]...)
		b = bytes.TrimPrefix(rest[size:], []byte("\r\n"))
	}
}
