package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// NewMockForTests returns a *Store whose SDK client talks to an in-memory
// transport instead of the network. It covers exactly the calls the blob
// facade issues: Head, Put, Get, Delete and ListObjectsV2.
func NewMockForTests() *Store {
	transport := &fakeS3{objects: make(map[string]fakeObject)}
	cfg, _ := config.LoadDefaultConfig(context.Background(),
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("AKIA", "SECRET", "")),
	)
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.HTTPClient = &http.Client{Transport: transport}
		o.UsePathStyle = true
		o.BaseEndpoint = aws.String("https://mock.s3.local")
	})
	return &Store{client: client, bucket: "mock-bucket", presign: s3.NewPresignClient(client)}
}

type fakeObject struct {
	data        []byte
	contentType string
}

type fakeS3 struct{ objects map[string]fakeObject }

func (f *fakeS3) RoundTrip(req *http.Request) (*http.Response, error) {
	// Path style puts the bucket first: /<bucket>/<key...>.
	key := ""
	if parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2); len(parts) == 2 {
		key = parts[1]
	}
	switch {
	case req.Method == http.MethodGet && req.URL.Query().Get("list-type") == "2":
		return f.list(req.URL.Query().Get("prefix")), nil
	case req.Method == http.MethodHead:
		return f.head(key), nil
	case req.Method == http.MethodPut:
		return f.put(key, req), nil
	case req.Method == http.MethodGet:
		return f.get(key), nil
	case req.Method == http.MethodDelete:
		delete(f.objects, key)
		return respond(http.StatusNoContent, nil, nil), nil
	}
	return respond(http.StatusNotImplemented, nil, nil), nil
}

func (f *fakeS3) list(prefix string) *http.Response {
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	var xml bytes.Buffer
	xml.WriteString(`<?xml version="1.0"?><ListBucketResult><IsTruncated>false</IsTruncated>`)
	for _, k := range keys {
		fmt.Fprintf(&xml, "<Contents><Key>%s</Key><Size>%d</Size><LastModified>2024-01-01T00:00:00Z</LastModified></Contents>", k, len(f.objects[k].data))
	}
	xml.WriteString(`</ListBucketResult>`)
	return respond(http.StatusOK, http.Header{"Content-Type": {"application/xml"}}, xml.Bytes())
}

func (f *fakeS3) head(key string) *http.Response {
	obj, ok := f.objects[key]
	if !ok {
		return respond(http.StatusNotFound, nil, nil)
	}
	return respond(http.StatusOK, http.Header{
		"Content-Length": {strconv.Itoa(len(obj.data))},
		"Content-Type":   {obj.contentType},
		"ETag":           {`"etag123"`},
		"Last-Modified":  {time.Now().UTC().Format(http.TimeFormat)},
	}, nil)
}

func (f *fakeS3) put(key string, req *http.Request) *http.Response {
	body, _ := io.ReadAll(req.Body)
	if payload, ok := unchunk(body); ok {
		body = payload
	}
	// First write wins, matching the store's create-only contract.
	if _, exists := f.objects[key]; !exists {
		f.objects[key] = fakeObject{data: body, contentType: req.Header.Get("Content-Type")}
	}
	return respond(http.StatusOK, http.Header{"ETag": {`"etag"`}}, nil)
}

func (f *fakeS3) get(key string) *http.Response {
	obj, ok := f.objects[key]
	if !ok {
		return respond(http.StatusNotFound, nil, nil)
	}
	return respond(http.StatusOK, http.Header{
		"Content-Length": {strconv.Itoa(len(obj.data))},
		"Content-Type":   {obj.contentType},
		"ETag":           {`"etag"`},
		"Last-Modified":  {time.Now().UTC().Format(http.TimeFormat)},
	}, obj.data)
}

func respond(status int, header http.Header, body []byte) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{StatusCode: status, Header: header, Body: io.NopCloser(bytes.NewReader(body))}
}

// unchunk strips the aws-chunked framing the SDK applies to streamed puts.
// Payloads in tests fit a single chunk: <size hex>\r\n<body>\r\n0\r\n...
func unchunk(b []byte) ([]byte, bool) {
	parts := strings.Split(string(b), "\r\n")
	if len(parts) < 3 || parts[2] != "0" {
		return nil, false
	}
	size, err := strconv.ParseInt(parts[0], 16, 64)
	if err != nil || int64(len(parts[1])) != size {
		return nil, false
	}
	return []byte(parts[1]), true
}
