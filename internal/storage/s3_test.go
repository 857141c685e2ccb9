package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	method string
	path   string
	body   string
}

func newTestService(t *testing.T, handler http.HandlerFunc) (*S3Service, *[]recordedRequest) {
	t.Helper()
	var (
		mu       sync.Mutex
		requests []recordedRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		requests = append(requests, recordedRequest{method: r.Method, path: r.URL.Path, body: string(body)})
		mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	client := s3.NewFromConfig(aws.Config{
		Region:      "us-east-1",
		Credentials: credentials.NewStaticCredentialsProvider("key", "secret", ""),
	}, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(srv.URL)
		o.UsePathStyle = true
	})
	return NewS3Service(client), &requests
}

func TestPutObjectUploadsToBucketKey(t *testing.T) {
	svc, requests := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	})

	location, err := svc.PutObject(context.Background(), strings.NewReader(`{"id":1}`+"\n"), PutOptions{
		Bucket:      "journals",
		Key:         "exports/user-1/abc.jsonl",
		ContentType: "application/x-ndjson",
	})
	require.NoError(t, err)
	assert.Equal(t, "s3://journals/exports/user-1/abc.jsonl", location)

	require.Len(t, *requests, 1)
	assert.Equal(t, http.MethodPut, (*requests)[0].method)
	assert.Equal(t, "/journals/exports/user-1/abc.jsonl", (*requests)[0].path)
}

func TestDeleteObject(t *testing.T) {
	svc, requests := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, svc.DeleteObject(context.Background(), "journals", "exports/user-1/abc.jsonl"))
	require.Len(t, *requests, 1)
	assert.Equal(t, http.MethodDelete, (*requests)[0].method)
}

func TestGetObjectURLIsPresigned(t *testing.T) {
	svc, requests := newTestService(t, func(w http.ResponseWriter, r *http.Request) {})

	url, err := svc.GetObjectURL(context.Background(), "journals", "exports/user-1/abc.jsonl", 5*time.Minute)
	require.NoError(t, err)
	assert.Contains(t, url, "/journals/exports/user-1/abc.jsonl")
	assert.Contains(t, url, "X-Amz-Signature=")
	assert.Contains(t, url, "X-Amz-Expires=300")
	assert.Empty(t, *requests)
}

func TestValidation(t *testing.T) {
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {})
	ctx := context.Background()

	_, err := svc.PutObject(ctx, strings.NewReader("x"), PutOptions{Key: "k"})
	assert.Error(t, err)
	_, err = svc.PutObject(ctx, strings.NewReader("x"), PutOptions{Bucket: "b"})
	assert.Error(t, err)
	assert.Error(t, svc.DeletePrefix(ctx, "b", "  "))
}

func TestDeletePrefixRemovesListedKeys(t *testing.T) {
	svc, requests := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		if r.Method == http.MethodGet {
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?>
<ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">
<Name>journals</Name><Prefix>exports/user-1/</Prefix><KeyCount>2</KeyCount><IsTruncated>false</IsTruncated>
<Contents><Key>exports/user-1/a.jsonl</Key><Size>10</Size></Contents>
<Contents><Key>exports/user-1/b.jsonl</Key><Size>12</Size></Contents>
</ListBucketResult>`)
			return
		}
		_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?>
<DeleteResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/"></DeleteResult>`)
	})

	require.NoError(t, svc.DeletePrefix(context.Background(), "journals", "exports/user-1/"))
	require.Len(t, *requests, 2)
	assert.Equal(t, http.MethodGet, (*requests)[0].method)
	assert.Equal(t, http.MethodPost, (*requests)[1].method)
	assert.Contains(t, (*requests)[1].body, "exports/user-1/a.jsonl")
	assert.Contains(t, (*requests)[1].body, "exports/user-1/b.jsonl")
}
