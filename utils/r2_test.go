package utils

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPutter struct {
	in  *s3.PutObjectInput
	err error
}

func (p *stubPutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	p.in = in
	return &s3.PutObjectOutput{}, p.err
}

func TestR2Store_PutBytes(t *testing.T) {
	putter := &stubPutter{}
	store := &R2Store{Client: putter, Bucket: "archive", CDNBaseURL: "https://cdn.example.com"}

	url, err := store.PutBytes(context.Background(), "matches/a.json", []byte(`{}`), "application/json")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/matches/a.json", url)
	assert.Equal(t, "archive", aws.ToString(putter.in.Bucket))
	assert.Equal(t, "matches/a.json", aws.ToString(putter.in.Key))
	assert.Equal(t, "application/json", aws.ToString(putter.in.ContentType))

	putter.err = errors.New("boom")
	_, err = store.PutBytes(context.Background(), "k", nil, "text/plain")
	assert.ErrorContains(t, err, "boom")
}
