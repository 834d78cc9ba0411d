//go:build cloudintegration

package source_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/goextract/pkg/source"
	"github.com/3leaps/goextract/test/cloudtest"
)

var pdf = []byte("%PDF-1.4\n%moto\n")

func TestS3InputSource_Moto(t *testing.T) {
	cloudtest.SkipIfUnavailable(t)
	ctx := context.Background()

	bucket := cloudtest.CreateBucket(t, ctx)
	cloudtest.PutDocument(t, ctx, bucket, "inbox/invoice.pdf", pdf, "application/pdf")

	doc, err := source.NewS3InputSource(cloudtest.ClientT(t), bucket, "inbox/invoice.pdf").Open(ctx)
	require.NoError(t, err)
	assert.Equal(t, "invoice.pdf", doc.Filename)
	assert.Equal(t, "application/pdf", doc.MimeType)
	assert.Equal(t, pdf, doc.Bytes)

	_, err = source.NewS3InputSource(cloudtest.ClientT(t), bucket, "inbox/missing.pdf").Open(ctx)
	assert.True(t, source.IsNotFound(err))
}

func TestGlobS3_Moto(t *testing.T) {
	cloudtest.SkipIfUnavailable(t)
	ctx := context.Background()

	bucket := cloudtest.CreateBucket(t, ctx)
	for _, key := range []string{"inbox/a.pdf", "inbox/2025/b.pdf", "inbox/2025/c.png", "other/d.pdf"} {
		cloudtest.PutDocument(t, ctx, bucket, key, pdf, "")
	}

	sources, err := source.GlobS3(ctx, cloudtest.ClientT(t), "s3://"+bucket+"/inbox/**/*.pdf")
	require.NoError(t, err)

	var got []string
	for _, s := range sources {
		got = append(got, s.Describe())
	}
	assert.Equal(t, []string{
		"s3://" + bucket + "/inbox/2025/b.pdf",
		"s3://" + bucket + "/inbox/a.pdf",
	}, got)
}
