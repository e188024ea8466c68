package storage

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e-flux-platform/urlstream/internal/urlstream"
)

type fakeS3API struct {
	mu sync.Mutex

	putCalls int
	lastIn   *s3.PutObjectInput
	lastBody []byte

	putErr error
}

func (f *fakeS3API) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.putCalls++
	f.lastIn = in
	if in.Body != nil {
		b, err := io.ReadAll(in.Body)
		if err != nil {
			return nil, err
		}
		f.lastBody = b
	}
	if f.putErr != nil {
		return nil, f.putErr
	}
	return &s3.PutObjectOutput{}, nil
}

func TestS3_Create(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("single put on close", func(t *testing.T) {
		t.Parallel()

		fake := &fakeS3API{}
		store := newS3WithClient(fake, "bkt", "exports")

		w, err := store.Create(ctx, "2024/11/01.json")
		require.NoError(t, err)
		_, err = io.WriteString(w, "Hell")
		require.NoError(t, err)
		_, err = io.WriteString(w, "esøy")
		require.NoError(t, err)
		assert.Zero(t, fake.putCalls)

		require.NoError(t, w.Close())
		assert.Equal(t, 1, fake.putCalls)
		assert.Equal(t, "bkt", aws.ToString(fake.lastIn.Bucket))
		assert.Equal(t, "exports/2024/11/01.json", aws.ToString(fake.lastIn.Key))
		assert.Equal(t, int64(len("Hellesøy")), aws.ToInt64(fake.lastIn.ContentLength))
		assert.Equal(t, "Hellesøy", string(fake.lastBody))

		assert.ErrorIs(t, w.Close(), urlstream.ErrClosed)
		assert.Equal(t, 1, fake.putCalls)
	})

	t.Run("abort sends nothing", func(t *testing.T) {
		t.Parallel()

		fake := &fakeS3API{}
		w, err := newS3WithClient(fake, "bkt", "").Create(ctx, "x")
		require.NoError(t, err)
		_, err = io.WriteString(w, "partial")
		require.NoError(t, err)

		aborter, ok := w.(interface{ Abort() error })
		require.True(t, ok)
		require.NoError(t, aborter.Abort())
		assert.ErrorIs(t, w.Close(), urlstream.ErrClosed)
		assert.Zero(t, fake.putCalls)
	})

	t.Run("missing bucket is not found", func(t *testing.T) {
		t.Parallel()

		fake := &fakeS3API{putErr: &smithy.GenericAPIError{Code: "NoSuchBucket", Message: "bucket does not exist"}}
		w, err := newS3WithClient(fake, "bkt", "").Create(ctx, "x")
		require.NoError(t, err)

		assert.ErrorIs(t, w.Close(), urlstream.ErrNotFound)
	})

	t.Run("other failures are passed through", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("boom")
		w, err := newS3WithClient(&fakeS3API{putErr: boom}, "bkt", "").Create(ctx, "x")
		require.NoError(t, err)

		err = w.Close()
		assert.ErrorIs(t, err, boom)
		assert.NotErrorIs(t, err, urlstream.ErrNotFound)
	})
}
