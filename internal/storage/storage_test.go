package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	inputs []*s3.PutObjectInput
	bodies [][]byte
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.inputs = append(f.inputs, in)
	f.bodies = append(f.bodies, body)
	return &s3.PutObjectOutput{}, nil
}

func TestUploaderKeyLayout(t *testing.T) {
	store := &fakeS3{}
	u := newUploader(Config{Bucket: "b", PublicBaseURL: "https://cdn.example.com/"}, store)
	u.now = func() time.Time { return time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC) }

	url, err := u.Upload(context.Background(), "tr_0123456789abcdef", []byte("img"), "image/png")
	require.NoError(t, err)

	require.Len(t, store.inputs, 1)
	key := aws.ToString(store.inputs[0].Key)
	assert.True(t, strings.HasPrefix(key, "listings/tr_0123456789abcdef/2026/03/"), key)
	assert.True(t, strings.HasSuffix(key, ".png"), key)
	assert.Equal(t, "https://cdn.example.com/"+key, url)
	assert.Equal(t, "b", aws.ToString(store.inputs[0].Bucket))

	_, err = u.Upload(context.Background(), "", nil, "")
	assert.Error(t, err)
}

func TestNewUploaderValidates(t *testing.T) {
	_, err := NewUploader(Config{})
	assert.EqualError(t, err, "s3 bucket is required")
	_, err = NewUploader(Config{Bucket: "b", Region: "eu-south-1"})
	assert.EqualError(t, err, "s3 credentials are required")
}

func TestPhotoMirrorKeepsOriginalOnFailure(t *testing.T) {
	src := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.jpg":
			w.Header().Set("Content-Type", "image/jpeg")
			_, _ = w.Write([]byte("jpeg-bytes"))
		case "/page.html":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<html></html>"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer src.Close()

	store := &fakeS3{}
	u := newUploader(Config{Bucket: "b", PublicBaseURL: "https://cdn.example.com"}, store)
	m := newPhotoMirror(u, time.Second, "", nil)

	out := m.Mirror(context.Background(), "dc_x", []string{src.URL + "/ok.jpg", src.URL + "/page.html", src.URL + "/missing.jpg"})
	require.Len(t, out, 3)
	assert.True(t, strings.HasPrefix(out[0], "https://cdn.example.com/listings/dc_x/"), out[0])
	assert.Equal(t, src.URL+"/page.html", out[1])
	assert.Equal(t, src.URL+"/missing.jpg", out[2])
	require.Len(t, store.bodies, 1)
	assert.Equal(t, []byte("jpeg-bytes"), store.bodies[0])
}
