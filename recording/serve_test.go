package recording

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vms-recordings/database"
)

func TestParseRange(t *testing.T) {
	tests := []struct {
		header string
		size   int64
		want   ByteRange
		ok     bool
	}{
		{"bytes=0-99", 1000, ByteRange{0, 99}, true},
		{"bytes=500-", 1000, ByteRange{500, 999}, true},
		{"bytes=999-999", 1000, ByteRange{999, 999}, true},
		{"bytes=990-5000", 1000, ByteRange{990, 999}, true},
		{" bytes=10-20 ", 1000, ByteRange{10, 20}, true},
		{"bytes=0-0", 1, ByteRange{0, 0}, true},

		{"bytes=2000-3000", 1000, ByteRange{}, false},
		{"bytes=1000-", 1000, ByteRange{}, false},
		{"bytes=100-50", 1000, ByteRange{}, false},
		{"bytes=-500", 1000, ByteRange{}, false},
		{"bytes=abc-10", 1000, ByteRange{}, false},
		{"bytes=10-xyz", 1000, ByteRange{}, false},
		{"bytes=-1-5", 1000, ByteRange{}, false},
		{"bytes=0-10,20-30", 1000, ByteRange{}, false},
		{"bytes=+5-+10", 1000, ByteRange{}, false},
		{"bytes=+5-10", 1000, ByteRange{}, false},
		{"bytes=5-+10", 1000, ByteRange{}, false},
		{"bytes=0x10-20", 1000, ByteRange{}, false},
		{"bytes=10", 1000, ByteRange{}, false},
		{"items=0-10", 1000, ByteRange{}, false},
		{"0-10", 1000, ByteRange{}, false},
		{"bytes=0-0", 0, ByteRange{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			got, err := ParseRange(tt.header, tt.size)
			if !tt.ok {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrRangeInvalid)
				var rangeErr *RangeError
				require.ErrorAs(t, err, &rangeErr)
				assert.Equal(t, tt.size, rangeErr.Size)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want.End-tt.want.Start+1, got.Length())
		})
	}
}

type serveFixture struct {
	server  *FileServer
	store   *database.SQLiteDB
	payload []byte
	path    string
}

func newServeFixture(t *testing.T) *serveFixture {
	t.Helper()
	env := newTestEnv(t)
	ctx := context.Background()

	payload := make([]byte, 1000)
	for i := range payload {
		payload[i] = byte(i % 251)
	}
	path := writeVideo(t, env.root, "cam1", "cam1_20251020_143025.mp4")
	require.NoError(t, os.WriteFile(path, payload, 0644))

	result, err := env.sync.ScanAndSync(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, result.Synced)

	return &serveFixture{
		server:  NewFileServer(env.store, "video/mp4", nil),
		store:   env.store,
		payload: payload,
		path:    path,
	}
}

func (f *serveFixture) recordingID(t *testing.T) string {
	t.Helper()
	recs, _, err := f.store.ListRecordings(context.Background(), database.RecordingFilter{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	return recs[0].ID
}

func TestServeFullFile(t *testing.T) {
	f := newServeFixture(t)
	w := httptest.NewRecorder()

	err := f.server.Serve(context.Background(), w, f.recordingID(t), "", Inline)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1000", w.Header().Get("Content-Length"))
	assert.Equal(t, "bytes", w.Header().Get("Accept-Ranges"))
	assert.Equal(t, "video/mp4", w.Header().Get("Content-Type"))
	assert.Empty(t, w.Header().Get("Content-Range"))
	assert.Empty(t, w.Header().Get("Content-Disposition"))
	assert.Equal(t, f.payload, w.Body.Bytes())
}

func TestServeRange(t *testing.T) {
	f := newServeFixture(t)
	id := f.recordingID(t)

	tests := []struct {
		header       string
		contentRange string
		start, end   int
	}{
		{"bytes=0-99", "bytes 0-99/1000", 0, 99},
		{"bytes=900-", "bytes 900-999/1000", 900, 999},
		{"bytes=950-5000", "bytes 950-999/1000", 950, 999},
		{"bytes=999-999", "bytes 999-999/1000", 999, 999},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			w := httptest.NewRecorder()
			require.NoError(t, f.server.Serve(context.Background(), w, id, tt.header, Inline))

			assert.Equal(t, http.StatusPartialContent, w.Code)
			assert.Equal(t, tt.contentRange, w.Header().Get("Content-Range"))
			assert.Equal(t, "bytes", w.Header().Get("Accept-Ranges"))
			want := f.payload[tt.start : tt.end+1]
			assert.Equal(t, len(want), w.Body.Len())
			assert.Equal(t, want, w.Body.Bytes())
		})
	}
}

func TestServeRejectsBadRange(t *testing.T) {
	f := newServeFixture(t)
	w := httptest.NewRecorder()

	err := f.server.Serve(context.Background(), w, f.recordingID(t), "bytes=2000-3000", Inline)
	assert.ErrorIs(t, err, ErrRangeInvalid)
	assert.Zero(t, w.Body.Len(), "nothing may be written for a rejected range")
	assert.Empty(t, w.Header().Get("Content-Range"))
}

func TestServeAttachment(t *testing.T) {
	f := newServeFixture(t)
	w := httptest.NewRecorder()

	require.NoError(t, f.server.Serve(context.Background(), w, f.recordingID(t), "bytes=0-9", Attachment))
	assert.Equal(t, http.StatusPartialContent, w.Code)
	assert.Equal(t, `attachment; filename="cam1_20251020_143025.mp4"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "10", w.Header().Get("Content-Length"))
	assert.True(t, bytes.Equal(f.payload[:10], w.Body.Bytes()))
}

func TestServeNotFound(t *testing.T) {
	f := newServeFixture(t)

	t.Run("unknown id", func(t *testing.T) {
		err := f.server.Serve(context.Background(), httptest.NewRecorder(), "missing", "", Inline)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("file removed from disk", func(t *testing.T) {
		id := f.recordingID(t)
		require.NoError(t, os.Remove(f.path))
		w := httptest.NewRecorder()
		err := f.server.Serve(context.Background(), w, id, "bytes=0-1", Inline)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Zero(t, w.Body.Len())
	})
}

func TestServeStoreError(t *testing.T) {
	storeErr := errors.New("connection reset")
	server := NewFileServer(&getErrStore{err: storeErr}, "", nil)
	err := server.Serve(context.Background(), httptest.NewRecorder(), "id", "", Inline)
	assert.ErrorIs(t, err, storeErr)
}

type getErrStore struct {
	database.CatalogStore
	err error
}

func (s *getErrStore) GetRecording(ctx context.Context, id string) (*database.Recording, error) {
	return nil, s.err
}

func TestAttachmentHeaderEscapes(t *testing.T) {
	assert.Equal(t, `attachment; filename="a\"b.mp4"`, attachmentHeader(`a"b.mp4`))
	assert.Equal(t, `attachment; filename="ab.mp4"`, attachmentHeader("a\r\nb.mp4"))
}

func TestUnsatisfiedRangeHeader(t *testing.T) {
	assert.Equal(t, "bytes */1000", UnsatisfiedRangeHeader(1000))
}
