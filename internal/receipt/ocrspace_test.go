package receipt

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testReceiptFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "receipt.png")
	require.NoError(t, os.WriteFile(path, pngHeader, 0644))
	return path
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *OCRClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOCRClient(OCRConfig{APIKey: "test-key", APIURL: srv.URL}, zap.NewNop())
}

func ocrBody(text string) string {
	b, _ := json.Marshal(map[string]any{
		"ParsedResults":         []map[string]string{{"ParsedText": text}},
		"IsErroredOnProcessing": false,
		"OCRExitCode":           1,
	})
	return string(b)
}

func TestExtractTextEngineTwoFirst(t *testing.T) {
	var engines []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		engines = append(engines, r.FormValue("OCREngine"))
		assert.Equal(t, "test-key", r.FormValue("apikey"))
		assert.Equal(t, "eng", r.FormValue("language"))
		assert.Equal(t, "true", r.FormValue("isTable"))
		_, _, err := r.FormFile("file")
		assert.NoError(t, err)
		w.Write([]byte(ocrBody("TOTAL RM25.00")))
	})

	got, err := client.ExtractText(context.Background(), testReceiptFile(t), "")

	require.NoError(t, err)
	assert.Equal(t, "TOTAL RM25.00", got.Text)
	assert.Equal(t, "2", got.Engine)
	assert.Equal(t, []string{"2"}, engines, "engine 1 must not be tried when engine 2 succeeds")
}

func TestExtractTextFallsBackToEngineOne(t *testing.T) {
	var engines []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		engine := r.FormValue("OCREngine")
		engines = append(engines, engine)
		if engine == "2" {
			w.Write([]byte(`{"IsErroredOnProcessing":true,"ErrorMessage":["engine 2 busy"],"OCRExitCode":3}`))
			return
		}
		w.Write([]byte(ocrBody("RM10.00")))
	})

	got, err := client.ExtractText(context.Background(), testReceiptFile(t), "")

	require.NoError(t, err)
	assert.Equal(t, "1", got.Engine)
	assert.Equal(t, []string{"2", "1"}, engines)
}

func TestExtractTextBothEnginesFail(t *testing.T) {
	calls := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.ExtractText(context.Background(), testReceiptFile(t), "")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProviderTransport)
	assert.Equal(t, 2, calls, "exactly one fallback, no further retries")
}

func TestExtractTextProviderProcessingError(t *testing.T) {
	// ErrorMessage as a plain string instead of an array must also decode.
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"IsErroredOnProcessing":true,"ErrorMessage":"file unreadable","OCRExitCode":4}`))
	})

	_, err := client.ExtractText(context.Background(), testReceiptFile(t), "")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProviderProcessing)
	assert.Contains(t, err.Error(), "file unreadable")
}

func TestExtractTextMalformedResponses(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{not json`},
		{"missing parsed results", `{"IsErroredOnProcessing":false}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			})

			_, err := client.ExtractText(context.Background(), testReceiptFile(t), "")

			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedResponse)
		})
	}
}

func TestExtractTextConcatenatesFragments(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ParsedResults":[{"ParsedText":"page one "},{"ParsedText":"page two"}],"IsErroredOnProcessing":false}`))
	})

	got, err := client.ExtractText(context.Background(), testReceiptFile(t), "")

	require.NoError(t, err)
	assert.Equal(t, "page one \npage two", got.Text)
}

func TestExtractTextFileTypeHint(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "png", r.FormValue("filetype"))
		w.Write([]byte(ocrBody("RM5.00")))
	})

	_, err := client.ExtractText(context.Background(), testReceiptFile(t), "png")

	require.NoError(t, err)
}

func TestExtractTextUnconfigured(t *testing.T) {
	client := NewOCRClient(OCRConfig{}, zap.NewNop())

	_, err := client.ExtractText(context.Background(), testReceiptFile(t), "")

	assert.ErrorIs(t, err, ErrUnconfigured)
}
