package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Rorqualx/captchagate/internal/types"
)

// BenchmarkJSONDecodeWithPool measures request parsing using pooled buffers.
func BenchmarkJSONDecodeWithPool(b *testing.B) {
	body, _ := json.Marshal(types.ProcessRequest{URL: "https://www.example.com/dp/B000", HTML: challengePage})
	reqBody := string(body)
	reader := strings.NewReader(reqBody)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		reader.Reset(reqBody)

		buf := getBuffer()
		_, _ = io.Copy(buf, reader)
		var req types.ProcessRequest
		if err := json.Unmarshal(buf.Bytes(), &req); err != nil {
			b.Fatal(err)
		}
		putBuffer(buf)
	}
}

// BenchmarkProcessChallenge measures a full challenge cycle through the router
// with an instant resolver.
func BenchmarkProcessChallenge(b *testing.B) {
	rt := testRouter("ABCDEF", nil)
	body, _ := json.Marshal(types.ProcessRequest{URL: "https://www.example.com/dp/B000", HTML: challengePage})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/process", strings.NewReader(string(body)))
		w := httptest.NewRecorder()
		rt.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			b.Fatalf("status %d", w.Code)
		}
	}
}

// BenchmarkProcessPass measures the pass-through path for ordinary pages.
func BenchmarkProcessPass(b *testing.B) {
	rt := testRouter("", nil)
	html := "<html><body>" + strings.Repeat("<p>result</p>", 500) + "</body></html>"
	body, _ := json.Marshal(types.ProcessRequest{URL: "https://www.example.com/s?k=x", HTML: html})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/process", strings.NewReader(string(body)))
		w := httptest.NewRecorder()
		rt.ServeHTTP(w, req)
	}
}
