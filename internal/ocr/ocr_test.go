package ocr

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/surveillance-cli/internal/config"
	"github.com/sells-group/surveillance-cli/internal/resilience"
)

func TestNewExtractor(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.OCRConfig
		want    any
		wantErr string
	}{
		{"default is html", config.OCRConfig{}, &HTMLConverter{}, ""},
		{"html", config.OCRConfig{Provider: "html"}, &HTMLConverter{}, ""},
		{"local", config.OCRConfig{Provider: "local", PdfToTextPath: "/usr/bin/pdftotext"}, &PdfToText{}, ""},
		{"mineru", config.OCRConfig{Provider: "mineru", ServerURL: "http://localhost:8000"}, &MinerU{}, ""},
		{"mineru without server", config.OCRConfig{Provider: "mineru"}, nil, "requires ocr.server_url"},
		{"unknown", config.OCRConfig{Provider: "mistral"}, nil, `unknown provider "mistral"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ext, err := NewExtractor(tt.cfg)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, ext)
		})
	}
}

func TestNeedsPDF(t *testing.T) {
	assert.True(t, NeedsPDF("mineru"))
	assert.True(t, NeedsPDF("local"))
	assert.False(t, NeedsPDF("html"))
	assert.False(t, NeedsPDF(""))
}

func TestPdfToText_BinPath(t *testing.T) {
	assert.Equal(t, "pdftotext", NewPdfToText("").binPath)
	assert.Equal(t, "/custom/pdftotext", NewPdfToText("/custom/pdftotext").binPath)
}

func TestPdfToText_BinaryNotFound(t *testing.T) {
	_, err := NewPdfToText("/nonexistent/pdftotext").ExtractText(context.Background(), "/tmp/test.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ocr: pdftotext")
}

func fakePdfToText(t *testing.T, script string) string {
	t.Helper()
	bin := filepath.Join(t.TempDir(), "pdftotext")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\n"+script), 0o755))
	return bin
}

func TestPdfToText_Success(t *testing.T) {
	bin := fakePdfToText(t, "echo \"$@\"\n"+
		"echo '表1 2025年第6周哨点医院监测结果'\n"+
		"echo '   病原体        ILI阳性率(%)     SARI阳性率(%)'\n"+
		"echo '   新型冠状病毒      2.8              1.0'\n")

	text, err := NewPdfToText(bin).ExtractText(context.Background(), "/tmp/bulletin.pdf")
	require.NoError(t, err)
	assert.Contains(t, text, "-layout -enc UTF-8 /tmp/bulletin.pdf -")
	assert.Contains(t, text, "表1 2025年第6周哨点医院监测结果\n")
	assert.Contains(t, text, "| 病原体 | ILI阳性率(%) | SARI阳性率(%) |")
	assert.Contains(t, text, "| 新型冠状病毒 | 2.8 | 1.0 |")
}

func TestPdfToText_NoTextLayer(t *testing.T) {
	bin := fakePdfToText(t, "printf '\\f\\n  \\f'\n")

	_, err := NewPdfToText(bin).ExtractText(context.Background(), "/tmp/scan.pdf")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNoTextLayer))
}

func TestLayoutToPipes(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"prose kept", "本周南方省份流感活动上升。", "本周南方省份流感活动上升。"},
		{"two columns kept", "监测周期    2025-02-03", "监测周期    2025-02-03"},
		{"three columns", "  鼻病毒    4.1   3.2  ", "| 鼻病毒 | 4.1 | 3.2 |"},
		{"single spaces stay in a cell", "流感 病毒  1.5  2.0", "| 流感 病毒 | 1.5 | 2.0 |"},
		{"existing pipes kept", "| a | b | c |", "| a | b | c |"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, layoutToPipes(tt.in))
		})
	}
}

func writePDF(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "t20250212_1.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 bulletin"), 0o644))
	return path
}

func testMinerU(url string) *MinerU {
	return NewMinerU(MinerUOptions{
		ServerURL: url + "/",
		Timeout:   5 * time.Second,
		Retry: resilience.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     2 * time.Millisecond,
		},
	})
}

func TestMinerU_ExtractText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/file_parse", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))

		assert.Equal(t, []string{"ch"}, r.MultipartForm.Value["lang_list"])
		assert.Equal(t, []string{"pipeline"}, r.MultipartForm.Value["backend"])
		assert.Equal(t, []string{"true"}, r.MultipartForm.Value["return_md"])

		files := r.MultipartForm.File["files"]
		require.Len(t, files, 1)
		assert.Equal(t, "t20250212_1.pdf", files[0].Filename)
		f, err := files[0].Open()
		require.NoError(t, err)
		data, _ := io.ReadAll(f)
		assert.Equal(t, "%PDF-1.4 bulletin", string(data))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"backend":"pipeline","results":{"t20250212_1":{"md_content":"# 表1 病原体\n| 病原体 | 第6周 |"}}}`))
	}))
	defer srv.Close()

	md, err := testMinerU(srv.URL).ExtractText(context.Background(), writePDF(t))
	require.NoError(t, err)
	assert.Equal(t, "# 表1 病原体\n| 病原体 | 第6周 |", md)
}

func TestMinerU_PlainMarkdownResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		_, _ = w.Write([]byte("2025年第6周"))
	}))
	defer srv.Close()

	md, err := testMinerU(srv.URL).ExtractText(context.Background(), writePDF(t))
	require.NoError(t, err)
	assert.Equal(t, "2025年第6周", md)
}

func TestMinerU_RetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":0,"data":{"md":"ok"}}`))
	}))
	defer srv.Close()

	md, err := testMinerU(srv.URL).ExtractText(context.Background(), writePDF(t))
	require.NoError(t, err)
	assert.Equal(t, "ok", md)
	assert.Equal(t, int32(2), calls.Load())
}

func TestMinerU_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		calls   int32
		wantErr string
	}{
		{"client error not retried", http.StatusUnprocessableEntity, `{"detail":"bad"}`, 1, "HTTP 422"},
		{"server error retried", http.StatusInternalServerError, "boom", 3, "HTTP 500"},
		{"no markdown", http.StatusOK, `{"code":0,"data":{"md":""}}`, 1, "no markdown"},
		{"malformed json", http.StatusOK, `{invalid`, 1, "no markdown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				calls.Add(1)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := testMinerU(srv.URL).ExtractText(context.Background(), writePDF(t))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Equal(t, tt.calls, calls.Load())
		})
	}
}

func TestMinerU_CircuitOpensOnRepeatedFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	m := testMinerU(srv.URL)
	pdf := writePDF(t)
	_, err := m.ExtractText(context.Background(), pdf)
	require.Error(t, err)
	require.Equal(t, int32(3), calls.Load())

	_, err = m.ExtractText(context.Background(), pdf)
	require.Error(t, err)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, int32(3), calls.Load(), "open circuit fails fast")
}

func TestMinerU_MissingFile(t *testing.T) {
	_, err := testMinerU("http://127.0.0.1:1").ExtractText(context.Background(), "/nonexistent.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ocr: read pdf")
}

func TestMarkdownFromJSON(t *testing.T) {
	long := strings.Repeat("监测", 30)
	tests := []struct {
		name string
		raw  string
		want string
		ok   bool
	}{
		{"results md_content", `{"results":{"a":{"md_content":"x"}}}`, "x", true},
		{"data md", `{"code":0,"data":{"md":"m"}}`, "m", true},
		{"data markdown", `{"data":{"markdown":"mk"}}`, "mk", true},
		{"top-level content", `{"content":"c"}`, "c", true},
		{"blank field skipped", `{"data":{"md":"  ","content":"c"}}`, "c", true},
		{"deep fallback", `{"status":"ok","pages":[{"blocks":["short","` + long + `"]}]}`, long, true},
		{"nothing long enough", `{"status":"ok","pages":[{"text":"short"}]}`, "", false},
		{"invalid", `not json`, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := MarkdownFromJSON([]byte(tt.raw))
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}
