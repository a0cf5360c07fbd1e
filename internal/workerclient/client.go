// Пакет workerclient — HTTP-клиент Photo Worker.
// Поддерживает TLS с кастомным CA (MA_WORKER_CA_CERT_PATH).
// Операции: Upload (POST /upload), UploadBatch (POST /upload-batch),
// List (GET /list), Delete (POST /delete).
package workerclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/danilomotos/moto-admin/internal/domain/model"
)

// DefaultTimeout — таймаут запросов к worker по умолчанию.
const DefaultTimeout = 60 * time.Second

// maxErrorBody — предел чтения тела ответа с ошибкой.
const maxErrorBody = 4 << 10

// Error — ошибка worker: HTTP-статус и сообщение из поля error ответа.
type Error struct {
	// Op — операция (upload, upload-batch, list, delete)
	Op string
	// StatusCode — HTTP-статус ответа
	StatusCode int
	// Message — сообщение worker
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("worker %s вернул статус %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("worker %s вернул статус %d: %s", e.Op, e.StatusCode, e.Message)
}

// response — общий формат ответа worker.
type response struct {
	OK      bool     `json:"ok"`
	Error   string   `json:"error,omitempty"`
	Files   []string `json:"files,omitempty"`
	Deleted int      `json:"deleted"`
}

// DeleteRequest — тело POST /delete.
type DeleteRequest struct {
	MotoID   string           `json:"moto_id"`
	Mode     model.DeleteMode `json:"mode"`
	Filename string           `json:"filename,omitempty"`
}

// Client — HTTP-клиент Photo Worker.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// New создаёт клиент worker.
// caCertPath — путь к CA-сертификату для TLS (пустая строка — стандартный пул).
// apiKey — значение заголовка X-API-Key (пустая строка — заголовок не передаётся).
func New(baseURL, apiKey string, timeout time.Duration, caCertPath string, logger *slog.Logger) (*Client, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := &http.Client{Timeout: timeout}

	if caCertPath != "" {
		tlsConfig, err := buildTLSConfig(caCertPath)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA-сертификата worker: %w", err)
		}
		httpClient.Transport = &http.Transport{
			TLSClientConfig: tlsConfig,
		}
		logger.Info("CA-сертификат worker добавлен в пул доверия",
			slog.String("ca_cert", caCertPath),
		)
	}

	return &Client{
		baseURL:    normalizeURL(baseURL),
		apiKey:     apiKey,
		httpClient: httpClient,
		logger:     logger.With(slog.String("component", "worker_client")),
	}, nil
}

// buildTLSConfig создаёт TLS-конфигурацию с кастомным CA.
func buildTLSConfig(caCertPath string) (*tls.Config, error) {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, fmt.Errorf("чтение CA-сертификата: %w", err)
	}

	caCertPool, err := x509.SystemCertPool()
	if err != nil {
		caCertPool = x509.NewCertPool()
	}
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("CA-сертификат %s не содержит PEM-блоков", caCertPath)
	}

	return &tls.Config{
		RootCAs: caCertPool,
	}, nil
}

// Upload загружает один файл.
// POST /upload — multipart: file, moto_id, filename.
func (c *Client) Upload(ctx context.Context, motoID, filename string, f model.PhotoFile) error {
	var buf bytes.Buffer
	contentType, err := encodeUpload(&buf, motoID, filename, f)
	if err != nil {
		return fmt.Errorf("формирование запроса upload: %w", err)
	}

	_, err = c.do(ctx, "upload", http.MethodPost, "/upload", contentType, &buf)
	return err
}

// UploadBatch загружает несколько файлов одним запросом.
// POST /upload-batch — multipart: moto_id и пары path{i}/file{i}.
func (c *Client) UploadBatch(ctx context.Context, motoID string, entries []model.UploadEntry) error {
	var buf bytes.Buffer
	contentType, err := encodeBatch(&buf, motoID, entries)
	if err != nil {
		return fmt.Errorf("формирование запроса upload-batch: %w", err)
	}

	_, err = c.do(ctx, "upload-batch", http.MethodPost, "/upload-batch", contentType, &buf)
	return err
}

// encodeUpload пишет multipart-тело запроса /upload и возвращает его Content-Type.
func encodeUpload(w io.Writer, motoID, filename string, f model.PhotoFile) (string, error) {
	mw := multipart.NewWriter(w)
	if err := writeFilePart(mw, "file", filename, f); err != nil {
		return "", err
	}
	if err := mw.WriteField("moto_id", motoID); err != nil {
		return "", err
	}
	if err := mw.WriteField("filename", filename); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}
	return mw.FormDataContentType(), nil
}

// encodeBatch пишет multipart-тело запроса /upload-batch.
func encodeBatch(w io.Writer, motoID string, entries []model.UploadEntry) (string, error) {
	mw := multipart.NewWriter(w)
	if err := mw.WriteField("moto_id", motoID); err != nil {
		return "", err
	}
	for i, e := range entries {
		idx := strconv.Itoa(i)
		if err := mw.WriteField("path"+idx, e.Path); err != nil {
			return "", err
		}
		if err := writeFilePart(mw, "file"+idx, fileNameOf(e.Path), e.File); err != nil {
			return "", err
		}
	}
	if err := mw.Close(); err != nil {
		return "", err
	}
	return mw.FormDataContentType(), nil
}

// List возвращает имена файлов записи.
// GET /list?moto_id=...
func (c *Client) List(ctx context.Context, motoID string) ([]string, error) {
	path := "/list?moto_id=" + url.QueryEscape(motoID)
	resp, err := c.do(ctx, "list", http.MethodGet, path, "", nil)
	if err != nil {
		return nil, err
	}
	if resp.Files == nil {
		return []string{}, nil
	}
	return resp.Files, nil
}

// Delete удаляет фотографии записи и возвращает число удалённых файлов.
// POST /delete — JSON {moto_id, mode, filename?}.
func (c *Client) Delete(ctx context.Context, req DeleteRequest) (int, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return 0, fmt.Errorf("кодирование запроса delete: %w", err)
	}

	resp, err := c.do(ctx, "delete", http.MethodPost, "/delete", "application/json", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	return resp.Deleted, nil
}

// do выполняет запрос и разбирает ответ {ok, error, files, deleted}.
// Ответ с ok=false или статусом вне 2xx возвращается как *Error.
func (c *Client) do(ctx context.Context, op, method, path, contentType string, body io.Reader) (*response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("создание запроса %s: %w", op, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("запрос %s к worker: %w", op, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("Ответ worker",
		slog.String("op", op),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)),
	)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("чтение ответа %s: %w", op, err)
	}

	var parsed response
	decodeErr := json.Unmarshal(raw, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := parsed.Error
		if decodeErr != nil || msg == "" {
			msg = strings.TrimSpace(string(truncate(raw, maxErrorBody)))
		}
		return nil, &Error{Op: op, StatusCode: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("декодирование ответа %s: %w", op, decodeErr)
	}
	if !parsed.OK {
		return nil, &Error{Op: op, StatusCode: resp.StatusCode, Message: parsed.Error}
	}
	return &parsed, nil
}

// writeFilePart добавляет файловую часть с MIME-типом файла.
func writeFilePart(mw *multipart.Writer, field, filename string, f model.PhotoFile) error {
	ct := f.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
	h.Set("Content-Type", ct)

	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = part.Write(f.Data)
	return err
}

// fileNameOf возвращает последний элемент пути {id}/{filename}.
func fileNameOf(p string) string {
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[i+1:]
	}
	return p
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}

// normalizeURL убирает trailing slash из URL.
func normalizeURL(rawURL string) string {
	return strings.TrimRight(rawURL, "/")
}
