// Пакет imageopt — оптимизация фотографий перед загрузкой: уменьшение до
// максимальной ширины и перекодирование в JPEG на белом фоне.
package imageopt

import (
	"bytes"
	"context"
	"image"
	"image/color"
	_ "image/gif"  // регистрация декодера GIF
	_ "image/jpeg" // регистрация декодера JPEG
	_ "image/png"  // регистрация декодера PNG
	"log/slog"
	"math"
	"path"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // регистрация декодера WebP

	"github.com/danilomotos/moto-admin/internal/domain/model"
	"github.com/danilomotos/moto-admin/internal/runner"
)

const (
	// DefaultMaxWidth — максимальная ширина по умолчанию.
	DefaultMaxWidth = 1600
	// DefaultQuality — качество JPEG по умолчанию.
	DefaultQuality = 82
	// DefaultMinBytes — файлы меньше этого размера не обрабатываются.
	DefaultMinBytes = 300 * 1024
	// DefaultParallelism — число одновременных оптимизаций в OptimizeAll.
	DefaultParallelism = 5
)

// Options — параметры оптимизации.
type Options struct {
	MaxWidth int
	Quality  int
	MinBytes int64
}

// DefaultOptions возвращает параметры по умолчанию.
func DefaultOptions() Options {
	return Options{MaxWidth: DefaultMaxWidth, Quality: DefaultQuality, MinBytes: DefaultMinBytes}
}

func (o Options) normalized() Options {
	if o.MaxWidth <= 0 {
		o.MaxWidth = DefaultMaxWidth
	}
	if o.Quality < 1 || o.Quality > 100 {
		o.Quality = DefaultQuality
	}
	if o.MinBytes <= 0 {
		o.MinBytes = DefaultMinBytes
	}
	return o
}

// Optimizer уменьшает и перекодирует фотографии.
type Optimizer struct {
	opts   Options
	logger *slog.Logger
}

// New создаёт Optimizer.
func New(opts Options, logger *slog.Logger) *Optimizer {
	return &Optimizer{
		opts:   opts.normalized(),
		logger: logger.With(slog.String("component", "imageopt")),
	}
}

// Optimize возвращает оптимизированную копию файла.
// Файлы не-изображений и файлы меньше MinBytes возвращаются без изменений.
// При любой ошибке декодирования или кодирования возвращается исходный файл.
func (o *Optimizer) Optimize(f model.PhotoFile) model.PhotoFile {
	if !strings.HasPrefix(f.ContentType, "image/") {
		return f
	}
	if f.Size() < o.opts.MinBytes {
		return f
	}

	src, err := imaging.Decode(bytes.NewReader(f.Data), imaging.AutoOrientation(true))
	if err != nil {
		o.logger.Debug("Не удалось декодировать изображение, файл отправляется как есть",
			slog.String("name", f.Name),
			slog.String("error", err.Error()),
		)
		return f
	}

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return f
	}

	outW, outH := TargetSize(w, h, o.opts.MaxWidth)
	resized := src
	if outW != w || outH != h {
		resized = imaging.Resize(src, outW, outH, imaging.Lanczos)
	}

	// JPEG не поддерживает прозрачность: рисуем на непрозрачном белом фоне
	canvas := imaging.New(outW, outH, color.White)
	canvas = imaging.Overlay(canvas, resized, image.Pt(0, 0), 1.0)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, canvas, imaging.JPEG, imaging.JPEGQuality(o.opts.Quality)); err != nil {
		o.logger.Warn("Не удалось закодировать JPEG, файл отправляется как есть",
			slog.String("name", f.Name),
			slog.String("error", err.Error()),
		)
		return f
	}

	return model.PhotoFile{
		Name:        JPEGName(f.Name),
		ContentType: "image/jpeg",
		Data:        buf.Bytes(),
	}
}

// OptimizeAll оптимизирует файлы параллельно, сохраняя порядок.
func (o *Optimizer) OptimizeAll(ctx context.Context, files []model.PhotoFile) []model.PhotoFile {
	out, err := runner.Run(ctx, files, DefaultParallelism, func(_ context.Context, f model.PhotoFile) (model.PhotoFile, error) {
		return o.Optimize(f), nil
	})
	if err != nil {
		// Отмена контекста: необработанные файлы остаются исходными
		for i := range out {
			if out[i].Data == nil {
				out[i] = files[i]
			}
		}
	}
	return out
}

// TargetSize вычисляет размеры после масштабирования до maxWidth
// с сохранением пропорций. Изображения не увеличиваются.
func TargetSize(w, h, maxWidth int) (int, int) {
	scale := math.Min(1, float64(maxWidth)/float64(w))
	outW := max(1, int(math.Round(float64(w)*scale)))
	outH := max(1, int(math.Round(float64(h)*scale)))
	return outW, outH
}

// JPEGName заменяет расширение имени файла на .jpg («foto.jpg» для пустого имени).
func JPEGName(name string) string {
	base := strings.TrimSuffix(name, path.Ext(name))
	if strings.TrimSpace(base) == "" {
		base = "foto"
	}
	return base + ".jpg"
}
