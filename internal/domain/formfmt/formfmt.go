// Пакет formfmt — чистые функции нормализации и форматирования полей формы:
// slug-идентификатор, цифры, бразильский формат чисел и цены, ссылка на видео.
package formfmt

import (
	"net/url"
	"strconv"
	"strings"
)

// CleanID нормализует идентификатор записи: trim, нижний регистр,
// пробелы заменяются на «-», остаются только [A-Za-z0-9_-].
func CleanID(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	v = strings.ReplaceAll(v, " ", "-")

	var b strings.Builder
	b.Grow(len(v))
	for _, r := range v {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Digits оставляет в строке только цифры ASCII.
func Digits(v string) string {
	var b strings.Builder
	for _, r := range v {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Num извлекает из строки цифры и возвращает их числовое значение (0, если цифр нет).
func Num(v string) int64 {
	d := strings.TrimLeft(Digits(v), "0")
	if d == "" {
		return 0
	}
	n, err := strconv.ParseInt(d, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// Thousands форматирует число с разделителем тысяч «.» (45900 → 45.900).
func Thousands(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}

	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}

// BRL форматирует цену «R$ 45.900». Пустая строка, если значение не положительно.
func BRL(v string) string {
	n := Num(v)
	if n <= 0 {
		return ""
	}
	return "R$ " + Thousands(n)
}

// Km форматирует пробег «12.000». Пустая строка, если цифр нет.
func Km(v string) string {
	if Digits(v) == "" {
		return ""
	}
	return Thousands(Num(v))
}

// YouTubeEmbed преобразует ссылку YouTube (youtu.be, /shorts/, ?v=) в ссылку embed.
// Пустая строка, если идентификатор видео извлечь не удалось.
func YouTubeEmbed(link string) string {
	link = strings.TrimSpace(link)
	if link == "" {
		return ""
	}
	u, err := url.Parse(link)
	if err != nil || u.Host == "" {
		return ""
	}

	var id string
	switch {
	case strings.Contains(u.Hostname(), "youtu.be"):
		id = strings.SplitN(strings.TrimPrefix(u.Path, "/"), "/", 2)[0]
	case strings.Contains(u.Path, "/shorts/"):
		rest := strings.SplitN(u.Path, "/shorts/", 2)[1]
		id = strings.SplitN(rest, "/", 2)[0]
	default:
		id = u.Query().Get("v")
	}

	if id == "" {
		return ""
	}
	return "https://www.youtube.com/embed/" + url.PathEscape(id)
}
