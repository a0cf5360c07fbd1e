package authclient

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SessionCookieName — cookie зашифрованной сессии администратора.
const SessionCookieName = "danilomotos_session"

// SessionCookieMaxAge — срок жизни cookie в секундах (24 часа).
// Он же TTL состояния редактора в admin.Registry.
const SessionCookieMaxAge = 24 * 60 * 60

// refreshWindow — access token обновляется, если до истечения осталось меньше.
const refreshWindow = 30 * time.Second

// sealVersion — префикс формата cookie; смена формата делает старые cookie недействительными.
const sealVersion = "v1."

// ErrSessionInvalid — cookie не расшифровывается или повреждён.
var ErrSessionInvalid = errors.New("недействительная сессия")

// SessionData — содержимое cookie сессии.
type SessionData struct {
	// SessionID — ключ состояния редактора; сохраняется при refresh.
	SessionID    string `json:"sid"`
	AccessToken  string `json:"at"`
	RefreshToken string `json:"rt"`
	// ExpiresAt — истечение access token, Unix-секунды.
	ExpiresAt int64  `json:"exp"`
	UserID    string `json:"uid"`
	Email     string `json:"email"`
}

// NewSessionData собирает сессию из ответа token endpoint.
// Пустой sessionID — новая сессия со свежим UUID.
func NewSessionData(sessionID string, tokens *TokenResponse, now time.Time) *SessionData {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	return &SessionData{
		SessionID:    sessionID,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresAt:    tokens.ExpiryUnix(now),
		UserID:       tokens.User.ID,
		Email:        tokens.User.Email,
	}
}

// IsExpired сообщает, что access token истёк или истечёт в пределах refreshWindow.
func (s *SessionData) IsExpired() bool {
	return !time.Now().Add(refreshWindow).Before(time.Unix(s.ExpiresAt, 0))
}

// SessionManager шифрует сессии в cookie (AES-256-GCM).
// Имя cookie входит в associated data, так что шифротекст нельзя
// переставить в другой cookie.
type SessionManager struct {
	aead   cipher.AEAD
	secure bool
}

// NewSessionManager создаёт менеджер сессий.
// key — 32 байта в base64 либо произвольная строка (ключ = SHA-256 от неё).
// Пустой key — случайный ключ: сессии не переживают рестарт.
func NewSessionManager(key string, secure bool) (*SessionManager, error) {
	secret, err := deriveKey(key)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(secret)
	if err != nil {
		return nil, fmt.Errorf("AES: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("GCM: %w", err)
	}
	return &SessionManager{aead: aead, secure: secure}, nil
}

func deriveKey(key string) ([]byte, error) {
	if key == "" {
		secret := make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("генерация ключа сессии: %w", err)
		}
		return secret, nil
	}
	if raw, err := base64.StdEncoding.DecodeString(key); err == nil && len(raw) == 32 {
		return raw, nil
	}
	sum := sha256.Sum256([]byte(key))
	return sum[:], nil
}

// Encrypt сериализует сессию и возвращает значение cookie.
func (sm *SessionManager) Encrypt(data *SessionData) (string, error) {
	plain, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("сериализация сессии: %w", err)
	}
	nonce := make([]byte, sm.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	sealed := sm.aead.Seal(nonce, nonce, plain, []byte(SessionCookieName))
	return sealVersion + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt восстанавливает сессию из значения cookie.
func (sm *SessionManager) Decrypt(value string) (*SessionData, error) {
	encoded, ok := strings.CutPrefix(value, sealVersion)
	if !ok {
		return nil, fmt.Errorf("%w: неизвестный формат", ErrSessionInvalid)
	}
	sealed, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionInvalid, err)
	}
	n := sm.aead.NonceSize()
	if len(sealed) <= n {
		return nil, fmt.Errorf("%w: слишком короткое значение", ErrSessionInvalid)
	}
	plain, err := sm.aead.Open(nil, sealed[:n], sealed[n:], []byte(SessionCookieName))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionInvalid, err)
	}

	var data SessionData
	if err := json.Unmarshal(plain, &data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionInvalid, err)
	}
	return &data, nil
}

// SetSessionCookie записывает сессию в ответ.
func (sm *SessionManager) SetSessionCookie(w http.ResponseWriter, data *SessionData) error {
	value, err := sm.Encrypt(data)
	if err != nil {
		return err
	}
	http.SetCookie(w, sm.cookie(value, SessionCookieMaxAge))
	return nil
}

// GetSessionFromRequest читает сессию из cookie. Нет cookie — (nil, nil).
func (sm *SessionManager) GetSessionFromRequest(r *http.Request) (*SessionData, error) {
	c, err := r.Cookie(SessionCookieName)
	if errors.Is(err, http.ErrNoCookie) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sm.Decrypt(c.Value)
}

// ClearSessionCookie удаляет cookie сессии.
func (sm *SessionManager) ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, sm.cookie("", -1))
}

func (sm *SessionManager) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteLaxMode,
	}
}
