// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import "errors"

var (
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
	// ErrNotFound — ресурс не найден.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrWorkerUnavailable — Photo Worker недоступен или отклонил запрос.
	ErrWorkerUnavailable = errors.New("Photo Worker недоступен")
	// ErrConfirmationDeclined — пользователь не подтвердил разрушающее действие.
	ErrConfirmationDeclined = errors.New("действие не подтверждено")
	// ErrAuthFailed — неверные учётные данные.
	ErrAuthFailed = errors.New("ошибка аутентификации")
	// ErrAuthUnavailable — провайдер аутентификации недоступен.
	ErrAuthUnavailable = errors.New("провайдер аутентификации недоступен")
)
