// Пакет admin — контроллер формы редактирования записи в админ-панели.
//
// Состояния: Empty → Editing → Saving → Editing (успех: перезагрузка кэша
// и повторный выбор записи; ошибка: остаётся Editing с текстом ошибки).
//
// Переход в статус vendida требует подтверждения и удаляет все фотографии,
// кроме обложки (keep_cover). Удаление записи сначала удаляет фотографии,
// затем строку в базе.
package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/danilomotos/moto-admin/internal/domain/model"
	"github.com/danilomotos/moto-admin/internal/repository"
	"github.com/danilomotos/moto-admin/internal/service"
)

// State — состояние контроллера.
type State int

const (
	// StateEmpty — запись не выбрана.
	StateEmpty State = iota
	// StateEditing — форма заполнена выбранной или новой записью.
	StateEditing
	// StateSaving — сохранение выполняется.
	StateSaving
)

// String возвращает имя состояния.
func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateEditing:
		return "editing"
	case StateSaving:
		return "saving"
	}
	return "unknown"
}

// Store — хранилище записей.
type Store interface {
	List(ctx context.Context, status *model.Status) ([]*model.Moto, error)
	Upsert(ctx context.Context, m *model.Moto) error
	Delete(ctx context.Context, id string) error
}

// Photos — операции с фотографиями, используемые контроллером.
type Photos interface {
	DeletePhotos(ctx context.Context, id string, mode model.DeleteMode, filename string) (*service.DeleteResult, error)
}

// Snapshot — состояние контроллера для отображения.
type Snapshot struct {
	State State
	// Form — значения формы (nil в состоянии Empty)
	Form *Form
	// IsNew — запись ещё не сохранена
	IsNew bool
	// Error — текст последней ошибки
	Error string
	// Advisory — предупреждения последней операции
	Advisory []string
}

// Options — параметры контроллера.
type Options struct {
	// OnChange вызывается после успешного сохранения или удаления записи
	OnChange func(id string)
}

// Controller — контроллер формы одной сессии редактирования.
type Controller struct {
	store  Store
	photos Photos
	cache  *RecordCache

	onChange func(id string)
	logger   *slog.Logger

	// op сериализует операции; mu защищает поля состояния
	op sync.Mutex
	mu sync.Mutex

	state State
	form  Form
	// saved — сохранённая версия текущей записи (nil — новая запись)
	saved    *model.Moto
	lastErr  string
	advisory []string
	// cleaned — записи, для которых удаление фотографий при продаже уже выполнено
	cleaned map[string]bool
}

// NewController создаёт контроллер в состоянии Empty.
func NewController(store Store, photos Photos, opts Options, logger *slog.Logger) *Controller {
	onChange := opts.OnChange
	if onChange == nil {
		onChange = func(string) {}
	}
	return &Controller{
		store:    store,
		photos:   photos,
		cache:    NewRecordCache(),
		onChange: onChange,
		logger:   logger.With(slog.String("component", "admin_controller")),
		cleaned:  map[string]bool{},
	}
}

// Cache возвращает кэш записей контроллера.
func (c *Controller) Cache() *RecordCache {
	return c.cache
}

// Snapshot возвращает текущее состояние.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Snapshot{
		State:    c.state,
		IsNew:    c.state != StateEmpty && c.saved == nil,
		Error:    c.lastErr,
		Advisory: append([]string(nil), c.advisory...),
	}
	if c.state != StateEmpty {
		f := c.form
		s.Form = &f
	}
	return s
}

// Load перезагружает кэш записей.
func (c *Controller) Load(ctx context.Context) ([]*model.Moto, error) {
	c.op.Lock()
	defer c.op.Unlock()
	return c.load(ctx)
}

// Select заполняет форму записью id из кэша (кэш загружается при необходимости).
func (c *Controller) Select(ctx context.Context, id string) (*model.Moto, error) {
	c.op.Lock()
	defer c.op.Unlock()

	if !c.cache.Loaded() {
		if _, err := c.load(ctx); err != nil {
			return nil, err
		}
	}
	m, ok := c.cache.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: запись %s", service.ErrNotFound, id)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.edit(m)
	return m, nil
}

// New очищает форму для создания новой записи.
func (c *Controller) New() {
	c.op.Lock()
	defer c.op.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateEditing
	c.form = BlankForm()
	c.saved = nil
	c.lastErr = ""
	c.advisory = nil
}

// Clear возвращает контроллер в состояние Empty.
func (c *Controller) Clear() {
	c.op.Lock()
	defer c.op.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clear()
}

// Apply переносит значения формы в состояние редактирования.
// ID сохранённой записи изменить нельзя.
func (c *Controller) Apply(f Form) error {
	c.op.Lock()
	defer c.op.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateEmpty {
		c.form = BlankForm()
		c.saved = nil
		c.state = StateEditing
	}
	if c.saved != nil {
		if m, err := f.ToMoto(); err == nil && m.ID != c.saved.ID {
			return fmt.Errorf("%w: ID записи изменить нельзя", service.ErrValidation)
		}
	}
	c.form = f
	return nil
}

// Save сохраняет запись формы (upsert).
//
// Если сохранение переводит запись в статус vendida и очистка фотографий ещё
// не выполнялась в этой сессии, запрашивается подтверждение: при согласии
// удаляются все фотографии кроме обложки, при отказе статус возвращается
// к прежнему значению, а остальные поля сохраняются. Ошибка очистки не критична.
func (c *Controller) Save(ctx context.Context, confirm Confirmer) (*model.Moto, service.Outcome, error) {
	c.op.Lock()
	defer c.op.Unlock()

	var outcome service.Outcome

	c.mu.Lock()
	if c.state == StateEmpty {
		c.mu.Unlock()
		return nil, outcome, fmt.Errorf("%w: запись не выбрана", service.ErrValidation)
	}
	form, saved := c.form, c.saved
	c.lastErr = ""
	c.advisory = nil
	c.mu.Unlock()

	m, err := form.ToMoto()
	if err == nil && m.ID == "" {
		err = fmt.Errorf("%w: укажите корректный ID", service.ErrValidation)
	}
	if err != nil {
		c.fail(err)
		return nil, outcome, err
	}

	prev := model.StatusAvailable
	if saved != nil {
		prev = saved.Status
	}

	cleanup := false
	if m.Status == model.StatusSold && prev != model.StatusSold && !c.isCleaned(m.ID) {
		if confirm.Confirm(ctx, PromptMarkSold) {
			cleanup = true
		} else {
			c.logger.Info("Продажа не подтверждена, статус возвращён",
				slog.String("moto_id", m.ID),
				slog.String("status", string(prev)),
			)
			m.Status = prev
			outcome.Advisory = append(outcome.Advisory, "статус возвращён к "+string(prev))
		}
	}

	c.setState(StateSaving)
	if err := c.store.Upsert(ctx, m); err != nil {
		err = fmt.Errorf("сохранение записи %s: %w", m.ID, err)
		c.fail(err)
		return nil, outcome, err
	}

	c.logger.Info("Запись сохранена",
		slog.String("moto_id", m.ID),
		slog.String("status", string(m.Status)),
	)

	if cleanup {
		c.cleanupSold(ctx, m.ID, &outcome)
	} else if m.Status != model.StatusSold {
		c.forgetCleaned(m.ID)
	}

	c.cache.Invalidate()
	c.onChange(m.ID)
	if _, err := c.load(ctx); err != nil {
		outcome.Warn(c.logger, "Не удалось перезагрузить список записей", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if fresh, ok := c.cache.Get(m.ID); ok {
		c.edit(fresh)
		m = fresh
	} else {
		c.saved = m
		c.form = FormFromMoto(m)
		c.state = StateEditing
	}
	c.advisory = outcome.Advisory
	return m, outcome, nil
}

// ChangeStatus меняет статус в форме.
// Переход в vendida требует подтверждения и удаляет все фотографии, кроме
// обложки; при отказе поле возвращается к прежнему значению и
// возвращается ErrConfirmationDeclined.
func (c *Controller) ChangeStatus(ctx context.Context, status model.Status, confirm Confirmer) (service.Outcome, error) {
	c.op.Lock()
	defer c.op.Unlock()

	var outcome service.Outcome
	if !status.Valid() {
		return outcome, fmt.Errorf("%w: недопустимый статус %q", service.ErrValidation, status)
	}

	c.mu.Lock()
	if c.state == StateEmpty {
		c.mu.Unlock()
		return outcome, fmt.Errorf("%w: запись не выбрана", service.ErrValidation)
	}
	form := c.form
	c.mu.Unlock()

	m, err := form.ToMoto()
	if err != nil {
		return outcome, err
	}
	if m.ID == "" {
		return outcome, fmt.Errorf("%w: укажите корректный ID", service.ErrValidation)
	}

	if status == model.StatusSold && m.Status != model.StatusSold {
		if !confirm.Confirm(ctx, PromptMarkSold) {
			return outcome, service.ErrConfirmationDeclined
		}
		c.setFormStatus(status)
		if !c.isCleaned(m.ID) {
			c.cleanupSold(ctx, m.ID, &outcome)
		}
		return outcome, nil
	}

	c.setFormStatus(status)
	if status != model.StatusSold {
		c.forgetCleaned(m.ID)
	}
	return outcome, nil
}

// Delete удаляет текущую запись после подтверждения.
// Сначала удаляются все фотографии; при ошибке запись не удаляется.
// Несохранённую запись удалить нельзя: фотографии не затрагиваются.
func (c *Controller) Delete(ctx context.Context, confirm Confirmer) error {
	c.op.Lock()
	defer c.op.Unlock()

	c.mu.Lock()
	state, form, saved := c.state, c.form, c.saved
	c.mu.Unlock()

	if state == StateEmpty {
		return fmt.Errorf("%w: запись не выбрана", service.ErrValidation)
	}
	if saved == nil {
		return fmt.Errorf("%w: запись ещё не сохранена", service.ErrValidation)
	}
	m, err := form.ToMoto()
	if err != nil {
		return err
	}
	if m.ID == "" {
		return fmt.Errorf("%w: укажите корректный ID", service.ErrValidation)
	}

	if !confirm.Confirm(ctx, PromptDelete) {
		return service.ErrConfirmationDeclined
	}

	res, err := c.photos.DeletePhotos(ctx, m.ID, model.DeleteAll, "")
	if err != nil {
		err = fmt.Errorf("удаление фотографий записи %s: %w", m.ID, err)
		c.fail(err)
		return err
	}

	if err := c.store.Delete(ctx, m.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			err = fmt.Errorf("%w: запись %s", service.ErrNotFound, m.ID)
		} else {
			err = fmt.Errorf("удаление записи %s: %w", m.ID, err)
		}
		c.fail(err)
		return err
	}

	c.logger.Info("Запись удалена",
		slog.String("moto_id", m.ID),
		slog.Int("photos_deleted", res.Deleted),
	)

	c.mu.Lock()
	c.clear()
	delete(c.cleaned, m.ID)
	c.mu.Unlock()

	c.cache.Invalidate()
	c.onChange(m.ID)
	if _, err := c.load(ctx); err != nil {
		c.logger.Warn("Не удалось перезагрузить список записей", slog.String("error", err.Error()))
	}
	return nil
}

func (c *Controller) load(ctx context.Context) ([]*model.Moto, error) {
	motos, err := c.store.List(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("загрузка записей: %w", err)
	}
	c.cache.Replace(motos)
	return c.cache.All(), nil
}

// cleanupSold удаляет все фотографии кроме обложки (некритично).
// updated_at обновляет PhotoService.
func (c *Controller) cleanupSold(ctx context.Context, id string, outcome *service.Outcome) {
	res, err := c.photos.DeletePhotos(ctx, id, model.DeleteKeepCover, "")
	if err != nil {
		outcome.Warn(c.logger, "Не удалось удалить фотографии проданной записи", err, slog.String("moto_id", id))
		return
	}
	outcome.Merge(res.Outcome)

	c.mu.Lock()
	c.cleaned[id] = true
	c.mu.Unlock()

	c.logger.Info("Фотографии проданной записи удалены, обложка сохранена",
		slog.String("moto_id", id),
		slog.Int("deleted", res.Deleted),
	)
}

// forgetCleaned снимает отметку очистки: следующая продажа снова удалит фотографии.
func (c *Controller) forgetCleaned(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cleaned, id)
}

func (c *Controller) isCleaned(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cleaned[id]
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

func (c *Controller) setFormStatus(s model.Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.form.Status = string(s)
}

// fail фиксирует ошибку операции и возвращает состояние Editing.
func (c *Controller) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateSaving {
		c.state = StateEditing
	}
	c.lastErr = err.Error()
}

// edit вызывается под mu.
func (c *Controller) edit(m *model.Moto) {
	c.state = StateEditing
	c.form = FormFromMoto(m)
	c.saved = m
	c.lastErr = ""
	c.advisory = nil
}

// clear вызывается под mu.
func (c *Controller) clear() {
	c.state = StateEmpty
	c.form = Form{}
	c.saved = nil
	c.lastErr = ""
	c.advisory = nil
}
