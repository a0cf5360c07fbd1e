// Пакет runner — выполнение функции над набором элементов с ограничением
// числа одновременно выполняемых вызовов.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// Run применяет fn к каждому элементу items, выполняя не более limit вызовов
// одновременно. limit ограничивается диапазоном [1, len(items)].
//
// Результаты возвращаются в порядке входных элементов, независимо от порядка
// завершения. Ошибка одного элемента не останавливает обработку остальных:
// все ошибки объединяются через errors.Join, каждая с индексом элемента.
// Уже выполненные вызовы не откатываются.
func Run[T, R any](ctx context.Context, items []T, limit int, fn func(context.Context, T) (R, error)) ([]R, error) {
	if len(items) == 0 {
		return []R{}, nil
	}
	if limit < 1 {
		limit = 1
	}
	if limit > len(items) {
		limit = len(items)
	}

	results := make([]R, len(items))
	errs := make([]error, len(items))
	var cursor atomic.Int64
	var wg sync.WaitGroup

	for w := 0; w < limit; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(cursor.Add(1) - 1)
				if i >= len(items) {
					return
				}
				if err := ctx.Err(); err != nil {
					errs[i] = fmt.Errorf("элемент %d: %w", i, err)
					continue
				}
				r, err := fn(ctx, items[i])
				if err != nil {
					errs[i] = fmt.Errorf("элемент %d: %w", i, err)
					continue
				}
				results[i] = r
			}
		}()
	}
	wg.Wait()

	return results, errors.Join(errs...)
}
