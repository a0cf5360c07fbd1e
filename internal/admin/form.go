package admin

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/danilomotos/moto-admin/internal/domain/formfmt"
	"github.com/danilomotos/moto-admin/internal/domain/model"
	"github.com/danilomotos/moto-admin/internal/service"
)

// Form — сырые значения полей формы редактирования.
type Form struct {
	ID          string `json:"id"`
	Ordem       string `json:"ordem"`
	Status      string `json:"status"`
	Titulo      string `json:"titulo"`
	Preco       string `json:"preco"`
	Ano         string `json:"ano"`
	Km          string `json:"km"`
	Cor         string `json:"cor"`
	Cilindrada  string `json:"cilindrada"`
	Combustivel string `json:"combustivel"`
	Partida     string `json:"partida"`
	Youtube     string `json:"youtube"`
	Observacoes string `json:"observacoes"`
	Emplacada   bool   `json:"emplacada"`
}

// BlankForm — пустая форма новой записи.
func BlankForm() Form {
	return Form{Status: string(model.StatusAvailable)}
}

// FormFromMoto заполняет форму значениями записи.
// Цена и пробег форматируются с разделителем тысяч.
func FormFromMoto(m *model.Moto) Form {
	f := Form{
		ID:          m.ID,
		Status:      string(m.Status),
		Titulo:      m.Titulo,
		Ano:         m.Ano,
		Cor:         m.Cor,
		Cilindrada:  m.Cilindrada,
		Combustivel: m.Combustivel,
		Partida:     m.Partida,
		Youtube:     m.Youtube,
		Observacoes: m.Observacoes,
		Emplacada:   m.Emplacada,
	}
	if m.Ordem != nil {
		f.Ordem = strconv.Itoa(*m.Ordem)
	}
	if f.Status == "" {
		f.Status = string(model.StatusAvailable)
	}
	if m.Preco != "" {
		f.Preco = formfmt.Thousands(formfmt.Num(m.Preco))
	}
	if m.Km != "" {
		f.Km = formfmt.Thousands(formfmt.Num(m.Km))
	}
	return f
}

// ToMoto преобразует форму в запись: ID нормализуется, в цене и пробеге
// остаются только цифры, пустой статус заменяется на disponivel,
// строки обрезаются. Пустой ID не проверяется (это делает Save).
func (f Form) ToMoto() (*model.Moto, error) {
	m := &model.Moto{
		ID:          formfmt.CleanID(f.ID),
		Status:      model.Status(strings.TrimSpace(f.Status)),
		Titulo:      strings.TrimSpace(f.Titulo),
		Preco:       formfmt.Digits(f.Preco),
		Ano:         strings.TrimSpace(f.Ano),
		Km:          formfmt.Digits(f.Km),
		Cor:         strings.TrimSpace(f.Cor),
		Cilindrada:  strings.TrimSpace(f.Cilindrada),
		Combustivel: strings.TrimSpace(f.Combustivel),
		Partida:     strings.TrimSpace(f.Partida),
		Youtube:     strings.TrimSpace(f.Youtube),
		Observacoes: strings.TrimSpace(f.Observacoes),
		Emplacada:   f.Emplacada,
	}
	if m.Status == "" {
		m.Status = model.StatusAvailable
	}
	if !m.Status.Valid() {
		return nil, fmt.Errorf("%w: недопустимый статус %q", service.ErrValidation, f.Status)
	}

	if d := formfmt.Digits(f.Ordem); d != "" {
		ordem, err := strconv.Atoi(d)
		if err != nil {
			return nil, fmt.Errorf("%w: недопустимый порядок %q", service.ErrValidation, f.Ordem)
		}
		m.Ordem = &ordem
	}
	return m, nil
}
