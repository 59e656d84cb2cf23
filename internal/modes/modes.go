// Package modes описывает режимы работы ассистента: каждый режим помечает
// исходящие запросы к бэкенду и определяет набор примеров вопросов.
package modes

// Mode is a fixed conversation mode key, sent with every chat request.
type Mode string

const (
	GOST      Mode = "gost"
	Equipment Mode = "equipment"
	Defects   Mode = "defects"
	Recipes   Mode = "recipes"

	Default = GOST
)

type Info struct {
	Name     string
	Examples []string
}

var registry = map[Mode]Info{
	GOST: {
		Name: "ГОСТ/СП",
		Examples: []string{
			"Требования к прочности B25 по ГОСТ 6665",
			"Морозостойкость F200 - таблица",
			"Водопоглощение бордюрного камня",
		},
	},
	Equipment: {
		Name: "Оборудование",
		Examples: []string{
			"Настройка виброплощадки Hess 2500",
			"Ошибка E12 на матрице Besser",
			"Режим прессования для тротуарной плитки",
		},
	},
	Defects: {
		Name: "Претензии",
		Examples: []string{
			"Сколы на торцах блоков - причины",
			"Шелушение поверхности после зимы",
			"Трещины на бордюрном камне B25",
		},
	},
	Recipes: {
		Name: "Рецептуры",
		Examples: []string{
			"Состав для B30 F300 с низким В/Ц",
			"Цветной бетон - добавки и пропорции",
			"Оптимизация вибро-режима для ФБС",
		},
	},
}

// All returns the modes in their display order.
func All() []Mode {
	return []Mode{GOST, Equipment, Defects, Recipes}
}

// Valid reports whether key names a known mode. Only callback data coming
// over the wire needs this check; everywhere else an unknown mode is a
// programming error.
func Valid(key string) bool {
	_, ok := registry[Mode(key)]
	return ok
}

// Name returns the display name of m, falling back to the raw key for
// entries persisted by older builds.
func (m Mode) Name() string {
	if info, ok := registry[m]; ok {
		return info.Name
	}
	return string(m)
}

// Examples returns the example prompts shown after switching to m.
func (m Mode) Examples() []string {
	info := registry[m]
	out := make([]string, len(info.Examples))
	copy(out, info.Examples)
	return out
}
