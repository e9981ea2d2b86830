package carriers

// Registry — реестр перевозчиков. Намеренно слайс, а не map:
// порядок регистрации — документированное поведение. Форматы номеров
// эвристичны и пересекаются (например, «голые» 12 цифр подходят сразу
// нескольким перевозчикам); кандидатов пробуем в порядке регистрации,
// первый успех выигрывает.
type Registry struct {
	carriers []Carrier
}

func NewRegistry(cs ...Carrier) *Registry {
	r := &Registry{}
	for _, c := range cs {
		r.Register(c)
	}
	return r
}

func (r *Registry) Register(c Carrier) {
	r.carriers = append(r.carriers, c)
}

func (r *Registry) All() []Carrier {
	out := make([]Carrier, len(r.carriers))
	copy(out, r.carriers)
	return out
}

func (r *Registry) ByCode(code string) (Carrier, bool) {
	for _, c := range r.carriers {
		if c.Code() == code {
			return c, true
		}
	}
	return nil, false
}

// Detect возвращает всех кандидатов по формату номера, в порядке
// регистрации. Используется и резолвером, и API «определить перевозчика».
func (r *Registry) Detect(trackNumber string) []Carrier {
	var out []Carrier
	for _, c := range r.carriers {
		if c.Match(trackNumber) {
			out = append(out, c)
		}
	}
	return out
}
