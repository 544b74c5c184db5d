package pagination

const (
	// DefaultLimit is the standard page size when a limit is not provided.
	DefaultLimit = 20
	// MaxLimit caps how many rows any page can request.
	MaxLimit = 100
)

// Params holds offset pagination inputs from controllers or services.
// Page is 1-based.
type Params struct {
	Page  int
	Limit int
}

// Limits bounds page sizes; zero values fall back to the package defaults.
type Limits struct {
	Default int
	Max     int
}

// Normalize enforces page >= 1 and the configured default and maximum limits.
func (l Limits) Normalize(p Params) Params {
	ceiling := l.Max
	if ceiling <= 0 || ceiling > MaxLimit {
		ceiling = MaxLimit
	}
	def := l.Default
	if def <= 0 || def > ceiling {
		def = min(DefaultLimit, ceiling)
	}

	if p.Page < 1 {
		p.Page = 1
	}
	switch {
	case p.Limit <= 0:
		p.Limit = def
	case p.Limit > ceiling:
		p.Limit = ceiling
	}
	return p
}

// Normalize applies the package defaults.
func Normalize(p Params) Params {
	return Limits{}.Normalize(p)
}

// Offset returns the row offset for a normalized page.
func (p Params) Offset() int {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}

// Meta describes a returned page.
type Meta struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
	HasNext    bool  `json:"hasNext"`
}

// NewMeta builds page metadata for a normalized page and total row count.
func NewMeta(p Params, total int64) Meta {
	pages := 0
	if p.Limit > 0 {
		pages = int((total + int64(p.Limit) - 1) / int64(p.Limit))
	}
	return Meta{
		Page:       p.Page,
		Limit:      p.Limit,
		Total:      total,
		TotalPages: pages,
		HasNext:    p.Page < pages,
	}
}
