// Package dict implements the in-memory register dictionary: an
// immutable, read-only-after-load forest of categories, subcategories,
// and registers, keyed by string ids.
package dict

import "github.com/samsamfire/mcb/pkg/mcberr"

// DataType is the wire type of a register's value.
type DataType int

const (
	U8 DataType = iota
	S8
	U16
	S16
	U32
	S32
	U64
	S64
)

// Access is the permitted direction of a register.
type Access int

const (
	AccessRO Access = iota
	AccessWO
	AccessRW
)

// Phy is the physical-unit tag attached to a register's range.
type Phy int

const (
	PhyNone Phy = iota
	PhyTorque
	PhyPosition
	PhyVelocity
	PhyAcceleration
	PhyVoltageRel
	PhyRadian
)

// Range holds a register's [min, max] bound, stored widened to int64
// and interpreted against the register's DataType.
type Range struct {
	Min int64
	Max int64
}

// domainDefault returns the full-domain range for dt, used when a
// register's XML entry omits range-min/range-max.
func domainDefault(dt DataType) Range {
	switch dt {
	case U8:
		return Range{0, 0xFF}
	case S8:
		return Range{-0x80, 0x7F}
	case U16:
		return Range{0, 0xFFFF}
	case S16:
		return Range{-0x8000, 0x7FFF}
	case U32:
		return Range{0, 0xFFFFFFFF}
	case S32:
		return Range{-0x80000000, 0x7FFFFFFF}
	case U64:
		return Range{0, 1<<63 - 1} // widened int64 cannot represent the full U64 max
	case S64:
		return Range{-1 << 63, 1<<63 - 1}
	default:
		return Range{}
	}
}

// Labels maps a language tag (e.g. "en_US") to a localized string.
// Iteration order (Langs) is stable insertion order, not map order.
type Labels struct {
	order  []string
	values map[string]string
}

// NewLabels returns an empty Labels set.
func NewLabels() *Labels {
	return &Labels{values: make(map[string]string)}
}

// Set records the label for lang, appending lang to the iteration
// order the first time it is seen.
func (l *Labels) Set(lang, text string) {
	if _, ok := l.values[lang]; !ok {
		l.order = append(l.order, lang)
	}
	l.values[lang] = text
}

// Get returns the label for lang, or ErrUnknownLang.
func (l *Labels) Get(lang string) (string, error) {
	v, ok := l.values[lang]
	if !ok {
		return "", mcberr.New(mcberr.KindUnknownLang, "mcb: no label for language %q", lang)
	}
	return v, nil
}

// Langs returns the language tags in stable insertion order.
func (l *Labels) Langs() []string {
	return append([]string(nil), l.order...)
}

// Count returns the number of recorded languages.
func (l *Labels) Count() int { return len(l.order) }

// Register is one addressable configuration slot.
type Register struct {
	ID       string
	Address  uint32
	DataType DataType
	Access   Access
	Phy      Phy
	Range    Range
	Labels   *Labels
	CatID    string
	ScatID   string
}

// Dictionary is the immutable, read-only-after-load register catalog.
type Dictionary struct {
	catIDs  []string
	cats    map[string]*Labels
	scatIDs map[string][]string
	scats   map[string]map[string]*Labels
	regIDs  []string
	regs    map[string]*Register
}

func newDictionary() *Dictionary {
	return &Dictionary{
		cats:    make(map[string]*Labels),
		scatIDs: make(map[string][]string),
		scats:   make(map[string]map[string]*Labels),
		regs:    make(map[string]*Register),
	}
}

// CatIDs returns category ids in file order.
func (d *Dictionary) CatIDs() []string { return append([]string(nil), d.catIDs...) }

// Cat returns the labels for a category id.
func (d *Dictionary) Cat(id string) (*Labels, error) {
	l, ok := d.cats[id]
	if !ok {
		return nil, mcberr.New(mcberr.KindInvalid, "mcb: unknown category %q", id)
	}
	return l, nil
}

// ScatIDs returns subcategory ids nested under catID, in file order.
func (d *Dictionary) ScatIDs(catID string) []string {
	return append([]string(nil), d.scatIDs[catID]...)
}

// Scat returns the labels for a subcategory nested under catID.
func (d *Dictionary) Scat(catID, scatID string) (*Labels, error) {
	sub, ok := d.scats[catID]
	if !ok {
		return nil, mcberr.New(mcberr.KindInvalid, "mcb: unknown category %q", catID)
	}
	l, ok := sub[scatID]
	if !ok {
		return nil, mcberr.New(mcberr.KindInvalid, "mcb: unknown subcategory %q under %q", scatID, catID)
	}
	return l, nil
}

// RegIDs returns register ids in file order.
func (d *Dictionary) RegIDs() []string { return append([]string(nil), d.regIDs...) }

// Reg returns the register with the given id.
func (d *Dictionary) Reg(id string) (*Register, error) {
	r, ok := d.regs[id]
	if !ok {
		return nil, mcberr.New(mcberr.KindInvalid, "mcb: unknown register %q", id)
	}
	return r, nil
}
