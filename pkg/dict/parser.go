package dict

import (
	"encoding/xml"
	"io"
	"strconv"
	"strings"

	"github.com/samsamfire/mcb/pkg/mcberr"
)

// Schema element/attribute names. Unknown elements are ignored.
const (
	elBody          = "Body"
	elCategories    = "Categories"
	elCategory      = "Category"
	elSubcategories = "Subcategories"
	elSubcategory   = "Subcategory"
	elRegisters     = "Registers"
	elRegister      = "Register"
	elLabels        = "Labels"
	elLabel         = "Label"

	attrID       = "id"
	attrLang     = "lang"
	attrAddress  = "address"
	attrDataType = "dtype"
	attrAccess   = "access"
	attrPhy      = "phy"
	attrRangeMin = "range-min"
	attrRangeMax = "range-max"
	attrCatID    = "cat_id"
	attrScatID   = "scat_id"
)

var dataTypes = map[string]DataType{
	"u8": U8, "s8": S8,
	"u16": U16, "s16": S16,
	"u32": U32, "s32": S32,
	"u64": U64, "s64": S64,
}

var accesses = map[string]Access{
	"ro": AccessRO,
	"wo": AccessWO,
	"rw": AccessRW,
}

var phys = map[string]Phy{
	"none":     PhyNone,
	"torque":   PhyTorque,
	"pos":      PhyPosition,
	"vel":      PhyVelocity,
	"acc":      PhyAcceleration,
	"volt_rel": PhyVoltageRel,
	"rad":      PhyRadian,
}

// builder tracks the element currently being built while walking the
// XML token stream, driven directly by encoding/xml's Decoder.Token.
type builder struct {
	dict *Dictionary

	// stack of open element names, innermost last.
	stack []string

	curCatID  string
	curScatID string
	curReg    *Register

	// labels being accumulated for whichever element is current
	// (category, subcategory, or register).
	curLabels   *Labels
	curLabelTag string
}

// Load parses an MCB dictionary XML document into an immutable
// Dictionary, validating range and category/subcategory references
// before returning.
func Load(r io.Reader) (*Dictionary, error) {
	dec := xml.NewDecoder(r)
	b := &builder{dict: newDictionary()}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, mcberr.Wrap(mcberr.KindParse, err, "mcb: xml decode: %v", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if err := b.start(t); err != nil {
				return nil, err
			}
		case xml.CharData:
			if b.curLabelTag != "" {
				b.curLabels.Set(b.curLabelTag, strings.TrimSpace(string(t)))
			}
		case xml.EndElement:
			b.end(t.Name.Local)
		}
	}

	if err := validate(b.dict); err != nil {
		return nil, err
	}
	return b.dict, nil
}

func attr(se xml.StartElement, name string) (string, bool) {
	for _, a := range se.Attr {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

func (b *builder) start(se xml.StartElement) error {
	name := se.Name.Local
	b.stack = append(b.stack, name)

	switch name {
	case elCategory:
		id, _ := attr(se, attrID)
		b.curCatID = id
		b.dict.catIDs = append(b.dict.catIDs, id)
		labels := NewLabels()
		b.dict.cats[id] = labels
		b.curLabels = labels

	case elSubcategory:
		id, _ := attr(se, attrID)
		b.curScatID = id
		b.dict.scatIDs[b.curCatID] = append(b.dict.scatIDs[b.curCatID], id)
		if b.dict.scats[b.curCatID] == nil {
			b.dict.scats[b.curCatID] = make(map[string]*Labels)
		}
		labels := NewLabels()
		b.dict.scats[b.curCatID][id] = labels
		b.curLabels = labels

	case elRegister:
		reg, err := b.newRegister(se)
		if err != nil {
			return err
		}
		b.curReg = reg
		b.curLabels = reg.Labels

	case elLabel:
		lang, _ := attr(se, attrLang)
		b.curLabelTag = lang
	}
	return nil
}

func (b *builder) newRegister(se xml.StartElement) (*Register, error) {
	id, _ := attr(se, attrID)

	addrStr, _ := attr(se, attrAddress)
	addrStr = strings.TrimPrefix(strings.TrimPrefix(addrStr, "0x"), "0X")
	address, err := strconv.ParseUint(addrStr, 16, 32)
	if err != nil {
		return nil, mcberr.Wrap(mcberr.KindParse, err, "mcb: register %q: bad address %q", id, addrStr)
	}

	dtStr, _ := attr(se, attrDataType)
	dt, ok := dataTypes[strings.ToLower(dtStr)]
	if !ok {
		return nil, mcberr.New(mcberr.KindParse, "mcb: register %q: unknown dtype %q", id, dtStr)
	}

	accStr, _ := attr(se, attrAccess)
	acc, ok := accesses[strings.ToLower(accStr)]
	if !ok {
		return nil, mcberr.New(mcberr.KindParse, "mcb: register %q: unknown access %q", id, accStr)
	}

	phyStr, hasPhy := attr(se, attrPhy)
	phy := PhyNone
	if hasPhy {
		phy, ok = phys[strings.ToLower(phyStr)]
		if !ok {
			return nil, mcberr.New(mcberr.KindParse, "mcb: register %q: unknown phy %q", id, phyStr)
		}
	}

	rng := domainDefault(dt)
	if minStr, ok := attr(se, attrRangeMin); ok {
		v, err := strconv.ParseInt(minStr, 0, 64)
		if err != nil {
			return nil, mcberr.Wrap(mcberr.KindParse, err, "mcb: register %q: bad range-min %q", id, minStr)
		}
		rng.Min = v
	}
	if maxStr, ok := attr(se, attrRangeMax); ok {
		v, err := strconv.ParseInt(maxStr, 0, 64)
		if err != nil {
			return nil, mcberr.Wrap(mcberr.KindParse, err, "mcb: register %q: bad range-max %q", id, maxStr)
		}
		rng.Max = v
	}

	catID, _ := attr(se, attrCatID)
	scatID, _ := attr(se, attrScatID)

	reg := &Register{
		ID:       id,
		Address:  uint32(address),
		DataType: dt,
		Access:   acc,
		Phy:      phy,
		Range:    rng,
		Labels:   NewLabels(),
		CatID:    catID,
		ScatID:   scatID,
	}
	b.dict.regIDs = append(b.dict.regIDs, id)
	b.dict.regs[id] = reg
	return reg, nil
}

func (b *builder) end(name string) {
	if len(b.stack) > 0 {
		b.stack = b.stack[:len(b.stack)-1]
	}
	switch name {
	case elLabel:
		b.curLabelTag = ""
	case elCategory:
		b.curCatID = ""
		b.curLabels = nil
	case elSubcategory:
		b.curScatID = ""
		b.curLabels = nil
	case elRegister:
		b.curReg = nil
		b.curLabels = nil
	}
}

// validate checks range and category/subcategory references once the
// whole document has been parsed, since subcategories may appear after
// the registers that reference them.
func validate(d *Dictionary) error {
	for _, id := range d.regIDs {
		r := d.regs[id]

		if !rangeOK(r.Range, r.DataType) {
			return mcberr.New(mcberr.KindParse, "mcb: register %q: range.min > range.max", id)
		}

		if r.CatID != "" {
			if _, ok := d.cats[r.CatID]; !ok {
				return mcberr.New(mcberr.KindParse, "mcb: register %q: unknown cat_id %q", id, r.CatID)
			}
			if r.ScatID != "" {
				sub, ok := d.scats[r.CatID]
				if !ok {
					return mcberr.New(mcberr.KindParse, "mcb: register %q: unknown scat_id %q under %q", id, r.ScatID, r.CatID)
				}
				if _, ok := sub[r.ScatID]; !ok {
					return mcberr.New(mcberr.KindParse, "mcb: register %q: unknown scat_id %q under %q", id, r.ScatID, r.CatID)
				}
			}
		}
	}
	return nil
}

func rangeOK(r Range, dt DataType) bool {
	if dt == U64 {
		// A negative Min is outside the U64 domain and is rejected as a
		// range error. Values above 1<<63-1 never reach here: ParseInt
		// already fails them as a bad range-min/range-max.
		return r.Min >= 0 && r.Min <= r.Max
	}
	return r.Min <= r.Max
}
