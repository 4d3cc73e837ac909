package dict

import (
	"strings"
	"testing"

	"github.com/samsamfire/mcb/pkg/mcberr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// s6XML is one category/subcategory/register, loaded and queried
// back.
const s6XML = `<?xml version="1.0"?>
<Body>
  <Categories>
    <Category id="c1">
      <Labels><Label lang="en_US">Motor</Label></Labels>
      <Subcategories>
        <Subcategory id="s1">
          <Labels><Label lang="en_US">Speed loop</Label></Labels>
        </Subcategory>
      </Subcategories>
    </Category>
  </Categories>
  <Registers>
    <Register id="r1" address="0x0020" dtype="u16" access="rw" range-min="0" range-max="1000" cat_id="c1" scat_id="s1">
      <Labels><Label lang="en_US">Speed</Label></Labels>
    </Register>
  </Registers>
</Body>`

func TestS6Dictionary(t *testing.T) {
	d, err := Load(strings.NewReader(s6XML))
	require.NoError(t, err)

	assert.Equal(t, []string{"c1"}, d.CatIDs())

	r, err := d.Reg("r1")
	require.NoError(t, err)
	assert.EqualValues(t, 0x0020, r.Address)
	assert.Equal(t, U16, r.DataType)
	assert.Equal(t, AccessRW, r.Access)
	assert.Equal(t, Range{0, 1000}, r.Range)
	assert.Equal(t, "c1", r.CatID)
	assert.Equal(t, "s1", r.ScatID)

	label, err := r.Labels.Get("en_US")
	require.NoError(t, err)
	assert.Equal(t, "Speed", label)

	_, err = r.Labels.Get("fr")
	require.Error(t, err)
	var mErr *mcberr.Error
	require.ErrorAs(t, err, &mErr)
	assert.Equal(t, mcberr.KindUnknownLang, mErr.Kind)
}

func TestUnknownCategoryRejected(t *testing.T) {
	const xmlDoc = `<Body>
	<Registers>
		<Register id="r1" address="0x10" dtype="u8" access="ro" cat_id="nope"/>
	</Registers>
</Body>`
	_, err := Load(strings.NewReader(xmlDoc))
	require.Error(t, err)
	var mErr *mcberr.Error
	require.ErrorAs(t, err, &mErr)
	assert.Equal(t, mcberr.KindParse, mErr.Kind)
}

func TestInvertedRangeRejected(t *testing.T) {
	const xmlDoc = `<Body>
	<Registers>
		<Register id="r1" address="0x10" dtype="u8" access="ro" range-min="10" range-max="1"/>
	</Registers>
</Body>`
	_, err := Load(strings.NewReader(xmlDoc))
	require.Error(t, err)
}

func TestMalformedAddressIsParseError(t *testing.T) {
	const xmlDoc = `<Body>
	<Registers>
		<Register id="r1" address="not-hex" dtype="u8" access="ro"/>
	</Registers>
</Body>`
	_, err := Load(strings.NewReader(xmlDoc))
	require.Error(t, err)
	var mErr *mcberr.Error
	require.ErrorAs(t, err, &mErr)
	assert.Equal(t, mcberr.KindParse, mErr.Kind)
}

func TestDefaultRangeWhenOmitted(t *testing.T) {
	const xmlDoc = `<Body>
	<Registers>
		<Register id="r1" address="0x10" dtype="s8" access="ro"/>
	</Registers>
</Body>`
	d, err := Load(strings.NewReader(xmlDoc))
	require.NoError(t, err)
	r, err := d.Reg("r1")
	require.NoError(t, err)
	assert.Equal(t, Range{-0x80, 0x7F}, r.Range)
}

func TestUnknownElementsIgnored(t *testing.T) {
	const xmlDoc = `<Body>
	<FutureStuff><Nested/></FutureStuff>
	<Registers>
		<Register id="r1" address="0x10" dtype="u8" access="ro"/>
	</Registers>
</Body>`
	d, err := Load(strings.NewReader(xmlDoc))
	require.NoError(t, err)
	assert.Len(t, d.RegIDs(), 1)
}
