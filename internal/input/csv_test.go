package input

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRead_MapsColumnsByHeader(t *testing.T) {
	src := `title,year,doi,authors,notes
"Attention Is All You Need",2017,10.5555/3295222,"Vaswani, A.; Shazeer, N.",ignore me
"Deep Residual Learning",2016,,He; Zhang; Ren; Sun,
`
	records, warnings, err := Read(strings.NewReader(src))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Empty(t, warnings)

	assert.Equal(t, "10.5555/3295222", records[0].DOI)
	assert.Equal(t, "Attention Is All You Need", records[0].Title)
	assert.Equal(t, []string{"Vaswani, A.", "Shazeer, N."}, records[0].Authors)
	assert.Equal(t, 2017, records[0].Year)

	assert.Empty(t, records[1].DOI)
	assert.Equal(t, "Deep Residual Learning", records[1].Title)
	assert.Len(t, records[1].Authors, 4)
}

func TestRead_SkipsEmptyRowsWithWarnings(t *testing.T) {
	src := `doi,title
10.1000/a,First
,
,"  "
10.1000/b,Second
`
	records, warnings, err := Read(strings.NewReader(src))
	require.NoError(t, err)
	assert.Len(t, records, 2)
	require.Len(t, warnings, 2)
	assert.Contains(t, warnings[0], "line 3")
	assert.Contains(t, warnings[1], "line 4")
}

func TestRead_RejectsUnusableHeader(t *testing.T) {
	_, _, err := Read(strings.NewReader("isbn,publisher\n123,acme\n"))
	assert.ErrorIs(t, err, ErrNoColumns)
}

func TestRead_EmptyInput(t *testing.T) {
	records, warnings, err := Read(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Empty(t, warnings)
}

func TestRead_DOIOnlyHeader(t *testing.T) {
	records, _, err := Read(strings.NewReader("doi\n10.1000/x\nhttps://doi.org/10.1000/y\n"))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "https://doi.org/10.1000/y", records[1].DOI)
}
