package parsers

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, input string) ([]Record, []error) {
	t.Helper()
	records, errs := ParseCSV(strings.NewReader(input))

	var allErrors []error
	done := make(chan struct{})
	go func() {
		for err := range errs {
			allErrors = append(allErrors, err)
		}
		close(done)
	}()

	var allRecords []Record
	for record := range records {
		allRecords = append(allRecords, record)
	}
	<-done
	return allRecords, allErrors
}

func TestParseLine_QuotedDelimiter(t *testing.T) {
	assert.Equal(t, []string{"a", "b,c", "d"}, ParseLine(`a,"b,c",d`))
}

func TestParseLine_TrimsFields(t *testing.T) {
	assert.Equal(t, []string{"3001", "Brick 2 x 4", ""}, ParseLine(" 3001 , Brick 2 x 4 ,"))
}

func TestParseLine_DoubledQuotesToggle(t *testing.T) {
	// "" is not an escape: the quotes vanish and quoted mode ends where it started
	assert.Equal(t, []string{"say hi", "x"}, ParseLine(`"say ""hi""",x`))
}

func TestParseLine_CarriageReturn(t *testing.T) {
	assert.Equal(t, []string{"1", "Black"}, ParseLine("1,Black\r"))
}

func TestFormatLine_RoundTrip(t *testing.T) {
	rows := [][]string{
		{"a", "b", "c"},
		{"3001", "Brick 2 x 4", "Plastic"},
		{"75192-1", "Millennium Falcon, UCS", "2017"},
		{"", "only middle", ""},
		{"x,y,z"},
	}
	for _, row := range rows {
		assert.Equal(t, row, ParseLine(FormatLine(row)), "row %q", row)
	}
}

func TestParseText_DropsMalformedRows(t *testing.T) {
	text := "id,name,rgb\n0,Black,05131D\n1,Blue\n2,Green,237841\n"

	records := ParseText(text)

	require.Len(t, records, 2)
	assert.Equal(t, "Black", records[0]["name"])
	assert.Equal(t, "2", records[1]["id"])
}

func TestParseText_SkipsBlankLines(t *testing.T) {
	text := "\n\nid,name\n\n1,Technic\n   \n2,City\n"

	records := ParseText(text)

	require.Len(t, records, 2)
	assert.Equal(t, "Technic", records[0]["name"])
	assert.Equal(t, "City", records[1]["name"])
}

func TestParseText_Empty(t *testing.T) {
	assert.Empty(t, ParseText(""))
	assert.Empty(t, ParseText("id,name\n"))
}

func TestParseCSV_ValidData(t *testing.T) {
	csvData := `set_num,name,year
75192-1,"Millennium Falcon, UCS",2017
10497-1,Galaxy Explorer,2022`

	records, errs := collect(t, csvData)

	assert.Len(t, records, 2, "Should parse 2 records")
	assert.Len(t, errs, 0, "Should have no errors")
	assert.Equal(t, "Millennium Falcon, UCS", records[0]["name"])
	assert.Equal(t, "2022", records[1]["year"])
}

func TestParseCSV_EmptyFile(t *testing.T) {
	records, errs := collect(t, "")

	assert.Len(t, records, 0, "Should parse 0 records")
	assert.Len(t, errs, 0, "Empty file should not error")
}

func TestParseCSV_FieldCountMismatch(t *testing.T) {
	csvData := "id,name,rgb\n0,Black,05131D\n1,Blue\n\n2,Green,237841,extra\n3,Red,C91A09"

	records, errs := collect(t, csvData)

	require.Len(t, records, 2)
	assert.Equal(t, "0", records[0]["id"])
	assert.Equal(t, "3", records[1]["id"])

	require.Len(t, errs, 2)
	var rowErr *RowError
	require.True(t, errors.As(errs[0], &rowErr))
	assert.Equal(t, 3, rowErr.Line)
	assert.Equal(t, 2, rowErr.Fields)
	assert.Equal(t, 3, rowErr.Want)
}

func TestParseCSV_MatchesParseText(t *testing.T) {
	csvData := "part_num,name,part_cat_id\r\n3001,Brick 2 x 4,11\r\n3002,\"Brick 2 x 3, Plain\",11\r\n"

	streamed, _ := collect(t, csvData)

	assert.Equal(t, ParseText(csvData), streamed)
}
