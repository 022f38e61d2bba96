package annotate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/clinicalpipe/annotator/internal/model"
)

func TestNormalizeAbsenceIndicator(t *testing.T) {
	cases := []struct {
		name, in, want string
	}{
		{"canonical phrase passes through", "Not applicable", "Not applicable"},
		{"n/a variant", "N/A", "Not applicable"},
		{"none stated variant", "None stated.", "Not applicable"},
		{"bracket placeholder", "[select value]", "Not applicable"},
		{"labeled absence keeps label", "Gender: not specified in the note.", "Gender: Not applicable"},
		{"real value untouched", "Patient's gender is male.", "Patient's gender is male."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, normalizeAbsenceIndicator(tc.in))
		})
	}
}

func TestStripMetaNarration(t *testing.T) {
	assert.Equal(t, "male", stripMetaNarration("Based on the note, male"))
	assert.Equal(t, "male", stripMetaNarration("The answer is: male"))
	assert.Equal(t, "male", stripMetaNarration("male"))
}

func TestDetectNegationCues(t *testing.T) {
	assert.True(t, detectNegationCues("There is no evidence of recurrence."))
	assert.True(t, detectNegationCues("Metastasis was ruled out."))
	assert.False(t, detectNegationCues("The tumor was 3cm in diameter."))
}

func TestResolveDateInfo_PrefersExtractedFromText(t *testing.T) {
	info := resolveDateInfo(&dateJSON{DateValue: "12/03/2020", Source: "extracted_from_text"}, model.Note{Date: "01/01/2020"})
	assert.Equal(t, "12/03/2020", info.DateValue)
	assert.Equal(t, model.DateExtractedFromText, info.Source)
}

func TestResolveDateInfo_FallsBackToCSVDate(t *testing.T) {
	info := resolveDateInfo(&dateJSON{}, model.Note{Date: "01/01/2020"})
	assert.Equal(t, "01/01/2020", info.DateValue)
	assert.Equal(t, model.DateDerivedFromCSV, info.Source)
}

func TestResolveDateInfo_NoDateAnywhere(t *testing.T) {
	assert.Nil(t, resolveDateInfo(&dateJSON{}, model.Note{}))
}
