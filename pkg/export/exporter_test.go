package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDataset() Dataset {
	return Dataset{
		Headers: []string{"entreprise", "ville"},
		Rows: []map[string]string{
			{"entreprise": "Bâtiments Durand", "ville": "Saint-Étienne"},
			{"entreprise": "ACME; SARL", "ville": "Lyon"},
		},
	}
}

func TestCSVExporterRender(t *testing.T) {
	out, err := NewCSVExporter().Render(sampleDataset())
	require.NoError(t, err)

	assert.True(t, bytes.HasPrefix(out, utf8BOM))
	body := string(out[len(utf8BOM):])
	assert.Equal(t, "entreprise;ville\nBâtiments Durand;Saint-Étienne\n\"ACME; SARL\";Lyon\n", body)

	_, err = NewCSVExporter().Render(Dataset{})
	assert.Error(t, err)
}

func TestPDFExporterRender(t *testing.T) {
	out, err := NewPDFExporter().Render(sampleDataset(), "Projets reçus")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}
