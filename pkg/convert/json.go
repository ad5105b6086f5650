package convert

import (
	"encoding/json"

	"github.com/securechain/sbomgen/pkg/errors"
	"github.com/securechain/sbomgen/pkg/sbom"
)

// JSONConverter re-encodes the document model losslessly: the output
// unmarshals back into an identical document.
type JSONConverter struct{}

var _ Converter = (*JSONConverter)(nil)

func (c *JSONConverter) Name() Format { return FormatJSON }

func (c *JSONConverter) ContentType() string { return "application/json" }

func (c *JSONConverter) Convert(doc *sbom.Document) ([]byte, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, errors.E(errors.KindSerialization, "convert.JSON", "encode document", err)
	}
	return data, nil
}
