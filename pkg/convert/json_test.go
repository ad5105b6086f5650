package convert

import (
	"bytes"
	"encoding/json"
	"reflect"
	"testing"

	"github.com/securechain/sbomgen/pkg/sbom"
)

func TestJSONConverter_RoundTrip(t *testing.T) {
	doc := testDocument()
	conv := &JSONConverter{}

	data, err := conv.Convert(doc)
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}

	var back sbom.Document
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("output does not unmarshal: %v", err)
	}
	if !reflect.DeepEqual(doc, &back) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", &back, doc)
	}
}

func TestJSONConverter_Idempotent(t *testing.T) {
	doc := testDocument()
	conv := &JSONConverter{}

	first, err := conv.Convert(doc)
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	second, err := conv.Convert(doc)
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("two renders of the same document differ")
	}
}

func TestJSONConverter_OptionalTypeOmitted(t *testing.T) {
	doc := testDocument()
	doc.Versions[0].Vulnerabilities[0].Type = nil

	data, err := (&JSONConverter{}).Convert(doc)
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	if bytes.Contains(data, []byte(`"type"`)) {
		t.Error("nil classification must not serialize a type key")
	}

	var back sbom.Document
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("output does not unmarshal: %v", err)
	}
	if back.Versions[0].Vulnerabilities[0].Type != nil {
		t.Error("Type must stay nil after a round trip")
	}
}
