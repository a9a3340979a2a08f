package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeToken(t *testing.T) {
	tests := []struct {
		name    string
		ft      FieldType
		isIndex bool
		want    string
	}{
		{"plain scalar", FieldType{Kind: String}, false, "String"},
		{"index", FieldType{Kind: Date}, true, "*Date"},
		{"list", FieldType{Kind: URL, List: true}, false, "[URL]"},
		{"nullable", FieldType{Kind: Number, Nullable: true}, false, "Number?"},
		{"nullable list", FieldType{Kind: Boolean, List: true, Nullable: true}, false, "[Boolean]?"},
		{"embedded", FieldType{Kind: Embedded}, false, "Embedded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EncodeToken(tt.ft, tt.isIndex); got != tt.want {
				t.Errorf("EncodeToken = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDecodeToken(t *testing.T) {
	ft, isIndex, err := DecodeToken("*Date")
	require.NoError(t, err)
	assert.True(t, isIndex)
	assert.Equal(t, FieldType{Kind: Date}, ft)

	ft, isIndex, err = DecodeToken("[URL]?")
	require.NoError(t, err)
	assert.False(t, isIndex)
	assert.Equal(t, FieldType{Kind: URL, List: true, Nullable: true}, ft)
}

func TestDecodeTokenRejects(t *testing.T) {
	for _, token := range []string{
		"*Date?",     // index and nullable are mutually exclusive
		"*[Number]",  // index may not be a list
		"*Boolean",   // Boolean cannot index
		"*Embedded",  // Embedded cannot index
		"[Number",    // unterminated list
		"Timestamp",  // unknown base
		"",           // empty
	} {
		if _, _, err := DecodeToken(token); err == nil {
			t.Errorf("DecodeToken(%q) succeeded, want error", token)
		}
	}
}

func testSchema() *Schema {
	return &Schema{
		Index: "timestamp",
		Fields: []Field{
			{Name: "timestamp", Type: FieldType{Kind: Date}},
			{Name: "value", Type: FieldType{Kind: String}},
			{Name: "tags", Type: FieldType{Kind: String, List: true}},
			{Name: "score", Type: FieldType{Kind: Number, Nullable: true}},
		},
	}
}

func TestSchemaRoundTrip(t *testing.T) {
	s := testSchema()
	data, err := Encode(s)
	require.NoError(t, err)
	assert.JSONEq(t, `{"timestamp":"*Date","value":"String","tags":"[String]","score":"Number?"}`, string(data))

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.True(t, s.Equal(decoded), "decode(encode(s)) differs from s")
	assert.Equal(t, s.Names(), decoded.Names(), "declaration order not preserved")
}

func TestDecodePreservesKeyOrder(t *testing.T) {
	decoded, err := Decode([]byte(`{"b":"String","a":"*Number","c":"Boolean?"}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a", "c"}, decoded.Names())
	assert.Equal(t, "a", decoded.Index)
}

func TestDecodeRejects(t *testing.T) {
	for name, data := range map[string]string{
		"no index":        `{"a":"String"}`,
		"two indexes":     `{"a":"*Number","b":"*String"}`,
		"bad field name":  `{"a b":"*Number"}`,
		"not an object":   `["*Number"]`,
		"malformed token": `{"a":"*Nope"}`,
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := Decode([]byte(data)); err == nil {
				t.Errorf("Decode(%s) succeeded, want error", data)
			}
		})
	}
}

func TestEncodeRejectsInvalidSchema(t *testing.T) {
	s := &Schema{
		Index: "id",
		Fields: []Field{
			{Name: "id", Type: FieldType{Kind: Boolean}},
		},
	}
	_, err := Encode(s)
	assert.Error(t, err, "Boolean index must be rejected")
}
